package core

import (
	"context"
	"time"
)

// Speaker identifies which side of the conversation authored a message.
type Speaker string

const (
	// SpeakerA is the agent that opens every turn.
	SpeakerA Speaker = "agent_a"
	// SpeakerB is the agent that replies within a turn.
	SpeakerB Speaker = "agent_b"
)

// Other returns the opposite speaker.
func (s Speaker) Other() Speaker {
	if s == SpeakerA {
		return SpeakerB
	}
	return SpeakerA
}

// Message is one utterance in the ordered conversation history handed to an
// agent adapter.
type Message struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// RoleFor maps the message's speaker to the chat role seen from the given
// seat: an agent's own prior messages are "assistant", the counterpart's are
// "user".
func (m Message) RoleFor(seat Speaker) string {
	if m.Speaker == seat {
		return "assistant"
	}
	return "user"
}

// TokenUsage captures token accounting for a single agent reply.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Reply is the result of one successful agent call.
type Reply struct {
	Text    string        `json:"text"`
	Usage   TokenUsage    `json:"usage"`
	Cost    float64       `json:"cost"`
	Latency time.Duration `json:"latency"`
}

// Agent is the capability boundary to a conversational provider. Given the
// ordered history of prior messages it produces the next message, or fails
// with a *ProviderError carrying one of the fixed error codes (rate limit,
// timeout, auth, API). Implementations must honor ctx cancellation and
// deadlines; each provider is wrapped exactly once behind this interface.
type Agent interface {
	// Name returns the stable identifier of the agent (provider/model).
	Name() string

	// Reply produces the next message given the full prior history.
	Reply(ctx context.Context, history []Message) (*Reply, error)
}
