package core

import (
	"fmt"
	"time"
)

// EventType tags the append-only event records written to a conversation's
// event log. The set is closed; replaying a log with an unknown tag is an
// error, not a silent skip.
type EventType string

const (
	// EventConversationStart records the transition into the running state.
	EventConversationStart EventType = "conversation-start"
	// EventMessageComplete records one fully received agent reply. A reply is
	// not considered to have happened until this record is durable.
	EventMessageComplete EventType = "message-complete"
	// EventTurnComplete records a scored message pair.
	EventTurnComplete EventType = "turn-complete"
	// EventConvergenceWarning records a threshold crossing under the warn
	// action.
	EventConvergenceWarning EventType = "convergence-warning"
	// EventConvergenceNotification records a threshold crossing under the
	// notify action.
	EventConvergenceNotification EventType = "convergence-notification"
	// EventConversationEnd records the terminal transition with its end
	// reason and final score.
	EventConversationEnd EventType = "conversation-end"
	// EventConversationError records the failure detail preceding a failed
	// terminal transition.
	EventConversationError EventType = "conversation-error"
)

// Valid reports whether t is a member of the closed event-type set.
func (t EventType) Valid() bool {
	switch t {
	case EventConversationStart, EventMessageComplete, EventTurnComplete,
		EventConvergenceWarning, EventConvergenceNotification,
		EventConversationEnd, EventConversationError:
		return true
	}
	return false
}

// Event is the primary unit of durable history. After emission it must be
// treated as immutable: events for one conversation are totally ordered by
// append time and never rewritten or deleted. Payload fields are populated
// per type; absent fields are omitted from the serialized record.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversation_id"`

	// message-complete payload
	Speaker   Speaker     `json:"speaker,omitempty"`
	Text      string      `json:"text,omitempty"`
	Usage     *TokenUsage `json:"usage,omitempty"`
	Cost      float64     `json:"cost,omitempty"`
	LatencyMS int64       `json:"latency_ms,omitempty"`

	// turn-complete / convergence payload
	Turn     *int             `json:"turn,omitempty"`
	Scores   *ComponentScores `json:"scores,omitempty"`
	Combined *float64         `json:"combined,omitempty"`
	Trend    *float64         `json:"trend,omitempty"`

	// conversation-end payload
	EndReason  EndReason `json:"end_reason,omitempty"`
	FinalScore *float64  `json:"final_score,omitempty"`

	// conversation-error payload
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewEvent creates a bare event of the given type bound to a conversation.
// Prefer the typed constructors for the common event categories.
func NewEvent(typ EventType, conversationID string) Event {
	return Event{
		ID:             NewID(),
		Type:           typ,
		Timestamp:      time.Now().UTC(),
		ConversationID: conversationID,
	}
}

// NewConversationStartEvent records that the conversation entered the running
// state.
func NewConversationStartEvent(conversationID string) Event {
	return NewEvent(EventConversationStart, conversationID)
}

// NewMessageCompleteEvent records a fully received reply from one speaker.
func NewMessageCompleteEvent(conversationID string, speaker Speaker, reply *Reply) Event {
	e := NewEvent(EventMessageComplete, conversationID)
	e.Speaker = speaker
	e.Text = reply.Text
	usage := reply.Usage
	e.Usage = &usage
	e.Cost = reply.Cost
	e.LatencyMS = reply.Latency.Milliseconds()
	return e
}

// NewTurnCompleteEvent records a scored message pair.
func NewTurnCompleteEvent(conversationID string, turn *Turn) Event {
	e := NewEvent(EventTurnComplete, conversationID)
	idx, combined, trend, scores := turn.Index, turn.Combined, turn.Trend, turn.Scores
	e.Turn = &idx
	e.Scores = &scores
	e.Combined = &combined
	e.Trend = &trend
	return e
}

// NewConvergenceEvent records a threshold crossing under the warn or notify
// action.
func NewConvergenceEvent(typ EventType, conversationID string, turn int, combined float64) Event {
	e := NewEvent(typ, conversationID)
	e.Turn = &turn
	e.Combined = &combined
	return e
}

// NewConversationEndEvent records the terminal transition.
func NewConversationEndEvent(conversationID string, reason EndReason, finalScore float64) Event {
	e := NewEvent(EventConversationEnd, conversationID)
	e.EndReason = reason
	e.FinalScore = &finalScore
	return e
}

// NewConversationErrorEvent records failure detail for a failed conversation.
func NewConversationErrorEvent(conversationID, code, message string) Event {
	e := NewEvent(EventConversationError, conversationID)
	e.ErrorCode = code
	e.ErrorMessage = message
	return e
}

// Validate checks structural invariants of a replayed event record, resolving
// legacy end-reason aliases to their canonical spelling.
func (e *Event) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.ConversationID == "" {
		return fmt.Errorf("event %s missing conversation id", e.ID)
	}
	if e.Type == EventConversationEnd {
		reason, err := ParseEndReason(string(e.EndReason))
		if err != nil {
			return err
		}
		e.EndReason = reason
	}
	return nil
}
