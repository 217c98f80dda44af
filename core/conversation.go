package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConversationStatus enumerates the lifecycle states of a conversation. The
// set is closed: consumers must treat an unknown value as a programming error
// rather than silently accepting it.
type ConversationStatus string

const (
	// StatusCreated is the initial state before Start is called.
	StatusCreated ConversationStatus = "created"
	// StatusRunning indicates the turn loop is actively producing turns.
	StatusRunning ConversationStatus = "running"
	// StatusPaused indicates the turn loop is suspended; no messages are
	// requested while paused.
	StatusPaused ConversationStatus = "paused"
	// StatusCompleted is terminal: the conversation ended normally.
	StatusCompleted ConversationStatus = "completed"
	// StatusFailed is terminal: a provider or persistence failure ended the
	// conversation.
	StatusFailed ConversationStatus = "failed"
	// StatusInterrupted is terminal: an external interruption ended the
	// conversation.
	StatusInterrupted ConversationStatus = "interrupted"
)

// Valid reports whether s is a member of the closed status set.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusRunning, StatusPaused, StatusCompleted, StatusFailed, StatusInterrupted:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s ConversationStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusInterrupted:
		return true
	}
	return false
}

// CanTransition reports whether a transition from s to next is legal:
//
//	created → running
//	running → paused | completed | failed | interrupted
//	paused  → running | interrupted
//
// Terminal states admit no transitions.
func (s ConversationStatus) CanTransition(next ConversationStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusCreated:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusPaused || next.Terminal()
	case StatusPaused:
		return next == StatusRunning || next == StatusInterrupted
	}
	return false
}

// EndReason classifies why a conversation reached a terminal state. It is set
// if and only if the conversation status is terminal.
type EndReason string

const (
	// EndReasonConvergence: the combined convergence score crossed the
	// configured threshold with action stop.
	EndReasonConvergence EndReason = "convergence_threshold"
	// EndReasonMaxTurns: the configured maximum turn count was reached.
	EndReasonMaxTurns EndReason = "max_turns_reached"
	// EndReasonTimeout: an agent call exceeded its per-call timeout.
	EndReasonTimeout EndReason = "timeout"
	// EndReasonRateLimit: provider rate limiting persisted through all
	// retries.
	EndReasonRateLimit EndReason = "rate_limit"
	// EndReasonAPIError: the provider rejected a request (auth or API error).
	EndReasonAPIError EndReason = "api_error"
	// EndReasonException: an unclassified failure ended the conversation.
	EndReasonException EndReason = "exception"
	// EndReasonInterrupted: an external interruption ended the conversation.
	EndReasonInterrupted EndReason = "interrupted"
)

// Valid reports whether r is a member of the closed end-reason set.
func (r EndReason) Valid() bool {
	switch r {
	case EndReasonConvergence, EndReasonMaxTurns, EndReasonTimeout,
		EndReasonRateLimit, EndReasonAPIError, EndReasonException, EndReasonInterrupted:
		return true
	}
	return false
}

// legacyEndReasons maps deprecated end-reason spellings found in historical
// event logs to their canonical counterparts. Resolution happens at ingestion
// boundaries only; new code never emits these values.
var legacyEndReasons = map[string]EndReason{
	"high_convergence": EndReasonConvergence,
	"max_turns":        EndReasonMaxTurns,
	"turn_limit":       EndReasonMaxTurns,
	"error":            EndReasonAPIError,
}

// ParseEndReason resolves raw to a canonical EndReason, accepting deprecated
// aliases from historical data. Unknown values are rejected.
func ParseEndReason(raw string) (EndReason, error) {
	if r := EndReason(raw); r.Valid() {
		return r, nil
	}
	if r, ok := legacyEndReasons[raw]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown end reason %q", raw)
}

// ConvergenceAction selects what happens when the combined convergence score
// reaches the configured threshold.
type ConvergenceAction string

const (
	// ActionStop finalizes the conversation as completed.
	ActionStop ConvergenceAction = "stop"
	// ActionWarn emits a warning event and continues.
	ActionWarn ConvergenceAction = "warn"
	// ActionNotify emits a notification event and continues.
	ActionNotify ConvergenceAction = "notify"
	// ActionContinue ignores the threshold entirely.
	ActionContinue ConvergenceAction = "continue"
)

// Valid reports whether a is a member of the closed action set.
func (a ConvergenceAction) Valid() bool {
	switch a {
	case ActionStop, ActionWarn, ActionNotify, ActionContinue:
		return true
	}
	return false
}

// ConversationConfig carries the per-conversation parameters shared by all
// conversations of one experiment.
type ConversationConfig struct {
	// MaxTurns bounds the conversation length; reaching it completes the
	// conversation with end reason max_turns_reached.
	MaxTurns int `json:"max_turns" yaml:"max_turns"`
	// InitialPrompt seeds the conversation as the first message presented to
	// agent A.
	InitialPrompt string `json:"initial_prompt" yaml:"initial_prompt"`
	// Temperature is forwarded to both agent adapters.
	Temperature float64 `json:"temperature" yaml:"temperature"`
	// Profile names the convergence weight profile in effect.
	Profile string `json:"profile" yaml:"profile"`
	// Threshold is the combined-score level that triggers Action.
	Threshold float64 `json:"threshold" yaml:"threshold"`
	// Action is taken when the combined score reaches Threshold.
	Action ConvergenceAction `json:"action" yaml:"action"`
}

// Conversation tracks the identity, configuration and lifecycle of one
// two-agent dialogue. The runner exclusively owns a Conversation while it is
// executing; durable truth lives in the event log.
type Conversation struct {
	ID        string             `json:"id"`
	AgentA    string             `json:"agent_a"`
	AgentB    string             `json:"agent_b"`
	Turns     int                `json:"turns"`
	Status    ConversationStatus `json:"status"`
	EndReason EndReason          `json:"end_reason,omitempty"`
	Config    ConversationConfig `json:"config"`
	Created   time.Time          `json:"created"`
	Started   time.Time          `json:"started,omitzero"`
	Ended     time.Time          `json:"ended,omitzero"`
}

// NewConversation creates a conversation in the created state between the two
// named agents.
func NewConversation(agentA, agentB string, cfg ConversationConfig) *Conversation {
	return &Conversation{
		ID:      NewID(),
		AgentA:  agentA,
		AgentB:  agentB,
		Status:  StatusCreated,
		Config:  cfg,
		Created: time.Now().UTC(),
	}
}

// Transition moves the conversation to next, enforcing the state machine. For
// terminal states an end reason is required; for non-terminal states it must
// be absent.
func (c *Conversation) Transition(next ConversationStatus, reason EndReason) error {
	if !next.Valid() {
		return fmt.Errorf("invalid conversation status %q", next)
	}
	if !c.Status.CanTransition(next) {
		return fmt.Errorf("illegal transition %s -> %s for conversation %s", c.Status, next, c.ID)
	}
	if next.Terminal() != (reason != "") {
		return fmt.Errorf("end reason %q inconsistent with status %s", reason, next)
	}
	now := time.Now().UTC()
	switch {
	case next == StatusRunning && c.Status == StatusCreated:
		c.Started = now
	case next.Terminal():
		c.Ended = now
	}
	c.Status = next
	c.EndReason = reason
	return nil
}

// NewID generates a new unique identifier for conversations, experiments and
// events.
func NewID() string { return uuid.NewString() }
