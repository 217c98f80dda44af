package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConversation() *Conversation {
	return NewConversation("anthropic/claude", "openai/gpt", ConversationConfig{
		MaxTurns:  10,
		Profile:   "balanced",
		Threshold: 0.85,
		Action:    ActionStop,
	})
}

// -------------------- State Machine Tests --------------------

func TestConversationLifecycle(t *testing.T) {
	c := newTestConversation()
	assert.Equal(t, StatusCreated, c.Status)
	assert.True(t, c.Started.IsZero())

	require.NoError(t, c.Transition(StatusRunning, ""))
	assert.False(t, c.Started.IsZero())

	require.NoError(t, c.Transition(StatusPaused, ""))
	require.NoError(t, c.Transition(StatusRunning, ""))

	require.NoError(t, c.Transition(StatusCompleted, EndReasonMaxTurns))
	assert.False(t, c.Ended.IsZero())
	assert.Equal(t, EndReasonMaxTurns, c.EndReason)
}

func TestConversationTerminalStatesAreFinal(t *testing.T) {
	for _, terminal := range []ConversationStatus{StatusCompleted, StatusFailed, StatusInterrupted} {
		c := newTestConversation()
		require.NoError(t, c.Transition(StatusRunning, ""))
		require.NoError(t, c.Transition(terminal, EndReasonInterrupted))

		for _, next := range []ConversationStatus{StatusRunning, StatusPaused, StatusCompleted, StatusFailed} {
			assert.Error(t, c.Transition(next, ""), "%s -> %s must be rejected", terminal, next)
		}
	}
}

func TestConversationIllegalTransitions(t *testing.T) {
	c := newTestConversation()

	// created may only go to running.
	assert.Error(t, c.Transition(StatusPaused, ""))
	assert.Error(t, c.Transition(StatusCompleted, EndReasonMaxTurns))

	require.NoError(t, c.Transition(StatusRunning, ""))
	require.NoError(t, c.Transition(StatusPaused, ""))

	// paused may not complete or fail directly.
	assert.Error(t, c.Transition(StatusCompleted, EndReasonMaxTurns))
	assert.Error(t, c.Transition(StatusFailed, EndReasonAPIError))
	assert.NoError(t, c.Transition(StatusInterrupted, EndReasonInterrupted))
}

func TestConversationEndReasonIffTerminal(t *testing.T) {
	c := newTestConversation()

	// Non-terminal transition with a reason is rejected.
	assert.Error(t, c.Transition(StatusRunning, EndReasonMaxTurns))
	require.NoError(t, c.Transition(StatusRunning, ""))

	// Terminal transition without a reason is rejected.
	assert.Error(t, c.Transition(StatusCompleted, ""))
	assert.Equal(t, StatusRunning, c.Status, "failed transition must not change state")
}

// -------------------- End Reason Tests --------------------

func TestParseEndReasonCanonical(t *testing.T) {
	for _, r := range []EndReason{
		EndReasonConvergence, EndReasonMaxTurns, EndReasonTimeout,
		EndReasonRateLimit, EndReasonAPIError, EndReasonException, EndReasonInterrupted,
	} {
		got, err := ParseEndReason(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
}

func TestParseEndReasonLegacyAliases(t *testing.T) {
	tests := map[string]EndReason{
		"high_convergence": EndReasonConvergence,
		"max_turns":        EndReasonMaxTurns,
		"turn_limit":       EndReasonMaxTurns,
		"error":            EndReasonAPIError,
	}
	for raw, want := range tests {
		got, err := ParseEndReason(raw)
		require.NoError(t, err, "alias %s", raw)
		assert.Equal(t, want, got, "alias %s", raw)
	}
}

func TestParseEndReasonUnknown(t *testing.T) {
	_, err := ParseEndReason("gave_up")
	assert.Error(t, err)
}

// -------------------- Message Role Tests --------------------

func TestMessageRoleFor(t *testing.T) {
	msg := Message{Speaker: SpeakerA, Text: "hello"}

	assert.Equal(t, "assistant", msg.RoleFor(SpeakerA))
	assert.Equal(t, "user", msg.RoleFor(SpeakerB))
}

func TestSpeakerOther(t *testing.T) {
	assert.Equal(t, SpeakerB, SpeakerA.Other())
	assert.Equal(t, SpeakerA, SpeakerB.Other())
}
