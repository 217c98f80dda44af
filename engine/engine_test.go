package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/duologue/agent"
	"github.com/hupe1980/duologue/core"
	"github.com/hupe1980/duologue/eventlog"
)

func convergingAgents() (core.Agent, core.Agent) {
	// Replies converge to identical text so balanced scoring crosses any
	// reasonable threshold within a few turns.
	agentA := agent.NewScriptedAgent("scripted/a", []string{
		"The harbor was busy this morning with fishing boats.",
		"The harbor was busy with fishing boats this morning.",
		"The harbor was busy with fishing boats today.",
	})
	agentB := agent.NewScriptedAgent("scripted/b", []string{
		"Cargo ships kept the docks crowded well into the evening.",
		"The harbor was crowded with fishing boats this morning.",
		"The harbor was busy with fishing boats today.",
	})
	return agentA, agentB
}

func testConfig(maxTurns int) core.ConversationConfig {
	return core.ConversationConfig{
		MaxTurns:      maxTurns,
		InitialPrompt: "Tell me about the harbor.",
		Profile:       "balanced",
		Threshold:     0.95,
		Action:        core.ActionStop,
	}
}

func TestRunExperiment(t *testing.T) {
	agentA, agentB := convergingAgents()
	e := New(agentA, agentB, func(o *Options) {
		o.MaxConcurrent = 2
	})

	dir := t.TempDir()
	result, err := e.RunExperiment(context.Background(), dir, "harbor", 3, testConfig(5))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, core.ExperimentPostProcessing, result.Experiment.Status)
	assert.Zero(t, result.Failed)
	require.Len(t, result.Conversations, 3)
	for _, conv := range result.Conversations {
		assert.True(t, conv.Status.Terminal())
		assert.Equal(t, core.StatusCompleted, conv.Status)
	}

	// Manifest reflects the final state and every conversation has a log.
	m, err := eventlog.NewFileManifestStore(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, result.Experiment.ID, m.ExperimentID)
	assert.Equal(t, core.ExperimentPostProcessing, m.Status)
	require.Len(t, m.Conversations, 3)

	store, err := eventlog.NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()
	for _, mc := range m.Conversations {
		assert.True(t, mc.Status.Terminal())
		events, err := store.Replay(mc.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, events)
		assert.Equal(t, core.EventConversationEnd, events[len(events)-1].Type)
	}
}

func TestRunExperimentIsolatesConversationFailures(t *testing.T) {
	// Agent A fails from its third call on; with serial execution the first
	// conversation finishes cleanly and a later one fails.
	agentA := agent.NewScriptedAgent("scripted/a", []string{"steady reply here"}, func(o *agent.ScriptedOptions) {
		o.FailAfter = 2
		o.Err = core.NewProviderError(core.ProviderAuth, "scripted", "injected auth failure")
	})
	agentB := agent.NewScriptedAgent("scripted/b", []string{"steady answer here"})

	e := New(agentA, agentB, func(o *Options) {
		o.MaxConcurrent = 1
	})

	dir := t.TempDir()
	result, err := e.RunExperiment(context.Background(), dir, "mixed", 2, core.ConversationConfig{
		MaxTurns:  2,
		Profile:   "balanced",
		Threshold: 0.99,
		Action:    core.ActionStop,
	})
	require.Error(t, err, "failed conversations surface in the aggregated error")
	require.NotNil(t, result)

	assert.Equal(t, core.ExperimentPostProcessing, result.Experiment.Status,
		"failures do not abort the experiment; the directory stays importable")
	assert.Equal(t, 1, result.Failed)

	statuses := map[core.ConversationStatus]int{}
	for _, conv := range result.Conversations {
		require.True(t, conv.Status.Terminal())
		statuses[conv.Status]++
	}
	assert.Equal(t, 1, statuses[core.StatusCompleted])
	assert.Equal(t, 1, statuses[core.StatusFailed])
}

func TestRunExperimentRejectsBadInput(t *testing.T) {
	agentA, agentB := convergingAgents()
	e := New(agentA, agentB)

	_, err := e.RunExperiment(context.Background(), t.TempDir(), "bad", 0, testConfig(5))
	assert.Error(t, err)

	cfg := testConfig(5)
	cfg.Profile = "vibes"
	_, err = e.RunExperiment(context.Background(), t.TempDir(), "bad", 1, cfg)
	assert.Error(t, err)
}

func TestInterruptStopsAllConversations(t *testing.T) {
	agentA, agentB := convergingAgents()
	e := New(agentA, agentB)

	e.Interrupt() // before any experiment: no-op
	assert.NotPanics(t, func() { e.Pause() })
	assert.NotPanics(t, func() { e.Resume() })
}
