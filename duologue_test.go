package duologue_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/duologue"
	"github.com/hupe1980/duologue/agent"
	"github.com/hupe1980/duologue/core"
	"github.com/hupe1980/duologue/importer"
)

// TestRunExperimentEndToEnd drives the whole pipeline offline: scripted
// agents, convergence stop, durable event logs, manifest lifecycle and the
// SQLite projection.
func TestRunExperimentEndToEnd(t *testing.T) {
	agentA := agent.NewScriptedAgent("scripted/a", []string{
		"The mountain trails were quiet this weekend.",
		"The mountain trails were quiet and empty this weekend.",
		"The mountain trails were quiet and empty this weekend too.",
	})
	agentB := agent.NewScriptedAgent("scripted/b", []string{
		"Most hikers stayed home because of the rain forecast.",
		"The mountain trails were quiet and empty this weekend.",
		"The mountain trails were quiet and empty this weekend too.",
	})

	root := t.TempDir()
	dbPath := filepath.Join(root, "duologue.db")

	d := duologue.New(agentA, agentB, func(o *duologue.Options) {
		o.OutputDir = filepath.Join(root, "experiments")
		o.DatabasePath = dbPath
		o.MaxConcurrent = 1
	})

	result, err := d.RunExperiment(context.Background(), "e2e", 1, core.ConversationConfig{
		MaxTurns:      8,
		InitialPrompt: "How were the trails?",
		Profile:       "balanced",
		Threshold:     0.9,
		Action:        core.ActionStop,
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, core.ExperimentCompleted, result.Experiment.Status)
	require.Len(t, result.Conversations, 1)

	conv := result.Conversations[0]
	assert.Equal(t, core.StatusCompleted, conv.Status)
	assert.Equal(t, core.EndReasonConvergence, conv.EndReason)
	assert.LessOrEqual(t, conv.Turns, 3, "identical scripted replies converge within the script length")

	// The analytical store holds the projected experiment.
	db, err := importer.Open(dbPath)
	require.NoError(t, err)

	var convRow importer.ConversationRow
	require.NoError(t, db.First(&convRow, "id = ?", conv.ID).Error)
	assert.Equal(t, string(core.StatusCompleted), convRow.Status)
	assert.Equal(t, string(core.EndReasonConvergence), convRow.EndReason)
	assert.Equal(t, conv.Turns, convRow.Turns)

	var turnCount int64
	require.NoError(t, db.Model(&importer.TurnRow{}).Where("conversation_id = ?", conv.ID).Count(&turnCount).Error)
	assert.EqualValues(t, conv.Turns, turnCount)
}

// TestRunExperimentMaxTurns keeps the agents divergent so the conversation
// runs to its turn ceiling.
func TestRunExperimentMaxTurns(t *testing.T) {
	agentA := agent.NewScriptedAgent("scripted/a", []string{
		"Quarterly revenue exceeded every forecast we published.",
	})
	agentB := agent.NewScriptedAgent("scripted/b", []string{
		"Ravens, unlike most birds, can mimic human speech surprisingly well; they also use tools!",
	})

	d := duologue.New(agentA, agentB, func(o *duologue.Options) {
		o.OutputDir = filepath.Join(t.TempDir(), "experiments")
	})

	result, err := d.RunExperiment(context.Background(), "divergent", 1, core.ConversationConfig{
		MaxTurns:  4,
		Profile:   "balanced",
		Threshold: 0.9,
		Action:    core.ActionStop,
	})
	require.NoError(t, err)

	conv := result.Conversations[0]
	assert.Equal(t, core.StatusCompleted, conv.Status)
	assert.Equal(t, core.EndReasonMaxTurns, conv.EndReason)
	assert.Equal(t, 4, conv.Turns)

	// No database configured: the experiment stays in post-processing.
	assert.Equal(t, core.ExperimentPostProcessing, result.Experiment.Status)
}
