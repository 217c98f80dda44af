package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hupe1980/duologue/core"
	"github.com/hupe1980/duologue/eventlog"
)

// buildExperimentDir writes a finished two-conversation experiment the way the
// engine would: per-conversation event logs plus an atomic manifest.
func buildExperimentDir(t *testing.T) (dir, experimentID string, convIDs []string) {
	t.Helper()

	dir = t.TempDir()
	experimentID = core.NewID()
	convIDs = []string{core.NewID(), core.NewID()}

	store, err := eventlog.NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	combined := []float64{0.4, 0.85}
	for _, convID := range convIDs {
		require.NoError(t, store.Append(core.NewConversationStartEvent(convID)))
		for turn := 0; turn < 2; turn++ {
			for _, speaker := range []core.Speaker{core.SpeakerA, core.SpeakerB} {
				reply := &core.Reply{
					Text:    "turn text",
					Usage:   core.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
					Cost:    0.002,
					Latency: 100 * time.Millisecond,
				}
				require.NoError(t, store.Append(core.NewMessageCompleteEvent(convID, speaker, reply)))
			}
			ev := core.NewTurnCompleteEvent(convID, &core.Turn{Index: turn, Combined: combined[turn], Trend: 0.1})
			require.NoError(t, store.Append(ev))
		}
		require.NoError(t, store.Append(core.NewConversationEndEvent(convID, core.EndReasonConvergence, 0.85)))
	}

	manifest := &core.Manifest{
		ExperimentID: experimentID,
		Label:        "import-test",
		Status:       core.ExperimentPostProcessing,
		AgentA:       "scripted/a",
		AgentB:       "scripted/b",
		Config:       core.ConversationConfig{MaxTurns: 10, Profile: "balanced", Threshold: 0.8, Action: core.ActionStop},
		Conversations: []core.ManifestConversation{
			{ID: convIDs[0], Turns: 2, Status: core.StatusCompleted, EndReason: core.EndReasonConvergence},
			{ID: convIDs[1], Turns: 2, Status: core.StatusCompleted, EndReason: core.EndReasonConvergence},
		},
	}
	require.NoError(t, eventlog.NewFileManifestStore(dir).Save(manifest))

	return dir, experimentID, convIDs
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "analytics.db"))
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestImportExperiment(t *testing.T) {
	dir, experimentID, convIDs := buildExperimentDir(t)
	db := openTestDB(t)

	imp := New(db)
	require.NoError(t, imp.ImportExperiment(context.Background(), dir, false))

	var exp ExperimentRow
	require.NoError(t, db.First(&exp, "id = ?", experimentID).Error)
	assert.Equal(t, "import-test", exp.Label)
	assert.Equal(t, "balanced", exp.Profile)
	assert.Equal(t, 0.8, exp.Threshold)

	var conv ConversationRow
	require.NoError(t, db.First(&conv, "id = ?", convIDs[0]).Error)
	assert.Equal(t, string(core.StatusCompleted), conv.Status)
	assert.Equal(t, string(core.EndReasonConvergence), conv.EndReason)
	assert.Equal(t, 2, conv.Turns)
	assert.Equal(t, 0.85, conv.FinalScore)
	assert.Equal(t, 4*15, conv.TotalTokens)
	assert.InDelta(t, 4*0.002, conv.TotalCost, 1e-9)

	assert.EqualValues(t, 4, countRows(t, db, &TurnRow{}))
	assert.EqualValues(t, 8, countRows(t, db, &MessageRow{}))
	assert.EqualValues(t, 2*8, countRows(t, db, &EventRow{}))

	_, err := os.Stat(eventlog.ImportedMarkerPath(dir))
	assert.NoError(t, err, "imported marker must exist after success")
	_, err = os.Stat(eventlog.ImportingMarkerPath(dir))
	assert.True(t, os.IsNotExist(err), "importing marker must be consumed")
}

func TestImportIsIdempotent(t *testing.T) {
	dir, _, _ := buildExperimentDir(t)
	db := openTestDB(t)
	imp := New(db)

	require.NoError(t, imp.ImportExperiment(context.Background(), dir, false))
	turns := countRows(t, db, &TurnRow{})

	// Second import is skipped by the marker; row counts are unchanged.
	require.NoError(t, imp.ImportExperiment(context.Background(), dir, false))
	assert.Equal(t, turns, countRows(t, db, &TurnRow{}))
}

func TestImportForceRebuildsWithoutDuplicates(t *testing.T) {
	dir, _, _ := buildExperimentDir(t)
	db := openTestDB(t)
	imp := New(db)

	require.NoError(t, imp.ImportExperiment(context.Background(), dir, false))
	turns := countRows(t, db, &TurnRow{})
	messages := countRows(t, db, &MessageRow{})

	require.NoError(t, imp.ImportExperiment(context.Background(), dir, true))
	assert.Equal(t, turns, countRows(t, db, &TurnRow{}))
	assert.Equal(t, messages, countRows(t, db, &MessageRow{}))
	assert.EqualValues(t, 1, countRows(t, db, &ExperimentRow{}))
}

func TestImportRetryAfterAbandonedMarker(t *testing.T) {
	dir, _, _ := buildExperimentDir(t)
	db := openTestDB(t)
	imp := New(db)

	// Simulate a crash mid-import: the importing marker was written but the
	// projection never completed.
	f, err := os.Create(eventlog.ImportingMarkerPath(dir))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, imp.ImportExperiment(context.Background(), dir, false))
	assert.EqualValues(t, 4, countRows(t, db, &TurnRow{}))

	_, err = os.Stat(eventlog.ImportingMarkerPath(dir))
	assert.True(t, os.IsNotExist(err))
}

func TestImportRejectsNonTerminalConversations(t *testing.T) {
	dir, _, convIDs := buildExperimentDir(t)
	db := openTestDB(t)

	manifests := eventlog.NewFileManifestStore(dir)
	m, err := manifests.Load()
	require.NoError(t, err)
	m.Conversations[1] = core.ManifestConversation{ID: convIDs[1], Turns: 1, Status: core.StatusRunning}
	require.NoError(t, manifests.Save(m))

	err = New(db).ImportExperiment(context.Background(), dir, false)
	assert.ErrorIs(t, err, ErrNotTerminal)
	assert.EqualValues(t, 0, countRows(t, db, &ExperimentRow{}))
}

func TestImportMissingManifest(t *testing.T) {
	db := openTestDB(t)
	err := New(db).ImportExperiment(context.Background(), t.TempDir(), false)
	assert.Error(t, err)
}
