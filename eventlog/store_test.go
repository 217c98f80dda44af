package eventlog

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/duologue/core"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, dir
}

func sampleReply(text string) *core.Reply {
	return &core.Reply{
		Text:    text,
		Usage:   core.TokenUsage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8},
		Cost:    0.001,
		Latency: 200 * time.Millisecond,
	}
}

func TestFileStoreAppendAndReplay(t *testing.T) {
	store, _ := newTestStore(t)
	convID := core.NewID()

	require.NoError(t, store.Append(core.NewConversationStartEvent(convID)))
	require.NoError(t, store.Append(core.NewMessageCompleteEvent(convID, core.SpeakerA, sampleReply("hello"))))
	require.NoError(t, store.Append(core.NewMessageCompleteEvent(convID, core.SpeakerB, sampleReply("hi there"))))
	require.NoError(t, store.Append(core.NewConversationEndEvent(convID, core.EndReasonMaxTurns, 0.42)))

	events, err := store.Replay(convID)
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, core.EventConversationStart, events[0].Type)
	assert.Equal(t, core.EventMessageComplete, events[1].Type)
	assert.Equal(t, "hello", events[1].Text)
	assert.Equal(t, core.SpeakerA, events[1].Speaker)
	assert.Equal(t, core.EventConversationEnd, events[3].Type)
	require.NotNil(t, events[3].FinalScore)
	assert.Equal(t, 0.42, *events[3].FinalScore)
}

func TestFileStoreDeterministicLogNaming(t *testing.T) {
	store, dir := newTestStore(t)
	convID := "11111111-2222-3333-4444-555555555555"

	require.NoError(t, store.Append(core.NewConversationStartEvent(convID)))

	path := EventLogPath(dir, convID)
	_, err := os.Stat(path)
	assert.NoError(t, err, "log must live at the deterministic path")

	id, ok := ConversationIDFromLog(path)
	require.True(t, ok)
	assert.Equal(t, convID, id)
}

func TestFileStoreIsolatesConversations(t *testing.T) {
	store, _ := newTestStore(t)
	convA, convB := core.NewID(), core.NewID()

	require.NoError(t, store.Append(core.NewConversationStartEvent(convA)))
	require.NoError(t, store.Append(core.NewConversationStartEvent(convB)))
	require.NoError(t, store.Append(core.NewConversationEndEvent(convA, core.EndReasonInterrupted, 0)))

	eventsA, err := store.Replay(convA)
	require.NoError(t, err)
	eventsB, err := store.Replay(convB)
	require.NoError(t, err)

	assert.Len(t, eventsA, 2)
	assert.Len(t, eventsB, 1)
}

func TestFileStoreRejectsInvalidEvent(t *testing.T) {
	store, _ := newTestStore(t)

	ev := core.NewEvent("not-a-type", core.NewID())
	assert.Error(t, store.Append(ev))
}

func TestFileStoreReplayMissingLog(t *testing.T) {
	store, _ := newTestStore(t)

	events, err := store.Replay(core.NewID())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestReadEventsResolvesLegacyEndReasons(t *testing.T) {
	log := strings.Join([]string{
		`{"id":"e1","type":"conversation-start","timestamp":"2026-01-02T15:04:05Z","conversation_id":"c1"}`,
		`{"id":"e2","type":"conversation-end","timestamp":"2026-01-02T15:05:05Z","conversation_id":"c1","end_reason":"high_convergence"}`,
	}, "\n")

	events, err := ReadEvents(strings.NewReader(log))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, core.EndReasonConvergence, events[1].EndReason)
}

func TestReadEventsRejectsMalformedRecords(t *testing.T) {
	_, err := ReadEvents(strings.NewReader(`{"id":"e1","type":`))
	assert.Error(t, err)

	_, err = ReadEvents(strings.NewReader(`{"id":"e1","type":"mystery-event","conversation_id":"c1"}`))
	assert.Error(t, err)
}
