package eventlog

import (
	"path/filepath"
	"strings"
)

// File names inside an experiment directory. One directory per experiment
// holds the manifest, one event log per conversation and an optional phase
// marker recording import state.
const (
	// ManifestFile is the experiment manifest document.
	ManifestFile = "manifest.json"
	// ImportingMarker signals an import is in progress (or crashed mid-way
	// and must be retried from scratch).
	ImportingMarker = ".importing"
	// ImportedMarker signals the experiment has been fully projected into
	// the analytical store.
	ImportedMarker = ".imported"

	eventLogPrefix = "events-"
	eventLogSuffix = ".jsonl"
)

// EventLogPath returns the deterministic path of a conversation's event log
// inside the experiment directory.
func EventLogPath(dir, conversationID string) string {
	return filepath.Join(dir, eventLogPrefix+conversationID+eventLogSuffix)
}

// ManifestPath returns the manifest path inside the experiment directory.
func ManifestPath(dir string) string {
	return filepath.Join(dir, ManifestFile)
}

// ImportingMarkerPath returns the in-progress import marker path.
func ImportingMarkerPath(dir string) string {
	return filepath.Join(dir, ImportingMarker)
}

// ImportedMarkerPath returns the completed import marker path.
func ImportedMarkerPath(dir string) string {
	return filepath.Join(dir, ImportedMarker)
}

// ConversationIDFromLog extracts the conversation id from an event log file
// name, returning false for files that are not event logs.
func ConversationIDFromLog(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, eventLogPrefix) || !strings.HasSuffix(base, eventLogSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(base, eventLogPrefix), eventLogSuffix)
	if id == "" {
		return "", false
	}
	return id, true
}
