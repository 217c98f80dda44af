package core

// EventStore is the append-only durable log for conversation events. Append
// must not return until the record is flushed to stable storage: the runner
// treats a reply as "happened" only once its message-complete event is
// committed.
type EventStore interface {
	// Append durably writes one event to the conversation's log.
	Append(event Event) error

	// Replay returns all events recorded for the conversation in append
	// order.
	Replay(conversationID string) ([]Event, error)

	// Close releases any open log handles.
	Close() error
}

// ManifestStore persists the experiment manifest using an atomic
// write-replace discipline: a crash mid-update leaves either the old or the
// new manifest intact, never a partially written one.
type ManifestStore interface {
	// Save atomically replaces the manifest.
	Save(m *Manifest) error

	// Load reads the current manifest.
	Load() (*Manifest, error)
}
