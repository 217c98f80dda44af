package eventlog

import (
	"sync"

	"github.com/hupe1980/duologue/core"
)

// Interface compliance (compile-time assertions).
var (
	_ core.EventStore    = (*FileStore)(nil)
	_ core.EventStore    = (*InMemoryStore)(nil)
	_ core.ManifestStore = (*FileManifestStore)(nil)
	_ core.ManifestStore = (*InMemoryManifestStore)(nil)
)

// InMemoryStore is a volatile core.EventStore keeping event logs in a process
// local map. It is safe for concurrent access and best suited for tests or
// ephemeral demo runs. Replay returns a defensive copy so callers cannot
// mutate internal history.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]core.Event
}

// NewInMemoryStore constructs an empty in-memory event store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]core.Event)}
}

// Append records the event in the conversation's in-memory log.
func (s *InMemoryStore) Append(event core.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ConversationID] = append(s.events[event.ConversationID], event)
	return nil
}

// Replay returns a copy of the conversation's events in append order.
func (s *InMemoryStore) Replay(conversationID string) ([]core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.events[conversationID]
	events := make([]core.Event, len(src))
	copy(events, src)
	return events, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

// InMemoryManifestStore is a volatile core.ManifestStore for tests.
type InMemoryManifestStore struct {
	mu       sync.RWMutex
	manifest *core.Manifest
}

// NewInMemoryManifestStore constructs an empty in-memory manifest store.
func NewInMemoryManifestStore() *InMemoryManifestStore {
	return &InMemoryManifestStore{}
}

// Save stores a copy of the manifest snapshot.
func (s *InMemoryManifestStore) Save(m *core.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *m
	clone.Conversations = append([]core.ManifestConversation(nil), m.Conversations...)
	s.manifest = &clone
	return nil
}

// Load returns the last saved manifest, or ErrNoManifest.
func (s *InMemoryManifestStore) Load() (*core.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.manifest == nil {
		return nil, ErrNoManifest
	}
	clone := *s.manifest
	clone.Conversations = append([]core.ManifestConversation(nil), s.manifest.Conversations...)
	return &clone, nil
}
