package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hupe1980/duologue/core"
	"github.com/hupe1980/duologue/logging"
)

// FileStoreOptions configures a FileStore.
type FileStoreOptions struct {
	// Logger receives append/replay diagnostics.
	Logger logging.Logger
}

// FileStore is a durable core.EventStore writing one append-only JSONL log
// per conversation under a single experiment directory. Each Append is
// flushed with fsync before it returns. Safe for concurrent use across
// conversations; events within one conversation are serialized by the
// per-store mutex.
type FileStore struct {
	dir    string
	logger logging.Logger

	mu    sync.Mutex
	files map[string]*os.File
}

// NewFileStore creates (if necessary) the experiment directory and returns a
// store rooted in it.
func NewFileStore(dir string, optFns ...func(o *FileStoreOptions)) (*FileStore, error) {
	opts := FileStoreOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, core.NewPersistenceError("mkdir", dir, err)
	}

	return &FileStore{
		dir:    dir,
		logger: opts.Logger,
		files:  make(map[string]*os.File),
	}, nil
}

// Dir returns the experiment directory the store writes into.
func (s *FileStore) Dir() string { return s.dir }

// Append durably writes one event to its conversation's log. The record is
// not considered committed until the underlying file is synced; on any error
// the event must be treated as never having happened.
func (s *FileStore) Append(event core.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("refusing to append invalid event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileLocked(event.ConversationID)
	if err != nil {
		return err
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	line = append(line, '\n')

	path := EventLogPath(s.dir, event.ConversationID)
	if _, err := f.Write(line); err != nil {
		return core.NewPersistenceError("append", path, err)
	}
	if err := f.Sync(); err != nil {
		return core.NewPersistenceError("sync", path, err)
	}

	s.logger.Debug("event appended type=%s conversation_id=%s", event.Type, event.ConversationID)

	return nil
}

// Replay returns all events recorded for the conversation in append order,
// validating each record and resolving legacy end-reason aliases. A missing
// log yields an empty slice: a conversation with no durable history has no
// events.
func (s *FileStore) Replay(conversationID string) ([]core.Event, error) {
	path := EventLogPath(s.dir, conversationID)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, core.NewPersistenceError("open", path, err)
	}
	defer f.Close()

	return ReadEvents(f)
}

// Close syncs and closes all open log handles. The store must not be used
// afterwards.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = core.NewPersistenceError("close", EventLogPath(s.dir, id), err)
		}
		delete(s.files, id)
	}
	return firstErr
}

func (s *FileStore) fileLocked(conversationID string) (*os.File, error) {
	if f, ok := s.files[conversationID]; ok {
		return f, nil
	}
	path := EventLogPath(s.dir, conversationID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, core.NewPersistenceError("open", path, err)
	}
	s.files[conversationID] = f
	return f, nil
}

// ReadEvents decodes newline-delimited event records from r in order,
// validating each one. Unknown event types or malformed lines are errors, not
// silent skips.
func ReadEvents(r io.Reader) ([]core.Event, error) {
	var events []core.Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev core.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("decode event record %d: %w", len(events), err)
		}
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("event record %d: %w", len(events), err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return events, nil
}
