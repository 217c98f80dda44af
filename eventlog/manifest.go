package eventlog

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/hupe1980/duologue/core"
)

// ErrNoManifest is returned by Load when the experiment directory holds no
// manifest yet.
var ErrNoManifest = errors.New("eventlog: manifest not found")

// FileManifestStore persists the experiment manifest with an atomic
// write-replace discipline. It is the single writer for one experiment
// directory; Save calls are serialized so concurrent conversation transitions
// cannot interleave partial updates.
type FileManifestStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileManifestStore returns a manifest store rooted in the experiment
// directory.
func NewFileManifestStore(dir string) *FileManifestStore {
	return &FileManifestStore{dir: dir}
}

// Save atomically replaces the manifest: the new content is fully staged in a
// side file, synced, then renamed over the old manifest. A crash at any point
// leaves either the previous or the new manifest intact.
func (s *FileManifestStore) Save(m *core.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Updated = time.Now().UTC()

	if err := s.stage(m); err != nil {
		return err
	}
	return s.promote()
}

// Load reads the current manifest, returning ErrNoManifest when none exists.
func (s *FileManifestStore) Load() (*core.Manifest, error) {
	path := ManifestPath(s.dir)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoManifest
		}
		return nil, core.NewPersistenceError("read", path, err)
	}

	var m core.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, core.NewPersistenceError("decode", path, err)
	}
	return &m, nil
}

// stage writes the full new manifest content to the side location and syncs
// it. The live manifest is untouched until promote.
func (s *FileManifestStore) stage(m *core.Manifest) error {
	path := ManifestPath(s.dir) + ".tmp"

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return core.NewPersistenceError("encode", path, err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return core.NewPersistenceError("open", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return core.NewPersistenceError("write", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return core.NewPersistenceError("sync", path, err)
	}
	if err := f.Close(); err != nil {
		return core.NewPersistenceError("close", path, err)
	}
	return nil
}

// promote atomically swaps the staged manifest into place.
func (s *FileManifestStore) promote() error {
	from := ManifestPath(s.dir) + ".tmp"
	to := ManifestPath(s.dir)
	if err := os.Rename(from, to); err != nil {
		return core.NewPersistenceError("rename", to, err)
	}
	return nil
}
