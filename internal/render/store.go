package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store persists render job records. Records are written on status
// transitions only, never on progress ticks, to bound disk I/O.
type Store interface {
	// Save upserts a job record.
	Save(job *Job) error
	// LoadAll reads every persisted record, used for startup recovery.
	LoadAll() ([]*Job, error)
	// Delete removes a job record.
	Delete(id string) error
}

// Compile-time check that FileStore implements Store.
var _ Store = (*FileStore)(nil)

// FileStore persists one JSON record per job under a directory.
// Writes go through a temp file and rename so a crash mid-write never
// leaves a truncated record.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("render: create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save upserts a job record on disk.
func (s *FileStore) Save(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(job.Clone(), "", "  ")
	if err != nil {
		return fmt.Errorf("render: marshal job: %w", err)
	}

	final := s.path(job.ID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("render: write job: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("render: rename job: %w", err)
	}
	return nil
}

// LoadAll reads every job record in the directory. Unreadable or
// corrupt records are skipped so one bad file cannot block recovery.
func (s *FileStore) LoadAll() ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("render: read store directory: %w", err)
	}

	jobs := make([]*Job, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// Delete removes a job record from disk. Missing records are not errors.
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("render: delete job: %w", err)
	}
	return nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// nopStore discards writes; it backs a Manager constructed without
// persistence, used in tests and volatile setups.
type nopStore struct{}

func (nopStore) Save(*Job) error          { return nil }
func (nopStore) LoadAll() ([]*Job, error) { return nil, nil }
func (nopStore) Delete(string) error      { return nil }
