// Package queue provides the durable, ordered store of pending sync jobs.
package queue

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vecindapp/portalsync/internal/model"
)

// Store is the durable sync-job queue. Single consumer by design: the
// drainer owns removal via the All/Replace pair, while any number of
// orchestrator calls may Enqueue concurrently.
type Store interface {
	// Enqueue appends one job and persists the queue.
	Enqueue(job model.Job) error
	// All returns a snapshot of the queue in enqueue order.
	All() ([]model.Job, error)
	// Replace persists the given jobs as the surviving remainder of the
	// last All snapshot. Jobs enqueued after that snapshot are kept.
	Replace(remaining []model.Job) error
}

const queueFile = "queue.json"

// FileStore keeps the queue as a JSON array in a single file under the
// state directory, written atomically via tmp+rename.
type FileStore struct {
	path string

	mu       sync.Mutex
	jobs     []model.Job
	snapshot int // length of the queue at the last All call
}

// NewFileStore loads any persisted queue from dir.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("queue store: empty state dir")
	}
	s := &FileStore{path: filepath.Join(dir, queueFile)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var jobs []model.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return err
	}
	s.jobs = jobs
	return nil
}

// Enqueue appends the job and persists. On a persistence failure the
// in-memory append is rolled back so memory and disk stay consistent.
func (s *FileStore) Enqueue(job model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	if err := s.saveLocked(); err != nil {
		s.jobs = s.jobs[:len(s.jobs)-1]
		return err
	}
	return nil
}

// All returns the jobs in enqueue order and marks the snapshot boundary
// the next Replace resolves against.
func (s *FileStore) All() ([]model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = len(s.jobs)
	return append([]model.Job(nil), s.jobs...), nil
}

// Replace persists remaining in place of the last snapshot. Jobs appended
// since that snapshot sit past the boundary and are carried over, so a
// handler enqueuing during a drain never loses work; those jobs wait for
// the next pass.
func (s *FileStore) Replace(remaining []model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	boundary := s.snapshot
	if boundary > len(s.jobs) {
		boundary = len(s.jobs)
	}
	next := append([]model.Job(nil), remaining...)
	next = append(next, s.jobs[boundary:]...)

	prev := s.jobs
	s.jobs = next
	s.snapshot = 0
	if err := s.saveLocked(); err != nil {
		s.jobs = prev
		return err
	}
	return nil
}

func (s *FileStore) saveLocked() error {
	data, err := json.Marshal(s.jobs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
