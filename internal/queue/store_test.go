package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/vecindapp/portalsync/internal/model"
)

func newJob(t *testing.T, typ model.JobType) model.Job {
	t.Helper()
	return model.Job{
		ID:        uuid.Must(uuid.NewV4()),
		Type:      typ,
		Remote:    json.RawMessage(`{"fecha":"2026-09-01"}`),
		CreatedAt: time.Now().UTC(),
	}
}

func TestFileStore_EnqueueAndAll_Order(t *testing.T) {
	t.Parallel()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	j1 := newJob(t, model.JobRemoteCreateReservation)
	j2 := newJob(t, model.JobRemoteCreateIncident)
	j3 := newJob(t, model.JobRemoteProvisionUser)
	for _, j := range []model.Job{j1, j2, j3} {
		if err := s.Enqueue(j); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	jobs, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(jobs) != 3 || jobs[0].ID != j1.ID || jobs[1].ID != j2.ID || jobs[2].ID != j3.ID {
		t.Fatalf("enqueue order not preserved: %+v", jobs)
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	job := newJob(t, model.JobRemoteUpdateIncident)
	job.Attempts = 2
	job.LastError = "network error"
	if err := s.Enqueue(job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// simulated restart
	s2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	jobs, err := s2.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("want 1 job after reopen, got %d", len(jobs))
	}
	got := jobs[0]
	if got.ID != job.ID || got.Type != job.Type || got.Attempts != 2 || got.LastError != "network error" {
		t.Fatalf("job not persisted faithfully: %+v", got)
	}
}

func TestFileStore_Replace(t *testing.T) {
	t.Parallel()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	j1 := newJob(t, model.JobRemoteCreateReservation)
	j2 := newJob(t, model.JobRemoteCreateIncident)
	_ = s.Enqueue(j1)
	_ = s.Enqueue(j2)

	if _, err := s.All(); err != nil {
		t.Fatalf("All: %v", err)
	}
	j2.Attempts++
	if err := s.Replace([]model.Job{j2}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	jobs, _ := s.All()
	if len(jobs) != 1 || jobs[0].ID != j2.ID || jobs[0].Attempts != 1 {
		t.Fatalf("replace result wrong: %+v", jobs)
	}
}

func TestFileStore_Replace_KeepsJobsEnqueuedAfterSnapshot(t *testing.T) {
	t.Parallel()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	j1 := newJob(t, model.JobRemoteCreateReservation)
	_ = s.Enqueue(j1)

	// drainer snapshots the queue, then a handler enqueues concurrently
	if _, err := s.All(); err != nil {
		t.Fatalf("All: %v", err)
	}
	mid := newJob(t, model.JobLocalCreateReservation)
	if err := s.Enqueue(mid); err != nil {
		t.Fatalf("Enqueue mid-drain: %v", err)
	}

	// drain finished: j1 succeeded, nothing from the snapshot remains
	if err := s.Replace(nil); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	jobs, _ := s.All()
	if len(jobs) != 1 || jobs[0].ID != mid.ID {
		t.Fatalf("mid-drain job lost: %+v", jobs)
	}
}
