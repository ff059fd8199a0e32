package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/gofrs/uuid/v5"

	"github.com/vecindapp/portalsync/internal/errs"
	"github.com/vecindapp/portalsync/internal/model"
)

func newDrainHarness(t *testing.T) (*harness, *Drainer) {
	t.Helper()
	h := newHarness(t)
	return h, NewDrainer(h.orch, h.auth, h.queue, nil)
}

func TestDrain_EmptyQueue(t *testing.T) {
	t.Parallel()
	h, d := newDrainHarness(t)

	processed, remaining, err := d.Drain(context.Background(), "ana@example.com")
	if err != nil || processed != 0 || remaining != 0 {
		t.Fatalf("empty queue: processed=%d remaining=%d err=%v", processed, remaining, err)
	}
	if h.auth.calls != 0 {
		t.Fatalf("empty queue must not touch auth")
	}
}

func enqueueProvision(t *testing.T, h *harness, email string) model.Job {
	t.Helper()
	remote, err := json.Marshal(model.UserRemote{Email: email, Role: "RESIDENTE"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	job := model.Job{
		ID:     uuid.Must(uuid.NewV4()),
		Type:   model.JobRemoteProvisionUser,
		Remote: remote,
	}
	if err := h.queue.Enqueue(job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return job
}

func TestDrain_OrderPreservation(t *testing.T) {
	t.Parallel()
	h, d := newDrainHarness(t)

	enqueueProvision(t, h, "uno@example.com")
	j2 := enqueueProvision(t, h, "dos@example.com")
	enqueueProvision(t, h, "tres@example.com")

	h.portal.failWhen = func(path string, body []byte) error {
		if bytes.Contains(body, []byte("dos@example.com")) {
			return fmt.Errorf("%w: rechazado", errs.ErrPortal)
		}
		return nil
	}

	processed, remaining, err := d.Drain(context.Background(), "admin@example.com")
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if processed != 2 || remaining != 1 {
		t.Fatalf("processed=%d remaining=%d", processed, remaining)
	}

	jobs, _ := h.queue.All()
	if len(jobs) != 1 || jobs[0].ID != j2.ID {
		t.Fatalf("surviving job wrong: %+v", jobs)
	}
	if jobs[0].Attempts != 1 || jobs[0].LastError == "" {
		t.Fatalf("survivor bookkeeping wrong: %+v", jobs[0])
	}

	// survivor keeps its relative position among later arrivals
	j4 := enqueueProvision(t, h, "cuatro@example.com")
	jobs, _ = h.queue.All()
	if jobs[0].ID != j2.ID || jobs[1].ID != j4.ID {
		t.Fatalf("relative order lost: %+v", jobs)
	}

	// auth refreshed once for the whole pass
	if h.auth.calls != 1 {
		t.Fatalf("auth calls = %d, want one per pass", h.auth.calls)
	}
}

func TestDrain_AttemptsMonotonic(t *testing.T) {
	t.Parallel()
	h, d := newDrainHarness(t)

	enqueueProvision(t, h, "uno@example.com")
	for k := 1; k <= 3; k++ {
		h.portal.failWhen = func(string, []byte) error {
			return fmt.Errorf("%w: intento %d", errs.ErrNetwork, k)
		}
		processed, remaining, err := d.Drain(context.Background(), "admin@example.com")
		if err != nil || processed != 0 || remaining != 1 {
			t.Fatalf("drain %d: processed=%d remaining=%d err=%v", k, processed, remaining, err)
		}
		jobs, _ := h.queue.All()
		if jobs[0].Attempts != k {
			t.Fatalf("after drain %d attempts=%d", k, jobs[0].Attempts)
		}
		want := fmt.Sprintf("intento %d", k)
		if !bytes.Contains([]byte(jobs[0].LastError), []byte(want)) {
			t.Fatalf("lastError %q must reflect the latest failure %q", jobs[0].LastError, want)
		}
	}
}

func TestDrain_EndToEnd_FailOnceThenSucceed(t *testing.T) {
	t.Parallel()
	h, d := newDrainHarness(t)
	h.portal.failN = 1
	h.portal.resp = json.RawMessage(`{"data":{"idReserva":"R-1"}}`)
	in := reservationInput(h)

	out, err := h.orch.CreateReservation(context.Background(), "ana@example.com", in)
	if err != nil || !out.Queued {
		t.Fatalf("first call must queue: %+v err=%v", out, err)
	}
	if n := h.queueLen(t); n != 1 {
		t.Fatalf("want 1 job, got %d", n)
	}

	processed, remaining, err := d.Drain(context.Background(), "ana@example.com")
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if processed != 1 || remaining != 0 {
		t.Fatalf("processed=%d remaining=%d", processed, remaining)
	}

	var found *model.Reservation
	for _, r := range h.store.reservations {
		found = r
	}
	if found == nil || found.PortalID == nil || *found.PortalID != "R-1" {
		t.Fatalf("local mirror row missing portal id: %+v", found)
	}
}

func TestDrain_IdempotentReplay(t *testing.T) {
	t.Parallel()
	h, d := newDrainHarness(t)
	h.portal.resp = json.RawMessage(`{"data":{"idReserva":"R-1"}}`)

	in := reservationInput(h)
	remote, _ := json.Marshal(model.ReservationRemote{
		UnitID: "u-100", AmenityID: "a-200", Date: in.Date, Start: in.Start, End: in.End,
	})
	local, _ := json.Marshal(model.ReservationLocal{
		UserID: in.UserID, AmenityID: in.AmenityID, Date: in.Date, Start: in.Start, End: in.End,
	})

	// simulated duplicate: the same logical job enqueued twice
	for i := 0; i < 2; i++ {
		_ = h.queue.Enqueue(model.Job{
			ID:     uuid.Must(uuid.NewV4()),
			Type:   model.JobRemoteCreateReservation,
			Remote: remote,
			Local:  local,
		})
	}

	for i := 0; i < 2; i++ {
		if _, _, err := d.Drain(context.Background(), "ana@example.com"); err != nil {
			t.Fatalf("drain %d: %v", i, err)
		}
	}
	if len(h.store.reservations) != 1 {
		t.Fatalf("want exactly one local row per logical reservation, got %d", len(h.store.reservations))
	}
}

func TestDrain_LocalJobSkipsRemoteCall(t *testing.T) {
	t.Parallel()
	h, d := newDrainHarness(t)

	in := reservationInput(h)
	local, _ := json.Marshal(model.ReservationLocal{
		UserID: in.UserID, AmenityID: in.AmenityID, Date: in.Date, Start: in.Start, End: in.End,
	})
	_ = h.queue.Enqueue(model.Job{
		ID:       uuid.Must(uuid.NewV4()),
		Type:     model.JobLocalCreateReservation,
		Local:    local,
		RemoteID: "R-77",
	})

	processed, remaining, err := d.Drain(context.Background(), "ana@example.com")
	if err != nil || processed != 1 || remaining != 0 {
		t.Fatalf("processed=%d remaining=%d err=%v", processed, remaining, err)
	}
	if len(h.portal.calls) != 0 {
		t.Fatalf("local replay must not call the Portal: %v", h.portal.calls)
	}
	var found *model.Reservation
	for _, r := range h.store.reservations {
		found = r
	}
	if found == nil || found.PortalID == nil || *found.PortalID != "R-77" {
		t.Fatalf("row missing carried remote id: %+v", found)
	}
}

func TestDrain_UnknownJobTypeSurvives(t *testing.T) {
	t.Parallel()
	h, d := newDrainHarness(t)

	_ = h.queue.Enqueue(model.Job{ID: uuid.Must(uuid.NewV4()), Type: "remote-delete-everything"})

	processed, remaining, err := d.Drain(context.Background(), "ana@example.com")
	if err != nil || processed != 0 || remaining != 1 {
		t.Fatalf("processed=%d remaining=%d err=%v", processed, remaining, err)
	}
}
