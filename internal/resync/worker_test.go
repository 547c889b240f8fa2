package resync

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/barberos/barberos/internal/availability"
	"github.com/barberos/barberos/internal/calendar"
	"github.com/barberos/barberos/internal/model"
)

type fakeStore struct {
	pending  []model.Appointment
	recorded []Outcome
	calls    []string
}

func (s *fakeStore) ClaimSyncPending(ctx context.Context, limit, maxAttempts int) ([]model.Appointment, error) {
	s.calls = append(s.calls, "claim")
	n := limit
	if n > len(s.pending) {
		n = len(s.pending)
	}
	batch := s.pending[:n]
	s.pending = s.pending[n:]
	return batch, nil
}

func (s *fakeStore) RecordSyncOutcomes(ctx context.Context, maxAttempts int, outcomes []Outcome) error {
	s.calls = append(s.calls, "record")
	s.recorded = append(s.recorded, outcomes...)
	return nil
}

type fakePusher struct {
	store     *fakeStore
	created   []string
	updated   []string
	createErr error
	updateErr error
}

func (p *fakePusher) PushCreate(ctx context.Context, appt model.Appointment, summary, description string) (string, error) {
	if p.store != nil {
		p.store.calls = append(p.store.calls, "push")
	}
	p.created = append(p.created, appt.ID)
	if p.createErr != nil {
		return "", p.createErr
	}
	return "evt-" + appt.ID, nil
}

func (p *fakePusher) PushUpdate(ctx context.Context, tenantID, eventID string, interval availability.Interval) error {
	if p.store != nil {
		p.store.calls = append(p.store.calls, "push")
	}
	p.updated = append(p.updated, eventID)
	return p.updateErr
}

func newTestWorker(store Store, pusher Pusher, batch int) *Worker {
	return NewWorker(store, pusher, slog.New(slog.DiscardHandler), time.Minute, batch, 3)
}

func appt(id, eventID string) model.Appointment {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return model.Appointment{
		ID:              id,
		TenantID:        "t1",
		Status:          model.StatusConfirmed,
		SyncState:       model.SyncPending,
		ExternalEventID: eventID,
		Interval:        availability.Interval{Start: start, End: start.Add(30 * time.Minute)},
	}
}

func TestRunOnceDrainsBacklog(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 5; i++ {
		store.pending = append(store.pending, appt(string(rune('a'+i)), ""))
	}
	pusher := &fakePusher{}

	if err := newTestWorker(store, pusher, 2).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(store.pending) != 0 {
		t.Fatalf("backlog not drained, %d left", len(store.pending))
	}
	if len(pusher.created) != 5 {
		t.Fatalf("created = %d, want 5", len(pusher.created))
	}
	if len(store.recorded) != 5 {
		t.Fatalf("recorded outcomes = %d, want 5", len(store.recorded))
	}
}

// Every provider call must land strictly between the claim commit and the
// outcome write: the worker holds no row locks while the provider is slow.
func TestPushesRunBetweenClaimAndRecord(t *testing.T) {
	store := &fakeStore{pending: []model.Appointment{appt("a1", ""), appt("a2", "")}}
	pusher := &fakePusher{store: store}

	if err := newTestWorker(store, pusher, 10).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	want := []string{"claim", "push", "push", "record"}
	if len(store.calls) != len(want) {
		t.Fatalf("call sequence = %v, want %v", store.calls, want)
	}
	for i, call := range want {
		if store.calls[i] != call {
			t.Fatalf("call sequence = %v, want %v", store.calls, want)
		}
	}
}

func TestFailedPushReportedInOutcome(t *testing.T) {
	store := &fakeStore{pending: []model.Appointment{appt("a1", "")}}
	pusher := &fakePusher{createErr: calendar.ErrProviderUnavailable}

	if err := newTestWorker(store, pusher, 10).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(store.recorded) != 1 {
		t.Fatalf("recorded outcomes = %d, want 1", len(store.recorded))
	}
	if !errors.Is(store.recorded[0].Err, calendar.ErrProviderUnavailable) {
		t.Fatalf("outcome error = %v, want provider unavailable", store.recorded[0].Err)
	}
	if store.recorded[0].ExternalEventID != "" {
		t.Fatalf("failed push must not carry an event id, got %q", store.recorded[0].ExternalEventID)
	}
}

func TestPushUpdatesWhenEventExists(t *testing.T) {
	store := &fakeStore{pending: []model.Appointment{appt("a1", "evt-existing")}}
	pusher := &fakePusher{}

	if err := newTestWorker(store, pusher, 10).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(pusher.updated) != 1 || pusher.updated[0] != "evt-existing" {
		t.Fatalf("updated = %v, want [evt-existing]", pusher.updated)
	}
	if len(pusher.created) != 0 {
		t.Fatalf("unexpected creates: %v", pusher.created)
	}
	if store.recorded[0].ExternalEventID != "evt-existing" {
		t.Fatalf("outcome id = %q, want evt-existing", store.recorded[0].ExternalEventID)
	}
}

func TestPushRecreatesDroppedEvent(t *testing.T) {
	store := &fakeStore{pending: []model.Appointment{appt("a1", "evt-gone")}}
	pusher := &fakePusher{updateErr: calendar.ErrEventNotFound}

	if err := newTestWorker(store, pusher, 10).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(pusher.created) != 1 {
		t.Fatalf("created = %v, want one recreate", pusher.created)
	}
}
