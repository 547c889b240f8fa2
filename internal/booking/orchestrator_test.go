package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/barberos/barberos/internal/availability"
	"github.com/barberos/barberos/internal/calendar"
	"github.com/barberos/barberos/internal/model"
)

type fakeSync struct {
	mu        sync.Mutex
	connected bool
	createErr error
	updateErr error
	deleteErr error
	nextID    int
	created   []string
	updated   []string
	deleted   []string
}

func (f *fakeSync) Connected(context.Context, string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSync) PushCreate(_ context.Context, appt model.Appointment, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("ev-%d", f.nextID)
	f.created = append(f.created, appt.ID)
	return id, nil
}

func (f *fakeSync) PushUpdate(_ context.Context, _, eventID string, _ availability.Interval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, eventID)
	return nil
}

func (f *fakeSync) PushDelete(_ context.Context, _, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, eventID)
	return f.deleteErr
}

const (
	tenant = "t1"
	proID  = "pro-1"
	svcID  = "svc-cut"
	custID = "cust-1"
)

func fixture(t *testing.T, sync CalendarSync) (*Orchestrator, *memStore) {
	t.Helper()
	store := newMemStore()
	store.addService(model.Service{
		ID: svcID, TenantID: tenant, Name: "Haircut",
		DurationMinutes: 30, Active: true,
	})
	store.addProfessional(model.Professional{ID: proID, TenantID: tenant, Name: "Alex", Active: true})
	logger := slog.New(slog.DiscardHandler)
	return NewOrchestrator(store, sync, logger, time.Second), store
}

func dayAt(hour, min int) time.Time {
	return time.Date(2026, 3, 10, hour, min, 0, 0, time.UTC)
}

func mustCreate(t *testing.T, o *Orchestrator, start time.Time, ch Channel) Result {
	t.Helper()
	res, err := o.CreateAppointment(context.Background(), CreateRequest{
		TenantID: tenant, CustomerID: custID, ProfessionalID: proID, ServiceID: svcID,
		Start: start, Channel: ch,
	})
	if err != nil {
		t.Fatalf("CreateAppointment failed: %v", err)
	}
	return res
}

func TestCreateRoundTrip(t *testing.T) {
	o, _ := fixture(t, &fakeSync{})
	res := mustCreate(t, o, dayAt(10, 0), ChannelStaff)

	got, err := o.GetAppointment(context.Background(), tenant, res.Appointment.ID)
	if err != nil {
		t.Fatalf("GetAppointment failed: %v", err)
	}
	if got.ProfessionalID != proID || got.ServiceID != svcID || got.Status != model.StatusConfirmed {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.Interval.Start.Equal(dayAt(10, 0)) || !got.Interval.End.Equal(dayAt(10, 30)) {
		t.Fatalf("interval mismatch: %+v", got.Interval)
	}
}

func TestSlotConflictScenario(t *testing.T) {
	o, _ := fixture(t, &fakeSync{})
	mustCreate(t, o, dayAt(10, 0), ChannelStaff) // 10:00-10:30 confirmed

	_, err := o.CreateAppointment(context.Background(), CreateRequest{
		TenantID: tenant, CustomerID: custID, ProfessionalID: proID, ServiceID: svcID,
		Start: dayAt(10, 15), Channel: ChannelStaff,
	})
	if !errors.Is(err, model.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict for 10:15, got %v", err)
	}

	// Touching endpoints never conflict.
	mustCreate(t, o, dayAt(10, 30), ChannelStaff)
}

func TestBufferExtendsOccupiedInterval(t *testing.T) {
	o, store := fixture(t, &fakeSync{})
	store.addService(model.Service{
		ID: "svc-shave", TenantID: tenant, Name: "Shave",
		DurationMinutes: 20, BufferMinutes: 10, Active: true,
	})

	res, err := o.CreateAppointment(context.Background(), CreateRequest{
		TenantID: tenant, CustomerID: custID, ProfessionalID: proID, ServiceID: "svc-shave",
		Start: dayAt(9, 0), Channel: ChannelStaff,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Appointment.Interval.End.Equal(dayAt(9, 30)) {
		t.Fatalf("buffer not applied: end = %s", res.Appointment.Interval.End)
	}

	// 09:20 falls inside the buffer tail, still a conflict.
	_, err = o.CreateAppointment(context.Background(), CreateRequest{
		TenantID: tenant, CustomerID: custID, ProfessionalID: proID, ServiceID: svcID,
		Start: dayAt(9, 20), Channel: ChannelStaff,
	})
	if !errors.Is(err, model.ErrSlotConflict) {
		t.Fatalf("expected conflict inside buffer, got %v", err)
	}
}

func TestPublicBookingStartsRequested(t *testing.T) {
	sync := &fakeSync{connected: true}
	o, _ := fixture(t, sync)
	res := mustCreate(t, o, dayAt(11, 0), ChannelPublic)
	if res.Appointment.Status != model.StatusRequested {
		t.Fatalf("public booking should start requested, got %s", res.Appointment.Status)
	}
	if len(sync.created) != 0 {
		t.Fatal("requested bookings must not be projected to the calendar")
	}

	// Two overlapping requested bookings may coexist until approval.
	mustCreate(t, o, dayAt(11, 0), ChannelPublic)
}

func TestApproveRevalidatesOverlap(t *testing.T) {
	o, _ := fixture(t, &fakeSync{})
	ctx := context.Background()
	first := mustCreate(t, o, dayAt(11, 0), ChannelPublic)
	second := mustCreate(t, o, dayAt(11, 15), ChannelPublic)

	if _, err := o.Approve(ctx, tenant, first.Appointment.ID); err != nil {
		t.Fatalf("first approval failed: %v", err)
	}
	_, err := o.Approve(ctx, tenant, second.Appointment.ID)
	if !errors.Is(err, model.ErrSlotConflict) {
		t.Fatalf("second approval should fail with ErrSlotConflict, got %v", err)
	}
}

func TestCreateProjectsToCalendar(t *testing.T) {
	sync := &fakeSync{connected: true}
	o, _ := fixture(t, sync)
	res := mustCreate(t, o, dayAt(10, 0), ChannelStaff)
	if res.Appointment.ExternalEventID == "" {
		t.Fatal("expected external event id after projection")
	}
	if res.Appointment.SyncState != model.SyncSynced {
		t.Fatalf("expected synced state, got %s", res.Appointment.SyncState)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
}

func TestExpiredSessionDegradesToWarning(t *testing.T) {
	sync := &fakeSync{connected: true, createErr: calendar.ErrSessionExpired}
	o, _ := fixture(t, sync)

	res := mustCreate(t, o, dayAt(10, 0), ChannelStaff)
	if res.Appointment.ID == "" || res.Appointment.Status != model.StatusConfirmed {
		t.Fatalf("booking should have committed: %+v", res.Appointment)
	}
	if res.Appointment.ExternalEventID != "" {
		t.Fatal("no external event id should be set on sync failure")
	}
	if res.Appointment.SyncState != model.SyncPending {
		t.Fatalf("expected sync-pending, got %s", res.Appointment.SyncState)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Code != WarnCalendarAuthRequired {
		t.Fatalf("expected auth-required warning, got %v", res.Warnings)
	}
}

func TestProviderDownDegradesToWarning(t *testing.T) {
	sync := &fakeSync{connected: true, createErr: calendar.ErrProviderUnavailable}
	o, _ := fixture(t, sync)
	res := mustCreate(t, o, dayAt(10, 0), ChannelStaff)
	if len(res.Warnings) != 1 || res.Warnings[0].Code != WarnCalendarUnavailable {
		t.Fatalf("expected unavailable warning, got %v", res.Warnings)
	}
}

func TestCancelAttemptsExternalDeletion(t *testing.T) {
	sync := &fakeSync{connected: true}
	o, _ := fixture(t, sync)
	ctx := context.Background()
	res := mustCreate(t, o, dayAt(10, 0), ChannelStaff)
	eventID := res.Appointment.ExternalEventID

	out, err := o.SetStatus(ctx, tenant, res.Appointment.ID, model.StatusCancelled)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if out.Appointment.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", out.Appointment.Status)
	}
	if len(sync.deleted) != 1 || sync.deleted[0] != eventID {
		t.Fatalf("expected deletion of %s, got %v", eventID, sync.deleted)
	}
}

func TestCancelSurvivesDeletionFailure(t *testing.T) {
	sync := &fakeSync{connected: true, deleteErr: calendar.ErrProviderUnavailable}
	o, _ := fixture(t, sync)
	ctx := context.Background()
	res := mustCreate(t, o, dayAt(10, 0), ChannelStaff)

	out, err := o.SetStatus(ctx, tenant, res.Appointment.ID, model.StatusCancelled)
	if err != nil {
		t.Fatalf("cancellation must be final regardless of sync outcome: %v", err)
	}
	if out.Appointment.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", out.Appointment.Status)
	}
	if len(out.Warnings) != 1 {
		t.Fatalf("expected a warning, got %v", out.Warnings)
	}
}

func TestRescheduleConflict(t *testing.T) {
	o, _ := fixture(t, &fakeSync{})
	ctx := context.Background()
	mustCreate(t, o, dayAt(10, 0), ChannelStaff)
	second := mustCreate(t, o, dayAt(11, 0), ChannelStaff)

	_, err := o.Reschedule(ctx, tenant, second.Appointment.ID, RescheduleRequest{Start: dayAt(10, 15)})
	if !errors.Is(err, model.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict on reschedule, got %v", err)
	}

	// The original position survives a failed move.
	got, err := o.GetAppointment(ctx, tenant, second.Appointment.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Interval.Start.Equal(dayAt(11, 0)) {
		t.Fatalf("failed reschedule must not move the appointment: %s", got.Interval.Start)
	}
}

func TestReschedulePushesUpdate(t *testing.T) {
	sync := &fakeSync{connected: true}
	o, _ := fixture(t, sync)
	ctx := context.Background()
	res := mustCreate(t, o, dayAt(10, 0), ChannelStaff)

	out, err := o.Reschedule(ctx, tenant, res.Appointment.ID, RescheduleRequest{Start: dayAt(14, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Appointment.Interval.Start.Equal(dayAt(14, 0)) {
		t.Fatalf("interval not updated: %+v", out.Appointment.Interval)
	}
	if len(sync.updated) != 1 {
		t.Fatalf("expected one external update, got %v", sync.updated)
	}
}

func TestRescheduleAfterStartRejected(t *testing.T) {
	o, _ := fixture(t, &fakeSync{})
	ctx := context.Background()
	res := mustCreate(t, o, dayAt(10, 0), ChannelStaff)
	if _, err := o.SetStatus(ctx, tenant, res.Appointment.ID, model.StatusInProgress); err != nil {
		t.Fatal(err)
	}
	_, err := o.Reschedule(ctx, tenant, res.Appointment.ID, RescheduleRequest{Start: dayAt(15, 0)})
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestSetStatusRejectsInvalidTransition(t *testing.T) {
	o, _ := fixture(t, &fakeSync{})
	ctx := context.Background()
	res := mustCreate(t, o, dayAt(10, 0), ChannelStaff)

	if _, err := o.SetStatus(ctx, tenant, res.Appointment.ID, model.StatusFinished); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("confirmed -> finished should be rejected, got %v", err)
	}
	if _, err := o.SetStatus(ctx, tenant, res.Appointment.ID, model.StatusRequested); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("transition into requested should be rejected, got %v", err)
	}
}

func TestValidation(t *testing.T) {
	o, _ := fixture(t, &fakeSync{})
	ctx := context.Background()

	cases := []CreateRequest{
		{TenantID: tenant, CustomerID: custID, ProfessionalID: proID, ServiceID: svcID}, // zero start
		{TenantID: tenant, CustomerID: custID, ProfessionalID: proID, ServiceID: "nope", Start: dayAt(10, 0)},
		{TenantID: tenant, CustomerID: custID, ProfessionalID: "nope", ServiceID: svcID, Start: dayAt(10, 0)},
		{TenantID: tenant, CustomerID: "", ProfessionalID: proID, ServiceID: svcID, Start: dayAt(10, 0)},
	}
	for i, req := range cases {
		if _, err := o.CreateAppointment(ctx, req); !model.IsValidation(err) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestInactiveProfessionalRejected(t *testing.T) {
	o, store := fixture(t, &fakeSync{})
	store.addProfessional(model.Professional{ID: "pro-2", TenantID: tenant, Name: "Sam", Active: false})
	_, err := o.CreateAppointment(context.Background(), CreateRequest{
		TenantID: tenant, CustomerID: custID, ProfessionalID: "pro-2", ServiceID: svcID,
		Start: dayAt(10, 0), Channel: ChannelStaff,
	})
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error for inactive professional, got %v", err)
	}
}

// TestNoDoubleBookingUnderConcurrency hammers the orchestrator with
// randomized concurrent create/approve/reschedule/cancel sequences and then
// checks the invariant: committed appointments of one professional never
// overlap.
func TestNoDoubleBookingUnderConcurrency(t *testing.T) {
	cal := &fakeSync{connected: true}
	o, store := fixture(t, cal)
	store.addProfessional(model.Professional{ID: "pro-2", TenantID: tenant, Name: "Sam", Active: true})
	pros := []string{proID, "pro-2"}

	const workers = 8
	const opsPerWorker = 120

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ids []string

	pickID := func(rng *rand.Rand) (string, bool) {
		mu.Lock()
		defer mu.Unlock()
		if len(ids) == 0 {
			return "", false
		}
		return ids[rng.Intn(len(ids))], true
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			ctx := context.Background()
			for i := 0; i < opsPerWorker; i++ {
				start := dayAt(8, 0).Add(time.Duration(rng.Intn(40)) * 15 * time.Minute)
				pro := pros[rng.Intn(len(pros))]
				switch rng.Intn(4) {
				case 0, 1:
					ch := ChannelStaff
					if rng.Intn(2) == 0 {
						ch = ChannelPublic
					}
					res, err := o.CreateAppointment(ctx, CreateRequest{
						TenantID: tenant, CustomerID: custID, ProfessionalID: pro, ServiceID: svcID,
						Start: start, Channel: ch,
					})
					if err == nil {
						mu.Lock()
						ids = append(ids, res.Appointment.ID)
						mu.Unlock()
					} else if !errors.Is(err, model.ErrSlotConflict) {
						t.Errorf("unexpected create error: %v", err)
					}
				case 2:
					if id, ok := pickID(rng); ok {
						if _, err := o.Approve(ctx, tenant, id); err != nil &&
							!errors.Is(err, model.ErrSlotConflict) && !errors.Is(err, model.ErrInvalidTransition) {
							t.Errorf("unexpected approve error: %v", err)
						}
					}
				case 3:
					if id, ok := pickID(rng); ok {
						if _, err := o.SetStatus(ctx, tenant, id, model.StatusCancelled); err != nil &&
							!errors.Is(err, model.ErrInvalidTransition) {
							t.Errorf("unexpected cancel error: %v", err)
						}
					}
				}
			}
		}(int64(w) + 1)
	}
	wg.Wait()

	appts := store.snapshot()
	for i := 0; i < len(appts); i++ {
		for j := i + 1; j < len(appts); j++ {
			a, b := appts[i], appts[j]
			if a.ProfessionalID != b.ProfessionalID {
				continue
			}
			if !a.Status.Committed() || !b.Status.Committed() {
				continue
			}
			if a.Interval.Overlaps(b.Interval) {
				t.Fatalf("double booking: %s %v and %s %v", a.ID, a.Interval, b.ID, b.Interval)
			}
		}
	}
}
