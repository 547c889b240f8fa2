package booking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/barberos/barberos/internal/availability"
	"github.com/barberos/barberos/internal/calendar"
	"github.com/barberos/barberos/internal/model"
	"github.com/barberos/barberos/internal/outbox"
)

// Channel identifies who is booking. Staff bookings commit capacity
// immediately; public bookings enter as requested demand.
type Channel string

const (
	ChannelStaff  Channel = "staff"
	ChannelPublic Channel = "public"
)

// CalendarSync is the slice of the calendar adapter the orchestrator uses.
type CalendarSync interface {
	Connected(ctx context.Context, tenantID string) bool
	PushCreate(ctx context.Context, appt model.Appointment, summary, description string) (string, error)
	PushUpdate(ctx context.Context, tenantID, eventID string, interval availability.Interval) error
	PushDelete(ctx context.Context, tenantID, eventID string) error
}

// Warning is a side-channel outcome surfaced with an otherwise successful
// operation, mostly calendar projection failures.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	WarnCalendarAuthRequired = "calendar_auth_required"
	WarnCalendarUnavailable  = "calendar_unavailable"
	WarnCalendarError        = "calendar_error"
)

type Result struct {
	Appointment model.Appointment
	Warnings    []Warning
}

type CreateRequest struct {
	TenantID       string
	CustomerID     string
	ProfessionalID string
	ServiceID      string
	Start          time.Time
	Notes          string
	Channel        Channel
}

type RescheduleRequest struct {
	Start          time.Time
	ProfessionalID string // empty = unchanged
	ServiceID      string // empty = unchanged
}

// Orchestrator owns the appointment lifecycle. Ordering is always
// commit-then-project: the local store is the source of truth, the external
// calendar is an advisory projection that may lag or miss entries.
type Orchestrator struct {
	store       Store
	sync        CalendarSync
	logger      *slog.Logger
	pushTimeout time.Duration
	now         func() time.Time
}

func NewOrchestrator(store Store, sync CalendarSync, logger *slog.Logger, pushTimeout time.Duration) *Orchestrator {
	if pushTimeout <= 0 {
		pushTimeout = 4 * time.Second
	}
	return &Orchestrator{
		store:       store,
		sync:        sync,
		logger:      logger,
		pushTimeout: pushTimeout,
		now:         time.Now,
	}
}

func (o *Orchestrator) CreateAppointment(ctx context.Context, req CreateRequest) (Result, error) {
	if req.TenantID == "" {
		return Result{}, model.Invalid("tenant_id", "required")
	}
	if req.CustomerID == "" {
		return Result{}, model.Invalid("customer_id", "required")
	}
	if req.Start.IsZero() {
		return Result{}, model.Invalid("start_time", "required")
	}

	svc, err := o.store.GetService(ctx, req.TenantID, req.ServiceID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Result{}, model.Invalid("service_id", "unknown service")
		}
		return Result{}, err
	}
	if !svc.Active {
		return Result{}, model.Invalid("service_id", "service is inactive")
	}
	if svc.DurationMinutes <= 0 {
		return Result{}, model.Invalid("service_id", "service has no duration")
	}

	pro, err := o.store.GetProfessional(ctx, req.TenantID, req.ProfessionalID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Result{}, model.Invalid("professional_id", "unknown professional")
		}
		return Result{}, err
	}
	if !pro.Active {
		return Result{}, model.Invalid("professional_id", "professional is inactive")
	}

	status := model.StatusConfirmed
	eventType := outbox.EventAppointmentConfirmed
	if req.Channel == ChannelPublic {
		status = model.StatusRequested
		eventType = outbox.EventAppointmentRequested
	}

	appt := model.Appointment{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		CustomerID:     req.CustomerID,
		ProfessionalID: pro.ID,
		ServiceID:      svc.ID,
		Interval: availability.Interval{
			Start: req.Start,
			End:   req.Start.Add(svc.OccupiedDuration()),
		},
		Status:    status,
		SyncState: model.SyncNone,
		Notes:     req.Notes,
		CreatedAt: o.now().UTC(),
	}

	if err := o.store.CreateAppointment(ctx, &appt, o.event(eventType, appt)); err != nil {
		return Result{}, err
	}

	// Only committed appointments are projected; a requested booking is
	// pending demand and gets its event on approval.
	var warnings []Warning
	if appt.Status.Committed() {
		appt, warnings = o.projectCreate(ctx, appt)
	}
	return Result{Appointment: appt, Warnings: warnings}, nil
}

func (o *Orchestrator) GetAppointment(ctx context.Context, tenantID, id string) (model.Appointment, error) {
	return o.store.GetAppointment(ctx, tenantID, id)
}

// Approve turns a requested booking into a committed one. The overlap
// invariant is re-validated inside the store's conditional write, so of two
// overlapping requested bookings the second approval fails with SlotConflict.
func (o *Orchestrator) Approve(ctx context.Context, tenantID, id string) (Result, error) {
	appt, err := o.store.TransitionAppointment(ctx, tenantID, id, model.StatusConfirmed, o.eventBuilder(outbox.EventAppointmentConfirmed))
	if err != nil {
		return Result{}, err
	}

	appt, warnings := o.projectCreate(ctx, appt)
	return Result{Appointment: appt, Warnings: warnings}, nil
}

func (o *Orchestrator) Reschedule(ctx context.Context, tenantID, id string, req RescheduleRequest) (Result, error) {
	if req.Start.IsZero() {
		return Result{}, model.Invalid("start_time", "required")
	}

	current, err := o.store.GetAppointment(ctx, tenantID, id)
	if err != nil {
		return Result{}, err
	}

	serviceID := current.ServiceID
	if req.ServiceID != "" {
		serviceID = req.ServiceID
	}
	svc, err := o.store.GetService(ctx, tenantID, serviceID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Result{}, model.Invalid("service_id", "unknown service")
		}
		return Result{}, err
	}

	professionalID := current.ProfessionalID
	if req.ProfessionalID != "" {
		pro, err := o.store.GetProfessional(ctx, tenantID, req.ProfessionalID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return Result{}, model.Invalid("professional_id", "unknown professional")
			}
			return Result{}, err
		}
		if !pro.Active {
			return Result{}, model.Invalid("professional_id", "professional is inactive")
		}
		professionalID = pro.ID
	}

	interval := availability.Interval{
		Start: req.Start,
		End:   req.Start.Add(svc.OccupiedDuration()),
	}

	appt, err := o.store.RescheduleAppointment(ctx, tenantID, id, interval, professionalID, serviceID,
		o.eventBuilder(outbox.EventAppointmentUpdated))
	if err != nil {
		return Result{}, err
	}

	// Local move is committed and authoritative; the external push is
	// advisory and runs after.
	var warnings []Warning
	if appt.Status.Committed() {
		appt, warnings = o.projectUpdate(ctx, appt)
	}
	return Result{Appointment: appt, Warnings: warnings}, nil
}

func (o *Orchestrator) SetStatus(ctx context.Context, tenantID, id string, status model.AppointmentStatus) (Result, error) {
	if !status.Valid() {
		return Result{}, model.Invalid("status", "unknown status")
	}
	if status == model.StatusRequested {
		return Result{}, model.ErrInvalidTransition
	}
	if status == model.StatusConfirmed {
		return o.Approve(ctx, tenantID, id)
	}

	appt, err := o.store.TransitionAppointment(ctx, tenantID, id, status, o.eventBuilder(outbox.EventAppointmentStatusSet))
	if err != nil {
		return Result{}, err
	}

	// Cancellation is final regardless of the external outcome: the delete
	// is fire-and-forget, a failure is logged and surfaced as a warning.
	var warnings []Warning
	if (status == model.StatusCancelled || status == model.StatusNoShow) && appt.ExternalEventID != "" {
		pushCtx, cancel := context.WithTimeout(ctx, o.pushTimeout)
		err := o.sync.PushDelete(pushCtx, tenantID, appt.ExternalEventID)
		cancel()
		if err != nil {
			o.logger.Warn("calendar event deletion failed",
				"tenant_id", tenantID, "appointment_id", id, "event_id", appt.ExternalEventID, "err", err)
			warnings = append(warnings, warningFor(err))
		}
	}
	return Result{Appointment: appt, Warnings: warnings}, nil
}

// projectCreate mirrors a freshly committed appointment into the external
// calendar. Runs strictly after the local commit; failure marks the
// appointment sync-pending for the resync worker and warns the caller.
func (o *Orchestrator) projectCreate(ctx context.Context, appt model.Appointment) (model.Appointment, []Warning) {
	if o.sync == nil || !o.sync.Connected(ctx, appt.TenantID) {
		return appt, nil
	}

	pushCtx, cancel := context.WithTimeout(ctx, o.pushTimeout)
	eventID, err := o.sync.PushCreate(pushCtx, appt, o.eventSummary(ctx, appt), "barberos appointment "+appt.ID)
	cancel()
	if err != nil {
		o.logger.Warn("calendar projection failed; appointment kept locally",
			"tenant_id", appt.TenantID, "appointment_id", appt.ID, "err", err)
		if markErr := o.store.SetSyncResult(ctx, appt.TenantID, appt.ID, "", model.SyncPending); markErr != nil {
			o.logger.Error("failed to mark appointment sync-pending", "appointment_id", appt.ID, "err", markErr)
		} else {
			appt.SyncState = model.SyncPending
		}
		return appt, []Warning{warningFor(err)}
	}

	if err := o.store.SetSyncResult(ctx, appt.TenantID, appt.ID, eventID, model.SyncSynced); err != nil {
		o.logger.Error("failed to record calendar event id", "appointment_id", appt.ID, "err", err)
		return appt, nil
	}
	appt.ExternalEventID = eventID
	appt.SyncState = model.SyncSynced
	return appt, nil
}

func (o *Orchestrator) projectUpdate(ctx context.Context, appt model.Appointment) (model.Appointment, []Warning) {
	if o.sync == nil || !o.sync.Connected(ctx, appt.TenantID) {
		return appt, nil
	}
	if appt.ExternalEventID == "" {
		// Never mirrored (or mirror was lost); treat as a fresh projection.
		return o.projectCreate(ctx, appt)
	}

	pushCtx, cancel := context.WithTimeout(ctx, o.pushTimeout)
	err := o.sync.PushUpdate(pushCtx, appt.TenantID, appt.ExternalEventID, appt.Interval)
	cancel()
	if err != nil {
		o.logger.Warn("calendar update failed; appointment kept locally",
			"tenant_id", appt.TenantID, "appointment_id", appt.ID, "err", err)
		if markErr := o.store.SetSyncResult(ctx, appt.TenantID, appt.ID, appt.ExternalEventID, model.SyncPending); markErr != nil {
			o.logger.Error("failed to mark appointment sync-pending", "appointment_id", appt.ID, "err", markErr)
		} else {
			appt.SyncState = model.SyncPending
		}
		return appt, []Warning{warningFor(err)}
	}

	if err := o.store.SetSyncResult(ctx, appt.TenantID, appt.ID, appt.ExternalEventID, model.SyncSynced); err == nil {
		appt.SyncState = model.SyncSynced
	}
	return appt, nil
}

func (o *Orchestrator) eventSummary(ctx context.Context, appt model.Appointment) string {
	svc, err := o.store.GetService(ctx, appt.TenantID, appt.ServiceID)
	if err != nil {
		return "Appointment"
	}
	return svc.Name
}

func (o *Orchestrator) eventBuilder(eventType string) EventBuilder {
	return func(appt model.Appointment) outbox.Event {
		return o.event(eventType, appt)
	}
}

func (o *Orchestrator) event(eventType string, appt model.Appointment) outbox.Event {
	payload, _ := json.Marshal(map[string]any{
		"appointment_id":  appt.ID,
		"tenant_id":       appt.TenantID,
		"professional_id": appt.ProfessionalID,
		"service_id":      appt.ServiceID,
		"customer_id":     appt.CustomerID,
		"start_time":      appt.Interval.Start.UTC().Format(time.RFC3339),
		"end_time":        appt.Interval.End.UTC().Format(time.RFC3339),
		"status":          appt.Status,
	})
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}
}

func warningFor(err error) Warning {
	switch {
	case errors.Is(err, calendar.ErrAuthRequired), errors.Is(err, calendar.ErrSessionExpired):
		return Warning{Code: WarnCalendarAuthRequired, Message: "calendar session expired; reconnect to resume syncing"}
	case errors.Is(err, calendar.ErrProviderUnavailable):
		return Warning{Code: WarnCalendarUnavailable, Message: "calendar provider unreachable; appointment saved, sync will be retried"}
	default:
		return Warning{Code: WarnCalendarError, Message: "calendar sync failed; appointment saved locally"}
	}
}
