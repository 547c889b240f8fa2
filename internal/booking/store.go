package booking

import (
	"context"

	"github.com/barberos/barberos/internal/availability"
	"github.com/barberos/barberos/internal/model"
	"github.com/barberos/barberos/internal/outbox"
)

// Store is the persistence surface the orchestrator needs. The Postgres
// implementation lives in internal/storage; tests use an in-memory store.
//
// Mutating operations are transactional conditional writes: the committed
// overlap check and the row change happen in one atomic unit at the storage
// layer, together with the outbox event. They return model.ErrSlotConflict,
// model.ErrNotFound, or model.ErrInvalidTransition.
type EventBuilder func(appt model.Appointment) outbox.Event

type Store interface {
	GetService(ctx context.Context, tenantID, id string) (model.Service, error)
	GetProfessional(ctx context.Context, tenantID, id string) (model.Professional, error)

	GetAppointment(ctx context.Context, tenantID, id string) (model.Appointment, error)

	// CreateAppointment inserts the appointment; if its status is committed,
	// the insert fails with ErrSlotConflict when the interval overlaps
	// another committed appointment of the same professional.
	CreateAppointment(ctx context.Context, appt *model.Appointment, evt outbox.Event) error

	// RescheduleAppointment moves an appointment that is still reschedulable
	// to a new interval (and optionally professional/service), re-validating
	// the committed-overlap invariant at the new position. evt is called with
	// the updated row inside the transaction to build the outbox event.
	RescheduleAppointment(ctx context.Context, tenantID, id string, interval availability.Interval, professionalID, serviceID string, evt EventBuilder) (model.Appointment, error)

	// TransitionAppointment applies the state machine. Approving a requested
	// appointment re-validates overlap because another appointment may have
	// been confirmed in the interim.
	TransitionAppointment(ctx context.Context, tenantID, id string, next model.AppointmentStatus, evt EventBuilder) (model.Appointment, error)

	// SetSyncResult records the outcome of an external-calendar projection
	// attempt. It never fails the booking flow on conflict semantics.
	SetSyncResult(ctx context.Context, tenantID, id, externalEventID string, state model.SyncState) error
}
