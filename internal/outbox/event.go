package outbox

// Event is the structured-outcome envelope written to the outbox table.
// The Kafka topic name equals EventType. Presentation of these outcomes
// (toasts, emails) is downstream's concern; the core only emits them.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the booking flow.
const (
	EventAppointmentRequested = "booking.appointment.requested.v1"
	EventAppointmentConfirmed = "booking.appointment.confirmed.v1"
	EventAppointmentUpdated   = "booking.appointment.updated.v1"
	EventAppointmentStatusSet = "booking.appointment.status_changed.v1"
	EventCalendarSyncWarning  = "booking.calendar.sync_warning.v1"
)
