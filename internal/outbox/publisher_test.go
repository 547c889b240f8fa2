package outbox

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestMessageForRoutesByEventType(t *testing.T) {
	evt := PendingEvent{
		ID:          7,
		EventID:     "evt-7",
		AggregateID: "appt-1",
		EventType:   EventAppointmentConfirmed,
		Payload:     []byte(`{"appointment_id":"appt-1"}`),
	}

	msg := messageFor(context.Background(), evt)

	if msg.Topic != EventAppointmentConfirmed {
		t.Fatalf("topic = %q, want %q", msg.Topic, EventAppointmentConfirmed)
	}
	if string(msg.Key) != "appt-1" {
		t.Fatalf("key = %q, want appointment id", msg.Key)
	}
	if string(msg.Value) != `{"appointment_id":"appt-1"}` {
		t.Fatalf("value = %q", msg.Value)
	}
	got := map[string]string{}
	for _, h := range msg.Headers {
		got[h.Key] = string(h.Value)
	}
	if got["event_id"] != "evt-7" {
		t.Fatalf("event_id header = %q, want evt-7", got["event_id"])
	}
	if got["event_type"] != EventAppointmentConfirmed {
		t.Fatalf("event_type header = %q", got["event_type"])
	}
}

func TestMessageForCarriesStoredTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceparent := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	evt := PendingEvent{
		ID:          1,
		EventID:     "evt-1",
		AggregateID: "appt-1",
		EventType:   EventAppointmentRequested,
		Payload:     []byte(`{}`),
		Traceparent: traceparent,
	}

	msg := messageFor(context.Background(), evt)

	var got string
	for _, h := range msg.Headers {
		if h.Key == "traceparent" {
			got = string(h.Value)
		}
	}
	if got != traceparent {
		t.Fatalf("traceparent header = %q, want the stored trace restored", got)
	}
}
