package model

import "testing"

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to AppointmentStatus }{
		{StatusRequested, StatusConfirmed},
		{StatusConfirmed, StatusWaiting},
		{StatusConfirmed, StatusInProgress},
		{StatusConfirmed, StatusCancelled},
		{StatusConfirmed, StatusNoShow},
		{StatusWaiting, StatusInProgress},
		{StatusWaiting, StatusCancelled},
		{StatusInProgress, StatusFinished},
		{StatusInProgress, StatusCancelled},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.from, tr.to) {
			t.Errorf("expected %s -> %s to be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to AppointmentStatus }{
		{StatusRequested, StatusWaiting},
		{StatusRequested, StatusFinished},
		{StatusConfirmed, StatusRequested}, // nothing re-enters requested
		{StatusWaiting, StatusNoShow},
		{StatusFinished, StatusCancelled},
		{StatusCancelled, StatusConfirmed},
		{StatusNoShow, StatusConfirmed},
		{StatusFinished, StatusInProgress},
	}
	for _, tr := range denied {
		if CanTransition(tr.from, tr.to) {
			t.Errorf("expected %s -> %s to be rejected", tr.from, tr.to)
		}
	}
}

func TestNoTransitionIntoRequested(t *testing.T) {
	for from := range transitions {
		if CanTransition(from, StatusRequested) {
			t.Errorf("%s -> requested must be impossible", from)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []AppointmentStatus{StatusFinished, StatusCancelled, StatusNoShow} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		if len(transitions[s]) != 0 {
			t.Errorf("%s should have no outgoing transitions", s)
		}
	}
}

func TestCommittedSet(t *testing.T) {
	committed := map[AppointmentStatus]bool{
		StatusConfirmed:  true,
		StatusWaiting:    true,
		StatusInProgress: true,
	}
	for _, s := range []AppointmentStatus{
		StatusRequested, StatusConfirmed, StatusWaiting, StatusInProgress,
		StatusFinished, StatusCancelled, StatusNoShow,
	} {
		if s.Committed() != committed[s] {
			t.Errorf("Committed(%s) = %v, want %v", s, s.Committed(), committed[s])
		}
	}
}
