package model

import (
	"time"

	"github.com/barberos/barberos/internal/availability"
)

type AppointmentStatus string

const (
	StatusRequested  AppointmentStatus = "requested"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusWaiting    AppointmentStatus = "waiting"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusFinished   AppointmentStatus = "finished"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// SyncState tracks the external-calendar projection of an appointment.
// "pending" means a push failed and the resync worker should retry.
type SyncState string

const (
	SyncNone    SyncState = "none"
	SyncSynced  SyncState = "synced"
	SyncPending SyncState = "pending"
	SyncFailed  SyncState = "failed"
)

type Appointment struct {
	ID              string
	TenantID        string
	CustomerID      string
	ProfessionalID  string
	ServiceID       string
	Interval        availability.Interval
	Status          AppointmentStatus
	ExternalEventID string
	SyncState       SyncState
	Notes           string
	CreatedAt       time.Time
}

// Committed statuses consume the professional's capacity and participate in
// the no-double-booking invariant. Requested appointments are pending demand
// and do not block the slot until approved.
func (s AppointmentStatus) Committed() bool {
	switch s {
	case StatusConfirmed, StatusWaiting, StatusInProgress:
		return true
	}
	return false
}

func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusFinished, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusConfirmed, StatusWaiting, StatusInProgress,
		StatusFinished, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// transitions is the appointment lifecycle. Requested is only reachable at
// creation; terminal states have no outgoing edges.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusRequested:  {StatusConfirmed},
	StatusConfirmed:  {StatusWaiting, StatusInProgress, StatusCancelled, StatusNoShow},
	StatusWaiting:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusFinished, StatusCancelled},
}

func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Reschedulable reports whether the appointment's time, professional, or
// service may still change.
func (a Appointment) Reschedulable() bool {
	return a.Status == StatusRequested || a.Status == StatusConfirmed
}
