package model

import "time"

// Service is a bookable catalog entry. BufferMinutes is dead time appended
// after the service before the professional is available again; the effective
// occupied interval is [start, start + duration + buffer).
type Service struct {
	ID              string
	TenantID        string
	Name            string
	PriceCents      int64
	DurationMinutes int
	BufferMinutes   int
	Active          bool
}

func (s Service) OccupiedDuration() time.Duration {
	return time.Duration(s.DurationMinutes+s.BufferMinutes) * time.Minute
}

// Professional is a scheduling resource. Inactive professionals are offered
// no new slots but keep their historical appointments.
type Professional struct {
	ID       string
	TenantID string
	Name     string
	Active   bool
}

type Customer struct {
	ID       string
	TenantID string
	Name     string
	Phone    string
	Email    string
}

// WorkingHours is one weekday's opening window as local clock time.
// A weekday without a row is a closed day.
type WorkingHours struct {
	TenantID string
	Weekday  time.Weekday
	OpensAt  string // "09:00"
	ClosesAt string // "18:00"
}

// Clock parses an "HH:MM" string into hour and minute.
func Clock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
