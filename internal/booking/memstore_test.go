package booking

import (
	"context"
	"sync"

	"github.com/barberos/barberos/internal/availability"
	"github.com/barberos/barberos/internal/model"
	"github.com/barberos/barberos/internal/outbox"
)

// memStore mimics the Postgres repository's semantics: every mutation is a
// serialized conditional write that checks the committed-overlap invariant
// atomically, the way the exclusion constraint does.
type memStore struct {
	mu       sync.Mutex
	services map[string]model.Service
	pros     map[string]model.Professional
	appts    map[string]model.Appointment
	events   []outbox.Event
}

func newMemStore() *memStore {
	return &memStore{
		services: map[string]model.Service{},
		pros:     map[string]model.Professional{},
		appts:    map[string]model.Appointment{},
	}
}

func (s *memStore) addService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.TenantID+"/"+svc.ID] = svc
}

func (s *memStore) addProfessional(p model.Professional) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pros[p.TenantID+"/"+p.ID] = p
}

func (s *memStore) GetService(_ context.Context, tenantID, id string) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[tenantID+"/"+id]
	if !ok {
		return model.Service{}, model.ErrNotFound
	}
	return svc, nil
}

func (s *memStore) GetProfessional(_ context.Context, tenantID, id string) (model.Professional, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pros[tenantID+"/"+id]
	if !ok {
		return model.Professional{}, model.ErrNotFound
	}
	return p, nil
}

func (s *memStore) GetAppointment(_ context.Context, tenantID, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok || appt.TenantID != tenantID {
		return model.Appointment{}, model.ErrNotFound
	}
	return appt, nil
}

func (s *memStore) CreateAppointment(_ context.Context, appt *model.Appointment, evt outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.Status.Committed() && s.overlapsCommittedLocked(*appt, appt.ID) {
		return model.ErrSlotConflict
	}
	s.appts[appt.ID] = *appt
	s.events = append(s.events, evt)
	return nil
}

func (s *memStore) RescheduleAppointment(_ context.Context, tenantID, id string, interval availability.Interval, professionalID, serviceID string, evt EventBuilder) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok || appt.TenantID != tenantID {
		return model.Appointment{}, model.ErrNotFound
	}
	if !appt.Reschedulable() {
		return model.Appointment{}, model.ErrInvalidTransition
	}
	moved := appt
	moved.Interval = interval
	moved.ProfessionalID = professionalID
	moved.ServiceID = serviceID
	if moved.Status.Committed() && s.overlapsCommittedLocked(moved, id) {
		return model.Appointment{}, model.ErrSlotConflict
	}
	s.appts[id] = moved
	s.events = append(s.events, evt(moved))
	return moved, nil
}

func (s *memStore) TransitionAppointment(_ context.Context, tenantID, id string, next model.AppointmentStatus, evt EventBuilder) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok || appt.TenantID != tenantID {
		return model.Appointment{}, model.ErrNotFound
	}
	if !model.CanTransition(appt.Status, next) {
		return model.Appointment{}, model.ErrInvalidTransition
	}
	updated := appt
	updated.Status = next
	if !appt.Status.Committed() && next.Committed() && s.overlapsCommittedLocked(updated, id) {
		return model.Appointment{}, model.ErrSlotConflict
	}
	s.appts[id] = updated
	s.events = append(s.events, evt(updated))
	return updated, nil
}

func (s *memStore) SetSyncResult(_ context.Context, tenantID, id, externalEventID string, state model.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok || appt.TenantID != tenantID {
		return model.ErrNotFound
	}
	if externalEventID != "" {
		appt.ExternalEventID = externalEventID
	}
	appt.SyncState = state
	s.appts[id] = appt
	return nil
}

func (s *memStore) overlapsCommittedLocked(candidate model.Appointment, excludeID string) bool {
	for id, other := range s.appts {
		if id == excludeID {
			continue
		}
		if other.TenantID != candidate.TenantID || other.ProfessionalID != candidate.ProfessionalID {
			continue
		}
		if !other.Status.Committed() {
			continue
		}
		if other.Interval.Overlaps(candidate.Interval) {
			return true
		}
	}
	return false
}

// snapshot returns all appointments for invariant checks.
func (s *memStore) snapshot() []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Appointment, 0, len(s.appts))
	for _, a := range s.appts {
		out = append(out, a)
	}
	return out
}
