package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// MemoryStore is an in-process appointment store. A single mutex makes the overlap check and the
// write one atomic step, so concurrent callers can never both book the same interval.
type MemoryStore struct {
	mu    sync.Mutex
	appts map[string]model.Appointment
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appts: make(map[string]model.Appointment),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Insert(_ context.Context, appt *model.Appointment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *appt
	rec.Date = model.DateOf(rec.Date)
	if rec.Status.IsActive() && s.overlapsLocked(rec, "") {
		return "", ErrConflict
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := s.appts[rec.ID]; exists {
		return "", ErrConflict
	}
	now := s.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.appts[rec.ID] = rec

	appt.ID = rec.ID
	appt.CreatedAt = now
	appt.UpdatedAt = now
	return rec.ID, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, upd model.AppointmentUpdate) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	if upd.ChangesCompleted(cur) {
		return model.Appointment{}, ErrCompleted
	}
	next := upd.Apply(cur)
	next.Date = model.DateOf(next.Date)
	if next.Status.IsActive() && s.overlapsLocked(next, id) {
		return model.Appointment{}, ErrConflict
	}
	next.UpdatedAt = s.now()
	s.appts[id] = next
	return next, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.appts[id]
	if !ok {
		return ErrNotFound
	}
	if cur.Status == model.StatusCompleted {
		return ErrCompleted
	}
	delete(s.appts, id)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

func (s *MemoryStore) FindActiveByProviderAndDate(_ context.Context, providerID string, date time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := model.DateOf(date)
	var out []model.Appointment
	for _, a := range s.appts {
		if a.ProviderID == providerID && a.Date.Equal(day) && a.Status.IsActive() {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (s *MemoryStore) List(_ context.Context, filter model.ListFilter) ([]model.Appointment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filter = filter.Normalize()
	var matched []model.Appointment
	for _, a := range s.appts {
		if filter.Matches(a) {
			matched = append(matched, a)
		}
	}
	sortAppointments(matched)

	total := len(matched)
	if filter.Offset >= total {
		return []model.Appointment{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (s *MemoryStore) overlapsLocked(candidate model.Appointment, excludeID string) bool {
	var sameDay []model.Appointment
	for _, a := range s.appts {
		if a.ProviderID == candidate.ProviderID && a.Date.Equal(candidate.Date) {
			sameDay = append(sameDay, a)
		}
	}
	return availability.HasConflict(sameDay, availability.Interval{Start: candidate.StartTime, End: candidate.EndTime}, excludeID)
}

func sortAppointments(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		a, b := appts[i], appts[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}
