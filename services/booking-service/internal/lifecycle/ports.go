package lifecycle

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Store persists appointments. Implementations return storage.ErrNotFound for unknown ids and
// storage.ErrConflict when a write would overlap an active appointment of the same provider and date.
type Store interface {
	Insert(ctx context.Context, appt *model.Appointment) (string, error)
	Update(ctx context.Context, id string, upd model.AppointmentUpdate) (model.Appointment, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (model.Appointment, error)
	FindActiveByProviderAndDate(ctx context.Context, providerID string, date time.Time) ([]model.Appointment, error)
	List(ctx context.Context, filter model.ListFilter) ([]model.Appointment, int, error)
}

// ProviderDirectory reports active providers and their weekly hours.
type ProviderDirectory interface {
	ProviderExists(ctx context.Context, id string) (bool, error)
	WorkingHours(ctx context.Context, providerID string) (model.WorkingHours, error)
}

type PatientDirectory interface {
	PatientExists(ctx context.Context, id string) (bool, error)
}

type LocationDirectory interface {
	LocationExists(ctx context.Context, id string) (bool, error)
}

type Metrics interface {
	ObserveOperation(operation, outcome string, seconds float64)
	ObserveSlots(n int)
}
