package scheduling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/policy"
)

var (
	ErrUnknownProvider = errors.New("scheduling: unknown provider")
	ErrUnknownPatient  = errors.New("scheduling: unknown patient")
	ErrUnknownLocation = errors.New("scheduling: unknown location")
)

// StaticDirectory keeps providers, patients and locations in memory. It backs the memory store
// mode and tests.
type StaticDirectory struct {
	mu        sync.RWMutex
	providers map[string]model.Provider
	patients  map[string]model.Patient
	locations map[string]model.Location
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		providers: make(map[string]model.Provider),
		patients:  make(map[string]model.Patient),
		locations: make(map[string]model.Location),
	}
}

// AddProvider stores p, assigning an id and active status when missing.
func (d *StaticDirectory) AddProvider(p model.Provider) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = model.EntityActive
	}
	d.providers[p.ID] = p
	return p.ID
}

func (d *StaticDirectory) AddPatient(p model.Patient) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = model.EntityActive
	}
	d.patients[p.ID] = p
	return p.ID
}

func (d *StaticDirectory) AddLocation(l model.Location) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = model.EntityActive
	}
	d.locations[l.ID] = l
	return l.ID
}

// CreateProvider registers an active provider with the default Monday to Friday hours.
func (d *StaticDirectory) CreateProvider(_ context.Context, name string) (string, error) {
	return d.AddProvider(model.Provider{Name: name, WorkingHours: model.DefaultWorkingHours()}), nil
}

func (d *StaticDirectory) CreatePatient(_ context.Context, name string) (string, error) {
	return d.AddPatient(model.Patient{Name: name}), nil
}

func (d *StaticDirectory) CreateLocation(_ context.Context, name string) (string, error) {
	return d.AddLocation(model.Location{Name: name}), nil
}

func (d *StaticDirectory) ProviderExists(_ context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[id]
	return ok && p.Status == model.EntityActive, nil
}

func (d *StaticDirectory) PatientExists(_ context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.patients[id]
	return ok && p.Status == model.EntityActive, nil
}

func (d *StaticDirectory) LocationExists(_ context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.locations[id]
	return ok && l.Status == model.EntityActive, nil
}

func (d *StaticDirectory) WorkingHours(_ context.Context, providerID string) (model.WorkingHours, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[providerID]
	if !ok {
		return model.WorkingHours{}, ErrUnknownProvider
	}
	return p.WorkingHours, nil
}

func (d *StaticDirectory) SetWorkingHours(_ context.Context, providerID string, day time.Weekday, hours model.DayHours) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.providers[providerID]
	if !ok || p.Status == model.EntityDeleted {
		return ErrUnknownProvider
	}
	p.WorkingHours[day] = hours
	d.providers[providerID] = p
	return nil
}

// DeleteProvider applies the provider delete policy. Deleting twice reports ErrUnknownProvider.
func (d *StaticDirectory) DeleteProvider(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.providers[id]
	if !ok || p.Status == model.EntityDeleted {
		return ErrUnknownProvider
	}
	if policy.DeletePolicyFor(policy.EntityProvider) == policy.HardDelete {
		delete(d.providers, id)
		return nil
	}
	p.Status = model.EntityDeleted
	d.providers[id] = p
	return nil
}

func (d *StaticDirectory) DeletePatient(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.patients[id]
	if !ok || p.Status == model.EntityDeleted {
		return ErrUnknownPatient
	}
	if policy.DeletePolicyFor(policy.EntityPatient) == policy.HardDelete {
		delete(d.patients, id)
		return nil
	}
	p.Status = model.EntityDeleted
	d.patients[id] = p
	return nil
}

func (d *StaticDirectory) DeleteLocation(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locations[id]
	if !ok || l.Status == model.EntityDeleted {
		return ErrUnknownLocation
	}
	if policy.DeletePolicyFor(policy.EntityLocation) == policy.HardDelete {
		delete(d.locations, id)
		return nil
	}
	l.Status = model.EntityDeleted
	d.locations[id] = l
	return nil
}
