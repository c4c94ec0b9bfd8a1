package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/lifecycle")

type Deps struct {
	Store     Store
	Providers ProviderDirectory
	Patients  PatientDirectory
	// Locations may be nil, in which case location references are not checked.
	Locations LocationDirectory
	Logger    *slog.Logger
	Metrics   Metrics
}

// Manager runs every appointment state change through validation, the conflict check and the store.
// The conflict check here is a fast path; the store rejects overlapping writes on its own.
type Manager struct {
	store     Store
	providers ProviderDirectory
	patients  PatientDirectory
	locations LocationDirectory
	logger    *slog.Logger
	metrics   Metrics
	now       func() time.Time
}

func NewManager(d Deps) *Manager {
	if d.Store == nil || d.Providers == nil || d.Patients == nil {
		panic("lifecycle: store, providers and patients are required")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     d.Store,
		providers: d.Providers,
		patients:  d.Patients,
		locations: d.Locations,
		logger:    logger,
		metrics:   d.Metrics,
		now:       time.Now,
	}
}

type CreateRequest struct {
	PatientID     string
	ProviderID    string
	LocationID    string
	RoomID        string
	ServiceID     string
	Date          time.Time
	Start         model.Clock
	End           model.Clock
	Notes         string
	InternalNotes string
}

type RescheduleRequest struct {
	// Date and ProviderID keep their current values when unset.
	Date       *time.Time
	ProviderID string
	Start      model.Clock
	End        model.Clock
}

func (m *Manager) Create(ctx context.Context, req CreateRequest) (appt model.Appointment, err error) {
	ctx, done := m.begin(ctx, "create",
		attribute.String("provider.id", req.ProviderID),
		attribute.String("patient.id", req.PatientID))
	defer func() { done(err) }()

	req.PatientID = strings.TrimSpace(req.PatientID)
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.LocationID = strings.TrimSpace(req.LocationID)
	switch {
	case req.PatientID == "":
		return model.Appointment{}, apperr.Validation("patient_id is required")
	case req.ProviderID == "":
		return model.Appointment{}, apperr.Validation("provider_id is required")
	case req.Date.IsZero():
		return model.Appointment{}, apperr.Validation("date is required")
	}
	if err := validateInterval(req.Start, req.End); err != nil {
		return model.Appointment{}, err
	}

	if err := m.requirePatient(ctx, req.PatientID); err != nil {
		return model.Appointment{}, err
	}
	if err := m.requireProvider(ctx, req.ProviderID); err != nil {
		return model.Appointment{}, err
	}
	if req.LocationID != "" && m.locations != nil {
		ok, err := m.locations.LocationExists(ctx, req.LocationID)
		if err != nil {
			return model.Appointment{}, apperr.Storage(err, "look up location")
		}
		if !ok {
			return model.Appointment{}, apperr.NotFound("location %s not found or inactive", req.LocationID)
		}
	}

	date := model.DateOf(req.Date)
	if err := m.checkConflict(ctx, req.ProviderID, date, req.Start, req.End, ""); err != nil {
		return model.Appointment{}, err
	}

	appt = model.Appointment{
		PatientID:     req.PatientID,
		ProviderID:    req.ProviderID,
		LocationID:    req.LocationID,
		RoomID:        strings.TrimSpace(req.RoomID),
		ServiceID:     strings.TrimSpace(req.ServiceID),
		Date:          date,
		StartTime:     req.Start,
		EndTime:       req.End,
		Status:        model.StatusScheduled,
		Notes:         req.Notes,
		InternalNotes: req.InternalNotes,
	}
	if _, err := m.store.Insert(ctx, &appt); err != nil {
		return model.Appointment{}, m.storeError(err, "insert appointment")
	}

	m.logger.Info("appointment created",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
		"date", model.FormatDate(appt.Date),
		"start", appt.StartTime.String(),
		"end", appt.EndTime.String(),
	)
	return appt, nil
}

func (m *Manager) Reschedule(ctx context.Context, id string, req RescheduleRequest) (appt model.Appointment, err error) {
	ctx, done := m.begin(ctx, "reschedule", attribute.String("appointment.id", id))
	defer func() { done(err) }()

	cur, err := m.load(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if cur.Status == model.StatusCompleted {
		return model.Appointment{}, apperr.InvalidState("completed appointment %s cannot be rescheduled", id)
	}
	if err := validateInterval(req.Start, req.End); err != nil {
		return model.Appointment{}, err
	}

	upd := model.AppointmentUpdate{StartTime: &req.Start, EndTime: &req.End}
	providerID := cur.ProviderID
	if p := strings.TrimSpace(req.ProviderID); p != "" && p != cur.ProviderID {
		if err := m.requireProvider(ctx, p); err != nil {
			return model.Appointment{}, err
		}
		providerID = p
		upd.ProviderID = &providerID
	}
	date := cur.Date
	if req.Date != nil {
		if req.Date.IsZero() {
			return model.Appointment{}, apperr.Validation("date must not be empty")
		}
		date = model.DateOf(*req.Date)
		upd.Date = &date
	}

	if cur.Status.IsActive() {
		if err := m.checkConflict(ctx, providerID, date, req.Start, req.End, cur.ID); err != nil {
			return model.Appointment{}, err
		}
	}

	appt, err = m.store.Update(ctx, id, upd)
	if err != nil {
		return model.Appointment{}, m.storeError(err, "reschedule appointment")
	}
	m.logger.Info("appointment rescheduled",
		"appointment_id", id,
		"provider_id", appt.ProviderID,
		"date", model.FormatDate(appt.Date),
		"start", appt.StartTime.String(),
		"end", appt.EndTime.String(),
	)
	return appt, nil
}

// UpdateStatus applies any status change except cancelling a completed appointment. Moving an
// inactive appointment back to an active status re-checks for overlaps.
func (m *Manager) UpdateStatus(ctx context.Context, id string, status model.Status) (appt model.Appointment, err error) {
	ctx, done := m.begin(ctx, "update_status",
		attribute.String("appointment.id", id),
		attribute.String("appointment.status", string(status)))
	defer func() { done(err) }()

	if !status.Valid() {
		return model.Appointment{}, apperr.Validation("unknown status %q", status)
	}
	cur, err := m.load(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if cur.Status == model.StatusCompleted && status == model.StatusCancelled {
		return model.Appointment{}, apperr.InvalidState("completed appointment %s cannot be cancelled", id)
	}
	if status.IsActive() && !cur.Status.IsActive() {
		if err := m.checkConflict(ctx, cur.ProviderID, cur.Date, cur.StartTime, cur.EndTime, cur.ID); err != nil {
			return model.Appointment{}, err
		}
	}

	appt, err = m.store.Update(ctx, id, model.AppointmentUpdate{Status: &status})
	if err != nil {
		return model.Appointment{}, m.storeError(err, "update appointment status")
	}
	m.logger.Info("appointment status changed", "appointment_id", id, "from", cur.Status, "to", status)
	return appt, nil
}

func (m *Manager) Delete(ctx context.Context, id string) (err error) {
	ctx, done := m.begin(ctx, "delete", attribute.String("appointment.id", id))
	defer func() { done(err) }()

	cur, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status == model.StatusCompleted {
		return apperr.InvalidState("completed appointment %s cannot be deleted", id)
	}

	if policy.DeletePolicyFor(policy.EntityAppointment) == policy.SoftDelete {
		cancelled := model.StatusCancelled
		if _, err := m.store.Update(ctx, id, model.AppointmentUpdate{Status: &cancelled}); err != nil {
			return m.storeError(err, "cancel appointment")
		}
	} else if err := m.store.Delete(ctx, id); err != nil {
		return m.storeError(err, "delete appointment")
	}
	m.logger.Info("appointment deleted", "appointment_id", id, "status", cur.Status)
	return nil
}

// GetAvailability returns the free slots of slotMinutes length for the provider on date.
func (m *Manager) GetAvailability(ctx context.Context, providerID string, date time.Time, slotMinutes int) (slots []model.TimeSlot, err error) {
	ctx, done := m.begin(ctx, "get_availability",
		attribute.String("provider.id", providerID),
		attribute.Int("slot.minutes", slotMinutes))
	defer func() { done(err) }()

	providerID = strings.TrimSpace(providerID)
	switch {
	case providerID == "":
		return nil, apperr.Validation("provider_id is required")
	case date.IsZero():
		return nil, apperr.Validation("date is required")
	case slotMinutes <= 0:
		return nil, apperr.Validation("slot duration must be positive")
	case slotMinutes > model.MinutesPerDay:
		return nil, apperr.Validation("slot duration exceeds one day")
	}
	if err := m.requireProvider(ctx, providerID); err != nil {
		return nil, err
	}

	hours, err := m.providers.WorkingHours(ctx, providerID)
	if err != nil {
		return nil, apperr.Storage(err, "load working hours")
	}
	day := model.DateOf(date)
	existing, err := m.store.FindActiveByProviderAndDate(ctx, providerID, day)
	if err != nil {
		return nil, apperr.Storage(err, "find appointments")
	}

	slots = availability.GenerateSlots(hours.For(day.Weekday()), slotMinutes, existing, day)
	if m.metrics != nil {
		m.metrics.ObserveSlots(len(slots))
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("slots.count", len(slots)))
	return slots, nil
}

func (m *Manager) Get(ctx context.Context, id string) (appt model.Appointment, err error) {
	ctx, done := m.begin(ctx, "get", attribute.String("appointment.id", id))
	defer func() { done(err) }()
	return m.load(ctx, id)
}

// List returns one page of appointments matching filter plus the total match count.
func (m *Manager) List(ctx context.Context, filter model.ListFilter) (appts []model.Appointment, total int, err error) {
	ctx, done := m.begin(ctx, "list")
	defer func() { done(err) }()

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperr.Validation("unknown status %q", filter.Status)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, 0, apperr.Validation("date range end is before its start")
	}
	appts, total, err = m.store.List(ctx, filter.Normalize())
	if err != nil {
		return nil, 0, apperr.Storage(err, "list appointments")
	}
	return appts, total, nil
}

func (m *Manager) load(ctx context.Context, id string) (model.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return model.Appointment{}, apperr.Validation("appointment id is required")
	}
	appt, err := m.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, m.storeError(err, "load appointment")
	}
	return appt, nil
}

func (m *Manager) requirePatient(ctx context.Context, id string) error {
	ok, err := m.patients.PatientExists(ctx, id)
	if err != nil {
		return apperr.Storage(err, "look up patient")
	}
	if !ok {
		return apperr.NotFound("patient %s not found or inactive", id)
	}
	return nil
}

func (m *Manager) requireProvider(ctx context.Context, id string) error {
	ok, err := m.providers.ProviderExists(ctx, id)
	if err != nil {
		return apperr.Storage(err, "look up provider")
	}
	if !ok {
		return apperr.NotFound("provider %s not found or inactive", id)
	}
	return nil
}

func (m *Manager) checkConflict(ctx context.Context, providerID string, date time.Time, start, end model.Clock, excludeID string) error {
	existing, err := m.store.FindActiveByProviderAndDate(ctx, providerID, date)
	if err != nil {
		return apperr.Storage(err, "find appointments")
	}
	if availability.HasConflict(existing, availability.Interval{Start: start, End: end}, excludeID) {
		return apperr.Conflict("provider %s already has an appointment overlapping %s %s-%s",
			providerID, model.FormatDate(date), start, end)
	}
	return nil
}

// storeError maps store sentinels onto error kinds.
func (m *Manager) storeError(err error, action string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &apperr.Error{Kind: apperr.KindNotFound, Message: "appointment not found", Err: err}
	case errors.Is(err, storage.ErrConflict):
		return &apperr.Error{Kind: apperr.KindConflict, Message: "overlapping appointment already booked", Err: err}
	case errors.Is(err, storage.ErrCompleted):
		return &apperr.Error{Kind: apperr.KindInvalidState, Message: "appointment is completed", Err: err}
	}
	return apperr.Storage(err, action)
}

func validateInterval(start, end model.Clock) error {
	if !start.Valid() || !end.Valid() {
		return apperr.Validation("times must fall within the day")
	}
	if start >= end {
		return apperr.Validation("start time must be before end time")
	}
	return nil
}

// begin starts the operation span and returns the function that closes it and records metrics.
func (m *Manager) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "lifecycle."+op, trace.WithAttributes(attrs...))
	started := m.now()
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			kind := apperr.KindOf(err)
			outcome = string(kind)
			span.SetAttributes(attribute.String("error.kind", outcome))
			if kind == apperr.KindStorage {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				m.logger.Error("appointment operation failed", "operation", op, "err", err)
			} else if kind == apperr.KindConflict {
				m.logger.Warn("appointment conflict", "operation", op, "err", err)
			}
		}
		if m.metrics != nil {
			m.metrics.ObserveOperation(op, outcome, m.now().Sub(started).Seconds())
		}
		span.End()
	}
}
