package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

type dbtx interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BookingRepository stores appointments in PostgreSQL. Every write appends an outbox event in the
// same transaction, and the appointments_no_overlap exclusion constraint rejects overlapping active
// appointments even when two writers race.
type BookingRepository struct {
	db     dbtx
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	if pool == nil {
		panic("storage: db pool required")
	}
	return newBookingRepositoryWith(pool, outboxRepo)
}

func newBookingRepositoryWith(conn dbtx, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{db: conn, outbox: outboxRepo}
}

const appointmentColumns = `id, patient_id, provider_id, COALESCE(location_id, ''), COALESCE(room_id, ''),
	COALESCE(service_id, ''), appointment_date, start_minute, end_minute, status, notes, internal_notes,
	created_at, updated_at`

func (r *BookingRepository) Insert(ctx context.Context, appt *model.Appointment) (string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("storage: begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec := *appt
	rec.Date = model.DateOf(rec.Date)
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(patient_id, provider_id, location_id, room_id, service_id, appointment_date,
			 start_minute, end_minute, status, notes, internal_notes)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`, rec.PatientID, rec.ProviderID, rec.LocationID, rec.RoomID, rec.ServiceID, rec.Date,
		int(rec.StartTime), int(rec.EndTime), string(rec.Status), rec.Notes, rec.InternalNotes,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("storage: insert appointment: %w", translate(err))
	}

	if err := r.writeEvent(ctx, tx, outbox.EventAppointmentBooked, rec); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("storage: commit insert: %w", translate(err))
	}

	*appt = rec
	return rec.ID, nil
}

func (r *BookingRepository) Update(ctx context.Context, id string, upd model.AppointmentUpdate) (model.Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("storage: begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return model.Appointment{}, fmt.Errorf("storage: load appointment %s: %w", id, translate(err))
	}
	// The row lock above keeps a concurrent completion from slipping past this check.
	if upd.ChangesCompleted(cur) {
		return model.Appointment{}, ErrCompleted
	}

	next := upd.Apply(cur)
	next.Date = model.DateOf(next.Date)
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET provider_id = $2,
			appointment_date = $3,
			start_minute = $4,
			end_minute = $5,
			status = $6,
			notes = $7,
			internal_notes = $8,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, next.ProviderID, next.Date, int(next.StartTime), int(next.EndTime), string(next.Status),
		next.Notes, next.InternalNotes,
	).Scan(&next.UpdatedAt)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("storage: update appointment %s: %w", id, translate(err))
	}

	eventType := outbox.EventAppointmentRescheduled
	if upd.Status != nil && *upd.Status != cur.Status {
		eventType = outbox.EventAppointmentStatusChanged
	}
	if err := r.writeEvent(ctx, tx, eventType, next); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, fmt.Errorf("storage: commit update: %w", translate(err))
	}
	return next, nil
}

func (r *BookingRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deleted, err := scanAppointment(tx.QueryRow(ctx, `
		DELETE FROM appointments
		WHERE id = $1 AND status <> 'completed'
		RETURNING `+appointmentColumns, id))
	if IsNotFound(err) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("storage: delete appointment %s: %w", id, err)
		}
		if exists {
			return ErrCompleted
		}
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: delete appointment %s: %w", id, translate(err))
	}
	if err := r.writeEvent(ctx, tx, outbox.EventAppointmentDeleted, deleted); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit delete: %w", err)
	}
	return nil
}

func (r *BookingRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := scanAppointment(r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		return model.Appointment{}, fmt.Errorf("storage: get appointment %s: %w", id, translate(err))
	}
	return appt, nil
}

func (r *BookingRepository) FindActiveByProviderAndDate(ctx context.Context, providerID string, date time.Time) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND appointment_date = $2
			AND status IN ('scheduled', 'confirmed', 'in_progress')
		ORDER BY start_minute ASC
	`, providerID, model.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("storage: find active appointments: %w", err)
	}
	return collectAppointments(rows)
}

// List applies every filter through static predicates; empty values disable a predicate.
func (r *BookingRepository) List(ctx context.Context, filter model.ListFilter) ([]model.Appointment, int, error) {
	filter = filter.Normalize()
	args := []any{filter.ProviderID, filter.PatientID, string(filter.Status), nullableDate(filter.From), nullableDate(filter.To)}

	var total int
	if err := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE ($1 = '' OR provider_id = $1)
			AND ($2 = '' OR patient_id = $2)
			AND ($3 = '' OR status = $3)
			AND ($4::date IS NULL OR appointment_date >= $4)
			AND ($5::date IS NULL OR appointment_date <= $5)
	`, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count appointments: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR provider_id = $1)
			AND ($2 = '' OR patient_id = $2)
			AND ($3 = '' OR status = $3)
			AND ($4::date IS NULL OR appointment_date >= $4)
			AND ($5::date IS NULL OR appointment_date <= $5)
		ORDER BY appointment_date ASC, start_minute ASC, id ASC
		LIMIT $6 OFFSET $7
	`, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list appointments: %w", err)
	}
	appts, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, err
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	return appts, total, nil
}

func (r *BookingRepository) writeEvent(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment) error {
	if r.outbox == nil {
		return nil
	}
	return r.outbox.InsertAppointmentEvent(ctx, tx, eventType, appt)
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		appt       model.Appointment
		start, end int
		status     string
	)
	err := row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.ProviderID,
		&appt.LocationID,
		&appt.RoomID,
		&appt.ServiceID,
		&appt.Date,
		&start,
		&end,
		&status,
		&appt.Notes,
		&appt.InternalNotes,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.StartTime = model.Clock(start)
	appt.EndTime = model.Clock(end)
	appt.Status = model.Status(status)
	appt.Date = model.DateOf(appt.Date)
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan appointment: %w", err)
		}
		appts = append(appts, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate appointments: %w", err)
	}
	return appts, nil
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	d := model.DateOf(t)
	return &d
}
