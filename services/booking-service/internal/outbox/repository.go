package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/policy"
)

type Repository struct {
	reminders policy.Reminders
	logger    *slog.Logger
	now       func() time.Time
}

func NewRepository(reminders policy.Reminders, logger *slog.Logger) *Repository {
	return &Repository{
		reminders: reminders,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	tc := otelx.Capture(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, tc.Parent, tc.State)
	if err != nil {
		return fmt.Errorf("outbox: insert %s: %w", evt.EventType, err)
	}
	return nil
}

// InsertAppointmentEvent snapshots appt into the outbox. Booked and rescheduled events carry the
// reminder times still ahead of now.
func (r *Repository) InsertAppointmentEvent(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment) error {
	var remindAt []time.Time
	if r.reminders != nil && (eventType == EventAppointmentBooked || eventType == EventAppointmentRescheduled) {
		offsets, err := r.reminders.ReminderOffsets(ctx, appt.ProviderID)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("reminder offsets unavailable; event sent without reminders", "err", err, "appointment_id", appt.ID)
			}
		} else {
			remindAt = ReminderTimes(appt, offsets, r.now())
		}
	}
	evt, err := NewAppointmentEvent(eventType, appt, remindAt)
	if err != nil {
		return fmt.Errorf("outbox: build %s: %w", eventType, err)
	}
	return r.Insert(ctx, tx, evt)
}

type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

func (r *Repository) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rcd Record
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateType, &rcd.AggregateID, &rcd.EventType, &rcd.Payload, &rcd.Traceparent, &rcd.Tracestate, &rcd.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	return records, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
