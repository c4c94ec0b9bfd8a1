package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/policy"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func sampleAppointment() model.Appointment {
	return model.Appointment{
		ID:         "appt-1",
		PatientID:  "pt-1",
		ProviderID: "prov-1",
		Date:       day,
		StartTime:  model.NewClock(9, 0),
		EndTime:    model.NewClock(9, 30),
		Status:     model.StatusScheduled,
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestReminderTimesSkipsPast(t *testing.T) {
	appt := sampleAppointment()
	now := day.Add(8*time.Hour + 30*time.Minute)
	got := ReminderTimes(appt, []time.Duration{24 * time.Hour, 15 * time.Minute}, now)
	require.Len(t, got, 1)
	assert.Equal(t, day.Add(8*time.Hour+45*time.Minute), got[0])
	assert.Equal(t, day.Add(9*time.Hour), StartsAt(appt))
}

func TestNewAppointmentEventPayload(t *testing.T) {
	evt, err := NewAppointmentEvent(EventAppointmentBooked, sampleAppointment(), []time.Time{day.Add(8 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, AggregateAppointment, evt.AggregateType)
	assert.Equal(t, "appt-1", evt.AggregateID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, "2026-03-02", payload["date"])
	assert.Equal(t, "09:00", payload["start_time"])
	assert.Equal(t, []any{"2026-03-02T08:00:00Z"}, payload["remind_at"])
	assert.NotContains(t, payload, "location_id")
}

func TestInsertAppointmentEventAddsReminders(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(policy.NewStaticReminders([]time.Duration{time.Hour}), slog.New(slog.NewTextHandler(io.Discard, nil)))
	repo.now = func() time.Time { return day }

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("appointment", "appt-1", EventAppointmentBooked, pgxmock.AnyArg(), "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, repo.InsertAppointmentEvent(context.Background(), tx, EventAppointmentBooked, sampleAppointment()))
	require.NoError(t, tx.Commit(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(nil, nil)
	pub := NewPublisher(mock, repo, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, PublisherConfig{Brokers: "kafka:9092", BatchSize: 10})
	now := time.Now().UTC()
	traceparent := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_id").WithArgs(10).WillReturnRows(
		pgxmock.NewRows([]string{"id", "event_id", "aggregate_type", "aggregate_id", "event_type", "payload", "traceparent", "tracestate", "created_at"}).
			AddRow(int64(1), "evt-1", "appointment", "appt-1", EventAppointmentBooked, []byte(`{"a":1}`), traceparent, "", now).
			AddRow(int64(2), "evt-2", "appointment", "appt-1", EventAppointmentDeleted, []byte(`{"a":2}`), "", "", now))
	mock.ExpectExec("UPDATE outbox_events").WithArgs([]int64{1, 2}).WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	w := &fakeWriter{}
	n, err := pub.publishBatch(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, w.msgs, 2)

	first := w.msgs[0]
	assert.Equal(t, EventAppointmentBooked, first.Topic)
	assert.Equal(t, "appt-1", string(first.Key))
	assert.Contains(t, first.Headers, kafka.Header{Key: kafkax.HeaderEventID, Value: []byte("evt-1")})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishBatchWriterFailureKeepsRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pub := NewPublisher(mock, NewRepository(nil, nil), slog.New(slog.NewTextHandler(io.Discard, nil)), nil, PublisherConfig{Brokers: "kafka:9092"})
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_id").WithArgs(50).WillReturnRows(
		pgxmock.NewRows([]string{"id", "event_id", "aggregate_type", "aggregate_id", "event_type", "payload", "traceparent", "tracestate", "created_at"}).
			AddRow(int64(7), "evt-7", "appointment", "appt-9", EventAppointmentRescheduled, []byte(`{}`), "", "", now))
	mock.ExpectRollback()

	_, err = pub.publishBatch(context.Background(), &fakeWriter{err: errors.New("broker unavailable")})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublisherDisabledWithoutBrokers(t *testing.T) {
	pub := NewPublisher(nil, NewRepository(nil, nil), slog.New(slog.NewTextHandler(io.Discard, nil)), nil, PublisherConfig{})
	assert.False(t, pub.Enabled())
	pub.Run(context.Background())
}
