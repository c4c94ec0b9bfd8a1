package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

const (
	EventAppointmentBooked        = "clinic.appointment.booked.v1"
	EventAppointmentRescheduled   = "clinic.appointment.rescheduled.v1"
	EventAppointmentStatusChanged = "clinic.appointment.status_changed.v1"
	EventAppointmentDeleted       = "clinic.appointment.deleted.v1"

	AggregateAppointment = "appointment"
)

// Event is the envelope written to outbox_events. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type appointmentPayload struct {
	AppointmentID string   `json:"appointment_id"`
	PatientID     string   `json:"patient_id"`
	ProviderID    string   `json:"provider_id"`
	LocationID    string   `json:"location_id,omitempty"`
	RoomID        string   `json:"room_id,omitempty"`
	ServiceID     string   `json:"service_id,omitempty"`
	Date          string   `json:"date"`
	StartTime     string   `json:"start_time"`
	EndTime       string   `json:"end_time"`
	Status        string   `json:"status"`
	RemindAt      []string `json:"remind_at,omitempty"`
}

// NewAppointmentEvent snapshots appt into an event of the given type.
func NewAppointmentEvent(eventType string, appt model.Appointment, remindAt []time.Time) (Event, error) {
	p := appointmentPayload{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		ProviderID:    appt.ProviderID,
		LocationID:    appt.LocationID,
		RoomID:        appt.RoomID,
		ServiceID:     appt.ServiceID,
		Date:          model.FormatDate(appt.Date),
		StartTime:     appt.StartTime.String(),
		EndTime:       appt.EndTime.String(),
		Status:        string(appt.Status),
	}
	for _, t := range remindAt {
		p.RemindAt = append(p.RemindAt, t.UTC().Format(time.RFC3339))
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateAppointment,
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

// StartsAt is the appointment's absolute start in UTC.
func StartsAt(appt model.Appointment) time.Time {
	return model.DateOf(appt.Date).Add(time.Duration(appt.StartTime) * time.Minute)
}

// ReminderTimes returns start-offset for every offset that is still in the future at now.
func ReminderTimes(appt model.Appointment, offsets []time.Duration, now time.Time) []time.Time {
	start := StartsAt(appt)
	var out []time.Time
	for _, off := range offsets {
		at := start.Add(-off)
		if at.Before(now) {
			continue
		}
		out = append(out, at)
	}
	return out
}
