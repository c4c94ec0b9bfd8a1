package model

import "time"

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// ActiveStatuses are the statuses that occupy a provider's time.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// IsActive reports whether s takes part in conflict checks.
func (s Status) IsActive() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

type Appointment struct {
	ID            string
	PatientID     string
	ProviderID    string
	LocationID    string
	RoomID        string
	ServiceID     string
	Date          time.Time
	StartTime     Clock
	EndTime       Clock
	Status        Status
	Notes         string
	InternalNotes string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Duration is the appointment length in minutes.
func (a Appointment) Duration() int {
	return int(a.EndTime - a.StartTime)
}

// AppointmentUpdate carries the fields a store update changes. Nil fields are left untouched.
type AppointmentUpdate struct {
	ProviderID    *string
	Date          *time.Time
	StartTime     *Clock
	EndTime       *Clock
	Status        *Status
	Notes         *string
	InternalNotes *string
}

// Apply returns a copy of a with u applied.
func (u AppointmentUpdate) Apply(a Appointment) Appointment {
	if u.ProviderID != nil {
		a.ProviderID = *u.ProviderID
	}
	if u.Date != nil {
		a.Date = *u.Date
	}
	if u.StartTime != nil {
		a.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		a.EndTime = *u.EndTime
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.Notes != nil {
		a.Notes = *u.Notes
	}
	if u.InternalNotes != nil {
		a.InternalNotes = *u.InternalNotes
	}
	return a
}

// ChangesCompleted reports whether u would alter a completed appointment in a way that is not
// allowed: moving it or cancelling it. Other status changes stay permitted.
func (u AppointmentUpdate) ChangesCompleted(cur Appointment) bool {
	if cur.Status != StatusCompleted {
		return false
	}
	if u.Status != nil && *u.Status == StatusCancelled {
		return true
	}
	return u.ProviderID != nil || u.Date != nil || u.StartTime != nil || u.EndTime != nil
}

// ListFilter narrows a listing. Zero-valued fields do not filter.
type ListFilter struct {
	ProviderID string
	PatientID  string
	Status     Status
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Normalize clamps Limit and Offset into their accepted ranges.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether a passes every set filter field. From and To are inclusive dates.
func (f ListFilter) Matches(a Appointment) bool {
	if f.ProviderID != "" && a.ProviderID != f.ProviderID {
		return false
	}
	if f.PatientID != "" && a.PatientID != f.PatientID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && a.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.Date.After(f.To) {
		return false
	}
	return true
}

type TimeSlot struct {
	Start    Clock `json:"start"`
	End      Clock `json:"end"`
	Duration int   `json:"duration"`
}
