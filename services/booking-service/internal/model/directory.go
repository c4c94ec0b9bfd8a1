package model

import "time"

type EntityStatus string

const (
	EntityActive   EntityStatus = "active"
	EntityInactive EntityStatus = "inactive"
	EntityDeleted  EntityStatus = "deleted"
)

type Provider struct {
	ID           string
	Name         string
	Status       EntityStatus
	WorkingHours WorkingHours
}

type Patient struct {
	ID     string
	Name   string
	Status EntityStatus
}

type Location struct {
	ID     string
	Name   string
	Status EntityStatus
}

// DayHours is one weekday of a working-hours descriptor. The zero value is a closed day.
type DayHours struct {
	Working bool  `json:"working"`
	Open    Clock `json:"open"`
	Close   Clock `json:"close"`
}

// WorkingHours is indexed by time.Weekday.
type WorkingHours [7]DayHours

func (w WorkingHours) For(day time.Weekday) DayHours {
	return w[day]
}

// DefaultWorkingHours is Monday to Friday, 09:00 to 17:00.
func DefaultWorkingHours() WorkingHours {
	var w WorkingHours
	for d := time.Monday; d <= time.Friday; d++ {
		w[d] = DayHours{Working: true, Open: NewClock(9, 0), Close: NewClock(17, 0)}
	}
	return w
}
