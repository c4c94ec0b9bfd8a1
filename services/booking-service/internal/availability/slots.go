package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Interval is a half-open time-of-day range [Start, End).
type Interval struct {
	Start model.Clock
	End   model.Clock
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// HasConflict reports whether candidate overlaps any active appointment in existing, skipping the
// record whose ID equals excludeID. existing is expected to be pre-filtered to one provider and date.
func HasConflict(existing []model.Appointment, candidate Interval, excludeID string) bool {
	for _, a := range existing {
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		if !a.Status.IsActive() {
			continue
		}
		if candidate.Overlaps(Interval{Start: a.StartTime, End: a.EndTime}) {
			return true
		}
	}
	return false
}

// GenerateSlots walks the day's working window in slotMinutes steps from open and returns every
// full-length slot that does not overlap an active appointment dated date. A trailing partial slot
// is dropped.
func GenerateSlots(day model.DayHours, slotMinutes int, existing []model.Appointment, date time.Time) []model.TimeSlot {
	if !day.Working || slotMinutes <= 0 || day.Close <= day.Open {
		return []model.TimeSlot{}
	}

	busy := busyIntervals(existing, date)
	step := model.Clock(slotMinutes)
	slots := []model.TimeSlot{}
	for t := day.Open; t+step <= day.Close; t += step {
		if overlapsAny(Interval{Start: t, End: t + step}, busy) {
			continue
		}
		slots = append(slots, model.TimeSlot{Start: t, End: t + step, Duration: slotMinutes})
	}
	return slots
}

func busyIntervals(existing []model.Appointment, date time.Time) []Interval {
	day := model.DateOf(date)
	var busy []Interval
	for _, a := range existing {
		if !a.Status.IsActive() || !model.DateOf(a.Date).Equal(day) {
			continue
		}
		busy = append(busy, Interval{Start: a.StartTime, End: a.EndTime})
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start < busy[j].Start })
	return busy
}

func overlapsAny(slot Interval, busy []Interval) bool {
	for _, b := range busy {
		if b.Start >= slot.End {
			return false
		}
		if slot.Overlaps(b) {
			return true
		}
	}
	return false
}
