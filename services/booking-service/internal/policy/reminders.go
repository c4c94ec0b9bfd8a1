package policy

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Reminders decides how long before an appointment its reminders fire.
type Reminders interface {
	ReminderOffsets(ctx context.Context, providerID string) ([]time.Duration, error)
}

type staticReminders struct {
	offsets []time.Duration
}

func NewStaticReminders(offsets []time.Duration) Reminders {
	return &staticReminders{offsets: offsets}
}

func (p *staticReminders) ReminderOffsets(_ context.Context, _ string) ([]time.Duration, error) {
	return p.offsets, nil
}

// ParseReminderOffsets parses a comma separated list of minutes, e.g. "1440,60". Invalid or
// non-positive entries are returned in skipped; an empty result falls back to 24h.
func ParseReminderOffsets(raw string) (offsets []time.Duration, skipped []string) {
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			skipped = append(skipped, part)
			continue
		}
		offsets = append(offsets, time.Duration(mins)*time.Minute)
	}
	if len(offsets) == 0 {
		offsets = []time.Duration{24 * time.Hour}
	}
	return offsets, skipped
}
