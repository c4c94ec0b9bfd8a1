package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	MinutesPerDay = 24 * 60
	DateLayout    = "2006-01-02"
)

// Clock is a time of day in minutes since midnight. 1440 is accepted as end of day.
type Clock int

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// ParseClock accepts "HH:MM" and "HH:MM:SS" (hour may be one digit); seconds are truncated.
// Anything else, including trailing text, is an error.
func ParseClock(s string) (Clock, error) {
	parts := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if parts == nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, _ := strconv.Atoi(parts[1])
	m, _ := strconv.Atoi(parts[2])
	sec := 0
	if parts[3] != "" {
		sec, _ = strconv.Atoi(parts[3])
	}
	if h > 24 || m > 59 || sec > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	c := NewClock(h, m)
	if !c.Valid() || (c == MinutesPerDay && sec != 0) {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return c, nil
}

func (c Clock) Valid() bool {
	return c >= 0 && c <= MinutesPerDay
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseDate parses "YYYY-MM-DD" into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
