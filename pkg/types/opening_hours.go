package types

import (
	"fmt"
	"strings"
	"time"
)

const clockLayout = "15:04"

// DayHours is the service window for one weekday, "HH:MM" in the venue's
// timezone. A close time at or before the open time runs past midnight.
type DayHours struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed,omitempty"`
}

// OpeningHours maps lower-case weekday names to their service window. An
// empty map places no restriction.
type OpeningHours map[string]DayHours

// Validate checks weekday keys and clock formats.
func (h OpeningHours) Validate() error {
	for day, hours := range h {
		if _, ok := weekdays[strings.ToLower(day)]; !ok {
			return fmt.Errorf("unknown weekday %q", day)
		}
		if hours.Closed {
			continue
		}
		if _, err := time.Parse(clockLayout, hours.Open); err != nil {
			return fmt.Errorf("%s open time %q must be HH:MM", day, hours.Open)
		}
		if _, err := time.Parse(clockLayout, hours.Close); err != nil {
			return fmt.Errorf("%s close time %q must be HH:MM", day, hours.Close)
		}
	}
	return nil
}

// Covers reports whether [start, end) falls inside a single service window.
// start and end must already be in the venue's timezone.
func (h OpeningHours) Covers(start, end time.Time) bool {
	if len(h) == 0 {
		return true
	}
	for _, day := range []time.Time{start, start.AddDate(0, 0, -1)} {
		open, close, ok := h.Window(day)
		if !ok {
			continue
		}
		if !start.Before(open) && !end.After(close) {
			return true
		}
	}
	return false
}

// Window returns the absolute open/close instants for the service day that
// begins on day's date.
func (h OpeningHours) Window(day time.Time) (time.Time, time.Time, bool) {
	hours, ok := h[strings.ToLower(day.Weekday().String())]
	if !ok || hours.Closed {
		return time.Time{}, time.Time{}, false
	}
	openClock, err := time.Parse(clockLayout, hours.Open)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	closeClock, err := time.Parse(clockLayout, hours.Close)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	y, m, d := day.Date()
	loc := day.Location()
	open := time.Date(y, m, d, openClock.Hour(), openClock.Minute(), 0, 0, loc)
	close := time.Date(y, m, d, closeClock.Hour(), closeClock.Minute(), 0, 0, loc)
	if !close.After(open) {
		close = close.AddDate(0, 0, 1)
	}
	return open, close, true
}

var weekdays = map[string]struct{}{
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {},
	"friday": {}, "saturday": {}, "sunday": {},
}
