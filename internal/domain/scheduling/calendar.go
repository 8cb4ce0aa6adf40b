package scheduling

import (
	"fmt"
	"strings"
	"time"
)

// DoctorBuffer is the half-width of the window around a candidate time in
// which another appointment for the same doctor is a conflict. Appointments
// exactly 30 minutes apart do not conflict.
const DoctorBuffer = 29 * time.Minute

const dateLayout = "2006-01-02"

// Local (zone-less) layouts are read in the clinic's time zone.
var localDateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseScheduledAt parses an ISO-8601 datetime. Values carrying an offset are
// converted into loc; zone-less values are interpreted in loc.
func ParseScheduledAt(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localDateTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

// ParseDate parses a YYYY-MM-DD civil date as midnight in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return t, nil
}

// DoctorWindow returns the inclusive buffer window around t.
func DoctorWindow(t time.Time) (from, to time.Time) {
	return t.Add(-DoctorBuffer), t.Add(DoctorBuffer)
}

// DayBounds returns the civil day containing t in loc as [start, next start).
func DayBounds(t time.Time, loc *time.Location) (start, end time.Time) {
	t = t.In(loc)
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
