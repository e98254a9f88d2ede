// Package civil provides small immutable calendar value types — a
// plain date and a plain time of day, free of time zone and monotonic
// reading baggage. The core pipeline never reasons in time.Time: every
// hard date/time it touches is one of these, so that canonicalization
// and hashing never observe a time zone that crept in by accident.
package civil

import (
	"fmt"
	"time"
)

// Date is a calendar date with no time-of-day or time zone component.
type Date struct {
	Year  int
	Month int
	Day   int
}

// NewDate constructs a Date, normalizing through time.Date so that
// out-of-range components (e.g. day 32) roll over the same way the
// standard library does.
func NewDate(year, month, day int) Date {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// DateFromTime truncates a time.Time to its calendar date in the given location.
func DateFromTime(t time.Time) Date {
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("civil: invalid date %q: %w", s, err)
	}
	return DateFromTime(t), nil
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.toOrdinal() < other.toOrdinal()
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return d.toOrdinal() > other.toOrdinal()
}

// Equal reports whether d and other name the same calendar date.
func (d Date) Equal(other Date) bool {
	return d.Year == other.Year && d.Month == other.Month && d.Day == other.Day
}

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return DateFromTime(t)
}

// Weekday returns the day of week for d.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// IsZero reports whether d is the zero value.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// toOrdinal gives a monotonically increasing comparable value for two dates.
func (d Date) toOrdinal() int {
	return d.Year*10000 + d.Month*100 + d.Day
}

// Time is a time of day with second precision, no date or zone component.
type Time struct {
	Hour   int
	Minute int
	Second int
}

// NewTime constructs a Time of day.
func NewTime(hour, minute, second int) Time {
	return Time{Hour: hour, Minute: minute, Second: second}
}

// String renders the time as HH:MM:SS.
func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// ParseTime parses an HH:MM[:SS] string.
func ParseTime(s string) (Time, error) {
	layouts := []string{"15:04:05", "15:04"}
	var lastErr error
	for _, layout := range layouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			return Time{Hour: parsed.Hour(), Minute: parsed.Minute(), Second: parsed.Second()}, nil
		}
		lastErr = err
	}
	return Time{}, fmt.Errorf("civil: invalid time %q: %w", s, lastErr)
}

// TimeFromTime extracts the time-of-day component from a time.Time.
func TimeFromTime(t time.Time) Time {
	return Time{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

// Equal reports whether t and other name the same time of day.
func (t Time) Equal(other Time) bool {
	return t.Hour == other.Hour && t.Minute == other.Minute && t.Second == other.Second
}

// Before reports whether t is strictly earlier in the day than other.
func (t Time) Before(other Time) bool {
	return t.seconds() < other.seconds()
}

// After reports whether t is strictly later in the day than other.
func (t Time) After(other Time) bool {
	return t.seconds() > other.seconds()
}

// AddMinutes returns the time of day n minutes after t, wrapping at 24h.
func (t Time) AddMinutes(n int) Time {
	total := (t.seconds() + n*60) % 86400
	if total < 0 {
		total += 86400
	}
	return Time{Hour: total / 3600, Minute: (total % 3600) / 60, Second: total % 60}
}

func (t Time) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// IsZero reports whether t is midnight (the zero value).
func (t Time) IsZero() bool {
	return t.Hour == 0 && t.Minute == 0 && t.Second == 0
}

// DateTime combines a Date and Time into a local, zone-qualified instant.
// Zone is an IANA zone name, empty meaning "floating" (no zone attached).
type DateTime struct {
	Date Date
	Time Time
	Zone string
}

// ToStdTime converts to a time.Time in the named zone (UTC if Zone is empty
// or unresolvable).
func (dt DateTime) ToStdTime() time.Time {
	loc := time.UTC
	if dt.Zone != "" {
		if l, err := time.LoadLocation(dt.Zone); err == nil {
			loc = l
		}
	}
	return time.Date(dt.Date.Year, time.Month(dt.Date.Month), dt.Date.Day,
		dt.Time.Hour, dt.Time.Minute, dt.Time.Second, 0, loc)
}

// DateTimeFromTime builds a DateTime from a time.Time, capturing its zone name.
func DateTimeFromTime(t time.Time) DateTime {
	return DateTime{
		Date: DateFromTime(t),
		Time: TimeFromTime(t),
		Zone: t.Location().String(),
	}
}

// Before reports whether dt is strictly earlier than other, compared as
// wall-clock values (zone is not converted — callers normalize to a
// single zone beforehand when that matters).
func (dt DateTime) Before(other DateTime) bool {
	if !dt.Date.Equal(other.Date) {
		return dt.Date.Before(other.Date)
	}
	return dt.Time.Before(other.Time)
}

// Equal reports whether dt and other name the same wall-clock date and time.
func (dt DateTime) Equal(other DateTime) bool {
	return dt.Date.Equal(other.Date) && dt.Time.Equal(other.Time)
}
