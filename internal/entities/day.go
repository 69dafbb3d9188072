package entities

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DayLayout is the wire and storage format of a Day
const DayLayout = "2006-01-02"

// Supported years. Every instant inside this range fits in int64 unix nanoseconds.
const (
	MinYear = 1900
	MaxYear = 2200
)

// ErrDayOutOfRange is returned for days outside [MinYear, MaxYear]
var ErrDayOutOfRange = errors.New("day out of supported range")

// Day is a civil calendar date with no zone attached.
// Instants are only derived from it together with the reference location.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDay normalizes the given date (2024-01-32 becomes 2024-02-01)
func NewDay(year int, month time.Month, day int) Day {
	t := time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	return Day{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// DayOf returns the calendar day t falls on in loc
func DayOf(t time.Time, loc *time.Location) Day {
	t = t.In(loc)
	return Day{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ParseDay parses a YYYY-MM-DD string
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	d := Day{Year: t.Year(), Month: t.Month(), Day: t.Day()}
	if err := d.Validate(); err != nil {
		return Day{}, err
	}
	return d, nil
}

// Validate rejects days whose year lies outside [MinYear, MaxYear]
func (d Day) Validate() error {
	if d.Year < MinYear || d.Year > MaxYear {
		return fmt.Errorf("%w: %s", ErrDayOutOfRange, d)
	}
	return nil
}

// Start returns the first instant of the day in loc
func (d Day) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Bounds returns the half-open interval [start, end) covering the day in loc
func (d Day) Bounds(loc *time.Location) (time.Time, time.Time) {
	return d.Start(loc), d.Next().Start(loc)
}

// Next returns the following calendar day
func (d Day) Next() Day {
	return NewDay(d.Year, d.Month, d.Day+1)
}

// Prev returns the preceding calendar day
func (d Day) Prev() Day {
	return NewDay(d.Year, d.Month, d.Day-1)
}

// IsZero reports whether d is the zero Day
func (d Day) IsZero() bool {
	return d == Day{}
}

// Before reports whether d is earlier than other
func (d Day) Before(other Day) bool {
	return d.String() < other.String()
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalJSON writes the zero Day as null
func (d Day) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Day{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
