package daterange

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidDay      = errors.New("daterange: date must be a YYYY-MM-DD value")
	ErrInvalidInterval = errors.New("daterange: interval end must not precede start")
)

const dayLayout = "2006-01-02"

// Day is a calendar day counted from the Unix epoch, UTC. Availability
// arithmetic never touches time-of-day or timezones: wire dates are parsed
// into Day at the boundary and stay that way.
type Day int

// ParseDay parses a YYYY-MM-DD string into a Day.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	return FromTime(t), nil
}

// FromTime truncates t to its UTC calendar day.
func FromTime(t time.Time) Day {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return Day(midnight.Unix() / 86400)
}

// Time returns UTC midnight of the day.
func (d Day) Time() time.Time {
	return time.Unix(int64(d)*86400, 0).UTC()
}

func (d Day) String() string {
	return d.Time().Format(dayLayout)
}

func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Day) UnmarshalText(data []byte) error {
	parsed, err := ParseDay(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Interval is a closed date range: every day from Start through End
// inclusive is occupied.
type Interval struct {
	Start Day
	End   Day
}

func NewInterval(start, end Day) (Interval, error) {
	if end < start {
		return Interval{}, ErrInvalidInterval
	}
	return Interval{Start: start, End: end}, nil
}

func (iv Interval) Contains(d Day) bool {
	return iv.Start <= d && d <= iv.End
}

func (iv Interval) Days() int {
	return int(iv.End-iv.Start) + 1
}

func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start <= other.End && other.Start <= iv.End
}

// Adjacent reports whether the two intervals are separated by zero free
// days, e.g. [1,5] and [6,10].
func (iv Interval) Adjacent(other Interval) bool {
	return iv.End+1 == other.Start || other.End+1 == iv.Start
}

// Merge combines overlapping or adjacent intervals into their union.
func (iv Interval) Merge(other Interval) (Interval, bool) {
	if !(iv.Overlaps(other) || iv.Adjacent(other)) {
		return Interval{}, false
	}
	merged := iv
	if other.Start < merged.Start {
		merged.Start = other.Start
	}
	if other.End > merged.End {
		merged.End = other.End
	}
	return merged, true
}

// IntersectsStay reports whether the interval occupies any night of the
// half-open stay [checkIn, checkOut). The checkout day itself is free to
// coincide with another stay's check-in.
func (iv Interval) IntersectsStay(checkIn, checkOut Day) bool {
	if checkOut <= checkIn {
		return false
	}
	return checkIn <= iv.End && iv.Start <= checkOut-1
}

func (iv Interval) String() string {
	return iv.Start.String() + ".." + iv.End.String()
}
