package visaslot

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date layout used by the schedule feed and
// by threshold configuration.
const DateLayout = "2006-01-02"

// FacilityRange is the inclusive, ascending set of facility identifiers
// scanned on every cycle.
type FacilityRange struct {
	First int
	Last  int
}

// NewFacilityRange creates a [FacilityRange], rejecting inverted or
// negative ranges.
func NewFacilityRange(first, last int) (FacilityRange, error) {
	r := FacilityRange{First: first, Last: last}
	if err := r.Validate(); err != nil {
		return FacilityRange{}, err
	}
	return r, nil
}

// Validate reports whether the range is usable.
func (r FacilityRange) Validate() error {
	if r.First < 0 {
		return fmt.Errorf("first facility id must not be negative, got %d", r.First)
	}
	if r.First > r.Last {
		return fmt.Errorf("first facility id %d is after last facility id %d", r.First, r.Last)
	}
	return nil
}

// Len returns the number of facilities in the range.
func (r FacilityRange) Len() int {
	return r.Last - r.First + 1
}

// IDs returns every identifier in the range in ascending order.
func (r FacilityRange) IDs() []int {
	if r.First > r.Last {
		return nil
	}
	ids := make([]int, 0, r.Len())
	for id := r.First; id <= r.Last; id++ {
		ids = append(ids, id)
	}
	return ids
}

// ParseDate parses an ISO calendar date. A trailing time component
// ("2024-05-20T00:00:00Z" or "2024-05-20 08:00") is ignored.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// MustParseDate is like [ParseDate] but panics on invalid input.
//
// Use it for constant dates in tests and examples.
func MustParseDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic("visaslot: " + err.Error())
	}
	return t
}

// calendarDate truncates t to midnight UTC of its own calendar day.
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
