package model

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// ErrInvalidRange is returned when a range does not end after it starts.
var ErrInvalidRange = errors.New("end date must be after start date")

// DateRange is an inclusive span of calendar days [Start, End].
type DateRange struct {
	Start civil.Date `json:"startDate"`
	End   civil.Date `json:"endDate"`
}

// NewDateRange builds a reservation range. End must be strictly after Start.
func NewDateRange(start, end civil.Date) (DateRange, error) {
	if !start.IsValid() || !end.IsValid() {
		return DateRange{}, fmt.Errorf("invalid date")
	}
	if !end.After(start) {
		return DateRange{}, ErrInvalidRange
	}
	return DateRange{Start: start, End: end}, nil
}

// Overlaps reports whether r and o share at least one calendar day.
// Both ends are inclusive, so a range ending on D conflicts with one starting on D.
func (r DateRange) Overlaps(o DateRange) bool {
	return !r.Start.After(o.End) && !r.End.Before(o.Start)
}

func (r DateRange) String() string {
	return r.Start.String() + ".." + r.End.String()
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: expected %s", s, DateLayout)
	}
	return d, nil
}

// MonthsBetween counts whole calendar months from start to end with a
// minimum of one. 2025-01-01..2025-03-01 is 2; 2025-03-02..2025-04-30 is 1.
func MonthsBetween(start, end civil.Date) int {
	months := (end.Year-start.Year)*12 + int(end.Month) - int(start.Month)
	if end.Day < start.Day {
		months--
	}
	if months < 1 {
		return 1
	}
	return months
}
