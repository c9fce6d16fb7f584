package model

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestNewDateRange_RejectsNonIncreasing(t *testing.T) {
	_, err := NewDateRange(date(t, "2025-03-01"), date(t, "2025-03-01"))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = NewDateRange(date(t, "2025-03-02"), date(t, "2025-03-01"))
	assert.ErrorIs(t, err, ErrInvalidRange)

	r, err := NewDateRange(date(t, "2025-03-01"), date(t, "2025-03-02"))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01..2025-03-02", r.String())
}

func TestOverlaps_Inclusive(t *testing.T) {
	base := DateRange{Start: date(t, "2025-01-01"), End: date(t, "2025-03-01")}

	cases := []struct {
		name       string
		start, end string
		want       bool
	}{
		{"inside", "2025-02-15", "2025-02-20", true},
		{"touching end", "2025-03-01", "2025-03-10", true},
		{"touching start", "2024-12-01", "2025-01-01", true},
		{"covering", "2024-12-01", "2025-04-01", true},
		{"day after", "2025-03-02", "2025-04-30", false},
		{"day before", "2024-12-01", "2024-12-31", false},
		{"single day inside", "2025-02-01", "2025-02-01", true},
		{"single day on boundary", "2025-03-01", "2025-03-01", true},
		{"single day outside", "2025-03-02", "2025-03-02", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := DateRange{Start: date(t, tc.start), End: date(t, tc.end)}
			assert.Equal(t, tc.want, base.Overlaps(c))
			assert.Equal(t, tc.want, c.Overlaps(base), "overlap must be symmetric")
		})
	}
}

func TestMonthsBetween(t *testing.T) {
	assert.Equal(t, 2, MonthsBetween(date(t, "2025-01-01"), date(t, "2025-03-01")))
	assert.Equal(t, 1, MonthsBetween(date(t, "2025-03-02"), date(t, "2025-04-30")))
	assert.Equal(t, 2, MonthsBetween(date(t, "2025-03-02"), date(t, "2025-05-02")))
	assert.Equal(t, 1, MonthsBetween(date(t, "2025-01-10"), date(t, "2025-01-20")))
	assert.Equal(t, 12, MonthsBetween(date(t, "2024-09-01"), date(t, "2025-09-01")))
}

func TestParseDate_Invalid(t *testing.T) {
	_, err := ParseDate("03/01/2025")
	assert.Error(t, err)
}
