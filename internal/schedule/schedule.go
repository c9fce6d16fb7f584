// Package schedule runs jobs on an iCalendar RRULE.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/teambition/rrule-go"
)

// ErrExhausted is returned by Run when the rule has no further occurrences.
var ErrExhausted = errors.New("schedule has no more occurrences")

// Schedule is a parsed recurrence rule anchored at a start time.
type Schedule struct {
	rule *rrule.RRule
}

// Parse reads an RRULE such as "FREQ=DAILY;BYHOUR=8;BYMINUTE=0;BYSECOND=0".
// BYHOUR and friends are interpreted in start's location.
func Parse(text string, start time.Time) (*Schedule, error) {
	rule, err := rrule.StrToRRule(text)
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", text, err)
	}
	rule.DTStart(start.Truncate(time.Second))
	return &Schedule{rule: rule}, nil
}

// Next returns the first occurrence strictly after t, or the zero time.
func (s *Schedule) Next(t time.Time) time.Time {
	return s.rule.After(t, false)
}

// Run calls job at every occurrence until ctx is done. Job errors are
// logged and do not stop the loop.
func Run(ctx context.Context, s *Schedule, job func(context.Context) error, log *logrus.Logger) error {
	for {
		next := s.Next(time.Now())
		if next.IsZero() {
			return ErrExhausted
		}
		log.WithField("next_run", next.Format(time.RFC3339)).Debug("schedule: waiting")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		started := time.Now()
		if err := job(ctx); err != nil {
			log.WithError(err).Error("schedule: job failed")
			continue
		}
		log.WithField("took", time.Since(started).String()).Info("schedule: job finished")
	}
}
