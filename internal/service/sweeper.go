package service

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/model"
	"github.com/iliyamo/locker-rental/internal/notify"
	"github.com/iliyamo/locker-rental/internal/repository"
)

// SweeperConfig sets the calendar the sweeps run in and how long a pending
// reservation may wait for payment.
type SweeperConfig struct {
	Location   *time.Location
	PendingTTL time.Duration
}

// Sweeper runs the recurring maintenance passes. Each pass is idempotent.
type Sweeper struct {
	store      repository.ReservationStore
	waitlist   WaitlistDirectory
	notifier   notify.Notifier
	loc        *time.Location
	pendingTTL time.Duration
	log        *logrus.Logger
	now        func() time.Time
}

func NewSweeper(store repository.ReservationStore, waitlist WaitlistDirectory, notifier notify.Notifier, cfg SweeperConfig, log *logrus.Logger) *Sweeper {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	ttl := cfg.PendingTTL
	if ttl <= 0 {
		ttl = 25 * time.Hour
	}
	return &Sweeper{store: store, waitlist: waitlist, notifier: notifier, loc: loc, pendingTTL: ttl, log: log, now: time.Now}
}

func (s *Sweeper) today() civil.Date {
	return civil.DateOf(s.now().In(s.loc))
}

// ExpireEndedReservations completes every active rental whose last day is
// today or earlier and returns the rentals it changed.
func (s *Sweeper) ExpireEndedReservations(ctx context.Context) ([]model.RentalRecord, error) {
	done, err := s.store.CompleteEnded(ctx, s.today())
	if err != nil {
		return nil, fmt.Errorf("complete ended rentals: %w", err)
	}
	return done, nil
}

// FindReservationsExpiringTomorrow lists active rentals ending tomorrow.
func (s *Sweeper) FindReservationsExpiringTomorrow(ctx context.Context) ([]model.RentalRecord, error) {
	recs, err := s.store.ListActiveEndingOn(ctx, s.today().AddDays(1))
	if err != nil {
		return nil, fmt.Errorf("list rentals ending tomorrow: %w", err)
	}
	return recs, nil
}

// ExpireStalePending expires pending reservations whose payment session
// can no longer be completed.
func (s *Sweeper) ExpireStalePending(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireStalePending(ctx, s.now().Add(-s.pendingTTL))
	if err != nil {
		return 0, fmt.Errorf("expire stale pending: %w", err)
	}
	if n > 0 {
		s.log.WithField("count", n).Info("sweep: expired stale pending reservations")
	}
	return n, nil
}

// ExpiryReport summarizes a RunExpiry pass.
type ExpiryReport struct {
	Expired  int `json:"expired"`
	Notified int `json:"notified"`
}

// RunExpiry completes ended rentals and tells the admin about each locker
// that became free.
func (s *Sweeper) RunExpiry(ctx context.Context) (ExpiryReport, error) {
	done, err := s.ExpireEndedReservations(ctx)
	if err != nil {
		return ExpiryReport{}, err
	}
	rep := ExpiryReport{Expired: len(done)}
	if len(done) == 0 {
		return rep, nil
	}
	s.log.WithField("count", len(done)).Info("sweep: completed ended rentals")

	count, err := s.waitlist.Count(ctx)
	if err != nil {
		s.log.WithError(err).Warn("sweep: waitlist count failed")
	}
	for _, rec := range done {
		ok := s.notifier.LockerAvailable(ctx, notify.LockerAvailableParams{
			LockerNumber:        rec.LockerNumber,
			PreviousRenter:      rec.StudentName,
			PreviousRenterEmail: rec.ContactEmail(),
			EndDate:             rec.EndDate,
			WaitlistCount:       count,
		})
		if ok {
			rep.Notified++
		}
	}
	return rep, nil
}

// ReminderReport summarizes a SendExpiryReminders pass.
type ReminderReport struct {
	Found int `json:"found"`
	Sent  int `json:"sent"`
}

// SendExpiryReminders emails every renter whose rental ends tomorrow.
func (s *Sweeper) SendExpiryReminders(ctx context.Context) (ReminderReport, error) {
	recs, err := s.FindReservationsExpiringTomorrow(ctx)
	if err != nil {
		return ReminderReport{}, err
	}
	rep := ReminderReport{Found: len(recs)}
	for _, rec := range recs {
		to := rec.ContactEmail()
		if to == "" {
			continue
		}
		name := rec.StudentName
		if name == "" {
			name = "Student"
		}
		if s.notifier.ExpiryReminder(ctx, notify.RentalParams{
			To:           to,
			Name:         name,
			LockerNumber: rec.LockerNumber,
			StartDate:    rec.StartDate,
			EndDate:      rec.EndDate,
		}) {
			rep.Sent++
		}
	}
	return rep, nil
}
