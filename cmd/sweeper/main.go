// Command sweeper runs the rental expiry jobs, once or on an RRULE
// schedule.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/app"
	"github.com/iliyamo/locker-rental/internal/config"
	"github.com/iliyamo/locker-rental/internal/logger"
	"github.com/iliyamo/locker-rental/internal/schedule"
	"github.com/iliyamo/locker-rental/internal/service"
)

func main() {
	once := flag.Bool("once", false, "run the jobs once and exit")
	rule := flag.String("rrule", "", "RRULE schedule, overrides SWEEP_RRULE")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer a.Close()

	job := sweep(a.Sweeper(), log)
	if *once {
		if err := job(ctx); err != nil {
			log.WithError(err).Fatal("sweep failed")
		}
		return
	}

	rr := cfg.SweepRRule
	if *rule != "" {
		rr = *rule
	}
	s, err := schedule.Parse(rr, time.Now().In(cfg.Location()))
	if err != nil {
		log.WithError(err).Fatal("invalid schedule")
	}
	log.WithField("rrule", rr).Info("sweeper started")
	if err := schedule.Run(ctx, s, job, log); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("sweeper stopped")
	}
}

// sweep runs reminders, expiry and pending cleanup. Each step runs even if
// an earlier one failed.
func sweep(s *service.Sweeper, log *logrus.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		var errs []error

		if rep, err := s.SendExpiryReminders(ctx); err != nil {
			errs = append(errs, err)
		} else {
			log.WithFields(logrus.Fields{"found": rep.Found, "sent": rep.Sent}).Info("expiry reminders")
		}
		if rep, err := s.RunExpiry(ctx); err != nil {
			errs = append(errs, err)
		} else {
			log.WithFields(logrus.Fields{"expired": rep.Expired, "notified": rep.Notified}).Info("rentals expired")
		}
		if n, err := s.ExpireStalePending(ctx); err != nil {
			errs = append(errs, err)
		} else {
			log.WithField("expired", n).Info("stale pending reservations expired")
		}
		return errors.Join(errs...)
	}
}
