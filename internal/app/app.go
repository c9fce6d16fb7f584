// Package app assembles the shared dependencies of the server and worker
// binaries from a loaded Config.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/config"
	"github.com/iliyamo/locker-rental/internal/database"
	"github.com/iliyamo/locker-rental/internal/notify"
	"github.com/iliyamo/locker-rental/internal/repository"
	"github.com/iliyamo/locker-rental/internal/service"
)

// Options select the boot steps a binary needs.
type Options struct {
	Migrate bool // apply schema migrations and seed lockers
	Redis   bool
}

// App holds opened resources. Close releases them.
type App struct {
	Cfg config.Config
	Log *logrus.Logger

	DB    *sql.DB
	Redis *redis.Client // nil when unavailable or not requested

	Reservations *repository.ReservationRepo
	Lockers      *repository.LockerRepo
	Students     *repository.StudentRepo
	Waitlist     *repository.WaitlistRepo
	Notifier     *notify.Dispatcher

	closers []func() error
}

// New opens the database and builds repositories and the notifier.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger, opts Options) (*App, error) {
	db, err := database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &App{Cfg: cfg, Log: log, DB: db}
	a.closers = append(a.closers, db.Close)

	a.Reservations = repository.NewReservationRepo(db)
	a.Lockers = repository.NewLockerRepo(db)
	a.Students = repository.NewStudentRepo(db)
	a.Waitlist = repository.NewWaitlistRepo(db)

	if opts.Migrate {
		if err := database.Migrate(db); err != nil {
			a.Close()
			return nil, err
		}
		seed, err := config.LoadLockerSeed(cfg.LockerSeedFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := database.Seed(ctx, a.Lockers, seed, log); err != nil {
			a.Close()
			return nil, err
		}
	}

	if opts.Redis {
		if a.Redis = config.NewRedisClient(ctx); a.Redis == nil {
			log.Warn("redis unavailable: rate limiting, caching and webhook dedupe disabled")
		} else {
			a.closers = append(a.closers, a.Redis.Close)
		}
	}

	a.Notifier = notify.NewDispatcher(a.sink(), cfg.AdminEmail, 0, log)
	return a, nil
}

// sink picks the queue when a broker is configured and SMTP otherwise.
func (a *App) sink() notify.Sink {
	if a.Cfg.RabbitMQURL != "" {
		p := notify.NewPublisher(a.Cfg.RabbitMQURL, a.Cfg.NotifyQueue)
		a.closers = append(a.closers, p.Close)
		a.Log.WithField("queue", a.Cfg.NotifyQueue).Info("notifications go through the broker")
		return p
	}
	m := a.Mailer()
	if !m.Enabled() {
		a.Log.Warn("SMTP not configured: emails will be dropped")
	}
	return m
}

// Mailer builds the SMTP sink from the config.
func (a *App) Mailer() *notify.Mailer {
	return notify.NewMailer(notify.SMTPConfig{
		Host: a.Cfg.SMTPHost,
		Port: a.Cfg.SMTPPort,
		User: a.Cfg.SMTPUser,
		Pass: a.Cfg.SMTPPass,
		From: a.Cfg.EmailFrom,
	})
}

// Sweeper builds the expiry sweeper.
func (a *App) Sweeper() *service.Sweeper {
	return service.NewSweeper(a.Reservations, a.Waitlist, a.Notifier, service.SweeperConfig{
		Location:   a.Cfg.Location(),
		PendingTTL: a.Cfg.PendingTTL(),
	}, a.Log)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
