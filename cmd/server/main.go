package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/app"
	"github.com/iliyamo/locker-rental/internal/config"
	"github.com/iliyamo/locker-rental/internal/handler"
	"github.com/iliyamo/locker-rental/internal/idempotency"
	"github.com/iliyamo/locker-rental/internal/logger"
	"github.com/iliyamo/locker-rental/internal/middleware"
	"github.com/iliyamo/locker-rental/internal/payment"
	"github.com/iliyamo/locker-rental/internal/router"
	"github.com/iliyamo/locker-rental/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{Migrate: true, Redis: true})
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer a.Close()

	if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
		log.Warn("STRIPE_SECRET_KEY or STRIPE_WEBHOOK_SECRET missing: checkout and webhooks will fail")
	}
	stripe := payment.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, nil, log)

	deps := service.Deps{
		Lockers:  a.Lockers,
		Students: a.Students,
		Store:    a.Reservations,
		Payments: stripe,
		Notifier: a.Notifier,
		Log:      log,
	}
	checkoutCfg := service.CheckoutConfig{
		KeyDeposit:  cfg.KeyDepositCents,
		Currency:    cfg.Currency,
		FrontendURL: cfg.FrontendURL,
		SessionTTL:  cfg.SessionTTL,
	}
	checkout := service.NewCheckout(deps, checkoutCfg)
	extensions := service.NewExtensions(deps, checkoutCfg)

	var guard service.EventGuard
	if a.Redis != nil {
		guard = idempotency.NewRedisGuard(a.Redis, "", 0)
	}
	reconciler := service.NewReconciler(a.Reservations, a.Lockers, a.Waitlist, a.Notifier, guard, log)

	cacheCfg := config.LoadCacheConfig()
	cacheCfg.Prefix += ":lockers"

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowCredentials: true,
	}))

	router.Register(e, router.Handlers{
		Health:   handler.Health(a.DB),
		Lockers:  handler.NewLockerHandler(a.Lockers, cfg.Location(), log),
		Students: &handler.StudentHandler{Students: a.Students, Log: log},
		Payments: &handler.PaymentHandler{
			Checkout:   checkout,
			Extensions: extensions,
			Portal:     checkout,
			Log:        log,
		},
		Webhook: &handler.WebhookHandler{
			Parser:     stripe,
			Reconciler: reconciler,
			OnApplied: func(ctx context.Context) {
				if err := middleware.PurgeCache(ctx, a.Redis, cacheCfg.Prefix); err != nil {
					log.WithError(err).Warn("purge locker cache failed")
				}
			},
			Log: log,
		},
		Admin: &handler.AdminHandler{
			Auth: handler.AdminAuthConfig{
				JWTSecret:    cfg.JWTSecret,
				AccessTTLMin: cfg.AccessTTLMin,
				PasswordHash: cfg.AdminPasswordHash,
				SecureCookie: cfg.Env == "prod",
			},
			Reports:    a.Reservations,
			Lockers:    a.Lockers,
			Rentals:    service.NewRentals(a.Reservations, a.Lockers, a.Students, a.Notifier, cfg.KeyDepositCents, log),
			Extensions: extensions,
			Log:        log,
		},
		Waitlist: &handler.WaitlistHandler{Waitlist: a.Waitlist, Log: log},
		Cron:     &handler.CronHandler{Sweeper: a.Sweeper(), Log: log},
	}, router.Options{
		JWTSecret:  cfg.JWTSecret,
		CronSecret: cfg.CronSecret,
		RateLimit:  config.LoadRateLimitConfig(),
		Cache:      cacheCfg,
		Redis:      a.Redis,
		Log:        log,
	})

	go func() {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown failed")
	}
	log.Info("server stopped")
}
