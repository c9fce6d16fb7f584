// Command notifier delivers queued notification emails over SMTP.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/config"
	"github.com/iliyamo/locker-rental/internal/logger"
	"github.com/iliyamo/locker-rental/internal/notify"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)

	if cfg.RabbitMQURL == "" {
		log.Fatal("RABBITMQ_URL is required")
	}
	mailer := notify.NewMailer(notify.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.EmailFrom,
	})
	if !mailer.Enabled() {
		log.Fatal("SMTP_HOST and SMTP_PORT are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{"queue": cfg.NotifyQueue, "smtp": cfg.SMTPHost}).Info("notifier started")
	err := notify.NewConsumer(cfg.RabbitMQURL, cfg.NotifyQueue, mailer, log).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("notifier stopped")
	}
}
