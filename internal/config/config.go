// Package config loads application configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds the runtime settings of the server and the worker binaries.
// Money values are cents.
type Config struct {
	Env          string // dev, test or prod
	Port         string // HTTP port to listen on
	LogLevel     string
	DBUser       string
	DBPass       string // may be empty
	DBHost       string
	DBPort       string
	DBName       string
	JWTSecret    string // signs admin access tokens
	AccessTTLMin int    // admin token lifetime in minutes
	BcryptCost   int

	AdminPasswordHash string // bcrypt hash, see cmd/hashpw
	AdminEmail        string // receives "locker available" notices

	StripeSecretKey     string
	StripeWebhookSecret string
	FrontendURL         string
	Currency            string
	KeyDepositCents     int64
	SessionTTL          time.Duration // lifetime of a checkout session
	PendingGrace        time.Duration // extra wait before a pending row is swept

	CronSecret string

	EmailFrom string
	SMTPHost  string
	SMTPPort  string
	SMTPUser  string
	SMTPPass  string

	RabbitMQURL string // empty sends email inline
	NotifyQueue string

	Timezone       string // calendar used for "today" in sweeps
	SweepRRule     string
	LockerSeedFile string // optional YAML seed
}

// Load reads the environment. Missing required variables are fatal.
func Load() Config {
	return Config{
		Env:          must("APP_ENV"),
		Port:         must("APP_PORT"),
		LogLevel:     envStr("LOG_LEVEL", "info"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"),
		DBHost:       must("DB_HOST"),
		DBPort:       must("DB_PORT"),
		DBName:       must("DB_NAME"),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN"),
		BcryptCost:   mustInt("BCRYPT_COST"),

		AdminPasswordHash: must("ADMIN_PASSWORD_HASH"),
		AdminEmail:        os.Getenv("ADMIN_EMAIL"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		FrontendURL:         envStr("FRONTEND_URL", "http://localhost:4173"),
		Currency:            envStr("CURRENCY", "usd"),
		KeyDepositCents:     int64(envInt("KEY_DEPOSIT_CENTS", 5000)),
		SessionTTL:          envDur("SESSION_TTL", 24*time.Hour),
		PendingGrace:        envDur("PENDING_GRACE", time.Hour),

		CronSecret: os.Getenv("CRON_SECRET"),

		EmailFrom: os.Getenv("EMAIL_FROM"),
		SMTPHost:  os.Getenv("SMTP_HOST"),
		SMTPPort:  envStr("SMTP_PORT", "587"),
		SMTPUser:  os.Getenv("SMTP_USER"),
		SMTPPass:  os.Getenv("SMTP_PASS"),

		RabbitMQURL: os.Getenv("RABBITMQ_URL"),
		NotifyQueue: envStr("NOTIFY_QUEUE", "notifications.email"),

		Timezone:       envStr("APP_TIMEZONE", "UTC"),
		SweepRRule:     envStr("SWEEP_RRULE", "FREQ=DAILY;BYHOUR=8;BYMINUTE=0;BYSECOND=0"),
		LockerSeedFile: os.Getenv("LOCKER_SEED_FILE"),
	}
}

// Location resolves Timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		logrus.WithError(err).WithField("tz", c.Timezone).Warn("unknown APP_TIMEZONE, using UTC")
		return time.UTC
	}
	return loc
}

// PendingTTL is how long a pending reservation may wait for payment.
func (c Config) PendingTTL() time.Duration {
	return c.SessionTTL + c.PendingGrace
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logrus.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is must for integers.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		logrus.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
