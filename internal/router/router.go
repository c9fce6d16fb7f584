// Package router wires handlers, rate limits and auth onto the echo
// instance.
package router

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/config"
	"github.com/iliyamo/locker-rental/internal/handler"
	"github.com/iliyamo/locker-rental/internal/middleware"
	"github.com/iliyamo/locker-rental/internal/utils"
)

// Handlers bundles everything the routes dispatch to.
type Handlers struct {
	Health   echo.HandlerFunc
	Lockers  *handler.LockerHandler
	Students *handler.StudentHandler
	Payments *handler.PaymentHandler
	Webhook  *handler.WebhookHandler
	Admin    *handler.AdminHandler
	Waitlist *handler.WaitlistHandler
	Cron     *handler.CronHandler
}

// Options carries the settings the routes need besides handlers. Redis
// may be nil, which turns rate limiting and caching off.
type Options struct {
	JWTSecret  string
	CronSecret string
	RateLimit  config.RateLimitConfig
	Cache      config.CacheConfig
	Redis      *redis.Client
	Log        logrus.FieldLogger
}

// Route group limits.
const (
	apiPerMinute     = 100
	paymentPerMinute = 10
	webhookPerHour   = 50
	loginPer15Min    = 5
)

// Register mounts every route under /api.
func Register(e *echo.Echo, h Handlers, o Options) {
	limit := func(name string, capacity int, window time.Duration) echo.MiddlewareFunc {
		return middleware.RateLimit(o.RateLimit.RouteRateLimit(name, capacity, window), o.Redis, o.Log)
	}
	apiLimit := limit("api", apiPerMinute, time.Minute)
	paymentLimit := limit("payment", paymentPerMinute, time.Minute)

	e.GET("/healthz", h.Health)

	api := e.Group("/api")
	api.GET("/lockers", h.Lockers.List, apiLimit, middleware.ResponseCache(o.Cache, o.Redis))
	api.POST("/students", h.Students.Upsert, apiLimit)
	api.POST("/students/validate", h.Students.Validate, apiLimit)

	stripe := api.Group("/stripe")
	stripe.POST("/checkout", h.Payments.CreateCheckout, paymentLimit)
	stripe.POST("/extension-checkout", h.Payments.CreateExtension, paymentLimit)
	stripe.POST("/portal", h.Payments.CreatePortal, paymentLimit)
	stripe.POST("/webhook", h.Webhook.Receive, limit("webhook", webhookPerHour, time.Hour))

	api.POST("/admin/login", h.Admin.Login, limit("login", loginPer15Min, 15*time.Minute))
	api.POST("/admin/logout", h.Admin.Logout)
	api.GET("/admin/session", h.Admin.Session, apiLimit)

	admin := api.Group("/admin", apiLimit, middleware.AdminAuth(o.JWTSecret), middleware.RequireRole(utils.RoleAdmin))
	admin.GET("/rentals", h.Admin.ListRentals)
	admin.GET("/rentals/active", h.Admin.ListActive)
	admin.GET("/analytics", h.Admin.Analytics)
	admin.POST("/rentals/:id/cancel", h.Admin.Cancel)
	admin.POST("/rentals/:id/extend", h.Admin.Extend, paymentLimit)
	admin.POST("/rentals/:id/refund-request", h.Admin.RefundRequest)
	admin.GET("/waitlist", h.Waitlist.List)
	admin.POST("/waitlist", h.Waitlist.Create)
	admin.PUT("/waitlist/:id", h.Waitlist.Update)
	admin.DELETE("/waitlist/:id", h.Waitlist.Delete)

	cron := api.Group("/cron", middleware.CronAuth(o.CronSecret))
	cron.POST("/expiry-reminders", h.Cron.ExpiryReminders)
	cron.POST("/expire-rentals", h.Cron.ExpireRentals)
	cron.POST("/expire-pending", h.Cron.ExpirePending)
}
