package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/service"
)

const sweepTimeout = 2 * time.Minute

// Sweeps are the scheduled jobs an external cron may trigger.
type Sweeps interface {
	SendExpiryReminders(ctx context.Context) (service.ReminderReport, error)
	RunExpiry(ctx context.Context) (service.ExpiryReport, error)
	ExpireStalePending(ctx context.Context) (int64, error)
}

type CronHandler struct {
	Sweeper Sweeps
	Log     logrus.FieldLogger
}

// ExpiryReminders emails renters whose rental ends tomorrow.
func (h *CronHandler) ExpiryReminders(c echo.Context) error {
	ctx, cancel := withTimeout(c, sweepTimeout)
	defer cancel()
	rep, err := h.Sweeper.SendExpiryReminders(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, rep)
}

// ExpireRentals completes ended rentals and announces the freed lockers.
func (h *CronHandler) ExpireRentals(c echo.Context) error {
	ctx, cancel := withTimeout(c, sweepTimeout)
	defer cancel()
	rep, err := h.Sweeper.RunExpiry(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, rep)
}

// ExpirePending expires checkouts that were never paid.
func (h *CronHandler) ExpirePending(c echo.Context) error {
	ctx, cancel := withTimeout(c, sweepTimeout)
	defer cancel()
	n, err := h.Sweeper.ExpireStalePending(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": n})
}
