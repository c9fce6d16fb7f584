// Package handler holds the echo handlers for the public booking API, the
// payment webhook, the admin console and the cron triggers.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/payment"
	"github.com/iliyamo/locker-rental/internal/repository"
	"github.com/iliyamo/locker-rental/internal/service"
)

const (
	dbTimeout      = 5 * time.Second
	paymentTimeout = 20 * time.Second
)

func withTimeout(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), d)
}

// fail writes the JSON error response for err. Unexpected errors are
// logged and reported as a generic 500.
func fail(c echo.Context, log logrus.FieldLogger, err error) error {
	var (
		verr *service.ValidationError
		cerr *service.ConflictError
		nerr *service.NotFoundError
		perr *service.PaymentProviderError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": verr.Error()})
	case errors.As(err, &nerr):
		return c.JSON(http.StatusNotFound, echo.Map{"error": nerr.Error()})
	case errors.As(err, &cerr):
		return c.JSON(http.StatusConflict, echo.Map{"error": cerr.Error()})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrReservationNotFound),
		errors.Is(err, repository.ErrLockerNotFound),
		errors.Is(err, repository.ErrStudentNotFound),
		errors.Is(err, repository.ErrWaitlistNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, payment.ErrInvalidSignature):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
	case errors.As(err, &perr):
		log.WithError(err).WithField("op", perr.Op).Error("payment provider call failed")
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "request timed out"})
	}
	log.WithError(err).WithFields(logrus.Fields{
		"method": c.Request().Method,
		"path":   c.Path(),
	}).Error("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
