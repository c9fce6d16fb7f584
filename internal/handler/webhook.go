package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/payment"
)

const maxWebhookBody = 1 << 20

// EventHandler applies a verified payment event.
type EventHandler interface {
	Handle(ctx context.Context, ev *payment.Event) error
}

type WebhookHandler struct {
	Parser     payment.EventParser
	Reconciler EventHandler
	// OnApplied runs after an event was applied, e.g. to drop cached
	// locker listings. May be nil.
	OnApplied func(ctx context.Context)
	Log       logrus.FieldLogger
}

// Receive verifies the raw body against the signature header and hands
// the event to the reconciler. A failed reconciliation answers 500 so
// the provider retries the delivery.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	sig := c.Request().Header.Get("Stripe-Signature")
	if sig == "" {
		return badRequest(c, "missing signature")
	}
	ev, err := h.Parser.ParseEvent(body, sig)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			h.Log.WithError(err).Warn("rejected webhook")
		}
		return fail(c, h.Log, err)
	}

	ctx, cancel := withTimeout(c, paymentTimeout)
	defer cancel()
	if err := h.Reconciler.Handle(ctx, ev); err != nil {
		h.Log.WithError(err).WithFields(logrus.Fields{
			"event_id":   ev.ID,
			"event_type": ev.Type,
		}).Error("webhook processing failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "webhook processing failed"})
	}
	if h.OnApplied != nil {
		h.OnApplied(ctx)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
