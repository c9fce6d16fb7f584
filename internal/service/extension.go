package service

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/model"
	"github.com/iliyamo/locker-rental/internal/payment"
	"github.com/iliyamo/locker-rental/internal/repository"
)

// ExtensionInput asks to push an active reservation's end date out.
// A zero ExtensionMonths is derived from the dates.
type ExtensionInput struct {
	ReservationID   string
	NewEndDate      civil.Date
	ExtensionMonths int
}

// Extensions starts paid extensions of active reservations.
type Extensions struct {
	*booker
}

func NewExtensions(d Deps, cfg CheckoutConfig) *Extensions {
	return &Extensions{booker: newBooker(d, cfg)}
}

// CreateExtension opens a payment session for the days after the original
// reservation ends and records a pending extension row. Extensions carry
// no key deposit. The original reservation is merged on payment.
func (e *Extensions) CreateExtension(ctx context.Context, in ExtensionInput) (*CheckoutResult, error) {
	if in.ReservationID == "" {
		return nil, invalid("reservationId", "is required")
	}
	orig, err := e.store.GetByID(ctx, in.ReservationID)
	if errors.Is(err, repository.ErrReservationNotFound) {
		return nil, &NotFoundError{Entity: "reservation", ID: in.ReservationID}
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	if orig.Status != model.StatusActive {
		return nil, &ConflictError{Reason: "only active rentals can be extended"}
	}
	if orig.CustomerEmail == nil || *orig.CustomerEmail == "" {
		return nil, invalid("reservationId", "no email on file for this rental")
	}
	email := *orig.CustomerEmail

	start := orig.EndDate.AddDays(1)
	if !in.NewEndDate.IsValid() {
		return nil, invalid("newEndDate", "is required")
	}
	rng, err := model.NewDateRange(start, in.NewEndDate)
	if err != nil {
		return nil, invalid("newEndDate", "must be after "+start.String())
	}
	months, err := resolveMonths(in.ExtensionMonths, rng)
	if err != nil {
		return nil, invalid("extensionMonths", "must be at least 1")
	}

	locker, err := e.locker(ctx, orig.LockerID)
	if err != nil {
		return nil, err
	}
	ok, err := e.avail.IsAvailable(ctx, orig.LockerID, rng, orig.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockerUnavailable
	}

	amount := locker.PricePerMonth * int64(months)
	items := []payment.LineItem{{
		Name:        fmt.Sprintf("Locker #%s Extension - %d month%s", locker.Number, months, plural(months)),
		Description: fmt.Sprintf("Extension from %s to %s", rng.Start, rng.End),
		Amount:      amount,
	}}
	booking := payment.Booking{
		LockerID:              orig.LockerID,
		LockerNumber:          locker.Number,
		StartDate:             rng.Start,
		EndDate:               rng.End,
		TotalMonths:           months,
		RentalAmount:          amount,
		TotalAmount:           amount,
		CustomerEmail:         email,
		StudentEmail:          email,
		IsExtension:           true,
		OriginalReservationID: orig.ID,
	}
	if orig.StudentRef != nil {
		booking.StudentRef = *orig.StudentRef
	}
	sess, err := e.openSession(ctx, email, items, booking)
	if err != nil {
		return nil, err
	}

	origID := orig.ID
	res := &model.Reservation{
		ID:                    uuid.NewString(),
		PaymentSessionID:      &sess.ID,
		CustomerEmail:         &email,
		LockerID:              orig.LockerID,
		Status:                model.StatusPending,
		StartDate:             rng.Start,
		EndDate:               rng.End,
		TotalMonths:           months,
		TotalAmount:           amount,
		IsExtension:           true,
		OriginalReservationID: &origID,
		StudentRef:            orig.StudentRef,
	}
	if err := e.persistPending(ctx, res); err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"original_id":    orig.ID,
		"range":          rng.String(),
		"amount":         amount,
	}).Info("extension session created")

	e.sendPaymentLink(ctx, email, "", locker, rng, amount, sess.URL)
	return &CheckoutResult{Reservation: res, PaymentURL: sess.URL, SessionID: sess.ID}, nil
}
