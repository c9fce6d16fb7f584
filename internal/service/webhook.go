package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/model"
	"github.com/iliyamo/locker-rental/internal/notify"
	"github.com/iliyamo/locker-rental/internal/payment"
	"github.com/iliyamo/locker-rental/internal/repository"
)

// WaitlistDirectory is the slice of the waitlist the lifecycle needs.
type WaitlistDirectory interface {
	RemoveByEmail(ctx context.Context, email string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// EventGuard claims webhook event ids so redeliveries can be skipped.
type EventGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Reconciler applies payment provider events to reservations. Every
// handler is safe to run more than once for the same event.
type Reconciler struct {
	store    repository.ReservationStore
	lockers  LockerReader
	waitlist WaitlistDirectory
	notifier notify.Notifier
	guard    EventGuard // optional
	log      *logrus.Logger
}

func NewReconciler(store repository.ReservationStore, lockers LockerReader, waitlist WaitlistDirectory, notifier notify.Notifier, guard EventGuard, log *logrus.Logger) *Reconciler {
	return &Reconciler{store: store, lockers: lockers, waitlist: waitlist, notifier: notifier, guard: guard, log: log}
}

// Handle dispatches ev. Unknown event types and events for sessions this
// service never created are acknowledged without error.
func (r *Reconciler) Handle(ctx context.Context, ev *payment.Event) error {
	var handle func(context.Context, *payment.Event) error
	switch ev.Type {
	case payment.EventSessionCompleted:
		handle = r.sessionCompleted
	case payment.EventSessionExpired:
		handle = r.sessionExpired
	default:
		r.log.WithField("type", ev.Type).Debug("webhook: event ignored")
		return nil
	}

	if r.guard != nil && ev.ID != "" {
		claimed, err := r.guard.Claim(ctx, ev.ID)
		if err != nil {
			// state guards below still keep the handler idempotent
			r.log.WithError(err).Warn("webhook: event dedupe unavailable")
		} else if !claimed {
			r.log.WithField("event_id", ev.ID).Info("webhook: duplicate event skipped")
			return nil
		}
	}

	if err := handle(ctx, ev); err != nil {
		if r.guard != nil && ev.ID != "" {
			if rerr := r.guard.Release(ctx, ev.ID); rerr != nil {
				r.log.WithError(rerr).Warn("webhook: release event claim failed")
			}
		}
		return err
	}
	return nil
}

func (r *Reconciler) sessionCompleted(ctx context.Context, ev *payment.Event) error {
	entry := r.log.WithField("session_id", ev.SessionID)
	res, err := r.store.GetBySessionID(ctx, ev.SessionID)
	if errors.Is(err, repository.ErrReservationNotFound) {
		entry.Warn("webhook: no reservation for completed session")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load reservation: %w", err)
	}

	booking := ev.Metadata.Booking()
	extension := res.IsExtension || booking.IsExtension
	activated, standalone := false, false
	err = r.store.InTx(ctx, func(tx repository.ReservationStore) error {
		active := model.StatusActive
		patch := repository.ReservationPatch{
			Status:   &active,
			IfStatus: []model.Status{model.StatusPending},
		}
		if ev.PaymentIntentID != "" {
			patch.PaymentIntentID = &ev.PaymentIntentID
		}
		if ev.PayerAccountID != "" {
			patch.PayerAccountID = &ev.PayerAccountID
		}
		if res.CustomerEmail == nil && ev.CustomerEmail != "" {
			email := model.NormalizeEmail(ev.CustomerEmail)
			patch.CustomerEmail = &email
		}
		updated, err := tx.Update(ctx, res.ID, patch)
		if errors.Is(err, repository.ErrStatusMismatch) {
			if cur, gerr := tx.GetByID(ctx, res.ID); gerr == nil {
				res = cur
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("activate reservation: %w", err)
		}
		res, activated = updated, true

		if booking.StudentRef != "" {
			if err := tx.LinkStudent(ctx, res.ID, booking.StudentRef); err != nil {
				return fmt.Errorf("link student: %w", err)
			}
		}
		if extension {
			standalone, err = r.mergeExtension(ctx, tx, res, booking)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !activated {
		if res.Status == model.StatusActive {
			entry.WithField("status", res.Status).Info("webhook: session already reconciled")
			return nil
		}
		entry.WithFields(logrus.Fields{
			"reservation_id":    res.ID,
			"status":            res.Status,
			"payment_intent_id": ev.PaymentIntentID,
		}).Error("webhook: payment completed for a reservation that is no longer pending, manual review needed")
		return nil
	}
	entry.WithField("reservation_id", res.ID).Info("webhook: reservation activated")

	if extension {
		if standalone {
			r.warnIfDoubleBooked(ctx, res)
		}
		return nil
	}
	r.warnIfDoubleBooked(ctx, res)
	r.welcome(ctx, res, ev, booking)
	return nil
}

// mergeExtension folds a paid extension into the reservation it extends:
// the original takes the extension's end date and adds its amount. When
// the original is gone or no longer active the extension becomes a rental
// of its own and standalone is true.
func (r *Reconciler) mergeExtension(ctx context.Context, tx repository.ReservationStore, ext *model.Reservation, booking payment.Booking) (standalone bool, err error) {
	origID := booking.OriginalReservationID
	if origID == "" && ext.OriginalReservationID != nil {
		origID = *ext.OriginalReservationID
	}
	entry := r.log.WithFields(logrus.Fields{"extension_id": ext.ID, "original_id": origID})
	if origID != "" {
		end := ext.EndDate
		add := ext.TotalAmount
		_, err := tx.Update(ctx, origID, repository.ReservationPatch{
			EndDate:   &end,
			AddAmount: &add,
			IfStatus:  []model.Status{model.StatusActive},
		})
		switch {
		case err == nil:
			entry.WithField("end_date", end.String()).Info("webhook: extension merged")
			return false, nil
		case errors.Is(err, repository.ErrReservationNotFound):
			entry.Error("webhook: original reservation missing, extension kept as its own rental")
		case errors.Is(err, repository.ErrStatusMismatch):
			entry.Error("webhook: original reservation no longer active, extension kept as its own rental")
		default:
			return false, fmt.Errorf("merge extension: %w", err)
		}
	} else {
		entry.Error("webhook: extension has no original reservation, kept as its own rental")
	}

	primary := false
	updated, err := tx.Update(ctx, ext.ID, repository.ReservationPatch{IsExtension: &primary})
	if err != nil {
		return false, fmt.Errorf("detach extension: %w", err)
	}
	*ext = *updated
	return true, nil
}

// warnIfDoubleBooked logs when activating res created two active
// reservations over the same days. Checkout does not lock the range, so
// two pending sessions for it can both be paid.
func (r *Reconciler) warnIfDoubleBooked(ctx context.Context, res *model.Reservation) {
	clash, err := r.store.HasOverlap(ctx, res.LockerID, res.Range(), activeOnly, res.ID)
	if err != nil {
		r.log.WithError(err).Warn("webhook: overlap check after activation failed")
		return
	}
	if clash {
		r.log.WithFields(logrus.Fields{
			"reservation_id": res.ID,
			"locker_id":      res.LockerID,
			"range":          res.Range().String(),
		}).Error("webhook: locker double booked, manual review needed")
	}
}

func (r *Reconciler) welcome(ctx context.Context, res *model.Reservation, ev *payment.Event, booking payment.Booking) {
	to := ev.CustomerEmail
	if to == "" && res.CustomerEmail != nil {
		to = *res.CustomerEmail
	}
	if to == "" {
		to = booking.StudentEmail
	}
	if to == "" {
		r.log.WithField("reservation_id", res.ID).Warn("webhook: no email for welcome message")
		return
	}
	to = model.NormalizeEmail(to)

	number := booking.LockerNumber
	if number == "" {
		if l, err := r.lockers.GetByID(ctx, res.LockerID); err == nil {
			number = l.Number
		}
	}
	r.notifier.Welcome(ctx, notify.RentalParams{
		To:           to,
		Name:         booking.StudentName,
		LockerNumber: number,
		StartDate:    res.StartDate,
		EndDate:      res.EndDate,
	})

	removed, err := r.waitlist.RemoveByEmail(ctx, to)
	if err != nil {
		r.log.WithError(err).WithField("email", to).Warn("webhook: waitlist removal failed")
		return
	}
	if removed {
		r.log.WithField("email", to).Info("webhook: removed renter from waitlist")
	}
}

func (r *Reconciler) sessionExpired(ctx context.Context, ev *payment.Event) error {
	entry := r.log.WithField("session_id", ev.SessionID)
	changed, known := false, true

	res, err := r.store.GetBySessionID(ctx, ev.SessionID)
	switch {
	case errors.Is(err, repository.ErrReservationNotFound):
		known = false
		entry.Warn("webhook: no reservation for expired session")
	case err != nil:
		return fmt.Errorf("load reservation: %w", err)
	default:
		expired := model.StatusExpired
		_, err := r.store.Update(ctx, res.ID, repository.ReservationPatch{
			Status:   &expired,
			IfStatus: []model.Status{model.StatusPending},
		})
		switch {
		case errors.Is(err, repository.ErrStatusMismatch):
			entry.WithField("status", res.Status).Info("webhook: expired session already settled")
		case err != nil:
			return fmt.Errorf("expire reservation: %w", err)
		default:
			changed = true
			entry.WithField("reservation_id", res.ID).Info("webhook: reservation expired")
		}
	}

	// Metadata is the only record of an unknown session, so it still notifies.
	booking := ev.Metadata.Booking()
	if booking.LockerNumber == "" || (known && !changed) {
		return nil
	}
	count, err := r.waitlist.Count(ctx)
	if err != nil {
		r.log.WithError(err).Warn("webhook: waitlist count failed")
	}
	r.notifier.LockerAvailable(ctx, notify.LockerAvailableParams{
		LockerNumber:        booking.LockerNumber,
		PreviousRenter:      booking.StudentName,
		PreviousRenterEmail: booking.StudentEmail,
		WaitlistCount:       count,
	})
	return nil
}
