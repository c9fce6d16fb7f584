package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/model"
	"github.com/iliyamo/locker-rental/internal/notify"
	"github.com/iliyamo/locker-rental/internal/repository"
)

// StudentReader resolves the student linked to a reservation.
type StudentReader interface {
	GetByID(ctx context.Context, id string) (*model.Student, error)
}

// Rentals covers admin actions on existing reservations.
type Rentals struct {
	store      repository.ReservationStore
	lockers    LockerReader
	students   StudentReader
	notifier   notify.Notifier
	keyDeposit int64
	log        *logrus.Logger
}

func NewRentals(store repository.ReservationStore, lockers LockerReader, students StudentReader, notifier notify.Notifier, keyDeposit int64, log *logrus.Logger) *Rentals {
	return &Rentals{store: store, lockers: lockers, students: students, notifier: notifier, keyDeposit: keyDeposit, log: log}
}

func (s *Rentals) load(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrReservationNotFound) {
		return nil, &NotFoundError{Entity: "reservation", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	return res, nil
}

// Cancel moves a pending or active reservation to canceled. Extension rows
// attached to it are canceled in the same transaction so they stop
// blocking the locker.
func (s *Rentals) Cancel(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !res.Status.CanTransition(model.StatusCanceled) {
		return nil, &ConflictError{Reason: fmt.Sprintf("cannot cancel a %s rental", res.Status)}
	}

	canceled := model.StatusCanceled
	guard := []model.Status{model.StatusPending, model.StatusActive}
	var out *model.Reservation
	err = s.store.InTx(ctx, func(tx repository.ReservationStore) error {
		updated, err := tx.Update(ctx, id, repository.ReservationPatch{Status: &canceled, IfStatus: guard})
		if err != nil {
			return err
		}
		out = updated

		siblings, err := tx.ListByLocker(ctx, res.LockerID)
		if err != nil {
			return err
		}
		for _, r := range siblings {
			if r.OriginalReservationID == nil || *r.OriginalReservationID != id {
				continue
			}
			_, err := tx.Update(ctx, r.ID, repository.ReservationPatch{Status: &canceled, IfStatus: guard})
			if err != nil && !errors.Is(err, repository.ErrStatusMismatch) {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, repository.ErrStatusMismatch) {
		return nil, &ConflictError{Reason: "rental changed state, try again", Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("cancel reservation: %w", err)
	}
	s.log.WithField("reservation_id", id).Info("rental canceled")
	return out, nil
}

// RequestDepositRefund asks the admin to refund the key deposit of a
// rental. It reports whether the email went out.
func (s *Rentals) RequestDepositRefund(ctx context.Context, id string) (bool, error) {
	res, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	if res.IsExtension || res.OriginalReservationID != nil {
		return false, invalid("id", "extensions carry no key deposit")
	}

	name, email := "", ""
	if res.StudentRef != nil {
		if st, err := s.students.GetByID(ctx, *res.StudentRef); err == nil {
			name, email = st.StudentName, st.StudentEmail
		}
	}
	if email == "" && res.CustomerEmail != nil {
		email = *res.CustomerEmail
	}
	if name == "" {
		name = "Unknown"
	}
	if email == "" {
		email = "Unknown"
	}

	number := ""
	if l, err := s.lockers.GetByID(ctx, res.LockerID); err == nil {
		number = l.Number
	}
	sent := s.notifier.DepositRefundRequest(ctx, notify.DepositRefundParams{
		StudentName:  name,
		StudentEmail: email,
		LockerNumber: number,
		StartDate:    res.StartDate,
		EndDate:      res.EndDate,
		Amount:       s.keyDeposit,
	})
	if !sent {
		s.log.WithField("reservation_id", id).Warn("deposit refund request not sent")
	}
	return sent, nil
}
