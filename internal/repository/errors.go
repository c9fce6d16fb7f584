// Package repository holds the MySQL-backed stores and the sentinel errors
// they return. Handlers and services compare against these values with
// errors.Is to decide between 404, 409 and 500 style outcomes.
package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrConflict is the parent of every uniqueness or state conflict.
// Handlers translate it into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrLockerNotFound      = errors.New("locker not found")
	ErrStudentNotFound     = errors.New("student not found")
	ErrWaitlistNotFound    = errors.New("waitlist entry not found")

	// ErrDuplicateSession means another reservation already holds the payment session id.
	ErrDuplicateSession = fmt.Errorf("%w: payment session already recorded", ErrConflict)
	// ErrStatusMismatch means a guarded update found the row in a different status.
	ErrStatusMismatch = fmt.Errorf("%w: reservation status changed", ErrConflict)
	// ErrWaitlistDuplicate means the email or student id is already waitlisted.
	ErrWaitlistDuplicate = fmt.Errorf("%w: waitlist entry already exists", ErrConflict)
)

const mysqlDuplicateEntry = 1062

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
