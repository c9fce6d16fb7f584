package service

import (
	"errors"
	"fmt"
)

// ValidationError is malformed input. Nothing was changed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// ConflictError rejects a request that collides with existing state.
type ConflictError struct {
	Reason string
	Err    error
}

func (e *ConflictError) Error() string { return e.Reason }
func (e *ConflictError) Unwrap() error { return e.Err }

// ErrLockerUnavailable is returned when the range overlaps a booking.
var ErrLockerUnavailable = &ConflictError{Reason: "locker is not available for the selected dates"}

// NotFoundError is returned by direct lookups of a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// PaymentProviderError wraps a failed call to the payment provider.
type PaymentProviderError struct {
	Op  string
	Err error
}

func (e *PaymentProviderError) Error() string {
	return "payment provider: " + e.Op + ": " + e.Err.Error()
}

func (e *PaymentProviderError) Unwrap() error { return e.Err }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation, IsConflict and IsNotFound classify errors for transports.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}
