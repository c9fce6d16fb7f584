package model

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Status is the lifecycle state of a reservation. The set of values is
// closed: ParseStatus rejects anything not declared below.
type Status string

const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusIncomplete Status = "incomplete"
	StatusExpired    Status = "expired"
	StatusCompleted  Status = "completed"
)

// past_due and incomplete exist for richer billing states and have no
// inbound transitions yet.
var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusExpired, StatusCanceled},
	StatusActive:  {StatusCompleted, StatusCanceled},
}

// ParseStatus converts a stored or user supplied value into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusActive, StatusPastDue, StatusCanceled,
		StatusIncomplete, StatusExpired, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown reservation status %q", s)
}

// CanTransition reports whether moving from s to next is a legal step.
func (s Status) CanTransition(next Status) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// IsTerminal is true for states with no outgoing transitions.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) String() string { return string(s) }

// Reservation books one locker for an inclusive range of calendar days.
// Extensions are separate rows pointing at the reservation they extend.
type Reservation struct {
	ID                    string     `json:"id"`
	PaymentSessionID      *string    `json:"paymentSessionId,omitempty"`
	PaymentIntentID       *string    `json:"paymentIntentId,omitempty"`
	PayerAccountID        *string    `json:"payerAccountId,omitempty"`
	CustomerEmail         *string    `json:"customerEmail,omitempty"`
	LockerID              string     `json:"lockerId"`
	Status                Status     `json:"status"`
	StartDate             civil.Date `json:"startDate"`
	EndDate               civil.Date `json:"endDate"`
	TotalMonths           int        `json:"totalMonths"`
	TotalAmount           int64      `json:"totalAmount"`
	IsExtension           bool       `json:"isExtension"`
	OriginalReservationID *string    `json:"originalReservationId,omitempty"`
	StudentRef            *string    `json:"studentRef,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// Range returns the reserved days.
func (r *Reservation) Range() DateRange {
	return DateRange{Start: r.StartDate, End: r.EndDate}
}

// RentalRecord is the reporting view of a reservation joined with its
// locker and, when linked, its student.
type RentalRecord struct {
	ID            string     `json:"id"`
	LockerID      string     `json:"lockerId"`
	LockerNumber  string     `json:"lockerNumber"`
	Status        Status     `json:"status"`
	StartDate     civil.Date `json:"startDate"`
	EndDate       civil.Date `json:"endDate"`
	TotalMonths   int        `json:"totalMonths"`
	TotalAmount   int64      `json:"totalAmount"`
	CustomerEmail string     `json:"customerEmail,omitempty"`
	StudentName   string     `json:"studentName,omitempty"`
	StudentEmail  string     `json:"studentEmail,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// ContactEmail prefers the linked student's address over the checkout email.
func (r RentalRecord) ContactEmail() string {
	if r.StudentEmail != "" {
		return r.StudentEmail
	}
	return r.CustomerEmail
}

// Analytics summarizes rentals for the admin dashboard. Amounts are cents.
type Analytics struct {
	TotalRevenue   int64   `json:"totalRevenue"`
	UniqueStudents int     `json:"uniqueStudents"`
	TotalRentals   int     `json:"totalRentals"`
	ActiveRentals  int     `json:"activeRentals"`
	OccupancyRate  float64 `json:"occupancyRate"`
}
