// Package notify sends renter and admin emails. Messages are either queued
// on RabbitMQ for the notifier worker or handed straight to the SMTP mailer.
package notify

import "context"

// Kind selects the email template.
type Kind string

const (
	KindPaymentLink     Kind = "payment_link"
	KindWelcome         Kind = "welcome"
	KindExpiryReminder  Kind = "expiry_reminder"
	KindLockerAvailable Kind = "locker_available"
	KindDepositRefund   Kind = "deposit_refund"
)

// Message is the queued form of one email. Dates are YYYY-MM-DD and
// amounts are cents.
type Message struct {
	Kind                Kind   `json:"kind"`
	To                  string `json:"to"`
	Name                string `json:"name,omitempty"`
	LockerNumber        string `json:"locker_number,omitempty"`
	StartDate           string `json:"start_date,omitempty"`
	EndDate             string `json:"end_date,omitempty"`
	Amount              int64  `json:"amount,omitempty"`
	PaymentURL          string `json:"payment_url,omitempty"`
	PreviousRenter      string `json:"previous_renter,omitempty"`
	PreviousRenterEmail string `json:"previous_renter_email,omitempty"`
	RenterEmail         string `json:"renter_email,omitempty"`
	WaitlistCount       int    `json:"waitlist_count"`
	QueuedAt            string `json:"queued_at"`
}

// Sink delivers a message somewhere: a queue or a mail server.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}
