// Package payment is the boundary to the hosted checkout provider: creating
// payment sessions and turning signed webhook deliveries into Events.
package payment

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ErrUnavailable is returned while the provider circuit is open.
var ErrUnavailable = errors.New("payment provider unavailable")

// LineItem is one priced row on the hosted checkout page. Amount is in
// minor units.
type LineItem struct {
	Name        string
	Description string
	Amount      int64
}

// SessionRequest describes a checkout session to create.
type SessionRequest struct {
	CustomerEmail string
	Currency      string
	LineItems     []LineItem
	Metadata      Metadata
	SuccessURL    string
	CancelURL     string
	ExpiresAt     time.Time
}

// Total sums the line items.
func (r SessionRequest) Total() int64 {
	var sum int64
	for _, li := range r.LineItems {
		sum += li.Amount
	}
	return sum
}

// Session is a created checkout session.
type Session struct {
	ID  string
	URL string
}

// EventType names the webhook events the service reacts to.
type EventType string

const (
	EventSessionCompleted EventType = "checkout.session.completed"
	EventSessionExpired   EventType = "checkout.session.expired"
)

// Event is a verified webhook delivery. Session fields are empty for event
// types that do not carry a checkout session.
type Event struct {
	ID              string
	Type            EventType
	SessionID       string
	Metadata        Metadata
	PaymentIntentID string
	PayerAccountID  string
	CustomerEmail   string
}

// Provider creates hosted payment sessions and billing portal links for
// payers it already knows.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// EventParser verifies and decodes webhook payloads.
type EventParser interface {
	ParseEvent(payload []byte, signatureHeader string) (*Event, error)
}
