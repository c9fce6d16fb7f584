package notify

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"
)

// Notifier is the fire-and-forget email surface used by the services.
// Every method reports success and never returns an error.
type Notifier interface {
	PaymentLink(ctx context.Context, p PaymentLinkParams) bool
	Welcome(ctx context.Context, p RentalParams) bool
	ExpiryReminder(ctx context.Context, p RentalParams) bool
	LockerAvailable(ctx context.Context, p LockerAvailableParams) bool
	DepositRefundRequest(ctx context.Context, p DepositRefundParams) bool
}

// PaymentLinkParams describes a pending checkout.
type PaymentLinkParams struct {
	To           string
	Name         string
	LockerNumber string
	StartDate    civil.Date
	EndDate      civil.Date
	Amount       int64
	PaymentURL   string
}

// RentalParams describes a confirmed or ending rental.
type RentalParams struct {
	To           string
	Name         string
	LockerNumber string
	StartDate    civil.Date
	EndDate      civil.Date
}

// LockerAvailableParams is sent to the admin when a locker frees up.
type LockerAvailableParams struct {
	LockerNumber        string
	PreviousRenter      string
	PreviousRenterEmail string
	EndDate             civil.Date
	WaitlistCount       int
}

// DepositRefundParams asks the admin to refund a renter's key deposit.
type DepositRefundParams struct {
	StudentName  string
	StudentEmail string
	LockerNumber string
	StartDate    civil.Date
	EndDate      civil.Date
	Amount       int64
}

// Dispatcher turns notifier calls into Messages for a Sink.
type Dispatcher struct {
	sink       Sink
	adminEmail string
	timeout    time.Duration
	log        *logrus.Logger
	now        func() time.Time
}

// NewDispatcher returns a Dispatcher. A zero timeout means 10s.
func NewDispatcher(sink Sink, adminEmail string, timeout time.Duration, log *logrus.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{sink: sink, adminEmail: adminEmail, timeout: timeout, log: log, now: time.Now}
}

var _ Notifier = (*Dispatcher)(nil)

func dateString(d civil.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func (d *Dispatcher) send(ctx context.Context, msg Message) bool {
	if msg.To == "" {
		d.log.WithField("kind", msg.Kind).Warn("notify: no recipient, skipped")
		return false
	}
	msg.QueuedAt = d.now().UTC().Format(time.RFC3339)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.sink.Deliver(ctx, msg); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{"kind": msg.Kind, "to": msg.To}).Error("notify: deliver failed")
		return false
	}
	return true
}

func (d *Dispatcher) PaymentLink(ctx context.Context, p PaymentLinkParams) bool {
	return d.send(ctx, Message{
		Kind:         KindPaymentLink,
		To:           p.To,
		Name:         p.Name,
		LockerNumber: p.LockerNumber,
		StartDate:    dateString(p.StartDate),
		EndDate:      dateString(p.EndDate),
		Amount:       p.Amount,
		PaymentURL:   p.PaymentURL,
	})
}

func (d *Dispatcher) Welcome(ctx context.Context, p RentalParams) bool {
	return d.send(ctx, Message{
		Kind:         KindWelcome,
		To:           p.To,
		Name:         p.Name,
		LockerNumber: p.LockerNumber,
		StartDate:    dateString(p.StartDate),
		EndDate:      dateString(p.EndDate),
	})
}

func (d *Dispatcher) ExpiryReminder(ctx context.Context, p RentalParams) bool {
	return d.send(ctx, Message{
		Kind:         KindExpiryReminder,
		To:           p.To,
		Name:         p.Name,
		LockerNumber: p.LockerNumber,
		StartDate:    dateString(p.StartDate),
		EndDate:      dateString(p.EndDate),
	})
}

// LockerAvailable goes to the configured admin address.
func (d *Dispatcher) LockerAvailable(ctx context.Context, p LockerAvailableParams) bool {
	return d.send(ctx, Message{
		Kind:                KindLockerAvailable,
		To:                  d.adminEmail,
		LockerNumber:        p.LockerNumber,
		EndDate:             dateString(p.EndDate),
		PreviousRenter:      p.PreviousRenter,
		PreviousRenterEmail: p.PreviousRenterEmail,
		WaitlistCount:       p.WaitlistCount,
	})
}

// DepositRefundRequest goes to the admin, who starts the refund.
func (d *Dispatcher) DepositRefundRequest(ctx context.Context, p DepositRefundParams) bool {
	return d.send(ctx, Message{
		Kind:         KindDepositRefund,
		To:           d.adminEmail,
		Name:         p.StudentName,
		RenterEmail:  p.StudentEmail,
		LockerNumber: p.LockerNumber,
		StartDate:    dateString(p.StartDate),
		EndDate:      dateString(p.EndDate),
		Amount:       p.Amount,
	})
}
