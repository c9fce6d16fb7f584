package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/model"
	"github.com/iliyamo/locker-rental/internal/notify"
	"github.com/iliyamo/locker-rental/internal/payment"
	"github.com/iliyamo/locker-rental/internal/repository"
)

// DefaultKeyDeposit is the refundable key deposit in cents.
const DefaultKeyDeposit int64 = 5000

// LockerReader loads a locker by id.
type LockerReader interface {
	GetByID(ctx context.Context, id string) (*model.Locker, error)
}

// CheckoutConfig carries pricing and redirect settings.
type CheckoutConfig struct {
	KeyDeposit      int64
	Currency        string
	FrontendURL     string
	SessionTTL      time.Duration
	ProviderTimeout time.Duration
}

func (c CheckoutConfig) withDefaults() CheckoutConfig {
	if c.Currency == "" {
		c.Currency = "usd"
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 15 * time.Second
	}
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
	return c
}

// Deps are the collaborators shared by the checkout and extension flows.
type Deps struct {
	Lockers  LockerReader
	Students StudentReader // optional; checks studentRef on checkout
	Store    repository.ReservationStore
	Payments payment.Provider
	Notifier notify.Notifier
	Log      *logrus.Logger
}

// booker holds what both booking flows need to open a payment session
// and record the pending reservation behind it.
type booker struct {
	lockers  LockerReader
	students StudentReader
	store    repository.ReservationStore
	avail    *Availability
	payments payment.Provider
	notifier notify.Notifier
	cfg      CheckoutConfig
	log      *logrus.Logger
	now      func() time.Time
}

func newBooker(d Deps, cfg CheckoutConfig) *booker {
	return &booker{
		lockers:  d.Lockers,
		students: d.Students,
		store:    d.Store,
		avail:    NewAvailability(d.Store),
		payments: d.Payments,
		notifier: d.Notifier,
		cfg:      cfg.withDefaults(),
		log:      d.Log,
		now:      time.Now,
	}
}

func (b *booker) locker(ctx context.Context, id string) (*model.Locker, error) {
	l, err := b.lockers.GetByID(ctx, id)
	if errors.Is(err, repository.ErrLockerNotFound) {
		return nil, &NotFoundError{Entity: "locker", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load locker: %w", err)
	}
	return l, nil
}

func (b *booker) checkStudent(ctx context.Context, ref string) error {
	if ref == "" || b.students == nil {
		return nil
	}
	_, err := b.students.GetByID(ctx, ref)
	if errors.Is(err, repository.ErrStudentNotFound) {
		return invalid("studentRef", "does not match a registered student")
	}
	if err != nil {
		return fmt.Errorf("load student: %w", err)
	}
	return nil
}

func (b *booker) openSession(ctx context.Context, email string, items []payment.LineItem, booking payment.Booking) (*payment.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ProviderTimeout)
	defer cancel()

	sess, err := b.payments.CreateSession(ctx, payment.SessionRequest{
		CustomerEmail: email,
		Currency:      b.cfg.Currency,
		LineItems:     items,
		Metadata:      booking.Metadata(),
		SuccessURL:    b.cfg.FrontendURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     b.cfg.FrontendURL + "/lockers",
		ExpiresAt:     b.now().Add(b.cfg.SessionTTL),
	})
	if err != nil {
		return nil, &PaymentProviderError{Op: "create session", Err: err}
	}
	if sess.URL == "" {
		return nil, &PaymentProviderError{Op: "create session", Err: errors.New("no checkout url returned")}
	}
	return sess, nil
}

func (b *booker) persistPending(ctx context.Context, res *model.Reservation) error {
	err := b.store.Create(ctx, res)
	if errors.Is(err, repository.ErrDuplicateSession) {
		return &ConflictError{Reason: "payment session already recorded", Err: err}
	}
	if err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (b *booker) sendPaymentLink(ctx context.Context, to, name string, locker *model.Locker, rng model.DateRange, amount int64, url string) {
	ok := b.notifier.PaymentLink(ctx, notify.PaymentLinkParams{
		To:           to,
		Name:         name,
		LockerNumber: locker.Number,
		StartDate:    rng.Start,
		EndDate:      rng.End,
		Amount:       amount,
		PaymentURL:   url,
	})
	if !ok {
		b.log.WithField("to", to).Warn("payment link email not sent, session created anyway")
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// Customer identifies who pays for a checkout.
type Customer struct {
	Email        string
	Name         string
	StudentRef   string
	StudentEmail string
}

// CheckoutInput is a first-time booking request. A zero TotalMonths is
// derived from the dates.
type CheckoutInput struct {
	LockerID    string
	StartDate   civil.Date
	EndDate     civil.Date
	TotalMonths int
	Customer    Customer
}

// CheckoutResult is the pending reservation and where to pay for it.
type CheckoutResult struct {
	Reservation *model.Reservation `json:"reservation"`
	PaymentURL  string             `json:"paymentUrl"`
	SessionID   string             `json:"sessionId"`
}

// Checkout starts first-time bookings.
type Checkout struct {
	*booker
}

func NewCheckout(d Deps, cfg CheckoutConfig) *Checkout {
	return &Checkout{booker: newBooker(d, cfg)}
}

func validateEmail(raw string) (string, error) {
	email := model.NormalizeEmail(raw)
	if email == "" {
		return "", invalid("email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email", "is not a valid address")
	}
	return email, nil
}

func validateRange(start, end civil.Date) (model.DateRange, error) {
	if !start.IsValid() {
		return model.DateRange{}, invalid("startDate", "is required")
	}
	if !end.IsValid() {
		return model.DateRange{}, invalid("endDate", "is required")
	}
	rng, err := model.NewDateRange(start, end)
	if err != nil {
		return model.DateRange{}, invalid("endDate", err.Error())
	}
	return rng, nil
}

func resolveMonths(months int, rng model.DateRange) (int, error) {
	if months < 0 {
		return 0, invalid("totalMonths", "must be at least 1")
	}
	if months == 0 {
		return model.MonthsBetween(rng.Start, rng.End), nil
	}
	return months, nil
}

// CreateCheckout checks availability, opens a payment session for rent
// plus deposit and records a pending reservation for it. The availability
// check and the insert are not atomic; two concurrent checkouts for the
// same range can both end up pending.
func (c *Checkout) CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	email, err := validateEmail(in.Customer.Email)
	if err != nil {
		return nil, err
	}
	rng, err := validateRange(in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}
	months, err := resolveMonths(in.TotalMonths, rng)
	if err != nil {
		return nil, err
	}
	if in.LockerID == "" {
		return nil, invalid("lockerId", "is required")
	}
	if err := c.checkStudent(ctx, in.Customer.StudentRef); err != nil {
		return nil, err
	}

	locker, err := c.locker(ctx, in.LockerID)
	if err != nil {
		return nil, err
	}
	ok, err := c.avail.IsAvailable(ctx, locker.ID, rng, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockerUnavailable
	}

	rental := locker.PricePerMonth * int64(months)
	deposit := c.cfg.KeyDeposit
	total := rental + deposit

	items := []payment.LineItem{{
		Name:        fmt.Sprintf("Locker #%s Rental - %d month%s", locker.Number, months, plural(months)),
		Description: fmt.Sprintf("Locker reservation from %s to %s", rng.Start, rng.End),
		Amount:      rental,
	}}
	if deposit > 0 {
		items = append(items, payment.LineItem{Name: "Key Deposit", Description: "Refundable key deposit", Amount: deposit})
	}

	studentEmail := in.Customer.StudentEmail
	if studentEmail == "" {
		studentEmail = email
	}
	booking := payment.Booking{
		LockerID:      locker.ID,
		LockerNumber:  locker.Number,
		StartDate:     rng.Start,
		EndDate:       rng.End,
		TotalMonths:   months,
		RentalAmount:  rental,
		KeyDeposit:    deposit,
		TotalAmount:   total,
		CustomerEmail: email,
		StudentRef:    in.Customer.StudentRef,
		StudentEmail:  studentEmail,
		StudentName:   in.Customer.Name,
	}
	sess, err := c.openSession(ctx, email, items, booking)
	if err != nil {
		return nil, err
	}

	res := &model.Reservation{
		ID:               uuid.NewString(),
		PaymentSessionID: &sess.ID,
		CustomerEmail:    &email,
		LockerID:         locker.ID,
		Status:           model.StatusPending,
		StartDate:        rng.Start,
		EndDate:          rng.End,
		TotalMonths:      months,
		TotalAmount:      total,
	}
	if in.Customer.StudentRef != "" {
		ref := in.Customer.StudentRef
		res.StudentRef = &ref
	}
	if err := c.persistPending(ctx, res); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"locker":         locker.Number,
		"range":          rng.String(),
		"amount":         total,
	}).Info("checkout session created")

	c.sendPaymentLink(ctx, email, in.Customer.Name, locker, rng, total, sess.URL)
	return &CheckoutResult{Reservation: res, PaymentURL: sess.URL, SessionID: sess.ID}, nil
}

// CreatePortalSession returns a billing portal link for a payer account
// created by an earlier checkout. The portal returns to the lockers page.
func (c *Checkout) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return "", invalid("customerId", "is required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
	defer cancel()
	url, err := c.payments.CreatePortalSession(ctx, customerID, c.cfg.FrontendURL+"/lockers")
	if err != nil {
		return "", &PaymentProviderError{Op: "create portal session", Err: err}
	}
	return url, nil
}
