package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/model"
	"github.com/iliyamo/locker-rental/internal/notify"
	"github.com/iliyamo/locker-rental/internal/payment"
	"github.com/iliyamo/locker-rental/internal/repository"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func strPtr(s string) *string { return &s }

// MemStore is an in-memory repository.ReservationStore. InTx snapshots the
// rows and restores them when fn fails.
type MemStore struct {
	mu      sync.Mutex
	rows    map[string]model.Reservation
	numbers map[string]string // locker id -> number
	now     func() time.Time

	CreateErr error
	UpdateErr error
}

func NewMemStore() *MemStore {
	return &MemStore{
		rows:    map[string]model.Reservation{},
		numbers: map[string]string{},
		now:     time.Now,
	}
}

var _ repository.ReservationStore = (*MemStore)(nil)

func (m *MemStore) Put(res model.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = m.now()
	}
	m.rows[res.ID] = res
}

func (m *MemStore) Get(id string) model.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *MemStore) Create(_ context.Context, res *model.Reservation) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if res.PaymentSessionID != nil {
		for _, r := range m.rows {
			if r.PaymentSessionID != nil && *r.PaymentSessionID == *res.PaymentSessionID {
				return repository.ErrDuplicateSession
			}
		}
	}
	res.CreatedAt = m.now()
	res.UpdatedAt = res.CreatedAt
	m.rows[res.ID] = *res
	return nil
}

func (m *MemStore) GetByID(_ context.Context, id string) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	return &r, nil
}

func (m *MemStore) GetBySessionID(_ context.Context, sessionID string) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.PaymentSessionID != nil && *r.PaymentSessionID == sessionID {
			return &r, nil
		}
	}
	return nil, repository.ErrReservationNotFound
}

func (m *MemStore) ListByLocker(_ context.Context, lockerID string) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Reservation
	for _, r := range m.rows {
		if r.LockerID == lockerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func statusAllowed(s model.Status, set []model.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func (m *MemStore) Update(_ context.Context, id string, p repository.ReservationPatch) (*model.Reservation, error) {
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	if len(p.IfStatus) > 0 && !statusAllowed(r.Status, p.IfStatus) {
		return nil, repository.ErrStatusMismatch
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.PaymentIntentID != nil {
		r.PaymentIntentID = p.PaymentIntentID
	}
	if p.PayerAccountID != nil {
		r.PayerAccountID = p.PayerAccountID
	}
	if p.CustomerEmail != nil {
		r.CustomerEmail = p.CustomerEmail
	}
	if p.StudentRef != nil {
		r.StudentRef = p.StudentRef
	}
	if p.EndDate != nil {
		r.EndDate = *p.EndDate
	}
	if p.TotalAmount != nil {
		r.TotalAmount = *p.TotalAmount
	}
	if p.AddAmount != nil {
		r.TotalAmount += *p.AddAmount
	}
	if p.IsExtension != nil {
		r.IsExtension = *p.IsExtension
	}
	r.UpdatedAt = m.now()
	m.rows[id] = r
	return &r, nil
}

func (m *MemStore) LinkStudent(ctx context.Context, id, studentRef string) error {
	_, err := m.Update(ctx, id, repository.ReservationPatch{StudentRef: &studentRef})
	return err
}

func (m *MemStore) HasOverlap(_ context.Context, lockerID string, rng model.DateRange, statuses []model.Status, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.LockerID != lockerID || r.ID == excludeID || !statusAllowed(r.Status, statuses) {
			continue
		}
		if r.Range().Overlaps(rng) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) InTx(_ context.Context, fn func(tx repository.ReservationStore) error) error {
	m.mu.Lock()
	snapshot := make(map[string]model.Reservation, len(m.rows))
	for k, v := range m.rows {
		snapshot[k] = v
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.rows = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MemStore) record(r model.Reservation) model.RentalRecord {
	rec := model.RentalRecord{
		ID: r.ID, LockerID: r.LockerID, LockerNumber: m.numbers[r.LockerID],
		Status: r.Status, StartDate: r.StartDate, EndDate: r.EndDate,
		TotalMonths: r.TotalMonths, TotalAmount: r.TotalAmount, CreatedAt: r.CreatedAt,
	}
	if r.CustomerEmail != nil {
		rec.CustomerEmail = *r.CustomerEmail
	}
	return rec
}

func (m *MemStore) CompleteEnded(_ context.Context, today civil.Date) ([]model.RentalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	done := []model.RentalRecord{}
	ids := map[string]bool{}
	for id, r := range m.rows {
		if r.IsExtension || r.Status != model.StatusActive || r.EndDate.After(today) {
			continue
		}
		r.Status = model.StatusCompleted
		m.rows[id] = r
		ids[id] = true
		done = append(done, m.record(r))
	}
	for id, r := range m.rows {
		if r.Status != model.StatusActive || !r.IsExtension {
			continue
		}
		merged := r.OriginalReservationID != nil && ids[*r.OriginalReservationID]
		if merged || !r.EndDate.After(today) {
			r.Status = model.StatusCompleted
			m.rows[id] = r
		}
	}
	return done, nil
}

func (m *MemStore) ListActiveEndingOn(_ context.Context, day civil.Date) ([]model.RentalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.RentalRecord{}
	for _, r := range m.rows {
		if !r.IsExtension && r.Status == model.StatusActive && r.EndDate == day {
			out = append(out, m.record(r))
		}
	}
	return out, nil
}

func (m *MemStore) ExpireStalePending(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.rows {
		if r.Status == model.StatusPending && r.CreatedAt.Before(cutoff) {
			r.Status = model.StatusExpired
			m.rows[id] = r
			n++
		}
	}
	return n, nil
}

// MockLockers implements LockerReader.
type MockLockers struct {
	Lockers map[string]*model.Locker
}

func (m *MockLockers) GetByID(_ context.Context, id string) (*model.Locker, error) {
	l, ok := m.Lockers[id]
	if !ok {
		return nil, repository.ErrLockerNotFound
	}
	return l, nil
}

// MockProvider implements payment.Provider.
type MockProvider struct {
	Requests    []payment.SessionRequest
	PortalCalls []string
	Err         error
	seq         int
}

func (m *MockProvider) CreateSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	m.seq++
	id := fmt.Sprintf("cs_test_%d", m.seq)
	return &payment.Session{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (m *MockProvider) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	m.PortalCalls = append(m.PortalCalls, customerID+" "+returnURL)
	if m.Err != nil {
		return "", m.Err
	}
	return "https://billing.test/" + customerID, nil
}

func (m *MockProvider) Last() payment.SessionRequest { return m.Requests[len(m.Requests)-1] }

// MockNotifier implements notify.Notifier and records every call.
type MockNotifier struct {
	Fail           bool
	PaymentLinks   []notify.PaymentLinkParams
	Welcomes       []notify.RentalParams
	Reminders      []notify.RentalParams
	Available      []notify.LockerAvailableParams
	DepositRefunds []notify.DepositRefundParams
}

func (m *MockNotifier) PaymentLink(_ context.Context, p notify.PaymentLinkParams) bool {
	m.PaymentLinks = append(m.PaymentLinks, p)
	return !m.Fail
}

func (m *MockNotifier) Welcome(_ context.Context, p notify.RentalParams) bool {
	m.Welcomes = append(m.Welcomes, p)
	return !m.Fail
}

func (m *MockNotifier) ExpiryReminder(_ context.Context, p notify.RentalParams) bool {
	m.Reminders = append(m.Reminders, p)
	return !m.Fail
}

func (m *MockNotifier) LockerAvailable(_ context.Context, p notify.LockerAvailableParams) bool {
	m.Available = append(m.Available, p)
	return !m.Fail
}

func (m *MockNotifier) DepositRefundRequest(_ context.Context, p notify.DepositRefundParams) bool {
	m.DepositRefunds = append(m.DepositRefunds, p)
	return !m.Fail
}

// MockWaitlist implements WaitlistDirectory.
type MockWaitlist struct {
	Emails    map[string]bool
	Removed   []string
	RemoveErr error
}

func (m *MockWaitlist) RemoveByEmail(_ context.Context, email string) (bool, error) {
	if m.RemoveErr != nil {
		return false, m.RemoveErr
	}
	m.Removed = append(m.Removed, email)
	if m.Emails[email] {
		delete(m.Emails, email)
		return true, nil
	}
	return false, nil
}

func (m *MockWaitlist) Count(context.Context) (int, error) { return len(m.Emails), nil }

// MockGuard implements EventGuard.
type MockGuard struct {
	Claimed  map[string]bool
	Released []string
	Err      error
}

func (m *MockGuard) Claim(_ context.Context, key string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	if m.Claimed[key] {
		return false, nil
	}
	m.Claimed[key] = true
	return true, nil
}

func (m *MockGuard) Release(_ context.Context, key string) error {
	delete(m.Claimed, key)
	m.Released = append(m.Released, key)
	return nil
}

// MockStudents implements StudentReader.
type MockStudents struct {
	Students map[string]*model.Student
}

func (m *MockStudents) GetByID(_ context.Context, id string) (*model.Student, error) {
	s, ok := m.Students[id]
	if !ok {
		return nil, repository.ErrStudentNotFound
	}
	return s, nil
}

type failingStudents struct{}

func (failingStudents) GetByID(context.Context, string) (*model.Student, error) { return nil, errBoom }

var errBoom = errors.New("boom")

// fixture wires every service against the in-memory fakes. Locker "l-07"
// is number 07 at 5000 cents a month; student "stu-1" is registered.
type fixture struct {
	store    *MemStore
	lockers  *MockLockers
	students *MockStudents
	provider *MockProvider
	notifier *MockNotifier
	waitlist *MockWaitlist
	guard    *MockGuard

	checkout   *Checkout
	extensions *Extensions
	reconciler *Reconciler
	sweeper    *Sweeper
}

func newFixture() *fixture {
	f := &fixture{
		store: NewMemStore(),
		lockers: &MockLockers{Lockers: map[string]*model.Locker{
			"l-07": {ID: "l-07", Number: "07", PricePerMonth: 5000},
			"l-08": {ID: "l-08", Number: "08", PricePerMonth: 7500},
		}},
		students: &MockStudents{Students: map[string]*model.Student{
			"stu-1": {ID: "stu-1", StudentID: "S1", StudentName: "Ana", StudentEmail: "ana@school.edu"},
		}},
		provider: &MockProvider{},
		notifier: &MockNotifier{},
		waitlist: &MockWaitlist{Emails: map[string]bool{}},
		guard:    &MockGuard{Claimed: map[string]bool{}},
	}
	f.store.numbers["l-07"] = "07"
	f.store.numbers["l-08"] = "08"

	log := quietLogger()
	deps := Deps{Lockers: f.lockers, Students: f.students, Store: f.store, Payments: f.provider, Notifier: f.notifier, Log: log}
	cfg := CheckoutConfig{KeyDeposit: DefaultKeyDeposit, Currency: "usd", FrontendURL: "https://lockers.test/"}
	f.checkout = NewCheckout(deps, cfg)
	f.extensions = NewExtensions(deps, cfg)
	f.reconciler = NewReconciler(f.store, f.lockers, f.waitlist, f.notifier, f.guard, log)
	f.sweeper = NewSweeper(f.store, f.waitlist, f.notifier, SweeperConfig{Location: time.UTC, PendingTTL: 25 * time.Hour}, log)
	return f
}

// completed builds the completed-session event the provider would send
// for the last session it created.
func (f *fixture) completed(eventID string) *payment.Event {
	req := f.provider.Last()
	return &payment.Event{
		ID:              eventID,
		Type:            payment.EventSessionCompleted,
		SessionID:       fmt.Sprintf("cs_test_%d", f.provider.seq),
		Metadata:        req.Metadata,
		PaymentIntentID: "pi_" + eventID,
		PayerAccountID:  "cus_1",
		CustomerEmail:   req.CustomerEmail,
	}
}
