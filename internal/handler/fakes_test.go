package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/iliyamo/locker-rental/internal/model"
	"github.com/iliyamo/locker-rental/internal/payment"
	"github.com/iliyamo/locker-rental/internal/repository"
	"github.com/iliyamo/locker-rental/internal/service"
)

func nullLog() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

// call runs h against a JSON request and returns the recorder.
func call(t *testing.T, h echo.HandlerFunc, method, target, body string, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	for i := 0; i+1 < len(params); i += 2 {
		c.SetParamNames(append(c.ParamNames(), params[i])...)
		c.SetParamValues(append(c.ParamValues(), params[i+1])...)
	}
	if err := h(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

type fakeLockers struct {
	got   model.DateRange
	items []model.LockerAvailability
	count int
	err   error
}

func (f *fakeLockers) ListWithAvailability(_ context.Context, rng model.DateRange) ([]model.LockerAvailability, error) {
	f.got = rng
	return f.items, f.err
}

func (f *fakeLockers) Count(context.Context) (int, error) { return f.count, f.err }

type fakeStudents struct {
	byID  map[string]*model.Student
	saved []model.Student
}

func (f *fakeStudents) GetByStudentID(_ context.Context, id string) (*model.Student, error) {
	if s, ok := f.byID[id]; ok {
		return s, nil
	}
	return nil, repository.ErrStudentNotFound
}

func (f *fakeStudents) Upsert(_ context.Context, s model.Student) (*model.Student, error) {
	f.saved = append(f.saved, s)
	s.ID = "stu-1"
	return &s, nil
}

type fakeBooking struct {
	checkoutIn  service.CheckoutInput
	extensionIn service.ExtensionInput
	customerID  string
	err         error
}

func (f *fakeBooking) result() *service.CheckoutResult {
	return &service.CheckoutResult{
		Reservation: &model.Reservation{ID: "res-1"},
		PaymentURL:  "https://pay.example/cs_1",
		SessionID:   "cs_1",
	}
}

func (f *fakeBooking) CreateCheckout(_ context.Context, in service.CheckoutInput) (*service.CheckoutResult, error) {
	f.checkoutIn = in
	if f.err != nil {
		return nil, f.err
	}
	return f.result(), nil
}

func (f *fakeBooking) CreateExtension(_ context.Context, in service.ExtensionInput) (*service.CheckoutResult, error) {
	f.extensionIn = in
	if f.err != nil {
		return nil, f.err
	}
	return f.result(), nil
}

func (f *fakeBooking) CreatePortalSession(_ context.Context, customerID string) (string, error) {
	f.customerID = customerID
	if f.err != nil {
		return "", f.err
	}
	return "https://billing.example/" + customerID, nil
}

type fakeParser struct {
	ev  *payment.Event
	err error
}

func (f *fakeParser) ParseEvent([]byte, string) (*payment.Event, error) { return f.ev, f.err }

type fakeReconciler struct {
	handled []*payment.Event
	err     error
}

func (f *fakeReconciler) Handle(_ context.Context, ev *payment.Event) error {
	f.handled = append(f.handled, ev)
	return f.err
}

type fakeReports struct {
	activeOnly *bool
	analytics  model.Analytics
	lockerN    int
}

func (f *fakeReports) ListRentals(_ context.Context, activeOnly bool) ([]model.RentalRecord, error) {
	f.activeOnly = &activeOnly
	return []model.RentalRecord{{ID: "r1"}}, nil
}

func (f *fakeReports) Analytics(_ context.Context, lockerCount int) (model.Analytics, error) {
	f.lockerN = lockerCount
	return f.analytics, nil
}

type fakeRentals struct {
	err  error
	sent bool
}

func (f *fakeRentals) Cancel(_ context.Context, id string) (*model.Reservation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Reservation{ID: id, Status: model.StatusCanceled}, nil
}

func (f *fakeRentals) RequestDepositRefund(context.Context, string) (bool, error) {
	return f.sent, f.err
}

type fakeWaitlist struct {
	created []model.WaitlistEntry
	patches map[string]repository.WaitlistPatch
	err     error
}

func (f *fakeWaitlist) List(context.Context) ([]model.WaitlistEntry, error) { return f.created, f.err }

func (f *fakeWaitlist) Create(_ context.Context, e model.WaitlistEntry) (*model.WaitlistEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	e.ID = "w-1"
	f.created = append(f.created, e)
	return &e, nil
}

func (f *fakeWaitlist) Update(_ context.Context, id string, p repository.WaitlistPatch) (*model.WaitlistEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.patches == nil {
		f.patches = map[string]repository.WaitlistPatch{}
	}
	f.patches[id] = p
	return &model.WaitlistEntry{ID: id}, nil
}

func (f *fakeWaitlist) Delete(context.Context, string) error { return f.err }

type fakeSweeps struct{}

func (fakeSweeps) SendExpiryReminders(context.Context) (service.ReminderReport, error) {
	return service.ReminderReport{Found: 2, Sent: 1}, nil
}

func (fakeSweeps) RunExpiry(context.Context) (service.ExpiryReport, error) {
	return service.ExpiryReport{Expired: 3, Notified: 3}, nil
}

func (fakeSweeps) ExpireStalePending(context.Context) (int64, error) { return 4, nil }

func callWithSig(t *testing.T, h *WebhookHandler, sig string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(`{"id":"evt_1"}`))
	if sig != "" {
		req.Header.Set("Stripe-Signature", sig)
	}
	rec := httptest.NewRecorder()
	if err := h.Receive(echo.New().NewContext(req, rec)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}
