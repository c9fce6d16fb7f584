package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/locker-rental/internal/model"
	"github.com/iliyamo/locker-rental/internal/payment"
	"github.com/iliyamo/locker-rental/internal/repository"
	"github.com/iliyamo/locker-rental/internal/service"
	"github.com/iliyamo/locker-rental/internal/utils"
)

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestLockerListDefaultsToToday(t *testing.T) {
	lockers := &fakeLockers{}
	h := NewLockerHandler(lockers, time.UTC, nullLog())
	h.now = func() time.Time { return time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC) }

	rec := call(t, h.List, http.MethodGet, "/api/lockers", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	today := civil.Date{Year: 2025, Month: 3, Day: 10}
	assert.Equal(t, model.DateRange{Start: today, End: today}, lockers.got)
}

func TestLockerListRange(t *testing.T) {
	lockers := &fakeLockers{items: []model.LockerAvailability{{Locker: model.Locker{ID: "locker_7", Number: "07"}, Status: model.LockerOccupied}}}
	h := NewLockerHandler(lockers, time.UTC, nullLog())

	rec := call(t, h.List, http.MethodGet, "/api/lockers?startDate=2025-03-01&endDate=2025-03-31", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec.Body.Bytes())
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "occupied", items[0].(map[string]any)["status"])
	assert.Equal(t, "2025-03-01", body["startDate"])

	for _, q := range []string{"?startDate=2025-03-01", "?startDate=bad&endDate=2025-03-02", "?startDate=2025-03-05&endDate=2025-03-01"} {
		rec := call(t, h.List, http.MethodGet, "/api/lockers"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestStudentUpsertAndValidate(t *testing.T) {
	students := &fakeStudents{byID: map[string]*model.Student{"S1": {ID: "stu-1", StudentID: "S1"}}}
	h := &StudentHandler{Students: students, Log: nullLog()}

	rec := call(t, h.Upsert, http.MethodPost, "/api/students", `{"studentName":" Ana ","studentId":"S1","studentEmail":"ANA@School.edu"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, students.saved, 1)
	assert.Equal(t, "Ana", students.saved[0].StudentName)
	assert.Equal(t, "ana@school.edu", students.saved[0].StudentEmail)

	rec = call(t, h.Upsert, http.MethodPost, "/api/students", `{"studentName":"Ana","studentId":"S1","studentEmail":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h.Validate, http.MethodPost, "/api/students/validate", `{"studentId":"S1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec.Body.Bytes())["valid"])

	rec = call(t, h.Validate, http.MethodPost, "/api/students/validate", `{"studentId":"S9"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateCheckout(t *testing.T) {
	booking := &fakeBooking{}
	h := &PaymentHandler{Checkout: booking, Extensions: booking, Log: nullLog()}

	rec := call(t, h.CreateCheckout, http.MethodPost, "/api/stripe/checkout",
		`{"lockerId":"locker_7","startDate":"2025-03-01","endDate":"2025-03-31","totalMonths":1,"customerEmail":"a@b.co","customerName":"Ana"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec.Body.Bytes())
	assert.Equal(t, "https://pay.example/cs_1", body["url"])
	assert.Equal(t, "cs_1", body["sessionId"])
	assert.Equal(t, civil.Date{Year: 2025, Month: 3, Day: 31}, booking.checkoutIn.EndDate)
	assert.Equal(t, "Ana", booking.checkoutIn.Customer.Name)

	rec = call(t, h.CreateCheckout, http.MethodPost, "/api/stripe/checkout", `{"startDate":"03/01/2025"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&service.ValidationError{Field: "startDate", Reason: "must be before endDate"}, http.StatusBadRequest},
		{service.ErrLockerUnavailable, http.StatusConflict},
		{&service.NotFoundError{Entity: "locker", ID: "x"}, http.StatusNotFound},
		{&service.PaymentProviderError{Op: "create session", Err: errors.New("down")}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := &PaymentHandler{Checkout: &fakeBooking{err: tc.err}, Log: nullLog()}
		rec := call(t, h.CreateCheckout, http.MethodPost, "/api/stripe/checkout", `{"lockerId":"l"}`)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		assert.Contains(t, decode(t, rec.Body.Bytes()), "error")
	}
}

func TestCreateExtension(t *testing.T) {
	booking := &fakeBooking{}
	h := &PaymentHandler{Extensions: booking, Log: nullLog()}
	rec := call(t, h.CreateExtension, http.MethodPost, "/api/stripe/extension-checkout",
		`{"reservationId":"res-9","newEndDate":"2025-05-31","extensionMonths":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ExtensionInput{
		ReservationID:   "res-9",
		NewEndDate:      civil.Date{Year: 2025, Month: 5, Day: 31},
		ExtensionMonths: 2,
	}, booking.extensionIn)
}

func TestCreatePortal(t *testing.T) {
	booking := &fakeBooking{}
	h := &PaymentHandler{Portal: booking, Log: nullLog()}
	rec := call(t, h.CreatePortal, http.MethodPost, "/api/stripe/portal", `{"customerId":"cus_9"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://billing.example/cus_9", decode(t, rec.Body.Bytes())["url"])
	assert.Equal(t, "cus_9", booking.customerID)

	h.Portal = &fakeBooking{err: &service.ValidationError{Field: "customerId", Reason: "is required"}}
	rec = call(t, h.CreatePortal, http.MethodPost, "/api/stripe/portal", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookReceive(t *testing.T) {
	ev := &payment.Event{ID: "evt_1", Type: payment.EventSessionCompleted}
	rec := &fakeReconciler{}
	applied := 0
	h := &WebhookHandler{
		Parser:     &fakeParser{ev: ev},
		Reconciler: rec,
		OnApplied:  func(context.Context) { applied++ },
		Log:        nullLog(),
	}

	r := callWithSig(t, h, "t=1,v1=abc")
	assert.Equal(t, http.StatusOK, r.Code)
	require.Len(t, rec.handled, 1)
	assert.Equal(t, 1, applied)

	r = callWithSig(t, h, "")
	assert.Equal(t, http.StatusBadRequest, r.Code)

	h.Parser = &fakeParser{err: payment.ErrInvalidSignature}
	r = callWithSig(t, h, "t=1,v1=bad")
	assert.Equal(t, http.StatusBadRequest, r.Code)

	h.Parser = &fakeParser{ev: ev}
	rec.err = errors.New("db down")
	r = callWithSig(t, h, "t=1,v1=abc")
	assert.Equal(t, http.StatusInternalServerError, r.Code)
	assert.Equal(t, 1, applied, "failed events do not purge")
}

func TestAdminLoginIssuesCookie(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)
	h := &AdminHandler{
		Auth: AdminAuthConfig{JWTSecret: "secret", AccessTTLMin: 60, PasswordHash: string(hash)},
		Log:  nullLog(),
	}

	rec := call(t, h.Login, http.MethodPost, "/api/admin/login", `{"password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, h.Login, http.MethodPost, "/api/admin/login", `{"password":"letmein"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, utils.AdminCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	claims, err := utils.ParseAccessToken("secret", cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, utils.RoleAdmin, claims.Role)

	rec = call(t, h.Logout, http.MethodPost, "/api/admin/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Empty(t, rec.Result().Cookies()[0].Value)
}

func TestAdminSession(t *testing.T) {
	h := &AdminHandler{Auth: AdminAuthConfig{JWTSecret: "secret"}, Log: nullLog()}
	rec := call(t, h.Session, http.MethodGet, "/api/admin/session", "")
	assert.Equal(t, false, decode(t, rec.Body.Bytes())["authenticated"])
}

func TestAdminReportsAndActions(t *testing.T) {
	reports := &fakeReports{analytics: model.Analytics{TotalRentals: 3, OccupancyRate: 50}}
	rentals := &fakeRentals{sent: true}
	booking := &fakeBooking{}
	h := &AdminHandler{Reports: reports, Lockers: &fakeLockers{count: 42}, Rentals: rentals, Extensions: booking, Log: nullLog()}

	rec := call(t, h.ListActive, http.MethodGet, "/api/admin/rentals/active", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, reports.activeOnly)
	assert.True(t, *reports.activeOnly)

	rec = call(t, h.Analytics, http.MethodGet, "/api/admin/analytics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 42, reports.lockerN)
	assert.Equal(t, float64(3), decode(t, rec.Body.Bytes())["totalRentals"])

	rec = call(t, h.Cancel, http.MethodPost, "/api/admin/rentals/r1/cancel", "", "id", "r1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "canceled", decode(t, rec.Body.Bytes())["status"])

	rec = call(t, h.Extend, http.MethodPost, "/api/admin/rentals/r1/extend", `{"extensionMonths":1}`, "id", "r1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", booking.extensionIn.ReservationID)

	rec = call(t, h.RefundRequest, http.MethodPost, "/api/admin/rentals/r1/refund-request", "", "id", "r1")
	assert.Equal(t, true, decode(t, rec.Body.Bytes())["emailSent"])

	rentals.err = &service.ConflictError{Reason: "cannot cancel a completed rental"}
	rec = call(t, h.Cancel, http.MethodPost, "/api/admin/rentals/r1/cancel", "", "id", "r1")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestWaitlistHandlers(t *testing.T) {
	store := &fakeWaitlist{}
	h := &WaitlistHandler{Waitlist: store, Log: nullLog()}

	body := `{"fullName":"Ana","email":"ana@school.edu","studentId":"S1","potentialStartDate":"2025-04-01","potentialEndDate":"2025-06-30"}`
	rec := call(t, h.Create, http.MethodPost, "/api/admin/waitlist", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, model.WaitlistNone, store.created[0].Status)

	rec = call(t, h.Create, http.MethodPost, "/api/admin/waitlist", `{"fullName":"Ana"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h.Update, http.MethodPut, "/api/admin/waitlist/w-1", `{"status":"contacted"}`, "id", "w-1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, store.patches["w-1"].Status)
	assert.Equal(t, model.WaitlistContacted, *store.patches["w-1"].Status)
	assert.Nil(t, store.patches["w-1"].Email)

	rec = call(t, h.Update, http.MethodPut, "/api/admin/waitlist/w-1", `{"status":"maybe"}`, "id", "w-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	store.err = repository.ErrWaitlistDuplicate
	rec = call(t, h.Create, http.MethodPost, "/api/admin/waitlist", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	store.err = repository.ErrWaitlistNotFound
	rec = call(t, h.Delete, http.MethodDelete, "/api/admin/waitlist/zz", "", "id", "zz")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCronHandlers(t *testing.T) {
	h := &CronHandler{Sweeper: fakeSweeps{}, Log: nullLog()}

	rec := call(t, h.ExpiryReminders, http.MethodPost, "/api/cron/expiry-reminders", "")
	assert.JSONEq(t, `{"found":2,"sent":1}`, rec.Body.String())

	rec = call(t, h.ExpireRentals, http.MethodPost, "/api/cron/expire-rentals", "")
	assert.JSONEq(t, `{"expired":3,"notified":3}`, rec.Body.String())

	rec = call(t, h.ExpirePending, http.MethodPost, "/api/cron/expire-pending", "")
	assert.JSONEq(t, `{"expired":4}`, rec.Body.String())
}

type stubPinger struct{ err error }

func (s stubPinger) PingContext(context.Context) error { return s.err }

func TestHealth(t *testing.T) {
	rec := call(t, Health(nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, Health(stubPinger{err: errors.New("down")}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
