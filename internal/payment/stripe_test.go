package payment

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestStripe(t *testing.T, h http.HandlerFunc) *Stripe {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	backends := &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	return NewStripe("sk_test_123", testWebhookSecret, backends, quietLogger())
}

func TestCreateSession_SendsMetadataAndLineItems(t *testing.T) {
	var form map[string][]string
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.example/cs_test_1"}`))
	})

	booking := Booking{
		LockerID: "locker_7", LockerNumber: "07",
		StartDate:   civil.Date{Year: 2025, Month: 1, Day: 1},
		EndDate:     civil.Date{Year: 2025, Month: 3, Day: 1},
		TotalMonths: 2, RentalAmount: 10000, KeyDeposit: 5000, TotalAmount: 15000,
	}
	sess, err := s.CreateSession(context.Background(), SessionRequest{
		CustomerEmail: "renter@example.com",
		Currency:      "usd",
		LineItems: []LineItem{
			{Name: "Locker #07 Rental - 2 months", Amount: 10000},
			{Name: "Key Deposit", Description: "Refundable", Amount: 5000},
		},
		Metadata:   booking.Metadata(),
		SuccessURL: "https://app.example/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://app.example/lockers",
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, "https://checkout.example/cs_test_1", sess.URL)

	get := func(k string) string {
		if v := form[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	assert.Equal(t, "payment", get("mode"))
	assert.Equal(t, "locker_7", get("metadata[lockerId]"))
	assert.Equal(t, "15000", get("metadata[totalAmount]"))
	assert.Equal(t, "false", get("metadata[isExtension]"))
	assert.Equal(t, "10000", get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "Key Deposit", get("line_items[1][price_data][product_data][name]"))
	assert.Equal(t, "renter@example.com", get("customer_email"))
}

func TestCreateSession_ProviderError(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad currency"}}`))
	})

	_, err := s.CreateSession(context.Background(), SessionRequest{Currency: "xxx"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

const completedEvent = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "cs_test_1",
      "object": "checkout.session",
      "payment_intent": "pi_123",
      "customer": "cus_456",
      "customer_email": "renter@example.com",
      "metadata": {"lockerId": "locker_7", "lockerNumber": "07", "isExtension": "false"}
    }
  }
}`

func TestCreatePortalSession(t *testing.T) {
	var form map[string][]string
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/billing_portal/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"bps_1","object":"billing_portal.session","url":"https://billing.example/bps_1"}`))
	})

	url, err := s.CreatePortalSession(context.Background(), "cus_42", "https://app.example/lockers")
	require.NoError(t, err)
	assert.Equal(t, "https://billing.example/bps_1", url)
	assert.Equal(t, []string{"cus_42"}, form["customer"])
	assert.Equal(t, []string{"https://app.example/lockers"}, form["return_url"])
}

func TestParseEvent_Completed(t *testing.T) {
	s := NewStripe("sk_test_123", testWebhookSecret, nil, quietLogger())
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(completedEvent),
		Secret:  testWebhookSecret,
	})

	ev, err := s.ParseEvent(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventSessionCompleted, ev.Type)
	assert.Equal(t, "cs_test_1", ev.SessionID)
	assert.Equal(t, "pi_123", ev.PaymentIntentID)
	assert.Equal(t, "cus_456", ev.PayerAccountID)
	assert.Equal(t, "renter@example.com", ev.CustomerEmail)
	assert.Equal(t, "07", ev.Metadata.Booking().LockerNumber)
}

func TestParseEvent_BadSignature(t *testing.T) {
	s := NewStripe("sk_test_123", testWebhookSecret, nil, quietLogger())
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(completedEvent),
		Secret:  "whsec_someone_else",
	})

	_, err := s.ParseEvent(signed.Payload, signed.Header)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = s.ParseEvent([]byte(completedEvent), "")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParseEvent_OtherTypesPassThrough(t *testing.T) {
	s := NewStripe("sk_test_123", testWebhookSecret, nil, quietLogger())
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(`{"id":"evt_2","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`),
		Secret:  testWebhookSecret,
	})

	ev, err := s.ParseEvent(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, EventType("charge.refunded"), ev.Type)
	assert.Empty(t, ev.SessionID)
}

func TestBookingMetadata(t *testing.T) {
	b := Booking{
		LockerID: "locker_7", LockerNumber: "07",
		StartDate:   civil.Date{Year: 2025, Month: 3, Day: 2},
		EndDate:     civil.Date{Year: 2025, Month: 4, Day: 30},
		TotalMonths: 2, RentalAmount: 10000, TotalAmount: 10000,
		IsExtension: true, OriginalReservationID: "r1",
	}
	m := b.Metadata()
	assert.Equal(t, "true", m[KeyIsExtension])
	assert.Equal(t, "r1", m[KeyOriginalReservationID])
	_, hasStudent := m[KeyStudentRef]
	assert.False(t, hasStudent, "empty optional keys are omitted")
	assert.Equal(t, b, m.Booking())

	assert.Equal(t, Booking{}, Metadata{}.Booking())
}
