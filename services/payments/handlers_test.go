package payments

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
	"github.com/zavolah/marketplace/internal/webhook"
	"github.com/zavolah/marketplace/pkg/testutil"
)

const testSecret = "whsec_test"

type eventCounter map[string]int

func (c eventCounter) RecordWebhookEvent(eventType, outcome string) { c[eventType+"/"+outcome]++ }

func newTestRouter(t *testing.T) (*mux.Router, *testutil.FakeSupabase, eventCounter) {
	t.Helper()
	fake := testutil.NewFakeSupabase(t)
	events := eventCounter{}
	r := mux.NewRouter()
	NewHandler(NewSupabaseRepository(fake.Client(t)), webhook.NewVerifier(testSecret, 0), events, logging.Discard()).
		RegisterRoutes(r.PathPrefix("/api").Subrouter())
	return r, fake, events
}

func postWebhook(t *testing.T, r http.Handler, payload, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook/stripe", strings.NewReader(payload))
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func signed(payload string) string {
	return webhook.Sign([]byte(payload), testSecret, time.Now())
}

func TestInitiatePayment(t *testing.T) {
	r, fake, _ := newTestRouter(t)

	rec := testutil.DoJSON(t, r, http.MethodPost, "/api/payments/initiate", map[string]interface{}{
		"user_id": "u1", "amount": 40, "currency": "USD", "payment_method": "card",
		"description": "order o1", "metadata": map[string]string{"order_id": "o1"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := testutil.DecodeJSON[Payment](t, rec)
	assert.Equal(t, StatusPending, p.Status)
	require.NotNil(t, p.PaymentIntentID)
	assert.Regexp(t, regexp.MustCompile(`^pi_[0-9a-f]{24}$`), *p.PaymentIntentID)
	assert.Equal(t, "o1", p.Metadata["order_id"])
	assert.Len(t, fake.Rows("payments"), 1)

	rec = testutil.DoJSON(t, r, http.MethodPost, "/api/payments/initiate", map[string]interface{}{
		"user_id": "u1", "amount": 40, "currency": "USD", "payment_method": "cheque",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyPayment_FulfillsMetadataTargets(t *testing.T) {
	r, fake, _ := newTestRouter(t)
	fake.Seed("payments", testutil.Row{
		"id": "p1", "user_id": "u1", "amount": 40, "status": "pending", "payment_intent_id": "pi_abc",
		"metadata": map[string]string{"order_id": "o1", "booking_id": "b1", "purchase_id": "mp1"},
	})
	fake.Seed("orders", testutil.Row{"id": "o1", "status": "pending", "payment_status": "pending"})
	fake.Seed("bookings", testutil.Row{"id": "b1", "status": "pending", "payment_status": "pending"})
	fake.Seed("marketplace_purchases", testutil.Row{"id": "mp1", "status": "pending", "payment_status": "pending"})

	rec := testutil.DoJSON(t, r, http.MethodPost, "/api/payments/verify", map[string]string{
		"payment_id": "p1", "payment_intent_id": "pi_abc", "status": "completed",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, StatusCompleted, testutil.DecodeJSON[Payment](t, rec).Status)

	for _, target := range []struct{ table, id string }{{"orders", "o1"}, {"bookings", "b1"}, {"marketplace_purchases", "mp1"}} {
		row := fake.Find(target.table, target.id)
		assert.Equal(t, "confirmed", row["status"], target.table)
		assert.Equal(t, "completed", row["payment_status"], target.table)
	}
}

func TestVerifyPayment_FulfillmentFailureIsNotFatal(t *testing.T) {
	r, fake, _ := newTestRouter(t)
	fake.Seed("payments", testutil.Row{"id": "p1", "user_id": "u1", "amount": 40, "status": "pending", "metadata": map[string]string{"order_id": "o1"}})
	fake.FailNext(http.MethodPatch, "orders", http.StatusInternalServerError)

	rec := testutil.DoJSON(t, r, http.MethodPost, "/api/payments/verify", map[string]string{"payment_id": "p1", "status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, StatusCompleted, fake.Find("payments", "p1")["status"])
}

func TestVerifyPayment_Errors(t *testing.T) {
	r, fake, _ := newTestRouter(t)
	fake.Seed("payments", testutil.Row{"id": "p1", "user_id": "u1", "amount": 40, "status": "pending", "payment_intent_id": "pi_abc"})

	rec := testutil.DoJSON(t, r, http.MethodPost, "/api/payments/verify", map[string]string{"payment_id": "p9", "status": "completed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = testutil.DoJSON(t, r, http.MethodPost, "/api/payments/verify", map[string]string{"payment_id": "p1", "status": "done"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.DoJSON(t, r, http.MethodPost, "/api/payments/verify", map[string]string{"payment_id": "p1", "payment_intent_id": "pi_other", "status": "completed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, StatusPending, fake.Find("payments", "p1")["status"])
}

func TestListAndGetPayments(t *testing.T) {
	r, fake, _ := newTestRouter(t)
	fake.Seed("payments",
		testutil.Row{"id": "p1", "user_id": "u1", "amount": 10, "status": "completed", "payment_method": "card"},
		testutil.Row{"id": "p2", "user_id": "u1", "amount": 20, "status": "pending", "payment_method": "paypal"},
		testutil.Row{"id": "p3", "user_id": "u2", "amount": 30, "status": "completed", "payment_method": "card"},
	)

	rec := testutil.DoJSON(t, r, http.MethodGet, "/api/payments?status=completed&payment_method=card", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payments := testutil.DecodeJSON[[]Payment](t, rec)
	require.Len(t, payments, 2)
	assert.Equal(t, "p3", payments[0].ID)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/payments/user/u1/history?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payments = testutil.DecodeJSON[[]Payment](t, rec)
	require.Len(t, payments, 1)
	assert.Equal(t, "p2", payments[0].ID)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/payments/p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10.0, testutil.DecodeJSON[Payment](t, rec).Amount)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/payments/p9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefunds(t *testing.T) {
	r, fake, _ := newTestRouter(t)
	fake.Seed("payments", testutil.Row{"id": "p1", "user_id": "u1", "amount": 40, "status": "completed"})

	rec := testutil.DoJSON(t, r, http.MethodPost, "/api/payments/refund", map[string]interface{}{"payment_id": "p1", "reason": "damaged"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	full := testutil.DecodeJSON[Refund](t, rec)
	assert.Equal(t, 40.0, full.Amount)
	assert.Equal(t, RefundPending, full.Status)
	require.NotNil(t, full.RefundID)
	assert.Regexp(t, regexp.MustCompile(`^re_[0-9a-f]{24}$`), *full.RefundID)

	rec = testutil.DoJSON(t, r, http.MethodPost, "/api/payments/refund", map[string]interface{}{"payment_id": "p1", "amount": 15, "reason": "partial"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 15.0, testutil.DecodeJSON[Refund](t, rec).Amount)

	rec = testutil.DoJSON(t, r, http.MethodPost, "/api/payments/refund", map[string]interface{}{"payment_id": "p1", "amount": 90, "reason": "too much"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.DoJSON(t, r, http.MethodPost, "/api/payments/refund", map[string]interface{}{"payment_id": "p9", "reason": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/payments/refunds?payment_id=p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, testutil.DecodeJSON[[]Refund](t, rec), 2)

	rec = testutil.DoJSON(t, r, http.MethodPut, "/api/payments/refunds/"+full.ID+"?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, RefundCompleted, fake.Find("refunds", full.ID)["status"])

	rec = testutil.DoJSON(t, r, http.MethodPut, "/api/payments/refunds/"+full.ID+"?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.DoJSON(t, r, http.MethodPut, "/api/payments/refunds/nope?status=completed", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRevenueAndMethods(t *testing.T) {
	r, fake, _ := newTestRouter(t)
	fake.Seed("payments",
		testutil.Row{"id": "p1", "amount": 10, "status": "completed"},
		testutil.Row{"id": "p2", "amount": 30, "status": "completed"},
		testutil.Row{"id": "p3", "amount": 99, "status": "failed"},
	)
	fake.Seed("refunds",
		testutil.Row{"id": "r1", "payment_id": "p1", "amount": 5, "status": "completed"},
		testutil.Row{"id": "r2", "payment_id": "p2", "amount": 30, "status": "pending"},
	)

	rec := testutil.DoJSON(t, r, http.MethodGet, "/api/payments/stats/revenue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Revenue{TotalRevenue: 40, TotalTransactions: 2, TotalRefunds: 5, NetRevenue: 35, AverageTransaction: 20},
		testutil.DecodeJSON[Revenue](t, rec))

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/payments/methods", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	methods := testutil.DecodeJSON[map[string][]Method](t, rec)["methods"]
	require.Len(t, methods, 4)
	assert.Equal(t, "mobile_money", methods[3].ID)
}

func TestSummarize_NoPayments(t *testing.T) {
	assert.Equal(t, Revenue{}, Summarize(nil, nil))
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	r, fake, events := newTestRouter(t)
	payload := `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_abc"}}}`

	rec := postWebhook(t, r, payload, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postWebhook(t, r, payload, webhook.Sign([]byte(payload), "whsec_wrong", time.Now()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_SIGNATURE", testutil.DecodeJSON[httputil.ErrorResponse](t, rec).Code)

	rec = postWebhook(t, r, payload, webhook.Sign([]byte(payload), testSecret, time.Now().Add(-10*time.Minute)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, fake.Requests())
	assert.Equal(t, 3, events["unknown/rejected"])
}

func TestWebhook_PaymentSucceeded(t *testing.T) {
	r, fake, events := newTestRouter(t)
	fake.Seed("payments", testutil.Row{"id": "p1", "amount": 40, "status": "pending", "payment_intent_id": "pi_abc", "metadata": map[string]string{"order_id": "o1"}})
	fake.Seed("orders", testutil.Row{"id": "o1", "status": "pending", "payment_status": "pending"})

	payload := `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_abc","amount":4000}}}`
	rec := postWebhook(t, r, payload, signed(payload))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]string{"status": "success"}, testutil.DecodeJSON[map[string]string](t, rec))

	assert.Equal(t, StatusCompleted, fake.Find("payments", "p1")["status"])
	assert.Equal(t, "confirmed", fake.Find("orders", "o1")["status"])
	assert.Equal(t, 1, events[webhook.EventPaymentSucceeded+"/accepted"])
}

func TestWebhook_PaymentFailed(t *testing.T) {
	r, fake, _ := newTestRouter(t)
	fake.Seed("payments", testutil.Row{"id": "p1", "amount": 40, "status": "pending", "payment_intent_id": "pi_abc"})

	payload := `{"id":"evt_2","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_abc"}}}`
	rec := postWebhook(t, r, payload, signed(payload))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusFailed, fake.Find("payments", "p1")["status"])
}

func TestWebhook_DisputeCreated(t *testing.T) {
	r, fake, _ := newTestRouter(t)

	payload := `{"id":"evt_3","type":"charge.dispute.created","data":{"object":{"id":"ch_1","amount":2500,"dispute":{"reason":"fraudulent"}}}}`
	rec := postWebhook(t, r, payload, signed(payload))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rows := fake.Rows("chargebacks")
	require.Len(t, rows, 1)
	assert.Equal(t, "ch_1", rows[0]["charge_id"])
	assert.Equal(t, 2500.0, rows[0]["amount"])
	assert.Equal(t, "fraudulent", rows[0]["reason"])
	assert.Equal(t, ChargebackOpen, rows[0]["status"])
}

func TestWebhook_StoreFailureAsksForRedelivery(t *testing.T) {
	r, fake, events := newTestRouter(t)
	fake.FailNext(http.MethodPost, "chargebacks", http.StatusServiceUnavailable)

	payload := `{"id":"evt_3","type":"charge.dispute.created","data":{"object":{"id":"ch_1","amount":2500,"dispute":{"reason":"fraudulent"}}}}`
	rec := postWebhook(t, r, payload, signed(payload))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, events[webhook.EventDisputeCreated+"/failed"])
}

func TestWebhook_UnknownEventAcknowledged(t *testing.T) {
	r, fake, events := newTestRouter(t)

	payload := `{"id":"evt_4","type":"customer.created","data":{"object":{"id":"cus_1"}}}`
	rec := postWebhook(t, r, payload, signed(payload))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fake.Requests())
	assert.Equal(t, 1, events["customer.created/ignored"])

	rec = postWebhook(t, r, `{"id":"evt_5"}`, signed(`{"id":"evt_5"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
