package webhooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cashfreewebhook "github.com/angelmondragon/donations-backend/internal/webhooks/cashfree"
	"github.com/angelmondragon/donations-backend/pkg/cashfree"
)

const testSecret = "whsec_test"

const paidPayload = `{"type":"PAYMENT_SUCCESS_WEBHOOK","data":{"order":{"order_id":"VDN_ANON_0190d3b0c9a87a1b8c2d3e4f5a6b7c8d"},"payment":{"cf_payment_id":"12345","payment_status":"SUCCESS","payment_group":"upi"}}}`

type secretVerifier struct{}

func (secretVerifier) VerifyWebhookSignature(rawBody []byte, timestamp, signature string) bool {
	return cashfree.VerifySignature(testSecret, rawBody, timestamp, signature)
}

type stubWebhookService struct {
	calls  int
	event  *cashfree.WebhookEvent
	result cashfreewebhook.Result
	err    error
}

func (s *stubWebhookService) HandleEvent(_ context.Context, event *cashfree.WebhookEvent) (cashfreewebhook.Result, error) {
	s.calls++
	s.event = event
	return s.result, s.err
}

type countingMetrics struct {
	results []string
}

func (c *countingMetrics) IncWebhook(result string) {
	c.results = append(c.results, result)
}

func signedRequest(body string) *http.Request {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/cashfree", strings.NewReader(body))
	req.Header.Set(cashfree.HeaderWebhookTimestamp, ts)
	req.Header.Set(cashfree.HeaderWebhookSignature, cashfree.Sign(testSecret, []byte(body), ts))
	return req
}

func TestCashfreeWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubWebhookService{result: cashfreewebhook.ResultApplied}
	m := &countingMetrics{}

	req := signedRequest(paidPayload)
	req.Header.Set(cashfree.HeaderWebhookSignature, cashfree.Sign("other-secret", []byte(paidPayload), req.Header.Get(cashfree.HeaderWebhookTimestamp)))
	resp := httptest.NewRecorder()
	CashfreeWebhook(svc, secretVerifier{}, m, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Zero(t, svc.calls)
	require.Equal(t, []string{"invalid_signature"}, m.results)
}

func TestCashfreeWebhookRejectsMissingHeaders(t *testing.T) {
	svc := &stubWebhookService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/cashfree", strings.NewReader(paidPayload))
	resp := httptest.NewRecorder()
	CashfreeWebhook(svc, secretVerifier{}, nil, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Zero(t, svc.calls)
}

func TestCashfreeWebhookRejectsMalformedPayload(t *testing.T) {
	svc := &stubWebhookService{}
	m := &countingMetrics{}
	resp := httptest.NewRecorder()
	CashfreeWebhook(svc, secretVerifier{}, m, nil).ServeHTTP(resp, signedRequest(`{"type":"PAYMENT_SUCCESS_WEBHOOK","data":{}}`))

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Zero(t, svc.calls)
	require.Equal(t, []string{"malformed"}, m.results)
}

func TestCashfreeWebhookAppliesVerifiedEvent(t *testing.T) {
	svc := &stubWebhookService{result: cashfreewebhook.ResultApplied}
	m := &countingMetrics{}
	resp := httptest.NewRecorder()
	CashfreeWebhook(svc, secretVerifier{}, m, nil).ServeHTTP(resp, signedRequest(paidPayload))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 1, svc.calls)
	require.Equal(t, "VDN_ANON_0190d3b0c9a87a1b8c2d3e4f5a6b7c8d", svc.event.OrderID())
	require.Equal(t, "12345", svc.event.PaymentID())
	require.Equal(t, []string{"applied"}, m.results)
}

func TestCashfreeWebhookAcknowledgesReconcileFailure(t *testing.T) {
	svc := &stubWebhookService{err: errors.New("database unavailable")}
	m := &countingMetrics{}
	resp := httptest.NewRecorder()
	CashfreeWebhook(svc, secretVerifier{}, m, nil).ServeHTTP(resp, signedRequest(paidPayload))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, []string{"error"}, m.results)
}

func TestCashfreeWebhookAcknowledgesUnknownOrder(t *testing.T) {
	svc := &stubWebhookService{result: cashfreewebhook.ResultUnknownOrder}
	resp := httptest.NewRecorder()
	CashfreeWebhook(svc, secretVerifier{}, nil, nil).ServeHTTP(resp, signedRequest(paidPayload))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "unknown_order")
}
