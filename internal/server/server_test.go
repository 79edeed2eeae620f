package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	billingdomain "github.com/smallbiznis/dentaldesk/internal/billing/domain"
	"github.com/smallbiznis/dentaldesk/internal/config"
	"github.com/smallbiznis/dentaldesk/internal/observability"
	obsmetrics "github.com/smallbiznis/dentaldesk/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWebhookService struct {
	payload []byte
	outcome billingdomain.Outcome
	err     error
}

func (f *fakeWebhookService) Ingest(_ context.Context, payload []byte, _ http.Header) (billingdomain.Outcome, error) {
	f.payload = payload
	return f.outcome, f.err
}

type fakeCheckoutService struct {
	req billingdomain.CheckoutRequest
	err error
}

func (f *fakeCheckoutService) CreateSession(_ context.Context, req billingdomain.CheckoutRequest) (*billingdomain.CheckoutSession, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &billingdomain.CheckoutSession{SessionID: "cs_1", URL: "https://checkout.stripe.com/c/pay/cs_1"}, nil
}

func newTestServer(t *testing.T, webhookSvc billingdomain.WebhookService, checkoutSvc billingdomain.CheckoutService) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	httpMetrics, err := obsmetrics.NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	cfg := config.Config{Environment: "test", CORSAllowedOrigins: []string{"*"}}
	s := NewServer(Params{
		Engine:      NewEngine(cfg, observability.Config{Environment: "test"}, httpMetrics),
		Cfg:         cfg,
		Log:         zap.NewNop(),
		WebhookSvc:  webhookSvc,
		CheckoutSvc: checkoutSvc,
	})
	s.RegisterWebhookRoutes()
	s.RegisterCheckoutRoutes()
	return s
}

func doRequest(s *Server, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestWebhookAcknowledgesHandledEvents(t *testing.T) {
	for _, path := range []string{"/api/billing/webhook", "/functions/v1/stripe-webhook"} {
		t.Run(path, func(t *testing.T) {
			svc := &fakeWebhookService{outcome: billingdomain.OutcomeIgnored}
			s := newTestServer(t, svc, nil)
			body := []byte(`{"id":"evt_1",  "type":"customer.created"}`)

			rec := doRequest(s, http.MethodPost, path, body, map[string]string{"Stripe-Signature": "t=1,v1=abc"})
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, true, decodeBody(t, rec)["received"])
			assert.Equal(t, body, svc.payload)
		})
	}
}

func TestWebhookAcknowledgesRedelivery(t *testing.T) {
	s := newTestServer(t, &fakeWebhookService{outcome: billingdomain.OutcomeDuplicate}, nil)

	rec := doRequest(s, http.MethodPost, "/api/billing/webhook", []byte(`{"id":"evt_1"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["received"])
}

func TestWebhookRejectsWithBadRequest(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		message string
	}{
		{"signature", billingdomain.ErrInvalidSignature, "invalid_signature"},
		{"payload", billingdomain.ErrInvalidPayload, "invalid_payload"},
		{"missing clinic", billingdomain.ErrMissingClinicID, "missing_clinic_id"},
		{"store failure", errors.New("pq: connection refused"), "webhook_processing_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, &fakeWebhookService{err: tc.err}, nil)

			rec := doRequest(s, http.MethodPost, "/api/billing/webhook", []byte(`{}`), nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.message, decodeBody(t, rec)["error"])
		})
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	svc := &fakeCheckoutService{}
	s := newTestServer(t, &fakeWebhookService{}, svc)

	rec := doRequest(s, http.MethodPost, "/api/create-checkout-session",
		[]byte(`{"clinicId":"clinic-1","plan":"monthly"}`),
		map[string]string{"Content-Type": "application/json"},
	)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "cs_1", body["sessionId"])
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_1", body["url"])
	assert.Equal(t, "clinic-1", svc.req.ClinicID)
	assert.Equal(t, "monthly", svc.req.Plan)
}

func TestCreateCheckoutSessionMapsErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		errType string
	}{
		{"invalid plan", billingdomain.ErrInvalidPlan, http.StatusBadRequest, "validation_error"},
		{"missing clinic", billingdomain.ErrMissingClinicID, http.StatusBadRequest, "validation_error"},
		{"unknown clinic", billingdomain.ErrClinicNotFound, http.StatusNotFound, "not_found"},
		{"rate limited", billingdomain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"provider", billingdomain.ErrProviderUnavailable, http.StatusBadGateway, "provider_unavailable"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, &fakeWebhookService{}, &fakeCheckoutService{err: tc.err})

			rec := doRequest(s, http.MethodPost, "/api/create-checkout-session",
				[]byte(`{"clinicId":"clinic-1","plan":"monthly"}`),
				map[string]string{"Content-Type": "application/json"},
			)
			require.Equal(t, tc.status, rec.Code)
			payload, ok := decodeBody(t, rec)["error"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tc.errType, payload["type"])
		})
	}
}

func TestCreateCheckoutSessionRejectsMalformedBody(t *testing.T) {
	svc := &fakeCheckoutService{}
	s := newTestServer(t, &fakeWebhookService{}, svc)

	rec := doRequest(s, http.MethodPost, "/api/create-checkout-session", []byte(`{"clinicId":`), map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "validation_error", payload["type"])
	assert.Empty(t, svc.req.ClinicID)
}

func TestCreateCheckoutSessionAllowsBrowserPreflight(t *testing.T) {
	s := newTestServer(t, &fakeWebhookService{}, &fakeCheckoutService{})

	rec := doRequest(s, http.MethodOptions, "/api/create-checkout-session", nil, map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Less(t, rec.Code, http.StatusMultipleChoices)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCheckoutRoutesDisabledWithoutService(t *testing.T) {
	s := newTestServer(t, &fakeWebhookService{}, nil)

	rec := doRequest(s, http.MethodPost, "/api/create-checkout-session", []byte(`{}`), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeWebhookService{}, nil)

	rec := doRequest(s, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}
