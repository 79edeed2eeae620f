package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	billingdomain "github.com/smallbiznis/dentaldesk/internal/billing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{}}}`)
	timestamp := time.Now().Unix()

	reqHeader := http.Header{}
	reqHeader.Set(SignatureHeader, buildStripeSignatureHeader(testSecret, payload, timestamp))

	adapter := NewAdapter(testSecret, 0)
	if err := adapter.Verify(payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set(SignatureHeader, buildStripeSignatureHeader("wrong", payload, timestamp))
	if err := adapter.Verify(payload, reqHeader); !errors.Is(err, billingdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}
}

func TestVerifyRejectsModifiedBody(t *testing.T) {
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{"amount_total":7500}}}`)
	reqHeader := http.Header{}
	reqHeader.Set(SignatureHeader, buildStripeSignatureHeader(testSecret, payload, time.Now().Unix()))

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-5] ^= 0x01

	err := NewAdapter(testSecret, 0).Verify(tampered, reqHeader)
	require.ErrorIs(t, err, billingdomain.ErrInvalidSignature)
}

func TestVerifyRejectsReplayOutsideTolerance(t *testing.T) {
	payload := []byte(`{"id":"evt_old","type":"invoice.payment_failed","data":{"object":{}}}`)
	reqHeader := http.Header{}
	reqHeader.Set(SignatureHeader, buildStripeSignatureHeader(testSecret, payload, time.Now().Add(-time.Hour).Unix()))

	err := NewAdapter(testSecret, 5*time.Minute).Verify(payload, reqHeader)
	require.ErrorIs(t, err, billingdomain.ErrInvalidSignature)
}

func TestVerifyRejectsMissingHeader(t *testing.T) {
	err := NewAdapter(testSecret, 0).Verify([]byte(`{}`), http.Header{})
	require.ErrorIs(t, err, billingdomain.ErrInvalidSignature)
}

func TestParseCheckoutCompleted(t *testing.T) {
	created := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC).Unix()
	payload := mustJSON(t, map[string]any{
		"id":      "evt_checkout",
		"type":    "checkout.session.completed",
		"created": created,
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_1",
				"customer":       "cus_1",
				"subscription":   map[string]any{"id": "sub_1", "object": "subscription"},
				"payment_intent": nil,
				"invoice":        "in_1",
				"amount_total":   7500,
				"currency":       "usd",
				"metadata": map[string]any{
					"clinic_id": "clinic-1",
					"plan":      "monthly",
				},
			},
		},
	})

	event, err := NewAdapter(testSecret, 0).Parse(payload)
	require.NoError(t, err)

	checkout, ok := event.(billingdomain.CheckoutCompleted)
	require.True(t, ok, "unexpected event type %T", event)
	assert.Equal(t, "evt_checkout", checkout.ID)
	assert.Equal(t, time.Unix(created, 0).UTC(), checkout.OccurredAt)
	assert.Equal(t, "clinic-1", checkout.ClinicID)
	assert.Equal(t, "monthly", checkout.Plan)
	assert.Equal(t, "cus_1", checkout.BillingCustomerID)
	assert.Equal(t, "sub_1", checkout.BillingSubscriptionID)
	assert.Equal(t, "in_1", checkout.PaymentReference())
	assert.Equal(t, int64(7500), checkout.AmountTotal)
	assert.Equal(t, "usd", checkout.Currency)
}

func TestParseCheckoutWithoutClinicIsValidationError(t *testing.T) {
	payload := mustJSON(t, map[string]any{
		"id":      "evt_checkout",
		"type":    "checkout.session.completed",
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":           "cs_1",
				"subscription": "sub_1",
				"metadata":     map[string]any{"plan": "monthly"},
			},
		},
	})

	_, err := NewAdapter(testSecret, 0).Parse(payload)
	require.ErrorIs(t, err, billingdomain.ErrMissingClinicID)
}

func TestParseSubscriptionUpdatedReadsItemPeriods(t *testing.T) {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).Unix()
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	payload := mustJSON(t, map[string]any{
		"id":      "evt_upd",
		"type":    "customer.subscription.updated",
		"created": start,
		"data": map[string]any{
			"object": map[string]any{
				"id":                   "sub_1",
				"customer":             "cus_1",
				"status":               "past_due",
				"cancel_at_period_end": true,
				"items": map[string]any{
					"data": []any{map[string]any{
						"current_period_start": start,
						"current_period_end":   end,
					}},
				},
			},
		},
	})

	event, err := NewAdapter(testSecret, 0).Parse(payload)
	require.NoError(t, err)

	updated, ok := event.(billingdomain.SubscriptionUpdated)
	require.True(t, ok)
	assert.Equal(t, "past_due", updated.Status)
	assert.True(t, updated.CancelAtPeriodEnd)
	require.NotNil(t, updated.CurrentPeriodStart)
	require.NotNil(t, updated.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(end, 0).UTC(), *updated.CurrentPeriodEnd)
}

func TestParseInvoiceFailedAndUnknownTypes(t *testing.T) {
	adapter := NewAdapter(testSecret, 0)
	created := time.Now().Unix()

	event, err := adapter.Parse(mustJSON(t, map[string]any{
		"id":      "evt_inv",
		"type":    "invoice.payment_failed",
		"created": created,
		"data": map[string]any{"object": map[string]any{
			"id":       "in_1",
			"customer": "cus_1",
			"parent": map[string]any{
				"subscription_details": map[string]any{"subscription": "sub_1"},
			},
		}},
	}))
	require.NoError(t, err)
	failed, ok := event.(billingdomain.InvoicePaymentFailed)
	require.True(t, ok)
	assert.Equal(t, "cus_1", failed.BillingCustomerID)
	assert.Equal(t, "sub_1", failed.BillingSubscriptionID)

	event, err = adapter.Parse(mustJSON(t, map[string]any{
		"id":      "evt_other",
		"type":    "customer.created",
		"created": created,
		"data":    map[string]any{"object": map[string]any{"id": "cus_1"}},
	}))
	require.NoError(t, err)
	_, ok = event.(billingdomain.Unhandled)
	assert.True(t, ok)

	event, err = adapter.Parse([]byte(`{"id":"evt_bare","type":"product.updated"}`))
	require.NoError(t, err)
	_, ok = event.(billingdomain.Unhandled)
	assert.True(t, ok)
	assert.True(t, event.Meta().OccurredAt.IsZero())
}

func TestParseRejectsMalformedPayload(t *testing.T) {
	adapter := NewAdapter(testSecret, 0)

	_, err := adapter.Parse([]byte(`{not json`))
	require.ErrorIs(t, err, billingdomain.ErrInvalidPayload)

	_, err = adapter.Parse([]byte(`{"type":"customer.subscription.deleted"}`))
	require.ErrorIs(t, err, billingdomain.ErrInvalidEvent)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return payload
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
