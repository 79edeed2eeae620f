package stripe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	billingdomain "github.com/smallbiznis/dentaldesk/internal/billing/domain"
	"github.com/smallbiznis/dentaldesk/internal/config"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	SignatureHeader  = "Stripe-Signature"
	DefaultTolerance = 5 * time.Minute
)

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
}

func NewAdapter(webhookSecret string, tolerance time.Duration) *Adapter {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Adapter{
		webhookSecret: strings.TrimSpace(webhookSecret),
		tolerance:     tolerance,
	}
}

// Provide builds the adapter from the service configuration.
func Provide(cfg config.Config) billingdomain.Adapter {
	return NewAdapter(cfg.Stripe.WebhookSecret, time.Duration(cfg.Stripe.ToleranceSeconds)*time.Second)
}

// Verify checks the signature header against the exact bytes received.
func (a *Adapter) Verify(payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHeader == "" || a.webhookSecret == "" {
		return billingdomain.ErrInvalidSignature
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, sigHeader, a.webhookSecret, a.tolerance); err != nil {
		return fmt.Errorf("%w: %v", billingdomain.ErrInvalidSignature, err)
	}
	return nil
}

func (a *Adapter) Parse(payload []byte) (billingdomain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, billingdomain.ErrInvalidEvent
	}

	env := billingdomain.Envelope{
		Provider:   billingdomain.ProviderStripe,
		ID:         strings.TrimSpace(event.ID),
		Type:       strings.TrimSpace(event.Type),
		OccurredAt: timestamp(event.Created, 0),
		Payload:    payload,
	}

	var (
		out billingdomain.Event
		err error
	)
	switch env.Type {
	case billingdomain.EventTypeCheckoutCompleted:
		out, err = parseCheckoutSession(env, event.Data.Object)
	case billingdomain.EventTypeSubscriptionUpdated:
		out, err = parseSubscriptionUpdated(env, event.Data.Object)
	case billingdomain.EventTypeSubscriptionDeleted:
		out, err = parseSubscriptionDeleted(env, event.Data.Object)
	case billingdomain.EventTypeInvoicePaymentFailed:
		out, err = parseInvoice(env, event.Data.Object)
	default:
		out = billingdomain.Unhandled{Envelope: env}
	}
	if err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID            string         `json:"id"`
	Customer      expandableID   `json:"customer"`
	Subscription  expandableID   `json:"subscription"`
	PaymentIntent expandableID   `json:"payment_intent"`
	Invoice       expandableID   `json:"invoice"`
	AmountTotal   *int64         `json:"amount_total"`
	Currency      string         `json:"currency"`
	Created       int64          `json:"created"`
	Metadata      map[string]any `json:"metadata"`
}

type stripeSubscription struct {
	ID                 string                 `json:"id"`
	Customer           expandableID           `json:"customer"`
	Status             string                 `json:"status"`
	CurrentPeriodStart int64                  `json:"current_period_start"`
	CurrentPeriodEnd   int64                  `json:"current_period_end"`
	CancelAtPeriodEnd  bool                   `json:"cancel_at_period_end"`
	Items              stripeSubscriptionList `json:"items"`
}

type stripeSubscriptionList struct {
	Data []stripeSubscriptionItem `json:"data"`
}

type stripeSubscriptionItem struct {
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

type stripeInvoice struct {
	ID           string       `json:"id"`
	Customer     expandableID `json:"customer"`
	Subscription expandableID `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// expandableID accepts either an object id or the expanded object.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*e = expandableID(strings.TrimSpace(id))
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(strings.TrimSpace(obj.ID))
	return nil
}

func parseCheckoutSession(env billingdomain.Envelope, raw json.RawMessage) (billingdomain.Event, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}

	var amount int64
	if session.AmountTotal != nil {
		amount = *session.AmountTotal
	}
	return billingdomain.CheckoutCompleted{
		Envelope:              env,
		SessionID:             strings.TrimSpace(session.ID),
		ClinicID:              readMetadataValue(session.Metadata, "clinic_id"),
		Plan:                  readMetadataValue(session.Metadata, "plan"),
		BillingCustomerID:     string(session.Customer),
		BillingSubscriptionID: string(session.Subscription),
		PaymentIntentID:       string(session.PaymentIntent),
		InvoiceID:             string(session.Invoice),
		AmountTotal:           amount,
		Currency:              strings.TrimSpace(session.Currency),
	}, nil
}

func parseSubscriptionUpdated(env billingdomain.Envelope, raw json.RawMessage) (billingdomain.Event, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}

	start, end := sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	if start == 0 && end == 0 && len(sub.Items.Data) > 0 {
		start, end = sub.Items.Data[0].CurrentPeriodStart, sub.Items.Data[0].CurrentPeriodEnd
	}
	return billingdomain.SubscriptionUpdated{
		Envelope:              env,
		BillingSubscriptionID: strings.TrimSpace(sub.ID),
		BillingCustomerID:     string(sub.Customer),
		Status:                strings.TrimSpace(sub.Status),
		CurrentPeriodStart:    optionalTime(start),
		CurrentPeriodEnd:      optionalTime(end),
		CancelAtPeriodEnd:     sub.CancelAtPeriodEnd,
	}, nil
}

func parseSubscriptionDeleted(env billingdomain.Envelope, raw json.RawMessage) (billingdomain.Event, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}
	return billingdomain.SubscriptionDeleted{
		Envelope:              env,
		BillingSubscriptionID: strings.TrimSpace(sub.ID),
	}, nil
}

func parseInvoice(env billingdomain.Envelope, raw json.RawMessage) (billingdomain.Event, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}

	subscriptionID := string(invoice.Subscription)
	if subscriptionID == "" && invoice.Parent != nil && invoice.Parent.SubscriptionDetails != nil {
		subscriptionID = string(invoice.Parent.SubscriptionDetails.Subscription)
	}
	return billingdomain.InvoicePaymentFailed{
		Envelope:              env,
		InvoiceID:             strings.TrimSpace(invoice.ID),
		BillingCustomerID:     string(invoice.Customer),
		BillingSubscriptionID: subscriptionID,
	}, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}

func optionalTime(unix int64) *time.Time {
	if unix <= 0 {
		return nil
	}
	t := time.Unix(unix, 0).UTC()
	return &t
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		return strconv.FormatFloat(cast, 'f', -1, 64)
	case json.Number:
		return cast.String()
	}
	return ""
}
