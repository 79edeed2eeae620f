package domain

import (
	"strings"
	"time"
)

const ProviderStripe = "stripe"

const (
	EventTypeCheckoutCompleted    = "checkout.session.completed"
	EventTypeSubscriptionUpdated  = "customer.subscription.updated"
	EventTypeSubscriptionDeleted  = "customer.subscription.deleted"
	EventTypeInvoicePaymentFailed = "invoice.payment_failed"
)

// Event is one verified provider notification. The concrete type is one of
// CheckoutCompleted, SubscriptionUpdated, SubscriptionDeleted,
// InvoicePaymentFailed or Unhandled.
type Event interface {
	Meta() Envelope
	Validate() error
	isEvent()
}

// Envelope carries the fields shared by every event.
type Envelope struct {
	Provider   string
	ID         string
	Type       string
	OccurredAt time.Time
	Payload    []byte
}

func (e Envelope) Meta() Envelope { return e }

func (e Envelope) validate() error {
	if err := e.validateIdentity(); err != nil {
		return err
	}
	if e.OccurredAt.IsZero() {
		return ErrInvalidEvent
	}
	return nil
}

func (e Envelope) validateIdentity() error {
	if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.Type) == "" {
		return ErrInvalidEvent
	}
	return nil
}

func (Envelope) isEvent() {}

// CheckoutCompleted reports a paid checkout session that created a
// subscription for a clinic.
type CheckoutCompleted struct {
	Envelope

	SessionID             string
	ClinicID              string
	Plan                  string
	BillingCustomerID     string
	BillingSubscriptionID string
	PaymentIntentID       string
	InvoiceID             string
	AmountTotal           int64
	Currency              string
}

func (e CheckoutCompleted) Validate() error {
	if err := e.Envelope.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.ClinicID) == "" {
		return ErrMissingClinicID
	}
	if strings.TrimSpace(e.BillingSubscriptionID) == "" || strings.TrimSpace(e.SessionID) == "" {
		return ErrInvalidEvent
	}
	if e.AmountTotal < 0 {
		return ErrInvalidEvent
	}
	return nil
}

// PaymentReference is the idempotency key of the payment recorded for the
// checkout. Sessions paid without a payment intent fall back to the invoice
// and then to the session itself.
func (e CheckoutCompleted) PaymentReference() string {
	for _, ref := range []string{e.PaymentIntentID, e.InvoiceID, e.SessionID} {
		if ref = strings.TrimSpace(ref); ref != "" {
			return ref
		}
	}
	return ""
}

// SubscriptionUpdated mirrors a provider subscription after any change.
type SubscriptionUpdated struct {
	Envelope

	BillingSubscriptionID string
	BillingCustomerID     string
	Status                string
	CurrentPeriodStart    *time.Time
	CurrentPeriodEnd      *time.Time
	CancelAtPeriodEnd     bool
}

func (e SubscriptionUpdated) Validate() error {
	if err := e.Envelope.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.BillingSubscriptionID) == "" || strings.TrimSpace(e.Status) == "" {
		return ErrInvalidEvent
	}
	return nil
}

// SubscriptionDeleted reports that the provider ended a subscription.
type SubscriptionDeleted struct {
	Envelope

	BillingSubscriptionID string
}

func (e SubscriptionDeleted) Validate() error {
	if err := e.Envelope.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.BillingSubscriptionID) == "" {
		return ErrInvalidEvent
	}
	return nil
}

// InvoicePaymentFailed reports a failed renewal charge.
type InvoicePaymentFailed struct {
	Envelope

	InvoiceID             string
	BillingCustomerID     string
	BillingSubscriptionID string
}

func (e InvoicePaymentFailed) Validate() error {
	if err := e.Envelope.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.BillingCustomerID) == "" {
		return ErrInvalidEvent
	}
	return nil
}

// Unhandled is any event type the reconciler acknowledges without acting.
// Only its identity is required since nothing is ordered by its timestamp.
type Unhandled struct {
	Envelope
}

func (e Unhandled) Validate() error {
	return e.Envelope.validateIdentity()
}
