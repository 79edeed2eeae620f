package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	billingdomain "github.com/smallbiznis/dentaldesk/internal/billing/domain"
	clinicdomain "github.com/smallbiznis/dentaldesk/internal/clinic/domain"
	"github.com/smallbiznis/dentaldesk/internal/clock"
	"github.com/smallbiznis/dentaldesk/internal/config"
	obsmetrics "github.com/smallbiznis/dentaldesk/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/dentaldesk/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/dentaldesk/internal/subscription/domain"
	"github.com/smallbiznis/dentaldesk/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultCurrency = "USD"

// errRollback discards every write of a skipped event.
var errRollback = errors.New("rollback")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Events        billingdomain.Repository
	Clinics       clinicdomain.Repository
	Subscriptions subscriptiondomain.Repository
	Payments      paymentdomain.Repository
	Plans         *config.PlanCatalogHolder `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
}

type Reconciler struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	events        billingdomain.Repository
	clinics       clinicdomain.Repository
	subscriptions subscriptiondomain.Repository
	payments      paymentdomain.Repository
	plans         *config.PlanCatalogHolder
	obsMetrics    *obsmetrics.Metrics
}

func NewReconciler(p Params) *Reconciler {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Reconciler{
		db:            p.DB,
		log:           p.Log.Named("billing.reconciler"),
		genID:         p.GenID,
		clock:         c,
		events:        p.Events,
		clinics:       p.Clinics,
		subscriptions: p.Subscriptions,
		payments:      p.Payments,
		plans:         p.Plans,
		obsMetrics:    p.ObsMetrics,
	}
}

// Apply records the event and performs its state transition in one
// transaction. Redelivered events are acknowledged without further writes.
// Events that refer to rows that do not exist, or that are older than the
// state already stored, are skipped and leave the store untouched.
func (r *Reconciler) Apply(ctx context.Context, event billingdomain.Event) (billingdomain.Outcome, error) {
	if event == nil {
		return "", billingdomain.ErrInvalidEvent
	}
	if err := event.Validate(); err != nil {
		return "", err
	}

	meta := event.Meta()
	start := r.clock.Now()
	if _, ok := event.(billingdomain.Unhandled); ok {
		r.log.Info("unhandled event type acknowledged",
			zap.String("event_id", meta.ID),
			zap.String("event_type", meta.Type),
		)
		r.record(ctx, meta, billingdomain.OutcomeIgnored, start)
		return billingdomain.OutcomeIgnored, nil
	}

	var outcome billingdomain.Outcome
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.AsServiceRole(tx); err != nil {
			return err
		}

		stored, err := r.recordEvent(ctx, tx, meta)
		if err != nil {
			return err
		}
		if stored == nil {
			outcome = billingdomain.OutcomeDuplicate
			return nil
		}

		outcome, err = r.transition(ctx, tx, event)
		if err != nil {
			return err
		}
		if outcome == billingdomain.OutcomeSkipped {
			return errRollback
		}
		return r.events.MarkProcessed(ctx, tx, stored.ID, r.clock.Now())
	})
	if err != nil && !errors.Is(err, errRollback) {
		r.log.Warn("event not applied",
			zap.String("event_id", meta.ID),
			zap.String("event_type", meta.Type),
			zap.Error(err),
		)
		r.record(ctx, meta, "failed", start)
		return "", err
	}

	r.record(ctx, meta, outcome, start)
	return outcome, nil
}

// recordEvent returns nil when the event was already processed.
func (r *Reconciler) recordEvent(ctx context.Context, tx *gorm.DB, meta billingdomain.Envelope) (*billingdomain.EventRecord, error) {
	received := billingdomain.EventRecord{
		ID:              r.genID.Generate(),
		Provider:        meta.Provider,
		ProviderEventID: meta.ID,
		EventType:       meta.Type,
		Payload:         datatypes.JSON(meta.Payload),
		ReceivedAt:      r.clock.Now(),
	}
	inserted, err := r.events.InsertEvent(ctx, tx, &received)
	if err != nil {
		return nil, err
	}
	if inserted {
		return &received, nil
	}

	stored, err := r.events.FindEvent(ctx, tx, meta.Provider, meta.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, billingdomain.ErrInvalidEvent
	}
	if stored.ProcessedAt != nil {
		r.log.Info("duplicate event ignored",
			zap.String("event_id", meta.ID),
			zap.String("event_type", meta.Type),
		)
		return nil, nil
	}
	return stored, nil
}

func (r *Reconciler) transition(ctx context.Context, tx *gorm.DB, event billingdomain.Event) (billingdomain.Outcome, error) {
	switch e := event.(type) {
	case billingdomain.CheckoutCompleted:
		return r.applyCheckout(ctx, tx, e)
	case billingdomain.SubscriptionUpdated:
		return r.applySubscriptionUpdated(ctx, tx, e)
	case billingdomain.SubscriptionDeleted:
		return r.applySubscriptionDeleted(ctx, tx, e)
	case billingdomain.InvoicePaymentFailed:
		return r.applyInvoicePaymentFailed(ctx, tx, e)
	default:
		return "", billingdomain.ErrInvalidEvent
	}
}

func (r *Reconciler) applyCheckout(ctx context.Context, tx *gorm.DB, e billingdomain.CheckoutCompleted) (billingdomain.Outcome, error) {
	clinic, err := r.clinics.FindByID(ctx, tx, e.ClinicID)
	if err != nil {
		return "", err
	}
	if clinic == nil {
		r.log.Error("checkout completed for unknown clinic",
			zap.String("event_id", e.ID),
			zap.String("clinic_id", e.ClinicID),
			zap.String("session_id", e.SessionID),
		)
		return "", fmt.Errorf("%w: %s", billingdomain.ErrClinicNotFound, e.ClinicID)
	}

	now := r.clock.Now()
	periodStart := e.OccurredAt
	periodEnd := r.periodEnd(e.Plan, periodStart)
	eventAt := e.OccurredAt

	sub := &subscriptiondomain.Subscription{
		ID:                    uuid.NewString(),
		ClinicID:              clinic.ID,
		BillingSubscriptionID: e.BillingSubscriptionID,
		BillingCustomerID:     optionalString(e.BillingCustomerID),
		Plan:                  optionalString(e.Plan),
		Status:                subscriptiondomain.StatusActive,
		CurrentPeriodStart:    &periodStart,
		CurrentPeriodEnd:      &periodEnd,
		LastEventAt:           &eventAt,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	inserted, err := r.subscriptions.InsertIfAbsent(ctx, tx, sub)
	if err != nil {
		return "", err
	}

	clinicStatus := clinicdomain.StatusActive
	updateClinic := true
	if !inserted {
		existing, err := r.subscriptions.FindByBillingID(ctx, tx, e.BillingSubscriptionID)
		if err != nil {
			return "", err
		}
		if existing != nil {
			if existing.ClinicID != clinic.ID {
				r.log.Warn("subscription already bound to another clinic",
					zap.String("event_id", e.ID),
					zap.String("billing_subscription_id", e.BillingSubscriptionID),
					zap.String("clinic_id", clinic.ID),
					zap.String("existing_clinic_id", existing.ClinicID),
				)
			}
			switch {
			case existing.Status.Terminal():
				// the lifecycle events already settled the clinic
				updateClinic = false
				r.log.Info("checkout redelivered for ended subscription",
					zap.String("event_id", e.ID),
					zap.String("billing_subscription_id", e.BillingSubscriptionID),
					zap.String("status", string(existing.Status)),
				)
			default:
				if derived, ok := clinicdomain.DeriveStatus(string(existing.Status)); ok {
					clinicStatus = derived
				}
			}
		}
	}

	if updateClinic {
		update := clinicdomain.BillingUpdate{
			Status:                clinicStatus,
			ExpiresAt:             &periodEnd,
			BillingCustomerID:     e.BillingCustomerID,
			BillingSubscriptionID: e.BillingSubscriptionID,
			UpdatedAt:             now,
		}
		if plan, ok := clinicdomain.ParsePlan(e.Plan); ok {
			update.Plan = &plan
		}
		if _, err := r.clinics.UpdateBilling(ctx, tx, clinic.ID, update); err != nil {
			return "", err
		}
	}

	currency := paymentdomain.NormalizeCurrency(e.Currency)
	if currency == "" {
		currency = defaultCurrency
	}
	method := paymentdomain.MethodCard
	description := fmt.Sprintf("Subscription payment - %s", e.Plan)
	payment := &paymentdomain.Payment{
		ID:                     uuid.NewString(),
		ClinicID:               clinic.ID,
		BillingPaymentIntentID: e.PaymentReference(),
		Amount:                 paymentdomain.FromMinorUnits(e.AmountTotal, currency),
		Currency:               currency,
		Status:                 paymentdomain.StatusPaid,
		PaymentMethod:          &method,
		Description:            &description,
		CreatedAt:              now,
	}
	paid, err := r.payments.InsertIfAbsent(ctx, tx, payment)
	if err != nil {
		return "", err
	}

	r.log.Info("checkout reconciled",
		zap.String("event_id", e.ID),
		zap.String("clinic_id", clinic.ID),
		zap.String("billing_subscription_id", e.BillingSubscriptionID),
		zap.Bool("subscription_created", inserted),
		zap.Bool("payment_recorded", paid),
		zap.Bool("clinic_updated", updateClinic),
	)
	return billingdomain.OutcomeApplied, nil
}

func (r *Reconciler) applySubscriptionUpdated(ctx context.Context, tx *gorm.DB, e billingdomain.SubscriptionUpdated) (billingdomain.Outcome, error) {
	affected, err := r.subscriptions.ApplyUpdate(ctx, tx, e.BillingSubscriptionID, subscriptiondomain.Update{
		Status:             subscriptiondomain.NormalizeStatus(e.Status),
		CurrentPeriodStart: e.CurrentPeriodStart,
		CurrentPeriodEnd:   e.CurrentPeriodEnd,
		CancelAtPeriodEnd:  e.CancelAtPeriodEnd,
		EventAt:            e.OccurredAt,
	})
	if err != nil {
		return "", err
	}
	if affected == 0 {
		return r.skip(ctx, tx, e.Envelope, e.BillingSubscriptionID)
	}

	clinicStatus, ok := clinicdomain.DeriveStatus(e.Status)
	if !ok {
		r.log.Info("subscription status leaves clinic unchanged",
			zap.String("event_id", e.ID),
			zap.String("billing_subscription_id", e.BillingSubscriptionID),
			zap.String("status", e.Status),
		)
		return billingdomain.OutcomeApplied, nil
	}
	if err := r.setClinicStatusBySubscription(ctx, tx, e.Envelope, e.BillingSubscriptionID, clinicStatus); err != nil {
		return "", err
	}
	return billingdomain.OutcomeApplied, nil
}

func (r *Reconciler) applySubscriptionDeleted(ctx context.Context, tx *gorm.DB, e billingdomain.SubscriptionDeleted) (billingdomain.Outcome, error) {
	affected, err := r.subscriptions.MarkCancelled(ctx, tx, e.BillingSubscriptionID, e.OccurredAt)
	if err != nil {
		return "", err
	}
	if affected == 0 {
		return r.skip(ctx, tx, e.Envelope, e.BillingSubscriptionID)
	}
	if err := r.setClinicStatusBySubscription(ctx, tx, e.Envelope, e.BillingSubscriptionID, clinicdomain.StatusInactive); err != nil {
		return "", err
	}
	return billingdomain.OutcomeApplied, nil
}

func (r *Reconciler) applyInvoicePaymentFailed(ctx context.Context, tx *gorm.DB, e billingdomain.InvoicePaymentFailed) (billingdomain.Outcome, error) {
	affected, err := r.clinics.SetStatusByBillingCustomerID(ctx, tx, e.BillingCustomerID, clinicdomain.StatusPastDue, r.clock.Now())
	if err != nil {
		return "", err
	}
	if affected == 0 {
		r.log.Warn("payment failure for unknown billing customer",
			zap.String("event_id", e.ID),
			zap.String("billing_customer_id", e.BillingCustomerID),
			zap.String("invoice_id", e.InvoiceID),
		)
		return billingdomain.OutcomeSkipped, nil
	}
	r.log.Info("clinic marked past due",
		zap.String("event_id", e.ID),
		zap.String("billing_customer_id", e.BillingCustomerID),
		zap.Int64("clinics", affected),
	)
	return billingdomain.OutcomeApplied, nil
}

func (r *Reconciler) setClinicStatusBySubscription(ctx context.Context, tx *gorm.DB, meta billingdomain.Envelope, billingSubscriptionID string, status clinicdomain.Status) error {
	affected, err := r.clinics.SetStatusByBillingSubscriptionID(ctx, tx, billingSubscriptionID, status, r.clock.Now())
	if err != nil {
		return err
	}
	if affected == 0 {
		r.log.Warn("no clinic bound to subscription",
			zap.String("event_id", meta.ID),
			zap.String("event_type", meta.Type),
			zap.String("billing_subscription_id", billingSubscriptionID),
		)
	}
	return nil
}

// skip explains why a lifecycle event matched no row.
func (r *Reconciler) skip(ctx context.Context, tx *gorm.DB, meta billingdomain.Envelope, billingSubscriptionID string) (billingdomain.Outcome, error) {
	existing, err := r.subscriptions.FindByBillingID(ctx, tx, billingSubscriptionID)
	if err != nil {
		return "", err
	}

	fields := []zap.Field{
		zap.String("event_id", meta.ID),
		zap.String("event_type", meta.Type),
		zap.String("billing_subscription_id", billingSubscriptionID),
		zap.Time("event_at", meta.OccurredAt),
	}
	switch {
	case existing == nil:
		r.log.Warn("subscription not found, event skipped", fields...)
	case existing.Status.Terminal():
		r.log.Info("subscription already cancelled, event skipped", fields...)
	default:
		if existing.LastEventAt != nil {
			fields = append(fields, zap.Time("last_event_at", *existing.LastEventAt))
		}
		r.log.Info("stale subscription event skipped", fields...)
	}
	return billingdomain.OutcomeSkipped, nil
}

func (r *Reconciler) periodEnd(planCode string, start time.Time) time.Time {
	if r.plans != nil {
		if plan, ok := r.plans.Get().Find(planCode); ok {
			return plan.PeriodEnd(start)
		}
	}
	if strings.EqualFold(strings.TrimSpace(planCode), string(clinicdomain.PlanYearly)) {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

func (r *Reconciler) record(ctx context.Context, meta billingdomain.Envelope, outcome billingdomain.Outcome, start time.Time) {
	if r.obsMetrics == nil {
		return
	}
	r.obsMetrics.RecordWebhookEvent(ctx, meta.Provider, meta.Type, string(outcome), r.clock.Now().Sub(start))
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
