package checkout

import (
	"context"
	"fmt"
	"strings"

	billingdomain "github.com/smallbiznis/dentaldesk/internal/billing/domain"
	clinicdomain "github.com/smallbiznis/dentaldesk/internal/clinic/domain"
	"github.com/smallbiznis/dentaldesk/internal/config"
	obsmetrics "github.com/smallbiznis/dentaldesk/internal/observability/metrics"
	"github.com/smallbiznis/dentaldesk/internal/ratelimit"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const rateLimitEndpoint = "create_checkout_session"

// SessionCreator creates hosted checkout sessions at the payment provider.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewStripeSessionCreator uses an explicit API key instead of the package
// level stripe.Key.
func NewStripeSessionCreator(cfg config.Config) SessionCreator {
	return &session.Client{
		B:   stripe.GetBackend(stripe.APIBackend),
		Key: cfg.Stripe.SecretKey,
	}
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Plans      *config.PlanCatalogHolder
	Clinics    clinicdomain.Repository
	Creator    SessionCreator
	Limiter    *ratelimit.CheckoutLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics        `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	plans      *config.PlanCatalogHolder
	clinics    clinicdomain.Repository
	creator    SessionCreator
	limiter    *ratelimit.CheckoutLimiter
	obsMetrics *obsmetrics.Metrics
	successURL string
	cancelURL  string
}

func NewService(p Params) billingdomain.CheckoutService {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.checkout"),
		plans:      p.Plans,
		clinics:    p.Clinics,
		creator:    p.Creator,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
		successURL: strings.TrimSpace(p.Cfg.Checkout.SuccessURL),
		cancelURL:  strings.TrimSpace(p.Cfg.Checkout.CancelURL),
	}
}

func (s *Service) CreateSession(ctx context.Context, req billingdomain.CheckoutRequest) (*billingdomain.CheckoutSession, error) {
	clinicID := strings.TrimSpace(req.ClinicID)
	planCode := strings.ToLower(strings.TrimSpace(req.Plan))
	if clinicID == "" {
		return nil, billingdomain.ErrMissingClinicID
	}

	plan, ok := s.plans.Get().Find(planCode)
	if !ok || strings.TrimSpace(plan.PriceID) == "" {
		s.record(ctx, planCode, "invalid_plan")
		return nil, billingdomain.ErrInvalidPlan
	}

	clinic, err := s.clinics.FindByID(ctx, s.db, clinicID)
	if err != nil {
		return nil, err
	}
	if clinic == nil {
		s.record(ctx, plan.Code, "clinic_not_found")
		return nil, billingdomain.ErrClinicNotFound
	}

	release, err := s.throttle(ctx, clinicID)
	if err != nil {
		s.record(ctx, plan.Code, "rate_limited")
		return nil, err
	}
	defer release()

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(plan.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(clinicID),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"clinic_id": clinicID,
				"plan":      plan.Code,
			},
		},
	}
	params.AddMetadata("clinic_id", clinicID)
	params.AddMetadata("plan", plan.Code)
	if clinic.BillingCustomerID != nil && *clinic.BillingCustomerID != "" {
		params.Customer = stripe.String(*clinic.BillingCustomerID)
	}

	created, err := s.creator.New(params)
	if err != nil {
		s.log.Error("checkout session creation failed",
			zap.String("clinic_id", clinicID),
			zap.String("plan", plan.Code),
			zap.Error(err),
		)
		s.record(ctx, plan.Code, "provider_error")
		return nil, fmt.Errorf("%w: %v", billingdomain.ErrProviderUnavailable, err)
	}
	if created == nil || created.ID == "" {
		s.record(ctx, plan.Code, "provider_error")
		return nil, billingdomain.ErrProviderUnavailable
	}

	s.log.Info("checkout session created",
		zap.String("clinic_id", clinicID),
		zap.String("plan", plan.Code),
		zap.String("session_id", created.ID),
	)
	s.record(ctx, plan.Code, "created")
	return &billingdomain.CheckoutSession{SessionID: created.ID, URL: created.URL}, nil
}

// throttle fails open when Redis is unreachable.
func (s *Service) throttle(ctx context.Context, clinicID string) (func(), error) {
	noop := func() {}
	if !s.limiter.Enabled() {
		return noop, nil
	}

	res, err := s.limiter.AllowClinic(ctx, clinicID)
	if err != nil {
		s.log.Warn("checkout rate limiter unavailable", zap.String("clinic_id", clinicID), zap.Error(err))
		return noop, nil
	}
	if !res.Allowed {
		s.denied(ctx, clinicID, "bucket_empty")
		return noop, billingdomain.ErrRateLimited
	}

	release, ok, err := s.limiter.Acquire(ctx, clinicID)
	if err != nil {
		s.log.Warn("checkout lock unavailable", zap.String("clinic_id", clinicID), zap.Error(err))
		return noop, nil
	}
	if !ok {
		s.denied(ctx, clinicID, "in_progress")
		return noop, billingdomain.ErrRateLimited
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordRateLimitAllowed(ctx, rateLimitEndpoint)
	}
	return release, nil
}

func (s *Service) denied(ctx context.Context, clinicID, reason string) {
	s.log.Info("checkout rate limited", zap.String("clinic_id", clinicID), zap.String("reason", reason))
	if s.obsMetrics != nil {
		s.obsMetrics.RecordRateLimitDenied(ctx, rateLimitEndpoint, reason)
	}
}

func (s *Service) record(ctx context.Context, plan, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordCheckoutSession(ctx, plan, outcome)
	}
}
