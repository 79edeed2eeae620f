package billing

import (
	"github.com/smallbiznis/dentaldesk/internal/billing/adapters/stripe"
	"github.com/smallbiznis/dentaldesk/internal/billing/checkout"
	billingdomain "github.com/smallbiznis/dentaldesk/internal/billing/domain"
	"github.com/smallbiznis/dentaldesk/internal/billing/repository"
	"github.com/smallbiznis/dentaldesk/internal/billing/service"
	"github.com/smallbiznis/dentaldesk/internal/billing/webhook"
	"go.uber.org/fx"
)

// WebhookModule wires signature verification and event reconciliation.
var WebhookModule = fx.Module("billing.webhook",
	fx.Provide(repository.Provide),
	fx.Provide(stripe.Provide),
	fx.Provide(
		fx.Annotate(service.NewReconciler, fx.As(new(billingdomain.Reconciler))),
	),
	fx.Provide(webhook.NewService),
)

// CheckoutModule wires hosted checkout session creation.
var CheckoutModule = fx.Module("billing.checkout",
	fx.Provide(checkout.NewStripeSessionCreator),
	fx.Provide(checkout.NewService),
)

var Module = fx.Module("billing",
	WebhookModule,
	CheckoutModule,
)
