package webhook

import (
	"context"
	"errors"
	"net/http"

	billingdomain "github.com/smallbiznis/dentaldesk/internal/billing/domain"
	obsmetrics "github.com/smallbiznis/dentaldesk/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Adapter    billingdomain.Adapter
	Reconciler billingdomain.Reconciler
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	adapter    billingdomain.Adapter
	reconciler billingdomain.Reconciler
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) billingdomain.WebhookService {
	return &Service{
		log:        p.Log.Named("billing.webhook"),
		adapter:    p.Adapter,
		reconciler: p.Reconciler,
		obsMetrics: p.ObsMetrics,
	}
}

// Ingest authenticates the raw delivery before decoding it. The payload must
// be the exact bytes received; re-encoded bodies fail verification.
func (s *Service) Ingest(ctx context.Context, payload []byte, headers http.Header) (billingdomain.Outcome, error) {
	if len(payload) == 0 {
		s.reject(ctx, "empty_payload", billingdomain.ErrInvalidPayload)
		return "", billingdomain.ErrInvalidPayload
	}

	if err := s.adapter.Verify(payload, headers); err != nil {
		s.reject(ctx, "signature", err)
		return "", billingdomain.ErrInvalidSignature
	}

	event, err := s.adapter.Parse(payload)
	if err != nil {
		s.reject(ctx, reason(err), err)
		return "", err
	}

	outcome, err := s.reconciler.Apply(ctx, event)
	if err != nil {
		meta := event.Meta()
		if billingdomain.IsValidation(err) {
			s.reject(ctx, reason(err), err, zap.String("event_id", meta.ID), zap.String("event_type", meta.Type))
		} else {
			s.log.Error("failed to apply webhook event",
				zap.String("event_id", meta.ID),
				zap.String("event_type", meta.Type),
				zap.Error(err),
			)
		}
		return "", err
	}
	return outcome, nil
}

func (s *Service) reject(ctx context.Context, why string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("reason", why), zap.Error(err))
	s.log.Warn("webhook rejected", fields...)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhookRejected(ctx, billingdomain.ProviderStripe, why)
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, billingdomain.ErrMissingClinicID):
		return "missing_clinic_id"
	case errors.Is(err, billingdomain.ErrClinicNotFound):
		return "clinic_not_found"
	case errors.Is(err, billingdomain.ErrInvalidPayload):
		return "payload"
	default:
		return "invalid_event"
	}
}
