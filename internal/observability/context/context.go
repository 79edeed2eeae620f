// Package context carries request-scoped identifiers used by logs and spans.
package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type clinicIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithClinicID tags the context with the tenant the current work belongs to.
func WithClinicID(ctx context.Context, clinicID string) context.Context {
	clinicID = strings.TrimSpace(clinicID)
	if ctx == nil || clinicID == "" {
		return ctx
	}
	return context.WithValue(ctx, clinicIDKey{}, clinicID)
}

func ClinicIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(clinicIDKey{}).(string)
	return value
}
