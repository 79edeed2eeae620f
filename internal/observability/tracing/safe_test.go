package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/billing/webhook"),
		attribute.String("stripe.signature", "t=1,v1=abc"),
		attribute.String("clinic.email", "front@clinic.test"),
	)
	require.Len(t, attrs, 1)
	require.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorReturnsRootCause(t *testing.T) {
	root := errors.New("connection refused")
	wrapped := fmt.Errorf("insert payment {\"amount\":7500}: %w", root)

	safe := SafeError(wrapped)
	require.EqualError(t, safe, "connection refused")
	require.Nil(t, SafeError(nil))
}
