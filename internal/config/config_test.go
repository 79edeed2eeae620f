package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidateReportsEveryMissingOption(t *testing.T) {
	err := Config{}.Validate()
	require.ErrorIs(t, err, ErrMissingConfig)
	for _, key := range []string{"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "STORE_URL", "STORE_SERVICE_KEY"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestProvideFailsWithoutStoreURL(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("STORE_URL", "")
	t.Setenv("STORE_SERVICE_KEY", "service-key")

	_, err := Provide()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_URL")
	assert.NotContains(t, err.Error(), "STRIPE_SECRET_KEY")
}

func TestProvideLoadsRequiredOptions(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("STORE_URL", "postgres://postgres@db.example.com:5432/postgres")
	t.Setenv("STORE_SERVICE_KEY", "service-key")
	t.Setenv("WEBHOOK_TOLERANCE_SECONDS", "120")

	cfg, err := Provide()
	require.NoError(t, err)
	assert.Equal(t, "whsec_test", cfg.Stripe.WebhookSecret)
	assert.Equal(t, 120, cfg.Stripe.ToleranceSeconds)
	assert.Equal(t, "postgres", cfg.Store.Type)
}

func TestLoadSplitsAllowedOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://app.example.com, ,https://admin.example.com ")
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, Load().CORSAllowedOrigins)

	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	assert.Equal(t, []string{"*"}, Load().CORSAllowedOrigins)
}

func TestPlanPeriodEnd(t *testing.T) {
	start := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, start.AddDate(0, 1, 0), Plan{Interval: "month"}.PeriodEnd(start))
	assert.Equal(t, start.AddDate(1, 0, 0), Plan{Interval: "year"}.PeriodEnd(start))
}

func TestLoadPlanCatalogFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`plans:
  - code: monthly
    priceId: price_month
    interval: month
  - code: yearly
    priceId: price_year
    interval: year
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plans.yml"), content, 0o600))

	holder, err := LoadPlanCatalog(zap.NewNop(), dir)
	require.NoError(t, err)

	plan, ok := holder.Get().Find("YEARLY")
	require.True(t, ok)
	assert.Equal(t, "price_year", plan.PriceID)
	assert.Equal(t, "year", plan.Interval)

	_, ok = holder.Get().Find("weekly")
	assert.False(t, ok)
}

func TestLoadPlanCatalogFallsBackToDefaults(t *testing.T) {
	t.Setenv("STRIPE_PRICE_MONTHLY", "price_env_month")

	holder, err := LoadPlanCatalog(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	plan, ok := holder.Get().Find("monthly")
	require.True(t, ok)
	assert.Equal(t, "price_env_month", plan.PriceID)
}

func TestLoadPlanCatalogRejectsUnknownInterval(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`plans:
  - code: weekly
    priceId: price_week
    interval: week
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plans.yml"), content, 0o600))

	_, err := LoadPlanCatalog(zap.NewNop(), dir)
	require.Error(t, err)
}
