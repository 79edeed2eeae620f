package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/dentaldesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, rate float64, burst int) (*CheckoutLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewCheckoutLimiterWithClient(client, rate, burst, time.Minute)
	require.NoError(t, err)
	return limiter, mr
}

func TestCheckoutLimiterDisabledAllows(t *testing.T) {
	limiter, err := NewCheckoutLimiter(config.Config{})
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowClinic(context.Background(), "clinic-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	release, ok, err := limiter.Acquire(context.Background(), "clinic-1")
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestCheckoutLimiterRequiresRedisAddr(t *testing.T) {
	_, err := NewCheckoutLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true}})
	require.Error(t, err)
}

func TestCheckoutLimiterSpendsBurstPerClinic(t *testing.T) {
	limiter, _ := newTestLimiter(t, 0.001, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.AllowClinic(ctx, "clinic-1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "attempt %d", i)
	}

	res, err := limiter.AllowClinic(ctx, "clinic-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	res, err = limiter.AllowClinic(ctx, "clinic-2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckoutLockIsExclusive(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, 1)
	ctx := context.Background()

	release, ok, err := limiter.Acquire(ctx, "clinic-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("checkout:lock:clinic-1"))

	_, ok, err = limiter.Acquire(ctx, "clinic-1")
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists("checkout:lock:clinic-1"))

	release, ok, err = limiter.Acquire(ctx, "clinic-1")
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestNewCheckoutLimiterWithClientRejectsInvalidRates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := NewCheckoutLimiterWithClient(client, 0, 1, 0)
	require.Error(t, err)
	_, err = NewCheckoutLimiterWithClient(nil, 1, 1, 0)
	require.Error(t, err)
}

func TestCheckoutLockRejectsEmptyClinic(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, 1)

	_, ok, err := limiter.Acquire(context.Background(), "  ")
	require.ErrorIs(t, err, errEmptyClinicID)
	assert.False(t, ok)
}

func TestExpiredCheckoutLockReleaseKeepsNextHolder(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, 1)
	ctx := context.Background()

	staleRelease, ok, err := limiter.Acquire(ctx, "clinic-1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	release, ok, err := limiter.Acquire(ctx, "clinic-1")
	require.NoError(t, err)
	require.True(t, ok)

	staleRelease()
	assert.True(t, mr.Exists("checkout:lock:clinic-1"))

	release()
	assert.False(t, mr.Exists("checkout:lock:clinic-1"))
}
