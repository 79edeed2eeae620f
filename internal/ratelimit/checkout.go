package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/dentaldesk/internal/config"
)

const (
	keyCheckoutClinic = "checkout:clinic:%s"
	keyCheckoutLock   = "checkout:lock:%s"

	defaultCheckoutLockTTL = 30 * time.Second
)

// CheckoutLimiter throttles checkout session creation per clinic. A nil
// limiter allows everything.
type CheckoutLimiter struct {
	bucket *TokenBucket
	lock   *clinicLock
	rate   float64
	burst  int
}

func NewCheckoutLimiter(cfg config.Config) (*CheckoutLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	return NewCheckoutLimiterWithClient(client, limitCfg.CheckoutRate, limitCfg.CheckoutBurst, defaultCheckoutLockTTL)
}

func NewCheckoutLimiterWithClient(client *redis.Client, rate float64, burst int, lockTTL time.Duration) (*CheckoutLimiter, error) {
	if client == nil {
		return nil, errors.New("rate limit redis client is required")
	}
	if rate <= 0 || burst <= 0 {
		return nil, errors.New("checkout rate limit must be positive")
	}
	return &CheckoutLimiter{
		bucket: NewTokenBucket(client),
		lock:   newClinicLock(client, lockTTL),
		rate:   rate,
		burst:  burst,
	}, nil
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowClinic spends one token from the clinic's bucket.
func (l *CheckoutLimiter) AllowClinic(ctx context.Context, clinicID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyCheckoutClinic, strings.TrimSpace(clinicID)), l.rate, l.burst)
}

// Acquire holds the clinic's checkout lock until release is called or the
// lock expires. ok is false while another request holds it.
func (l *CheckoutLimiter) Acquire(ctx context.Context, clinicID string) (release func(), ok bool, err error) {
	if !l.Enabled() {
		return func() {}, true, nil
	}

	held, err := l.lock.acquire(ctx, clinicID)
	if err != nil || held == nil {
		return func() {}, false, err
	}
	return func() {
		_ = l.lock.free(context.WithoutCancel(ctx), held)
	}, true, nil
}
