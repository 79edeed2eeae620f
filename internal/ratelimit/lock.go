package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseIfOwner deletes the lock only while it still carries our token, so
// a request that outlived its TTL cannot free a lock taken by the next one.
const releaseIfOwner = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var errEmptyClinicID = errors.New("clinic id is empty")

// clinicLock serialises checkout session creation per clinic. The lease is
// a SETNX key holding a random token that expires on its own if the holder dies.
type clinicLock struct {
	client  *redis.Client
	release *redis.Script
	ttl     time.Duration
}

func newClinicLock(client *redis.Client, ttl time.Duration) *clinicLock {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultCheckoutLockTTL
	}
	return &clinicLock{
		client:  client,
		release: redis.NewScript(releaseIfOwner),
		ttl:     ttl,
	}
}

func clinicLockKey(clinicID string) (string, error) {
	clinicID = strings.TrimSpace(clinicID)
	if clinicID == "" {
		return "", errEmptyClinicID
	}
	return fmt.Sprintf(keyCheckoutLock, clinicID), nil
}

// lease is a held clinic lock.
type lease struct {
	key   string
	token string
}

// acquire takes the clinic's lock. A nil lease with a nil error means another
// checkout for the clinic is in flight.
func (l *clinicLock) acquire(ctx context.Context, clinicID string) (*lease, error) {
	key, err := clinicLockKey(clinicID)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &lease{key: key, token: token}, nil
}

func (l *clinicLock) free(ctx context.Context, held *lease) error {
	if l == nil || held == nil {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{held.key}, held.token).Err()
}
