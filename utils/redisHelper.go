package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/petroeval_backend/config"
	"github.com/bsm/redislock"
)

/* Redis key layout */

// ResultCacheKey addresses a cached interactive result by content fingerprint.
func ResultCacheKey(fingerprint string) string {
	return "calc:result:" + fingerprint
}

// ProgressChannelKey addresses the ephemeral progress mirror for a running
// stochastic calculation.
func ProgressChannelKey(calculationId uint) string {
	return "calc:progress:" + fmt.Sprint(calculationId)
}

/* generic cache functions */

// StoreCached stores obj under key with the given TTL. A nil redis client is a no-op.
func StoreCached[T any](key string, obj *T, ttl time.Duration) error {
	return config.SetRedisObject(key, obj, ttl)
}

// RetrieveCached returns nil when the key does not exist.
func RetrieveCached[T any](key string) (*T, error) {
	var result *T
	exists, err := config.GetRedisObject(key, &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return result, nil
}

func RemoveCached(keys ...string) error {
	return config.RemoveRedisKey(keys...)
}

// ObtainSweepLock serializes the retirement sweep across instances. Returns
// redislock.ErrNotObtained when another sweeper already holds the lock; the
// caller must Release the returned lock.
func ObtainSweepLock(ctx context.Context, ttl time.Duration) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	return locker.Obtain(ctx, "calc:sweep", ttl, nil)
}
