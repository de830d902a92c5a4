package usecase

import (
	"context"
	"errors"
	"time"

	"BankStats/pkg/cache"
	applogger "BankStats/pkg/logger"
)

// ResponseCachePrefix namespaces cached API responses. A refresh drops all of them.
const ResponseCachePrefix = "api"

// ResponseCache memoises computed responses for a fixed TTL.
type ResponseCache struct {
	cache  cache.Service
	ttl    time.Duration
	logger *applogger.Logger
}

// NewResponseCache returns a cache; a nil service or non-positive ttl disables caching.
func NewResponseCache(c cache.Service, ttl time.Duration, logger *applogger.Logger) *ResponseCache {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &ResponseCache{cache: c, ttl: ttl, logger: logger}
}

// Key builds a response key from an endpoint name and its parameters, in order.
func (rc *ResponseCache) Key(endpoint string, params ...interface{}) string {
	return cache.GenerateKeyWithParams(cache.GenerateKey(ResponseCachePrefix, endpoint), params...)
}

// Get loads key into dest. It reports false on a miss or when caching is off.
func (rc *ResponseCache) Get(ctx context.Context, key string, dest interface{}) bool {
	if rc == nil || rc.cache == nil || rc.ttl <= 0 {
		return false
	}
	err := rc.cache.Get(ctx, key, dest)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		rc.logger.Warn("response cache read", applogger.String("key", key), applogger.Error(err))
	}
	return err == nil
}

// Set stores value under key. Failures are logged only.
func (rc *ResponseCache) Set(ctx context.Context, key string, value interface{}) {
	if rc == nil || rc.cache == nil || rc.ttl <= 0 {
		return
	}
	if err := rc.cache.Set(ctx, key, value, rc.ttl); err != nil {
		rc.logger.Warn("response cache write", applogger.String("key", key), applogger.Error(err))
	}
}
