package secrets

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultTokenTTL is how long a cached token stays valid in Redis.
// Quality API tokens are typically valid for 24h; the cache keeps a margin.
const DefaultTokenTTL = 30 * time.Minute

// Cached wraps a Provider with a Redis-backed token cache so repeated runs
// do not hit the secret backend on every request. Cache failures fall
// through to the underlying provider and never fail token retrieval.
type Cached struct {
	provider Provider
	redis    *redis.Client
	key      string
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewCached creates a caching provider. A zero ttl defaults to DefaultTokenTTL.
func NewCached(provider Provider, redisClient *redis.Client, key string, ttl time.Duration, logger zerolog.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Cached{
		provider: provider,
		redis:    redisClient,
		key:      key,
		ttl:      ttl,
		logger:   logger,
	}
}

// Token returns the cached token, falling back to the wrapped provider on a
// miss and storing the fresh value with TTL.
func (c *Cached) Token(ctx context.Context) (string, error) {
	token, err := c.redis.Get(ctx, c.key).Result()
	if err == nil && token != "" {
		c.logger.Debug().Str("key", c.key).Msg("Token cache hit")
		return token, nil
	}
	if err != nil && err != redis.Nil {
		c.logger.Warn().Err(err).Str("key", c.key).Msg("Token cache read failed")
	}

	token, err = c.provider.Token(ctx)
	if err != nil {
		return "", err
	}

	if err := c.redis.Set(ctx, c.key, token, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", c.key).Msg("Token cache write failed")
	}

	return token, nil
}
