package cache

import (
	"context"
	"fmt"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/bakery/backoffice/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backends is the set of caches the purchasing services run with
type Backends struct {
	Orders      purchasing.OrderCache
	Idempotency shared.IdempotencyStore
	// Kind is "redis" or "memory"
	Kind string

	client *redis.Client
}

// Close releases the caches and the Redis client they share
func (b *Backends) Close() error {
	_ = b.Orders.Close()
	_ = b.Idempotency.Close()
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// Ping checks the shared Redis connection. In-memory caches are always up.
func (b *Backends) Ping(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	return b.client.Ping(ctx).Err()
}

// Factory creates cache backends based on configuration
type Factory struct {
	redisConfig           config.RedisConfig
	backend               string
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory and the caches it creates
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// in-memory caches. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a factory for the configured cache backend
func NewFactory(redisCfg config.RedisConfig, purchasingCfg config.PurchasingConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           redisCfg,
		backend:               purchasingCfg.CacheBackend,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create builds the caches. Redis is used when it is both enabled and
// selected as the backend.
func (f *Factory) Create() (*Backends, error) {
	if f.backend != "redis" || !f.redisConfig.Enabled {
		return f.inMemory(), nil
	}

	client, err := NewRedisClient(f.redisConfig)
	if err != nil {
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis required for caching but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory caches. "+
			"Idempotency fast path is not shared across instances.",
			zap.String("addr", f.redisConfig.Addr()),
			zap.Error(err),
		)
		return f.inMemory(), nil
	}

	f.logger.Info("Using Redis caches", zap.String("addr", f.redisConfig.Addr()))
	return NewRedisBackends(client, f.logger), nil
}

// NewRedisBackends wraps an existing client. The returned Backends owns it.
func NewRedisBackends(client *redis.Client, logger *zap.Logger) *Backends {
	return &Backends{
		Orders:      NewRedisOrderCache(client, logger),
		Idempotency: NewRedisIdempotencyStore(client, ""),
		Kind:        "redis",
		client:      client,
	}
}

func (f *Factory) inMemory() *Backends {
	return &Backends{
		Orders:      NewInMemoryOrderCache(f.logger),
		Idempotency: NewInMemoryIdempotencyStore(),
		Kind:        "memory",
	}
}
