package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOrderCache implements purchasing.OrderCache on Redis, shared by all instances
type RedisOrderCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisOrderCache creates a cache on a shared client. The caller keeps
// ownership of the client.
func NewRedisOrderCache(client *redis.Client, logger *zap.Logger) *RedisOrderCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisOrderCache{client: client, logger: logger}
}

// Orders live in a hash holding the version and the JSON document. The
// floor key keeps the last committed version after an invalidation. Both
// keys share a hash tag so the scripts stay on one cluster slot.
func orderCacheKey(id uuid.UUID) string {
	return "purchase_order:{" + id.String() + "}"
}

func orderFloorKey(id uuid.UUID) string {
	return orderCacheKey(id) + ":floor"
}

const (
	orderFieldVersion = "version"
	orderFieldData    = "data"
)

// KEYS[1] order hash, KEYS[2] floor; ARGV[1] json, ARGV[2] version, ARGV[3] ttl ms
var setOrderScript = redis.NewScript(`
local version = tonumber(ARGV[2])
local floor = tonumber(redis.call('GET', KEYS[2]) or '-1')
if version < floor then
	return 0
end
local current = tonumber(redis.call('HGET', KEYS[1], 'version') or '-1')
if version < current then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[2], 'data', ARGV[1])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
else
	redis.call('PERSIST', KEYS[1])
end
return 1
`)

// KEYS[1] order hash, KEYS[2] floor; ARGV[1] committed version, ARGV[2] floor ttl ms
var invalidateOrderScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
local version = tonumber(ARGV[1])
local floor = tonumber(redis.call('GET', KEYS[2]) or '-1')
if floor > version then
	version = floor
end
redis.call('SET', KEYS[2], tostring(version), 'PX', ARGV[2])
return 1
`)

// Get returns the cached order, or nil on a miss. A corrupted entry is
// dropped and reported as an error.
func (c *RedisOrderCache) Get(ctx context.Context, id uuid.UUID) (*purchasing.PurchaseOrder, error) {
	key := orderCacheKey(id)

	data, err := c.client.HGet(ctx, key, orderFieldData).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order from cache: %w", err)
	}

	var order purchasing.PurchaseOrder
	if err := json.Unmarshal(data, &order); err != nil {
		c.logger.Warn("Dropping corrupted cached order", zap.String("order_id", id.String()), zap.Error(err))
		_ = c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal cached order: %w", err)
	}
	order.MarkLoaded()
	return &order, nil
}

// Set stores order for ttl unless a newer version is cached or was
// invalidated meanwhile
func (c *RedisOrderCache) Set(ctx context.Context, order *purchasing.PurchaseOrder, ttl time.Duration) error {
	if order == nil {
		return nil
	}
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	stored, err := setOrderScript.Run(ctx, c.client,
		[]string{orderCacheKey(order.ID), orderFloorKey(order.ID)},
		data, order.Version, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to set order in cache: %w", err)
	}
	if stored == 0 {
		c.logger.Debug("Stale order fill dropped",
			zap.String("order_id", order.ID.String()),
			zap.Int("version", order.Version),
		)
	}
	return nil
}

// Invalidate drops the order and rejects later fills older than version
func (c *RedisOrderCache) Invalidate(ctx context.Context, id uuid.UUID, version int) error {
	err := invalidateOrderScript.Run(ctx, c.client,
		[]string{orderCacheKey(id), orderFloorKey(id)},
		version, versionFloorTTL.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to invalidate cached order: %w", err)
	}
	return nil
}

// Close is a no-op; the shared client is closed by its owner
func (c *RedisOrderCache) Close() error {
	return nil
}

var _ purchasing.OrderCache = (*RedisOrderCache)(nil)
