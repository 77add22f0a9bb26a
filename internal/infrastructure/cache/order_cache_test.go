package cache

import (
	"context"
	"testing"
	"time"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// orderCacheContract runs the same behaviour checks against every OrderCache
func orderCacheContract(t *testing.T, newCache func(t *testing.T) purchasing.OrderCache) {
	ctx := context.Background()

	t.Run("miss returns nil without error", func(t *testing.T) {
		c := newCache(t)

		got, err := c.Get(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("set then get", func(t *testing.T) {
		c := newCache(t)
		order := newOrder(t)

		require.NoError(t, c.Set(ctx, order, time.Minute))

		got, err := c.Get(ctx, order.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, order.PONumber, got.PONumber)
		assert.Equal(t, order.Status, got.Status)
		assert.Equal(t, order.Version, got.LoadedVersion())
		assert.True(t, order.TotalAmount.Equal(got.TotalAmount))
		assert.True(t, got.DiscountPercentage.Valid)
		require.Len(t, got.Items, 1)
		assert.True(t, got.Items[0].Quantity.Equal(decimal.NewFromInt(25)))
		assert.False(t, got.HasPendingChanges())
	})

	t.Run("invalidate", func(t *testing.T) {
		c := newCache(t)
		order := newOrder(t)
		require.NoError(t, c.Set(ctx, order, time.Minute))

		require.NoError(t, c.Invalidate(ctx, order.ID, order.Version+1))

		got, err := c.Get(ctx, order.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("fill read before the commit is dropped", func(t *testing.T) {
		c := newCache(t)
		stale := newOrder(t)
		committed := withVersion(stale, stale.Version+1, purchasing.StatusSent)

		require.NoError(t, c.Invalidate(ctx, stale.ID, committed.Version))
		require.NoError(t, c.Set(ctx, stale, time.Minute))

		got, err := c.Get(ctx, stale.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		require.NoError(t, c.Set(ctx, committed, time.Minute))
		got, err = c.Get(ctx, stale.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, purchasing.StatusSent, got.Status)
	})

	t.Run("older version never overwrites a newer one", func(t *testing.T) {
		c := newCache(t)
		stale := newOrder(t)
		newer := withVersion(stale, stale.Version+2, purchasing.StatusConfirmed)

		require.NoError(t, c.Set(ctx, newer, time.Minute))
		require.NoError(t, c.Set(ctx, stale, time.Minute))

		got, err := c.Get(ctx, stale.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, newer.Version, got.Version)
		assert.Equal(t, purchasing.StatusConfirmed, got.Status)
	})

	t.Run("a lower invalidation keeps the higher floor", func(t *testing.T) {
		c := newCache(t)
		order := newOrder(t)

		require.NoError(t, c.Invalidate(ctx, order.ID, 5))
		require.NoError(t, c.Invalidate(ctx, order.ID, 3))
		require.NoError(t, c.Set(ctx, withVersion(order, 4, purchasing.StatusSent), time.Minute))

		got, err := c.Get(ctx, order.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("nil order is ignored", func(t *testing.T) {
		assert.NoError(t, newCache(t).Set(ctx, nil, time.Minute))
	})
}

func TestInMemoryOrderCache(t *testing.T) {
	orderCacheContract(t, func(t *testing.T) purchasing.OrderCache {
		c := NewInMemoryOrderCache(zap.NewNop())
		t.Cleanup(func() { _ = c.Close() })
		return c
	})

	t.Run("entries expire", func(t *testing.T) {
		c := NewInMemoryOrderCache(nil)
		defer c.Close()
		order := newOrder(t)

		require.NoError(t, c.Set(context.Background(), order, 10*time.Millisecond))
		time.Sleep(20 * time.Millisecond)

		got, err := c.Get(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		hits, misses := c.Stats()
		assert.Equal(t, int64(0), hits)
		assert.Equal(t, int64(1), misses)
	})

	t.Run("callers do not share the cached copy", func(t *testing.T) {
		c := NewInMemoryOrderCache(nil)
		defer c.Close()
		order := newOrder(t)
		require.NoError(t, c.Set(context.Background(), order, time.Minute))

		got, err := c.Get(context.Background(), order.ID)
		require.NoError(t, err)
		got.Items[0].QuantityReceived = decimal.NewFromInt(5)
		got.Status = purchasing.StatusCancelled

		again, err := c.Get(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, purchasing.StatusDraft, again.Status)
		assert.True(t, again.Items[0].QuantityReceived.IsZero())
	})

	t.Run("pointer fields are copied too", func(t *testing.T) {
		c := NewInMemoryOrderCache(nil)
		defer c.Close()
		order := newOrder(t)
		expected := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
		passed := true
		order.ExpectedDate = &expected
		order.Items[0].QCPassed = &passed
		require.NoError(t, c.Set(context.Background(), order, time.Minute))

		expected = expected.AddDate(0, 0, 3)
		passed = false
		got, err := c.Get(context.Background(), order.ID)
		require.NoError(t, err)
		*got.ExpectedDate = got.ExpectedDate.AddDate(1, 0, 0)
		*got.Items[0].QCPassed = false

		again, err := c.Get(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), *again.ExpectedDate)
		require.NotNil(t, again.Items[0].QCPassed)
		assert.True(t, *again.Items[0].QCPassed)
	})

	t.Run("expired floor no longer blocks fills", func(t *testing.T) {
		c := NewInMemoryOrderCache(nil)
		defer c.Close()
		order := newOrder(t)
		require.NoError(t, c.Invalidate(context.Background(), order.ID, 7))

		c.mu.Lock()
		c.floors[order.ID].expiresAt = time.Now().Add(-time.Second)
		c.mu.Unlock()

		require.NoError(t, c.Set(context.Background(), order, time.Minute))
		got, err := c.Get(context.Background(), order.ID)
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}

func TestRedisOrderCache(t *testing.T) {
	orderCacheContract(t, func(t *testing.T) purchasing.OrderCache {
		_, client := newMiniRedis(t)
		return NewRedisOrderCache(client, zap.NewNop())
	})

	t.Run("applies the ttl", func(t *testing.T) {
		mr, client := newMiniRedis(t)
		c := NewRedisOrderCache(client, nil)
		order := newOrder(t)

		require.NoError(t, c.Set(context.Background(), order, time.Minute))
		assert.Equal(t, time.Minute, mr.TTL(orderCacheKey(order.ID)))

		mr.FastForward(2 * time.Minute)
		got, err := c.Get(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("invalidate keeps a version floor", func(t *testing.T) {
		mr, client := newMiniRedis(t)
		c := NewRedisOrderCache(client, nil)
		order := newOrder(t)
		require.NoError(t, c.Set(context.Background(), order, time.Minute))

		require.NoError(t, c.Invalidate(context.Background(), order.ID, order.Version+1))

		assert.False(t, mr.Exists(orderCacheKey(order.ID)))
		assert.Equal(t, versionFloorTTL, mr.TTL(orderFloorKey(order.ID)))
		floor, err := mr.Get(orderFloorKey(order.ID))
		require.NoError(t, err)
		assert.Equal(t, "2", floor)
	})

	t.Run("corrupted entry is dropped", func(t *testing.T) {
		mr, client := newMiniRedis(t)
		c := NewRedisOrderCache(client, nil)
		id := uuid.New()
		mr.HSet(orderCacheKey(id), orderFieldVersion, "1", orderFieldData, "{not json")

		_, err := c.Get(context.Background(), id)
		assert.Error(t, err)
		assert.False(t, mr.Exists(orderCacheKey(id)))
	})

	t.Run("redis errors surface", func(t *testing.T) {
		mr, client := newMiniRedis(t)
		c := NewRedisOrderCache(client, nil)
		mr.SetError("LOADING")

		_, err := c.Get(context.Background(), uuid.New())
		assert.Error(t, err)
	})
}

// withVersion returns a copy of order as it would be after later commits
func withVersion(order *purchasing.PurchaseOrder, version int, status purchasing.Status) *purchasing.PurchaseOrder {
	cp := *order
	cp.Version = version
	cp.Status = status
	return &cp
}
