package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisIdempotencyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("first mark wins", func(t *testing.T) {
		_, client := newMiniRedis(t)
		store := NewRedisIdempotencyStore(client, "")

		isNew, err := store.MarkProcessed(ctx, "po-1:sent:1", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)

		isNew, err = store.MarkProcessed(ctx, "po-1:sent:1", time.Hour)
		require.NoError(t, err)
		assert.False(t, isNew)

		processed, err := store.IsProcessed(ctx, "po-1:sent:1")
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("keys are prefixed and expire", func(t *testing.T) {
		mr, client := newMiniRedis(t)
		store := NewRedisIdempotencyStore(client, "test:")

		_, err := store.MarkProcessed(ctx, "po-1:confirmed:1", time.Minute)
		require.NoError(t, err)
		assert.True(t, mr.Exists("test:po-1:confirmed:1"))

		mr.FastForward(2 * time.Minute)
		processed, err := store.IsProcessed(ctx, "po-1:confirmed:1")
		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("close leaves the shared client open", func(t *testing.T) {
		_, client := newMiniRedis(t)
		store := NewRedisIdempotencyStore(client, "")

		require.NoError(t, store.Close())
		assert.NoError(t, client.Ping(ctx).Err())
	})
}
