package purchasing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/bakery/backoffice/internal/infrastructure/cache"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func receiveCommand(order *purchasing.PurchaseOrder, quantity int64, seq string) Command {
	key := purchasing.IdempotencyKey(order.ID, purchasing.ActionItemReceived, seq)
	itemID := order.Items[0].ID
	return Command{
		Action:  string(purchasing.ActionItemReceived),
		OrderID: order.ID,
		Key:     key,
		Mutate: func(o *purchasing.PurchaseOrder) error {
			_, err := o.ReceiveItem(itemID, decimal.NewFromInt(quantity), nil, key)
			return err
		},
	}
}

func TestCommandExecutor_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("applies the mutation, books stock and marks the key", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		order := newSentOrder(t, 10)
		store := cache.NewInMemoryIdempotencyStore()
		defer store.Close()
		orderCache := new(MockOrderCache)
		f.executor.SetIdempotencyStore(store)
		f.executor.SetOrderCache(orderCache)

		cmd := receiveCommand(order, 4, "d1")
		f.history.On("ExistsByKey", mock.Anything, cmd.Key).Return(false, nil)
		f.orders.On("FindByID", mock.Anything, order.ID).Return(copyOrder(order), nil)
		f.expectSave(nil)
		f.inventory.On("IncrementStock", mock.Anything, mock.MatchedBy(func(mv purchasing.StockMovement) bool {
			return mv.Quantity.Equal(decimal.NewFromInt(4)) && mv.IdempotencyKey == cmd.Key
		})).Return(nil)
		orderCache.On("Invalidate", mock.Anything, order.ID, mock.AnythingOfType("int")).Return(nil)

		result, err := f.executor.Execute(ctx, cmd)

		require.NoError(t, err)
		assert.False(t, result.Replayed)
		assert.Equal(t, purchasing.StatusPartiallyReceived, result.Order.Status)
		assert.True(t, result.Order.Items[0].QuantityReceived.Equal(decimal.NewFromInt(4)))

		processed, err := store.IsProcessed(ctx, cmd.Key)
		require.NoError(t, err)
		assert.True(t, processed)
		f.inventory.AssertExpectations(t)
		orderCache.AssertExpectations(t)
	})

	t.Run("key found in history replays the current state", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		order := newSentOrder(t, 10)
		cmd := receiveCommand(order, 4, "d1")

		f.history.On("ExistsByKey", mock.Anything, cmd.Key).Return(true, nil)
		f.orders.On("FindByID", mock.Anything, order.ID).Return(copyOrder(order), nil)

		result, err := f.executor.Execute(ctx, cmd)

		require.NoError(t, err)
		assert.True(t, result.Replayed)
		assert.Equal(t, purchasing.StatusSent, result.Order.Status)
		f.orders.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
		f.inventory.AssertNotCalled(t, "IncrementStock", mock.Anything, mock.Anything)
	})

	t.Run("fast path hit skips the history lookup", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		order := newSentOrder(t, 10)
		cmd := receiveCommand(order, 4, "d1")
		store := cache.NewInMemoryIdempotencyStore()
		defer store.Close()
		_, err := store.MarkProcessed(ctx, cmd.Key, time.Hour)
		require.NoError(t, err)
		f.executor.SetIdempotencyStore(store)

		f.orders.On("FindByID", mock.Anything, order.ID).Return(copyOrder(order), nil)

		result, err := f.executor.Execute(ctx, cmd)

		require.NoError(t, err)
		assert.True(t, result.Replayed)
		f.history.AssertNotCalled(t, "ExistsByKey", mock.Anything, mock.Anything)
	})

	t.Run("stale write is retried on a fresh read", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		f := newExecutorFixture(t, zap.New(core))
		order := newSentOrder(t, 10)
		cmd := receiveCommand(order, 4, "d1")

		f.history.On("ExistsByKey", mock.Anything, cmd.Key).Return(false, nil)
		f.orders.On("FindByID", mock.Anything, order.ID).Return(copyOrder(order), nil).Once()
		f.orders.On("FindByID", mock.Anything, order.ID).Return(copyOrder(order), nil).Once()
		f.expectSave(shared.ErrConcurrencyConflict).Once()
		f.expectSave(nil).Once()
		f.inventory.On("IncrementStock", mock.Anything, mock.Anything).Return(nil).Once()

		result, err := f.executor.Execute(ctx, cmd)

		require.NoError(t, err)
		assert.True(t, result.Order.Items[0].QuantityReceived.Equal(decimal.NewFromInt(4)),
			"the delivery is applied once, not once per attempt")
		assert.Equal(t, []time.Duration{20 * time.Millisecond}, f.sleeps)
		assert.Equal(t, 1, logs.FilterMessage("Purchase order changed concurrently, retrying").Len())
		f.orders.AssertNumberOfCalls(t, "FindByID", 2)
	})

	t.Run("retries are bounded with a linear backoff", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		order := newSentOrder(t, 10)
		cmd := receiveCommand(order, 4, "d1")

		f.history.On("ExistsByKey", mock.Anything, cmd.Key).Return(false, nil)
		f.orders.On("FindByID", mock.Anything, order.ID).
			Return(func(context.Context, uuid.UUID) *purchasing.PurchaseOrder { return copyOrder(order) }, nil)
		f.expectSave(shared.ErrConcurrencyConflict)

		_, err := f.executor.Execute(ctx, cmd)

		require.Error(t, err)
		assert.True(t, shared.IsRetryable(err))
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, []time.Duration{20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond}, f.sleeps)
		f.orders.AssertNumberOfCalls(t, "SaveWithLock", 4)
	})

	t.Run("key persisted by a concurrent writer is a replay", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		order := newSentOrder(t, 10)
		cmd := receiveCommand(order, 4, "d1")

		f.history.On("ExistsByKey", mock.Anything, cmd.Key).Return(false, nil)
		f.orders.On("FindByID", mock.Anything, order.ID).
			Return(func(context.Context, uuid.UUID) *purchasing.PurchaseOrder { return copyOrder(order) }, nil)
		f.expectSave(purchasing.ErrAlreadyApplied)

		result, err := f.executor.Execute(ctx, cmd)

		require.NoError(t, err)
		assert.True(t, result.Replayed)
		assert.Empty(t, f.sleeps)
	})

	t.Run("validation failures are not retried", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		order := newSentOrder(t, 10)
		cmd := receiveCommand(order, 11, "d1")

		f.history.On("ExistsByKey", mock.Anything, cmd.Key).Return(false, nil)
		f.orders.On("FindByID", mock.Anything, order.ID).Return(copyOrder(order), nil)

		_, err := f.executor.Execute(ctx, cmd)

		require.Error(t, err)
		assert.Equal(t, shared.KindValidation, shared.KindOf(err))
		assert.False(t, shared.IsRetryable(err))
		f.orders.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})

	t.Run("stock failure rolls back the command", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		order := newSentOrder(t, 10)
		cmd := receiveCommand(order, 4, "d1")
		store := cache.NewInMemoryIdempotencyStore()
		defer store.Close()
		f.executor.SetIdempotencyStore(store)

		f.history.On("ExistsByKey", mock.Anything, cmd.Key).Return(false, nil)
		f.orders.On("FindByID", mock.Anything, order.ID).Return(copyOrder(order), nil)
		f.expectSave(nil)
		f.inventory.On("IncrementStock", mock.Anything, mock.Anything).Return(errors.New("ledger down"))

		_, err := f.executor.Execute(ctx, cmd)

		require.Error(t, err)
		processed, _ := store.IsProcessed(ctx, cmd.Key)
		assert.False(t, processed, "a failed command must not be remembered")
	})

	t.Run("empty key is rejected", func(t *testing.T) {
		f := newExecutorFixture(t, nil)

		_, err := f.executor.Execute(ctx, Command{Action: "sent", OrderID: uuid.New()})

		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestApplyMovement(t *testing.T) {
	ctx := context.Background()
	inventory := new(MockInventoryService)

	receipt := purchasing.StockMovement{Quantity: decimal.NewFromInt(5), IdempotencyKey: "a"}
	reversal := purchasing.StockMovement{Quantity: decimal.NewFromInt(-2), IdempotencyKey: "b"}
	inventory.On("IncrementStock", ctx, receipt).Return(nil)
	inventory.On("DecrementStock", ctx, reversal).Return(nil)

	require.NoError(t, applyMovement(ctx, inventory, receipt))
	require.NoError(t, applyMovement(ctx, inventory, reversal))
	inventory.AssertExpectations(t)
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
