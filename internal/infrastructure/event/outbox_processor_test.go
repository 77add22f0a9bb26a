package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProcessor(t *testing.T, handler shared.EventHandler) (*OutboxProcessor, *GormOutboxRepository) {
	t.Helper()
	repo := NewGormOutboxRepository(newTestDB(t))
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(handler)
	config := DefaultOutboxProcessorConfig()
	config.PollInterval = 10 * time.Millisecond
	return NewOutboxProcessor(repo, bus, NewPurchasingEventSerializer(), config, zap.NewNop()), repo
}

func TestOutboxProcessor_ProcessOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers pending entries and marks them sent", func(t *testing.T) {
		handler := newRecordingHandler()
		processor, repo := newTestProcessor(t, handler)
		entry := newEntry(t, newCreatedEvent())
		require.NoError(t, repo.Save(ctx, entry, newEntry(t, newReceivedEvent())))

		sent, err := processor.ProcessOnce(ctx)

		require.NoError(t, err)
		assert.Equal(t, 2, sent)
		assert.Equal(t, 2, handler.count())
		stored, err := repo.FindByID(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, shared.OutboxStatusSent, stored.Status)
		assert.NotNil(t, stored.ProcessedAt)

		sent, err = processor.ProcessOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, sent)
	})

	t.Run("failed delivery is scheduled for retry", func(t *testing.T) {
		handler := newRecordingHandler()
		handler.failWith(errors.New("queue unavailable"))
		processor, repo := newTestProcessor(t, handler)
		entry := newEntry(t, newCreatedEvent())
		require.NoError(t, repo.Save(ctx, entry))

		sent, err := processor.ProcessOnce(ctx)

		require.NoError(t, err)
		assert.Zero(t, sent)
		stored, err := repo.FindByID(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, shared.OutboxStatusFailed, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
		assert.Contains(t, stored.LastError, "queue unavailable")
		require.NotNil(t, stored.NextRetryAt)
	})

	t.Run("unknown event type goes dead eventually", func(t *testing.T) {
		processor, repo := newTestProcessor(t, newRecordingHandler())
		entry := newEntry(t, newCreatedEvent())
		entry.EventType = "SupplierInvoiced"
		entry.MaxRetries = 1
		require.NoError(t, repo.Save(ctx, entry))

		_, err := processor.ProcessOnce(ctx)
		require.NoError(t, err)

		dead, total, err := repo.FindDead(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, entry.ID, dead[0].ID)
	})
}

func TestOutboxProcessor_ReplayDead(t *testing.T) {
	ctx := context.Background()
	handler := newRecordingHandler()
	processor, repo := newTestProcessor(t, handler)

	entry := newEntry(t, newCreatedEvent())
	entry.Status = shared.OutboxStatusDead
	entry.RetryCount = entry.MaxRetries
	pending := newEntry(t, newReceivedEvent())
	require.NoError(t, repo.Save(ctx, entry, pending))

	require.NoError(t, processor.ReplayDead(ctx, entry.ID))
	sent, err := processor.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	err = processor.ReplayDead(ctx, pending.ID)
	assert.Equal(t, shared.KindConflict, shared.KindOf(err))
	assert.ErrorIs(t, processor.ReplayDead(ctx, uuid.New()), shared.ErrNotFound)
}

func TestOutboxProcessor_StartStop(t *testing.T) {
	handler := newRecordingHandler()
	processor, repo := newTestProcessor(t, handler)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, newEntry(t, newCreatedEvent())))

	require.NoError(t, processor.Start(ctx))
	assert.Eventually(t, func() bool { return handler.count() == 1 }, time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, processor.Stop(stopCtx))
}

func TestOutboxProcessor_Stats(t *testing.T) {
	ctx := context.Background()
	processor, repo := newTestProcessor(t, newRecordingHandler())

	dead := newEntry(t, newCreatedEvent())
	dead.Status = shared.OutboxStatusDead
	require.NoError(t, repo.Save(ctx, dead, newEntry(t, newReceivedEvent())))

	stats, err := processor.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[shared.OutboxStatusPending])
	assert.Equal(t, int64(1), stats[shared.OutboxStatusDead])
	assert.Contains(t, stats, shared.OutboxStatusSent)
	assert.Zero(t, stats[shared.OutboxStatusSent])

	letters, total, err := processor.DeadLetters(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, dead.ID, letters[0].ID)

	entry, err := processor.Entry(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, dead.EventID, entry.EventID)
}
