package event

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/bakery/backoffice/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := persistence.NewSQLiteDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

func newEntry(t *testing.T, event shared.DomainEvent) *shared.OutboxEntry {
	t.Helper()
	payload, err := NewPurchasingEventSerializer().Serialize(event)
	require.NoError(t, err)
	return shared.NewOutboxEntry(event, payload)
}

func TestGormOutboxRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("save skips events already stored", func(t *testing.T) {
		repo := NewGormOutboxRepository(newTestDB(t))
		event := newCreatedEvent()

		require.NoError(t, repo.Save(ctx, newEntry(t, event)))
		require.NoError(t, repo.Save(ctx, newEntry(t, event)))

		pending, err := repo.FindPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, event.EventID(), pending[0].EventID)
	})

	t.Run("pending entries come oldest first", func(t *testing.T) {
		repo := NewGormOutboxRepository(newTestDB(t))
		older := newEntry(t, newCreatedEvent())
		older.CreatedAt = time.Now().Add(-time.Minute)
		newer := newEntry(t, newReceivedEvent())
		require.NoError(t, repo.Save(ctx, newer, older))

		pending, err := repo.FindPending(ctx, 1)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, older.ID, pending[0].ID)
	})

	t.Run("claimed entries are not claimed again", func(t *testing.T) {
		repo := NewGormOutboxRepository(newTestDB(t))
		entry := newEntry(t, newCreatedEvent())
		require.NoError(t, repo.Save(ctx, entry))

		claimed, err := repo.MarkProcessing(ctx, []uuid.UUID{entry.ID})
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, shared.OutboxStatusProcessing, claimed[0].Status)

		again, err := repo.MarkProcessing(ctx, []uuid.UUID{entry.ID})
		require.NoError(t, err)
		assert.Empty(t, again)
	})

	t.Run("retryable entries wait for their backoff", func(t *testing.T) {
		repo := NewGormOutboxRepository(newTestDB(t))
		entry := newEntry(t, newCreatedEvent())
		require.NoError(t, repo.Save(ctx, entry))
		entry.Status = shared.OutboxStatusProcessing
		entry.MarkFailed("queue unavailable")
		require.NoError(t, repo.Update(ctx, entry))

		due, err := repo.FindRetryable(ctx, time.Now(), 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		due, err = repo.FindRetryable(ctx, time.Now().Add(time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "queue unavailable", due[0].LastError)
	})

	t.Run("dead letters, counts and cleanup", func(t *testing.T) {
		repo := NewGormOutboxRepository(newTestDB(t))
		dead := newEntry(t, newCreatedEvent())
		dead.Status = shared.OutboxStatusDead
		sent := newEntry(t, newReceivedEvent())
		sent.MarkSent()
		old := time.Now().Add(-48 * time.Hour)
		sent.ProcessedAt = &old
		require.NoError(t, repo.Save(ctx, dead, sent, newEntry(t, newCreatedEvent())))

		deadEntries, total, err := repo.FindDead(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, deadEntries, 1)
		assert.Equal(t, dead.ID, deadEntries[0].ID)

		counts, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[shared.OutboxStatus]int64{
			shared.OutboxStatusDead:    1,
			shared.OutboxStatusSent:    1,
			shared.OutboxStatusPending: 1,
		}, counts)

		deleted, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		repo := NewGormOutboxRepository(newTestDB(t))
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormOutboxRepository_MarkProcessing_Postgres(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "outbox_events"`) + `.*` + regexp.QuoteMeta(`FOR UPDATE SKIP LOCKED`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "status"}).AddRow(id, "PurchaseOrderCreated", "PENDING"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "outbox_events" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := NewGormOutboxRepository(db).MarkProcessing(context.Background(), []uuid.UUID{id})

	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, shared.OutboxStatusProcessing, claimed[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
