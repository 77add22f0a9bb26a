package event

import (
	"context"
	"errors"
	"testing"

	apppurchasing "github.com/bakery/backoffice/internal/application/purchasing"
	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/bakery/backoffice/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(t *testing.T) *purchasing.PurchaseOrder {
	t.Helper()
	order, err := purchasing.NewPurchaseOrder("PO-202610-0007", purchasing.OrderInput{
		SupplierID: uuid.New(),
		Items: []purchasing.ItemInput{{
			ProductID: uuid.New(),
			Quantity:  decimal.NewFromInt(20),
			UnitPrice: decimal.RequireFromString("1.25"),
		}},
	})
	require.NoError(t, err)
	return order
}

func TestOutboxPublisher_SaveEvents(t *testing.T) {
	ctx := context.Background()
	publisher := NewOutboxPublisher(NewPurchasingEventSerializer())

	t.Run("order creation writes its event", func(t *testing.T) {
		db := newTestDB(t)
		orders := persistence.NewGormPurchaseOrderRepository(db)
		orders.SetOutboxEventSaver(publisher)
		order := newOrder(t)

		require.NoError(t, orders.Create(ctx, order))

		pending, err := NewGormOutboxRepository(db).FindPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, purchasing.EventTypePurchaseOrderCreated, pending[0].EventType)
		assert.Equal(t, order.ID, pending[0].AggregateID)
		assert.Equal(t, purchasing.EventID(order.ID, purchasing.IdempotencyKey(order.ID, purchasing.ActionCreated, "1")), pending[0].EventID)
	})

	t.Run("delivery events commit with the order", func(t *testing.T) {
		db := newTestDB(t)
		orders := persistence.NewGormPurchaseOrderRepository(db)
		orders.SetOutboxEventSaver(publisher)
		order := newOrder(t)
		require.NoError(t, orders.Create(ctx, order))
		require.NoError(t, order.Send(purchasing.IdempotencyKey(order.ID, purchasing.ActionSent, "1")))
		require.NoError(t, orders.SaveWithLock(ctx, order))

		scope := persistence.NewGormTransactionScope(db)
		scope.SetOutboxEventSaver(publisher)
		err := scope.Execute(ctx, func(repos apppurchasing.TransactionalRepositories) error {
			loaded, err := repos.Orders().FindByID(ctx, order.ID)
			if err != nil {
				return err
			}
			if _, err := loaded.ReceiveItem(loaded.Items[0].ID, decimal.NewFromInt(20), nil, "delivery-1"); err != nil {
				return err
			}
			return repos.Orders().SaveWithLock(ctx, loaded)
		})
		require.NoError(t, err)

		counts, err := NewGormOutboxRepository(db).CountByStatus(ctx)
		require.NoError(t, err)
		// created, sent, item received, implicit confirm, received
		assert.Equal(t, int64(5), counts[shared.OutboxStatusPending])
	})

	t.Run("rolled back change leaves no event", func(t *testing.T) {
		db := newTestDB(t)
		orders := persistence.NewGormPurchaseOrderRepository(db)
		order := newOrder(t)
		require.NoError(t, orders.Create(ctx, order))

		scope := persistence.NewGormTransactionScope(db)
		scope.SetOutboxEventSaver(publisher)
		boom := errors.New("inventory offline")
		err := scope.Execute(ctx, func(repos apppurchasing.TransactionalRepositories) error {
			loaded, err := repos.Orders().FindByID(ctx, order.ID)
			if err != nil {
				return err
			}
			if err := loaded.Cancel("duplicate order", "cancel-1"); err != nil {
				return err
			}
			if err := repos.Orders().SaveWithLock(ctx, loaded); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		pending, err := NewGormOutboxRepository(db).FindPending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("no events is a no-op", func(t *testing.T) {
		assert.NoError(t, publisher.SaveEvents(ctx, newTestDB(t)))
	})
}
