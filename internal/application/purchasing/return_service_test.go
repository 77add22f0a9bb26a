package purchasing

import (
	"context"
	"testing"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newReceivedOrder builds a loaded order with received quantities per line
func newReceivedOrder(t *testing.T, ordered, received int64) *purchasing.PurchaseOrder {
	t.Helper()

	order := newSentOrder(t, ordered)
	_, err := order.ReceiveItem(order.Items[0].ID, decimal.NewFromInt(received), nil, "dn-1")
	require.NoError(t, err)
	order.Version++
	order.MarkLoaded()
	return order
}

func TestReturnService_ProcessReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("records the return and reverses stock", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		returns := new(MockPurchaseReturnRepository)
		s := NewReturnService(returns, f.executor)
		order := newReceivedOrder(t, 10, 10)
		returnID := uuid.New()

		f.history.On("ExistsByKey", mock.Anything, order.ID.String()+":item_returned:"+returnID.String()).Return(false, nil)
		f.orders.On("FindByID", mock.Anything, order.ID).Return(copyOrder(order), nil)
		f.orders.On("SaveWithLock", mock.Anything, mock.MatchedBy(func(o *purchasing.PurchaseOrder) bool {
			return len(o.PendingReturns()) == 1 && o.PendingReturns()[0].ID == returnID
		})).Return(nil)
		f.inventory.On("DecrementStock", mock.Anything, mock.MatchedBy(func(mv purchasing.StockMovement) bool {
			return mv.Quantity.Equal(decimal.NewFromInt(-2))
		})).Return(nil)

		resp, err := s.ProcessReturn(ctx, order.ID, ReturnItemRequest{
			ReturnID: &returnID,
			ItemID:   order.Items[0].ID,
			Quantity: decimal.NewFromInt(2),
			Reason:   "damaged",
		})

		require.NoError(t, err)
		assert.False(t, resp.Replayed)
		assert.Equal(t, returnID, resp.Return.ID)
		assert.Equal(t, "completed", resp.Return.Status)
		// 2 of 10 at 3.40
		require.NotNil(t, resp.Return.RefundAmount)
		assert.Equal(t, "6.8", resp.Return.RefundAmount.String())
		f.inventory.AssertExpectations(t)
		returns.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("refund override wins", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		s := NewReturnService(new(MockPurchaseReturnRepository), f.executor)
		order := newReceivedOrder(t, 10, 10)
		f.history.On("ExistsByKey", mock.Anything, mock.Anything).Return(false, nil)
		f.orders.On("FindByID", mock.Anything, order.ID).Return(copyOrder(order), nil)
		f.expectSave(nil)
		f.inventory.On("DecrementStock", mock.Anything, mock.Anything).Return(nil)

		refund := decimal.RequireFromString("5.00")
		resp, err := s.ProcessReturn(ctx, order.ID, ReturnItemRequest{
			ItemID:       order.Items[0].ID,
			Quantity:     decimal.NewFromInt(2),
			Reason:       "expired",
			RefundAmount: &refund,
		})

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, resp.Return.ID)
		assert.Equal(t, "5", resp.Return.RefundAmount.String())
	})

	t.Run("replay returns the stored return", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		returns := new(MockPurchaseReturnRepository)
		s := NewReturnService(returns, f.executor)
		order := newReceivedOrder(t, 10, 10)
		returnID := uuid.New()
		stored := &purchasing.PurchaseReturn{
			ID:               returnID,
			PurchaseOrderID:  order.ID,
			QuantityReturned: decimal.NewFromInt(2),
			Reason:           purchasing.ReturnReasonDamaged,
			Status:           purchasing.ReturnStatusCompleted,
		}

		f.history.On("ExistsByKey", mock.Anything, mock.Anything).Return(true, nil)
		f.orders.On("FindByID", mock.Anything, order.ID).Return(copyOrder(order), nil)
		returns.On("FindByID", mock.Anything, returnID).Return(stored, nil)

		resp, err := s.ProcessReturn(ctx, order.ID, ReturnItemRequest{
			ReturnID: &returnID,
			ItemID:   order.Items[0].ID,
			Quantity: decimal.NewFromInt(2),
			Reason:   "damaged",
		})

		require.NoError(t, err)
		assert.True(t, resp.Replayed)
		assert.Equal(t, returnID, resp.Return.ID)
		f.inventory.AssertNotCalled(t, "DecrementStock", mock.Anything, mock.Anything)
	})

	t.Run("return id of another order conflicts", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		returns := new(MockPurchaseReturnRepository)
		s := NewReturnService(returns, f.executor)
		order := newReceivedOrder(t, 10, 10)
		returnID := uuid.New()

		f.history.On("ExistsByKey", mock.Anything, mock.Anything).Return(true, nil)
		f.orders.On("FindByID", mock.Anything, order.ID).Return(copyOrder(order), nil)
		returns.On("FindByID", mock.Anything, returnID).
			Return(&purchasing.PurchaseReturn{ID: returnID, PurchaseOrderID: uuid.New()}, nil)

		_, err := s.ProcessReturn(ctx, order.ID, ReturnItemRequest{
			ReturnID: &returnID,
			ItemID:   order.Items[0].ID,
			Quantity: decimal.NewFromInt(1),
			Reason:   "other",
		})

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "RETURN_ID_CONFLICT", domainErr.Code)
	})

	t.Run("cannot return more than received", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		s := NewReturnService(new(MockPurchaseReturnRepository), f.executor)
		order := newReceivedOrder(t, 10, 3)
		f.history.On("ExistsByKey", mock.Anything, mock.Anything).Return(false, nil)
		f.orders.On("FindByID", mock.Anything, order.ID).Return(copyOrder(order), nil)

		_, err := s.ProcessReturn(ctx, order.ID, ReturnItemRequest{
			ItemID:   order.Items[0].ID,
			Quantity: decimal.NewFromInt(4),
			Reason:   "excess",
		})

		assert.Equal(t, shared.KindValidation, shared.KindOf(err))
		f.orders.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})
}
