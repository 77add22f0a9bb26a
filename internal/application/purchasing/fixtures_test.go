package purchasing

import (
	"context"
	"testing"
	"time"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// executorFixture wires a CommandExecutor to mocks and records backoff sleeps
type executorFixture struct {
	orders    *MockPurchaseOrderRepository
	history   *MockHistoryRepository
	inventory *MockInventoryService
	executor  *CommandExecutor
	sleeps    []time.Duration
}

func newExecutorFixture(t *testing.T, log *zap.Logger) *executorFixture {
	t.Helper()

	f := &executorFixture{
		orders:    new(MockPurchaseOrderRepository),
		history:   new(MockHistoryRepository),
		inventory: new(MockInventoryService),
	}
	f.executor = NewCommandExecutor(f.orders, f.history,
		NewNoOpTransactionScope(f.orders, f.inventory), DefaultSettings(), log)
	f.executor.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	return f
}

// expectSave makes SaveWithLock behave like the repository: bump the
// version and clear staged changes
func (f *executorFixture) expectSave(err error) *mock.Call {
	return f.orders.On("SaveWithLock", mock.Anything, mock.AnythingOfType("*purchasing.PurchaseOrder")).
		Run(func(args mock.Arguments) {
			if err != nil {
				return
			}
			order := args.Get(1).(*purchasing.PurchaseOrder)
			order.Version++
			order.MarkLoaded()
		}).
		Return(err)
}

// newLoadedOrder builds a persisted-looking draft with one line per quantity
func newLoadedOrder(t *testing.T, quantities ...int64) *purchasing.PurchaseOrder {
	t.Helper()

	if len(quantities) == 0 {
		quantities = []int64{10}
	}
	lines := make([]purchasing.ItemInput, len(quantities))
	for i, q := range quantities {
		lines[i] = purchasing.ItemInput{
			ProductID: uuid.New(),
			Quantity:  decimal.NewFromInt(q),
			UnitPrice: decimal.RequireFromString("3.40"),
			TaxRate:   decimal.NewFromInt(7),
		}
	}
	order, err := purchasing.NewPurchaseOrder("PO-202610-0001", purchasing.OrderInput{
		SupplierID: uuid.New(),
		Items:      lines,
	})
	require.NoError(t, err)
	order.MarkLoaded()
	return order
}

// newSentOrder builds a persisted-looking order already sent to the supplier
func newSentOrder(t *testing.T, quantities ...int64) *purchasing.PurchaseOrder {
	t.Helper()

	order := newLoadedOrder(t, quantities...)
	require.NoError(t, order.Send(purchasing.IdempotencyKey(order.ID, purchasing.ActionSent, "1")))
	order.Version++
	order.MarkLoaded()
	return order
}

// copyOrder returns an independent copy, as a fresh read would
func copyOrder(o *purchasing.PurchaseOrder) *purchasing.PurchaseOrder {
	cp := *o
	cp.Items = append([]purchasing.PurchaseOrderItem(nil), o.Items...)
	cp.MarkLoaded()
	return &cp
}
