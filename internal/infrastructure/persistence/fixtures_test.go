package persistence

import (
	"testing"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTestDB opens an in-memory sqlite database with the purchasing schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

// newDraftOrder builds an unsaved draft with one line per quantity
func newDraftOrder(t *testing.T, number string, quantities ...string) *purchasing.PurchaseOrder {
	t.Helper()

	if len(quantities) == 0 {
		quantities = []string{"10"}
	}
	lines := make([]purchasing.ItemInput, len(quantities))
	for i, q := range quantities {
		lines[i] = purchasing.ItemInput{
			ProductID: uuid.New(),
			Quantity:  decimal.RequireFromString(q),
			UnitPrice: decimal.NewFromFloat(2.5),
			TaxRate:   decimal.NewFromInt(10),
		}
	}

	order, err := purchasing.NewPurchaseOrder(number, purchasing.OrderInput{
		SupplierID: uuid.New(),
		Items:      lines,
	})
	require.NoError(t, err)
	return order
}

func actionKey(order *purchasing.PurchaseOrder, action purchasing.ActionType, seq string) string {
	return purchasing.IdempotencyKey(order.ID, action, seq)
}
