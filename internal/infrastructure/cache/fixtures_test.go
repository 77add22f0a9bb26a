package cache

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// newMiniRedis starts an in-process Redis and a client connected to it
func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newOrder(t *testing.T) *purchasing.PurchaseOrder {
	t.Helper()

	order, err := purchasing.NewPurchaseOrder("PO-202610-0001", purchasing.OrderInput{
		SupplierID: uuid.New(),
		Items: []purchasing.ItemInput{{
			ProductID: uuid.New(),
			Quantity:  decimal.NewFromInt(25),
			UnitPrice: decimal.RequireFromString("1.20"),
			TaxRate:   decimal.NewFromInt(7),
		}},
		DiscountPercentage: decimal.NewNullDecimal(decimal.NewFromInt(5)),
		Notes:              "rye flour, 25kg sacks",
	})
	require.NoError(t, err)
	order.MarkLoaded()
	return order
}
