package purchasing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType identifies what caused a stock movement
type MovementType string

const (
	MovementReceipt MovementType = "po_receipt"
	MovementReturn  MovementType = "po_return"
)

// StockMovement is an on-hand change requested from inventory.
// Quantity is the signed delta: positive for receipts, negative for returns.
type StockMovement struct {
	ID              uuid.UUID       `json:"id"`
	ProductID       uuid.UUID       `json:"product_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	Type            MovementType    `json:"movement_type"`
	PurchaseOrderID uuid.UUID       `json:"purchase_order_id"`
	ItemID          uuid.UUID       `json:"purchase_order_item_id"`
	IdempotencyKey  string          `json:"idempotency_key"`
	CreatedAt       time.Time       `json:"created_at"`
}

func newStockMovement(t MovementType, item *PurchaseOrderItem, delta decimal.Decimal, key string) StockMovement {
	return StockMovement{
		ID:              uuid.New(),
		ProductID:       item.ProductID,
		Quantity:        delta,
		Type:            t,
		PurchaseOrderID: item.PurchaseOrderID,
		ItemID:          item.ID,
		IdempotencyKey:  key,
		CreatedAt:       time.Now(),
	}
}
