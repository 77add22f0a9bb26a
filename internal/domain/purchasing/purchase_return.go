package purchasing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnReason classifies why goods went back to the supplier
type ReturnReason string

const (
	ReturnReasonDefective     ReturnReason = "defective"
	ReturnReasonDamaged       ReturnReason = "damaged"
	ReturnReasonWrongItem     ReturnReason = "wrong_item"
	ReturnReasonExpired       ReturnReason = "expired"
	ReturnReasonExcess        ReturnReason = "excess"
	ReturnReasonQualityFailed ReturnReason = "quality_failed"
	ReturnReasonOther         ReturnReason = "other"
)

// IsValid checks if the reason is a known value
func (r ReturnReason) IsValid() bool {
	switch r {
	case ReturnReasonDefective, ReturnReasonDamaged, ReturnReasonWrongItem, ReturnReasonExpired,
		ReturnReasonExcess, ReturnReasonQualityFailed, ReturnReasonOther:
		return true
	}
	return false
}

// ReturnStatus is the state of a return record
type ReturnStatus string

// ReturnStatusCompleted is the only status: a return is recorded together
// with its stock reversal, so there is no pending phase.
const ReturnStatusCompleted ReturnStatus = "completed"

// PurchaseReturn is a recorded reversal of previously received quantity
type PurchaseReturn struct {
	ID                  uuid.UUID           `json:"id"`
	PurchaseOrderID     uuid.UUID           `json:"purchase_order_id"`
	PurchaseOrderItemID uuid.UUID           `json:"purchase_order_item_id"`
	ProductID           uuid.UUID           `json:"product_id"`
	QuantityReturned    decimal.Decimal     `json:"quantity_returned"`
	Reason              ReturnReason        `json:"reason"`
	ReasonDetails       string              `json:"reason_details,omitempty"`
	ReturnDate          time.Time           `json:"return_date"`
	RefundAmount        decimal.NullDecimal `json:"refund_amount"`
	Status              ReturnStatus        `json:"status"`
	CreatedAt           time.Time           `json:"created_at"`
}

// ReturnInput describes a return request against one line
type ReturnInput struct {
	// ReturnID is caller supplied and doubles as the idempotency sequence
	ReturnID      uuid.UUID
	ItemID        uuid.UUID
	Quantity      decimal.Decimal
	Reason        ReturnReason
	ReasonDetails string
	ReturnDate    time.Time
	// RefundOverride replaces the computed refund when Valid
	RefundOverride decimal.NullDecimal
}

// CalculateRefund returns the line's effective unit cost times quantity.
// The line total is multiplied before dividing to keep precision.
func CalculateRefund(item PurchaseOrderItem, quantity decimal.Decimal) decimal.Decimal {
	if item.Quantity.IsZero() {
		return decimal.Zero
	}
	return item.computeLineTotal().Mul(quantity).Div(item.Quantity)
}
