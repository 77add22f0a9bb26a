package purchasing

import (
	"fmt"
	"time"

	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemInput carries the caller supplied fields of a line item
type ItemInput struct {
	ProductID          uuid.UUID
	Quantity           decimal.Decimal
	UnitPrice          decimal.Decimal
	DiscountAmount     decimal.Decimal
	DiscountPercentage decimal.NullDecimal
	TaxRate            decimal.Decimal
}

// PurchaseOrderItem is one product/quantity/price row of an order.
// 0 <= QuantityReturned <= QuantityReceived <= Quantity holds after every mutation.
type PurchaseOrderItem struct {
	ID                 uuid.UUID           `json:"id"`
	PurchaseOrderID    uuid.UUID           `json:"purchase_order_id"`
	ProductID          uuid.UUID           `json:"product_id"`
	Quantity           decimal.Decimal     `json:"quantity"`
	UnitPrice          decimal.Decimal     `json:"unit_price"`
	DiscountAmount     decimal.Decimal     `json:"discount_amount"`
	DiscountPercentage decimal.NullDecimal `json:"discount_percentage"`
	TaxRate            decimal.Decimal     `json:"tax_rate"`
	LineTotal          decimal.Decimal     `json:"line_total"`
	QuantityReceived   decimal.Decimal     `json:"quantity_received"`
	QuantityReturned   decimal.Decimal     `json:"quantity_returned"`
	QCPassed           *bool               `json:"qc_passed"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// NewPurchaseOrderItem validates in and creates an item for the order
func NewPurchaseOrderItem(orderID uuid.UUID, in ItemInput) (*PurchaseOrderItem, error) {
	if in.ProductID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if in.Quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if in.UnitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}
	if in.DiscountAmount.IsNegative() {
		return nil, shared.NewDomainError("INVALID_DISCOUNT", "Discount amount cannot be negative")
	}
	if err := validatePercentage(in.DiscountPercentage); err != nil {
		return nil, err
	}
	if in.TaxRate.IsNegative() {
		return nil, shared.NewDomainError("INVALID_TAX_RATE", "Tax rate cannot be negative")
	}

	now := time.Now()
	item := &PurchaseOrderItem{
		ID:                 uuid.New(),
		PurchaseOrderID:    orderID,
		ProductID:          in.ProductID,
		Quantity:           in.Quantity,
		UnitPrice:          in.UnitPrice,
		DiscountAmount:     in.DiscountAmount,
		DiscountPercentage: in.DiscountPercentage,
		TaxRate:            in.TaxRate,
		QuantityReceived:   decimal.Zero,
		QuantityReturned:   decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	item.LineTotal = item.computeLineTotal()
	return item, nil
}

func validatePercentage(p decimal.NullDecimal) error {
	if !p.Valid {
		return nil
	}
	if p.Decimal.IsNegative() || p.Decimal.GreaterThan(hundred) {
		return shared.NewDomainError("INVALID_DISCOUNT", "Discount percentage must be between 0 and 100")
	}
	return nil
}

func (i *PurchaseOrderItem) computeLineTotal() decimal.Decimal {
	return CalculateLineTotal(LineInput{
		Quantity:           i.Quantity,
		UnitPrice:          i.UnitPrice,
		DiscountAmount:     i.DiscountAmount,
		DiscountPercentage: i.DiscountPercentage,
	})
}

// RemainingQuantity returns the quantity still to be delivered
func (i *PurchaseOrderItem) RemainingQuantity() decimal.Decimal {
	return i.Quantity.Sub(i.QuantityReceived)
}

// ReturnableQuantity returns what was received and not yet returned
func (i *PurchaseOrderItem) ReturnableQuantity() decimal.Decimal {
	return i.QuantityReceived.Sub(i.QuantityReturned)
}

// IsFullyReceived returns true if all ordered quantity has been received
func (i *PurchaseOrderItem) IsFullyReceived() bool {
	return i.QuantityReceived.Equal(i.Quantity)
}

// receive adds a delivery to the item. Over-receipt is rejected, never clamped.
func (i *PurchaseOrderItem) receive(quantity decimal.Decimal, qcPassed *bool) error {
	if quantity.IsNegative() {
		return shared.NewDomainError(CodeNegativeQuantity, "Received quantity cannot be negative")
	}
	received := i.QuantityReceived.Add(quantity)
	if received.GreaterThan(i.Quantity) {
		return shared.NewDomainError(CodeOverReceipt,
			fmt.Sprintf("Cannot receive %s, only %s remaining", quantity, i.RemainingQuantity()))
	}

	i.QuantityReceived = received
	if qcPassed != nil {
		v := *qcPassed
		i.QCPassed = &v
	}
	i.UpdatedAt = time.Now()
	return nil
}

// registerReturn adds quantity to the returned total
func (i *PurchaseOrderItem) registerReturn(quantity decimal.Decimal) error {
	if quantity.IsNegative() {
		return shared.NewDomainError(CodeNegativeQuantity, "Returned quantity cannot be negative")
	}
	if quantity.IsZero() {
		return shared.NewDomainError("INVALID_QUANTITY", "Returned quantity must be positive")
	}
	if i.QuantityReceived.IsZero() {
		return shared.NewDomainError("NOTHING_RECEIVED", "Cannot return an item that was never received")
	}
	if quantity.GreaterThan(i.ReturnableQuantity()) {
		return shared.NewDomainError(CodeOverReturn,
			fmt.Sprintf("Cannot return %s, only %s returnable", quantity, i.ReturnableQuantity()))
	}

	i.QuantityReturned = i.QuantityReturned.Add(quantity)
	i.UpdatedAt = time.Now()
	return nil
}
