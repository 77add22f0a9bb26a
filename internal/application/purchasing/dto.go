package purchasing

import (
	"time"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ========================================
// Command requests
// ========================================

// OrderItemRequest represents one line of a create or update request
type OrderItemRequest struct {
	ProductID          uuid.UUID        `json:"product_id" binding:"required"`
	Quantity           decimal.Decimal  `json:"quantity"`
	UnitPrice          decimal.Decimal  `json:"unit_price"`
	DiscountAmount     *decimal.Decimal `json:"discount_amount"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage"`
	TaxRate            *decimal.Decimal `json:"tax_rate"`
}

// CreateOrderRequest represents a request to create a draft purchase order
type CreateOrderRequest struct {
	SupplierID         uuid.UUID          `json:"supplier_id" binding:"required"`
	Items              []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	DiscountAmount     *decimal.Decimal   `json:"discount_amount"`
	DiscountPercentage *decimal.Decimal   `json:"discount_percentage"`
	Notes              string             `json:"notes" binding:"max=2000"`
	ExpectedDate       *time.Time         `json:"expected_date"`
	PerformedBy        *uuid.UUID         `json:"-"`
}

// UpdateDraftRequest replaces the editable fields and lines of a draft.
// A nil SupplierID keeps the current supplier.
type UpdateDraftRequest struct {
	SupplierID         *uuid.UUID         `json:"supplier_id"`
	Items              []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	DiscountAmount     *decimal.Decimal   `json:"discount_amount"`
	DiscountPercentage *decimal.Decimal   `json:"discount_percentage"`
	Notes              string             `json:"notes" binding:"max=2000"`
	ExpectedDate       *time.Time         `json:"expected_date"`
	// Sequence makes a retried edit safe to replay; a random one is used when empty
	Sequence    string     `json:"sequence" binding:"max=100"`
	PerformedBy *uuid.UUID `json:"-"`
}

// TransitionRequest carries the optional reason of a workflow action
type TransitionRequest struct {
	Reason      string     `json:"reason" binding:"max=500"`
	PerformedBy *uuid.UUID `json:"-"`
}

// ReceiveItemRequest records one delivery against an order line
type ReceiveItemRequest struct {
	ItemID   uuid.UUID       `json:"item_id" binding:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	QCPassed *bool           `json:"qc_passed"`
	// Sequence identifies the delivery; the Idempotency-Key header overrides it
	Sequence    string     `json:"sequence" binding:"max=100"`
	PerformedBy *uuid.UUID `json:"-"`
}

// ReturnItemRequest records goods sent back against an order line.
// ReturnID is generated when empty and doubles as the idempotency sequence.
type ReturnItemRequest struct {
	ReturnID      *uuid.UUID       `json:"return_id"`
	ItemID        uuid.UUID        `json:"item_id" binding:"required"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Reason        string           `json:"reason" binding:"required,oneof=defective damaged wrong_item expired excess quality_failed other"`
	ReasonDetails string           `json:"reason_details" binding:"max=1000"`
	ReturnDate    *time.Time       `json:"return_date"`
	RefundAmount  *decimal.Decimal `json:"refund_amount"`
	PerformedBy   *uuid.UUID       `json:"-"`
}

// OrderListFilter represents filter options for listing orders.
// Zero values fall back to the repository defaults.
type OrderListFilter struct {
	Status     string
	SupplierID *uuid.UUID
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
	OrderBy    string
	OrderDir   string
}

// ========================================
// Responses
// ========================================

// OrderItemResponse represents an order line in API responses
type OrderItemResponse struct {
	ID                 uuid.UUID        `json:"id"`
	ProductID          uuid.UUID        `json:"product_id"`
	Quantity           decimal.Decimal  `json:"quantity"`
	UnitPrice          decimal.Decimal  `json:"unit_price"`
	DiscountAmount     decimal.Decimal  `json:"discount_amount"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage"`
	TaxRate            decimal.Decimal  `json:"tax_rate"`
	LineTotal          decimal.Decimal  `json:"line_total"`
	QuantityReceived   decimal.Decimal  `json:"quantity_received"`
	QuantityReturned   decimal.Decimal  `json:"quantity_returned"`
	RemainingQuantity  decimal.Decimal  `json:"remaining_quantity"`
	QCPassed           *bool            `json:"qc_passed"`
}

// OrderResponse represents a purchase order in API responses
type OrderResponse struct {
	ID                 uuid.UUID           `json:"id"`
	PONumber           string              `json:"po_number"`
	SupplierID         uuid.UUID           `json:"supplier_id"`
	Status             string              `json:"status"`
	ReceptionStatus    string              `json:"reception_status"`
	Subtotal           decimal.Decimal     `json:"subtotal"`
	DiscountAmount     decimal.Decimal     `json:"discount_amount"`
	DiscountPercentage *decimal.Decimal    `json:"discount_percentage"`
	TaxAmount          decimal.Decimal     `json:"tax_amount"`
	TotalAmount        decimal.Decimal     `json:"total_amount"`
	PaymentStatus      string              `json:"payment_status"`
	Notes              string              `json:"notes,omitempty"`
	ExpectedDate       *time.Time          `json:"expected_date,omitempty"`
	Items              []OrderItemResponse `json:"items"`
	ValidTransitions   []string            `json:"valid_transitions"`
	Version            int                 `json:"version"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// OrderListItemResponse is the summary row of an order list
type OrderListItemResponse struct {
	ID            uuid.UUID       `json:"id"`
	PONumber      string          `json:"po_number"`
	SupplierID    uuid.UUID       `json:"supplier_id"`
	Status        string          `json:"status"`
	ItemCount     int             `json:"item_count"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentStatus string          `json:"payment_status"`
	ExpectedDate  *time.Time      `json:"expected_date,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ReceiveResultResponse is the outcome of a delivery
type ReceiveResultResponse struct {
	Order           OrderResponse `json:"order"`
	ItemID          uuid.UUID     `json:"item_id"`
	ReceptionStatus string        `json:"reception_status"`
	// Replayed is true when the delivery had already been applied
	Replayed bool `json:"replayed"`
}

// ReturnResponse represents a recorded return
type ReturnResponse struct {
	ID                  uuid.UUID        `json:"id"`
	PurchaseOrderID     uuid.UUID        `json:"purchase_order_id"`
	PurchaseOrderItemID uuid.UUID        `json:"purchase_order_item_id"`
	ProductID           uuid.UUID        `json:"product_id"`
	QuantityReturned    decimal.Decimal  `json:"quantity_returned"`
	Reason              string           `json:"reason"`
	ReasonDetails       string           `json:"reason_details,omitempty"`
	ReturnDate          time.Time        `json:"return_date"`
	RefundAmount        *decimal.Decimal `json:"refund_amount"`
	Status              string           `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
}

// ReturnResultResponse is the outcome of a return
type ReturnResultResponse struct {
	Return   ReturnResponse `json:"return"`
	Replayed bool           `json:"replayed"`
}

// HistoryEntryResponse represents one audit record
type HistoryEntryResponse struct {
	ID             uuid.UUID  `json:"id"`
	ActionType     string     `json:"action_type"`
	PreviousStatus string     `json:"previous_status,omitempty"`
	NewStatus      *string    `json:"new_status"`
	Metadata       any        `json:"metadata"`
	PerformedBy    *uuid.UUID `json:"performed_by,omitempty"`
	IdempotencyKey string     `json:"idempotency_key"`
	CreatedAt      time.Time  `json:"created_at"`
}

// StatusSummaryResponse counts orders per status
type StatusSummaryResponse struct {
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
}

// TransitionsResponse lists where an order can go next
type TransitionsResponse struct {
	OrderID          uuid.UUID `json:"order_id"`
	Status           string    `json:"status"`
	ValidTransitions []string  `json:"valid_transitions"`
	CanReceiveItems  bool      `json:"can_receive_items"`
}

// ========================================
// Conversion functions
// ========================================

// ToOrderResponse converts a domain order to a response with money rounded for display
func ToOrderResponse(o *purchasing.PurchaseOrder) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i := range o.Items {
		items[i] = toOrderItemResponse(&o.Items[i])
	}

	totals := o.Totals().Rounded()
	return OrderResponse{
		ID:                 o.ID,
		PONumber:           o.PONumber,
		SupplierID:         o.SupplierID,
		Status:             o.Status.String(),
		ReceptionStatus:    string(o.ReceptionStatus()),
		Subtotal:           totals.Subtotal,
		DiscountAmount:     totals.DiscountAmount,
		DiscountPercentage: nullableDecimal(o.DiscountPercentage),
		TaxAmount:          totals.TaxAmount,
		TotalAmount:        totals.TotalAmount,
		PaymentStatus:      string(o.PaymentStatus),
		Notes:              o.Notes,
		ExpectedDate:       o.ExpectedDate,
		Items:              items,
		ValidTransitions:   statusStrings(purchasing.ValidTransitions(o.Status)),
		Version:            o.Version,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

func toOrderItemResponse(item *purchasing.PurchaseOrderItem) OrderItemResponse {
	return OrderItemResponse{
		ID:                 item.ID,
		ProductID:          item.ProductID,
		Quantity:           item.Quantity,
		UnitPrice:          item.UnitPrice,
		DiscountAmount:     item.DiscountAmount,
		DiscountPercentage: nullableDecimal(item.DiscountPercentage),
		TaxRate:            item.TaxRate,
		LineTotal:          purchasing.RoundMoney(item.LineTotal),
		QuantityReceived:   item.QuantityReceived,
		QuantityReturned:   item.QuantityReturned,
		RemainingQuantity:  item.RemainingQuantity(),
		QCPassed:           item.QCPassed,
	}
}

// ToOrderListItemResponses converts orders to list rows
func ToOrderListItemResponses(orders []purchasing.PurchaseOrder) []OrderListItemResponse {
	rows := make([]OrderListItemResponse, len(orders))
	for i := range orders {
		o := &orders[i]
		rows[i] = OrderListItemResponse{
			ID:            o.ID,
			PONumber:      o.PONumber,
			SupplierID:    o.SupplierID,
			Status:        o.Status.String(),
			ItemCount:     len(o.Items),
			TotalAmount:   purchasing.RoundMoney(o.TotalAmount),
			PaymentStatus: string(o.PaymentStatus),
			ExpectedDate:  o.ExpectedDate,
			CreatedAt:     o.CreatedAt,
		}
	}
	return rows
}

// ToReturnResponse converts a domain return to a response
func ToReturnResponse(r *purchasing.PurchaseReturn) ReturnResponse {
	var refund *decimal.Decimal
	if r.RefundAmount.Valid {
		rounded := purchasing.RoundMoney(r.RefundAmount.Decimal)
		refund = &rounded
	}
	return ReturnResponse{
		ID:                  r.ID,
		PurchaseOrderID:     r.PurchaseOrderID,
		PurchaseOrderItemID: r.PurchaseOrderItemID,
		ProductID:           r.ProductID,
		QuantityReturned:    r.QuantityReturned,
		Reason:              string(r.Reason),
		ReasonDetails:       r.ReasonDetails,
		ReturnDate:          r.ReturnDate,
		RefundAmount:        refund,
		Status:              string(r.Status),
		CreatedAt:           r.CreatedAt,
	}
}

// ToReturnResponses converts a slice of returns
func ToReturnResponses(returns []purchasing.PurchaseReturn) []ReturnResponse {
	out := make([]ReturnResponse, len(returns))
	for i := range returns {
		out[i] = ToReturnResponse(&returns[i])
	}
	return out
}

// ToHistoryEntryResponses converts audit records
func ToHistoryEntryResponses(entries []purchasing.HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, len(entries))
	for i, e := range entries {
		var next *string
		if e.NewStatus != nil {
			s := e.NewStatus.String()
			next = &s
		}
		out[i] = HistoryEntryResponse{
			ID:             e.ID,
			ActionType:     string(e.ActionType),
			PreviousStatus: e.PreviousStatus.String(),
			NewStatus:      next,
			Metadata:       e.Metadata,
			PerformedBy:    e.PerformedBy,
			IdempotencyKey: e.IdempotencyKey,
			CreatedAt:      e.CreatedAt,
		}
	}
	return out
}

// toOrderInput maps request lines onto the domain input. Missing discounts
// and tax rates default to zero; a missing percentage stays absent.
func toOrderInput(supplierID uuid.UUID, items []OrderItemRequest, discount, pct *decimal.Decimal, notes string, expected *time.Time) purchasing.OrderInput {
	lines := make([]purchasing.ItemInput, len(items))
	for i, item := range items {
		lines[i] = purchasing.ItemInput{
			ProductID:          item.ProductID,
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice,
			DiscountAmount:     valueOrZero(item.DiscountAmount),
			DiscountPercentage: optionalPercentage(item.DiscountPercentage),
			TaxRate:            valueOrZero(item.TaxRate),
		}
	}
	return purchasing.OrderInput{
		SupplierID:         supplierID,
		Items:              lines,
		DiscountAmount:     valueOrZero(discount),
		DiscountPercentage: optionalPercentage(pct),
		Notes:              notes,
		ExpectedDate:       expected,
	}
}

func valueOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func optionalPercentage(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return purchasing.NoPercentage()
	}
	return purchasing.Percentage(*d)
}

func nullableDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func statusStrings(statuses []purchasing.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.String()
	}
	return out
}
