package purchasing

import (
	"fmt"
	"time"

	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseOrder is the aggregate root of the purchasing lifecycle.
// Mutations stage history entries, stock movements and returns which the
// repository persists together with the order in one transaction.
type PurchaseOrder struct {
	shared.BaseAggregateRoot
	PONumber           string              `json:"po_number"`
	SupplierID         uuid.UUID           `json:"supplier_id"`
	Status             Status              `json:"status"`
	Subtotal           decimal.Decimal     `json:"subtotal"`
	DiscountAmount     decimal.Decimal     `json:"discount_amount"`
	DiscountPercentage decimal.NullDecimal `json:"discount_percentage"`
	TaxAmount          decimal.Decimal     `json:"tax_amount"`
	TotalAmount        decimal.Decimal     `json:"total_amount"`
	PaymentStatus      PaymentStatus       `json:"payment_status"`
	Notes              string              `json:"notes,omitempty"`
	ExpectedDate       *time.Time          `json:"expected_date,omitempty"`
	Items              []PurchaseOrderItem `json:"items"`

	loadedStatus     Status
	loadedVersion    int
	performedBy      *uuid.UUID
	pendingHistory   []HistoryEntry
	pendingMovements []StockMovement
	pendingReturns   []PurchaseReturn
}

// OrderInput carries the editable header fields and lines of a draft
type OrderInput struct {
	SupplierID         uuid.UUID
	Items              []ItemInput
	DiscountAmount     decimal.Decimal
	DiscountPercentage decimal.NullDecimal
	Notes              string
	ExpectedDate       *time.Time
}

// NewPurchaseOrder creates a draft order with all of its items and stages the created entry
func NewPurchaseOrder(poNumber string, in OrderInput) (*PurchaseOrder, error) {
	if poNumber == "" {
		return nil, shared.NewDomainError("INVALID_PO_NUMBER", "PO number cannot be empty")
	}
	if in.SupplierID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SUPPLIER", "Supplier ID cannot be empty")
	}

	o := &PurchaseOrder{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PONumber:          poNumber,
		SupplierID:        in.SupplierID,
		Status:            StatusDraft,
		PaymentStatus:     PaymentStatusUnpaid,
	}
	if err := o.applyInput(in); err != nil {
		return nil, err
	}

	err := o.stageHistory(ActionCreated, "", &o.Status, CreatedMetadata{
		PONumber:    o.PONumber,
		SupplierID:  o.SupplierID,
		ItemCount:   len(o.Items),
		TotalAmount: RoundMoney(o.TotalAmount),
	}, IdempotencyKey(o.ID, ActionCreated, "1"))
	if err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateDraft replaces the editable fields and lines of a draft order
func (o *PurchaseOrder) UpdateDraft(in OrderInput, key string) error {
	if o.Status != StatusDraft {
		if o.Status.IsTerminal() {
			return shared.NewTerminalStateError(CodeTerminalState,
				fmt.Sprintf("Purchase order is %s and can no longer be edited", o.Status))
		}
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot edit order in %s status", o.Status))
	}
	if in.SupplierID == uuid.Nil {
		in.SupplierID = o.SupplierID
	}

	previousTotal := o.TotalAmount
	if err := o.applyInput(in); err != nil {
		return err
	}
	o.SupplierID = in.SupplierID
	o.touch()

	return o.stageHistory(ActionUpdated, o.Status, nil, UpdatedMetadata{
		ItemCount:     len(o.Items),
		PreviousTotal: RoundMoney(previousTotal),
		TotalAmount:   RoundMoney(o.TotalAmount),
	}, key)
}

// applyInput validates every field before touching the order
func (o *PurchaseOrder) applyInput(in OrderInput) error {
	if len(in.Items) == 0 {
		return shared.NewDomainError("NO_ITEMS", "Purchase order must have at least one item")
	}
	if in.DiscountAmount.IsNegative() {
		return shared.NewDomainError("INVALID_DISCOUNT", "Discount amount cannot be negative")
	}
	if err := validatePercentage(in.DiscountPercentage); err != nil {
		return err
	}

	items := make([]PurchaseOrderItem, 0, len(in.Items))
	for _, line := range in.Items {
		item, err := NewPurchaseOrderItem(o.ID, line)
		if err != nil {
			return err
		}
		items = append(items, *item)
	}

	o.Items = items
	o.DiscountAmount = in.DiscountAmount
	o.DiscountPercentage = in.DiscountPercentage
	o.Notes = in.Notes
	o.ExpectedDate = in.ExpectedDate
	o.RecalculateTotals()
	return nil
}

// RecalculateTotals refreshes line totals and the order-level figures
func (o *PurchaseOrder) RecalculateTotals() {
	lines := make([]TaxedLine, len(o.Items))
	for idx := range o.Items {
		o.Items[idx].LineTotal = o.Items[idx].computeLineTotal()
		lines[idx] = TaxedLine{LineTotal: o.Items[idx].LineTotal, TaxRate: o.Items[idx].TaxRate}
	}

	totals := CalculatePOTotals(lines, o.DiscountAmount, o.DiscountPercentage)
	o.Subtotal = totals.Subtotal
	o.DiscountAmount = totals.DiscountAmount
	o.TaxAmount = totals.TaxAmount
	o.TotalAmount = totals.TotalAmount
}

// Totals returns the current order figures
func (o *PurchaseOrder) Totals() Totals {
	return Totals{
		Subtotal:       o.Subtotal,
		DiscountAmount: o.DiscountAmount,
		TaxAmount:      o.TaxAmount,
		TotalAmount:    o.TotalAmount,
	}
}

// Send moves a draft to the supplier
func (o *PurchaseOrder) Send(key string) error {
	return o.transition(StatusSent, SentMetadata{SupplierID: o.SupplierID}, key)
}

// Confirm records the supplier's confirmation
func (o *PurchaseOrder) Confirm(key string) error {
	return o.transition(StatusConfirmed, ConfirmedMetadata{}, key)
}

// Cancel cancels the order. Cancelling a received or closed order fails with
// a terminal state error.
func (o *PurchaseOrder) Cancel(reason, key string) error {
	return o.transition(StatusCancelled, CancelledMetadata{Reason: reason}, key)
}

// Close short-closes a partially received order, giving up on the remainder
func (o *PurchaseOrder) Close(reason, key string) error {
	return o.transition(StatusClosed, ClosedMetadata{Reason: reason, Outstanding: o.OutstandingQuantity()}, key)
}

func (o *PurchaseOrder) transition(to Status, meta HistoryMetadata, key string) error {
	if err := checkTransition(o.Status, to); err != nil {
		return err
	}
	if key == "" {
		return shared.NewDomainError("INVALID_INPUT", "Idempotency key is required")
	}

	previous := o.Status
	o.Status = to
	o.touch()
	next := to
	return o.stageHistory(meta.ActionType(), previous, &next, meta, key)
}

// ReceiveItem records a delivery of quantity against itemID and moves the
// order status to follow the new reception status. A delivery against a sent
// order confirms it implicitly first.
func (o *PurchaseOrder) ReceiveItem(itemID uuid.UUID, quantity decimal.Decimal, qcPassed *bool, key string) (ReceptionStatus, error) {
	if quantity.IsNegative() {
		return "", shared.NewDomainError(CodeNegativeQuantity, "Received quantity cannot be negative")
	}
	if key == "" {
		return "", shared.NewDomainError("INVALID_INPUT", "Idempotency key is required")
	}
	if !CanReceiveItems(o.Status) {
		if o.Status.IsTerminal() {
			return "", shared.NewTerminalStateError(CodeTerminalState,
				fmt.Sprintf("Purchase order is %s and cannot receive items", o.Status))
		}
		return "", shared.NewDomainError(CodeCannotReceive, fmt.Sprintf("Cannot receive items for order in %s status", o.Status))
	}

	item := o.GetItem(itemID)
	if item == nil {
		return "", ErrItemNotFound
	}
	if err := item.receive(quantity, qcPassed); err != nil {
		return "", err
	}
	if quantity.IsPositive() {
		o.pendingMovements = append(o.pendingMovements, newStockMovement(MovementReceipt, item, quantity, key))
	}

	err := o.stageHistory(ActionItemReceived, o.Status, nil, ItemReceivedMetadata{
		ItemID:           item.ID,
		ProductID:        item.ProductID,
		Quantity:         quantity,
		QuantityReceived: item.QuantityReceived,
		QuantityOrdered:  item.Quantity,
		QCPassed:         item.QCPassed,
	}, key)
	if err != nil {
		return "", err
	}
	o.touch()

	return o.UpdateReceptionStatus(key)
}

// UpdateReceptionStatus derives the reception status from the items and
// applies the matching transition. triggeredBy is the key of the delivery
// that caused it; derived entries use it as their key prefix.
func (o *PurchaseOrder) UpdateReceptionStatus(triggeredBy string) (ReceptionStatus, error) {
	reception := CalculateReceptionStatus(o.Items)
	target, ok := reception.TargetStatus()
	if !ok || target == o.Status {
		return reception, nil
	}

	if o.Status == StatusSent {
		if err := o.transition(StatusConfirmed, ConfirmedMetadata{Implicit: true}, triggeredBy+":confirm"); err != nil {
			return "", err
		}
	}

	err := o.transition(target, StatusChangedMetadata{Reception: reception, TriggeredBy: triggeredBy}, triggeredBy+":status")
	if err != nil {
		return "", err
	}
	return reception, nil
}

// RecordReturn records a return against a received item and stages the
// stock reversal. Returns never change the order status.
func (o *PurchaseOrder) RecordReturn(in ReturnInput, key string) (*PurchaseReturn, error) {
	if in.ReturnID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Return ID is required")
	}
	if key == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Idempotency key is required")
	}
	if !in.Reason.IsValid() {
		return nil, shared.NewDomainError("INVALID_REASON", fmt.Sprintf("Unknown return reason %q", in.Reason))
	}
	if in.RefundOverride.Valid && in.RefundOverride.Decimal.IsNegative() {
		return nil, shared.NewDomainError("INVALID_REFUND", "Refund amount cannot be negative")
	}

	item := o.GetItem(in.ItemID)
	if item == nil {
		return nil, ErrItemNotFound
	}
	if err := item.registerReturn(in.Quantity); err != nil {
		return nil, err
	}

	refund := in.RefundOverride
	if !refund.Valid {
		refund = decimal.NewNullDecimal(CalculateRefund(*item, in.Quantity))
	}
	returnDate := in.ReturnDate
	if returnDate.IsZero() {
		returnDate = time.Now()
	}

	ret := PurchaseReturn{
		ID:                  in.ReturnID,
		PurchaseOrderID:     o.ID,
		PurchaseOrderItemID: item.ID,
		ProductID:           item.ProductID,
		QuantityReturned:    in.Quantity,
		Reason:              in.Reason,
		ReasonDetails:       in.ReasonDetails,
		ReturnDate:          returnDate,
		RefundAmount:        refund,
		Status:              ReturnStatusCompleted,
		CreatedAt:           time.Now(),
	}

	o.pendingReturns = append(o.pendingReturns, ret)
	o.pendingMovements = append(o.pendingMovements, newStockMovement(MovementReturn, item, in.Quantity.Neg(), key))
	err := o.stageHistory(ActionItemReturned, o.Status, nil, ItemReturnedMetadata{
		ReturnID:     ret.ID,
		ItemID:       item.ID,
		ProductID:    item.ProductID,
		Quantity:     in.Quantity,
		Reason:       in.Reason,
		RefundAmount: refund,
	}, key)
	if err != nil {
		return nil, err
	}
	o.touch()

	return &ret, nil
}

func (o *PurchaseOrder) stageHistory(action ActionType, previous Status, next *Status, meta HistoryMetadata, key string) error {
	entry, err := NewHistoryEntry(o.ID, action, previous, next, meta, key)
	if err != nil {
		return err
	}
	entry.PerformedBy = o.performedBy
	o.pendingHistory = append(o.pendingHistory, entry)
	return nil
}

func (o *PurchaseOrder) touch() {
	o.UpdatedAt = time.Now()
}

// SetActor records who performs the following mutations. Already staged
// entries are updated too.
func (o *PurchaseOrder) SetActor(actor *uuid.UUID) {
	o.performedBy = actor
	for idx := range o.pendingHistory {
		o.pendingHistory[idx].PerformedBy = actor
	}
}

// MarkLoaded snapshots the persisted status and version and clears staged
// changes. Repositories call it after reading or writing the order.
func (o *PurchaseOrder) MarkLoaded() {
	o.loadedStatus = o.Status
	o.loadedVersion = o.Version
	o.pendingHistory = nil
	o.pendingMovements = nil
	o.pendingReturns = nil
}

// LoadedStatus is the status the order had when it was read
func (o *PurchaseOrder) LoadedStatus() Status { return o.loadedStatus }

// LoadedVersion is the version the order had when it was read
func (o *PurchaseOrder) LoadedVersion() int { return o.loadedVersion }

// PendingHistory returns the entries staged since the last load
func (o *PurchaseOrder) PendingHistory() []HistoryEntry { return o.pendingHistory }

// PendingMovements returns the stock movements staged since the last load
func (o *PurchaseOrder) PendingMovements() []StockMovement { return o.pendingMovements }

// PendingReturns returns the returns staged since the last load
func (o *PurchaseOrder) PendingReturns() []PurchaseReturn { return o.pendingReturns }

// HasPendingChanges reports whether anything was staged since the last load
func (o *PurchaseOrder) HasPendingChanges() bool {
	return len(o.pendingHistory) > 0 || len(o.pendingMovements) > 0 || len(o.pendingReturns) > 0
}

// GetItem returns the item with itemID, or nil
func (o *PurchaseOrder) GetItem(itemID uuid.UUID) *PurchaseOrderItem {
	for idx := range o.Items {
		if o.Items[idx].ID == itemID {
			return &o.Items[idx]
		}
	}
	return nil
}

// ReceptionStatus derives the current reception status from the items
func (o *PurchaseOrder) ReceptionStatus() ReceptionStatus {
	return CalculateReceptionStatus(o.Items)
}

// OutstandingQuantity sums what is still to be delivered across items
func (o *PurchaseOrder) OutstandingQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.RemainingQuantity())
	}
	return total
}

// IsTerminal returns true if the order can no longer change status
func (o *PurchaseOrder) IsTerminal() bool {
	return o.Status.IsTerminal()
}
