package purchasing

import (
	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypePurchaseOrder is the aggregate type of every purchasing event
const AggregateTypePurchaseOrder = "PurchaseOrder"

// Event type constants
const (
	EventTypePurchaseOrderCreated       = "PurchaseOrderCreated"
	EventTypePurchaseOrderStatusChanged = "PurchaseOrderStatusChanged"
	EventTypePurchaseOrderItemReceived  = "PurchaseOrderItemReceived"
	EventTypePurchaseOrderItemReturned  = "PurchaseOrderItemReturned"
)

// EventTypes lists every event the purchasing aggregate raises
func EventTypes() []string {
	return []string{
		EventTypePurchaseOrderCreated,
		EventTypePurchaseOrderStatusChanged,
		EventTypePurchaseOrderItemReceived,
		EventTypePurchaseOrderItemReturned,
	}
}

// PurchaseOrderCreatedEvent is raised when a draft order is created
type PurchaseOrderCreatedEvent struct {
	shared.BaseDomainEvent
	OrderID     uuid.UUID       `json:"order_id"`
	PONumber    string          `json:"po_number"`
	SupplierID  uuid.UUID       `json:"supplier_id"`
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PerformedBy *uuid.UUID      `json:"performed_by,omitempty"`
}

// PurchaseOrderStatusChangedEvent is raised for every status transition,
// explicit or driven by deliveries
type PurchaseOrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderID     uuid.UUID       `json:"order_id"`
	PONumber    string          `json:"po_number"`
	SupplierID  uuid.UUID       `json:"supplier_id"`
	Action      ActionType      `json:"action"`
	From        Status          `json:"from"`
	To          Status          `json:"to"`
	Reason      string          `json:"reason,omitempty"`
	Implicit    bool            `json:"implicit,omitempty"`
	Reception   ReceptionStatus `json:"reception,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PerformedBy *uuid.UUID      `json:"performed_by,omitempty"`
}

// PurchaseOrderItemReceivedEvent is raised for each delivery against a line
type PurchaseOrderItemReceivedEvent struct {
	shared.BaseDomainEvent
	OrderID          uuid.UUID       `json:"order_id"`
	PONumber         string          `json:"po_number"`
	SupplierID       uuid.UUID       `json:"supplier_id"`
	ItemID           uuid.UUID       `json:"item_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
	QuantityOrdered  decimal.Decimal `json:"quantity_ordered"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	QCPassed         *bool           `json:"qc_passed"`
	PerformedBy      *uuid.UUID      `json:"performed_by,omitempty"`
}

// PurchaseOrderItemReturnedEvent is raised when goods go back to the supplier
type PurchaseOrderItemReturnedEvent struct {
	shared.BaseDomainEvent
	OrderID      uuid.UUID           `json:"order_id"`
	PONumber     string              `json:"po_number"`
	SupplierID   uuid.UUID           `json:"supplier_id"`
	ReturnID     uuid.UUID           `json:"return_id"`
	ItemID       uuid.UUID           `json:"item_id"`
	ProductID    uuid.UUID           `json:"product_id"`
	Quantity     decimal.Decimal     `json:"quantity"`
	Reason       ReturnReason        `json:"reason"`
	RefundAmount decimal.NullDecimal `json:"refund_amount"`
	PerformedBy  *uuid.UUID          `json:"performed_by,omitempty"`
}

// EventID derives the event ID from the history entry's idempotency key,
// so the same applied key always yields the same event.
func EventID(orderID uuid.UUID, key string) uuid.UUID {
	return uuid.NewSHA1(orderID, []byte(key))
}

// EventsFromHistory builds the integration events for staged history
// entries. Draft edits raise no event.
func EventsFromHistory(o *PurchaseOrder, entries []HistoryEntry) []shared.DomainEvent {
	events := make([]shared.DomainEvent, 0, len(entries))
	for _, entry := range entries {
		if event := eventFromEntry(o, entry); event != nil {
			events = append(events, event)
		}
	}
	return events
}

func eventFromEntry(o *PurchaseOrder, entry HistoryEntry) shared.DomainEvent {
	base := func(eventType string) shared.BaseDomainEvent {
		return shared.BaseDomainEvent{
			ID:        EventID(o.ID, entry.IdempotencyKey),
			Type:      eventType,
			Timestamp: entry.CreatedAt,
			AggID:     o.ID,
			AggType:   AggregateTypePurchaseOrder,
		}
	}

	switch m := entry.Metadata.(type) {
	case CreatedMetadata:
		return &PurchaseOrderCreatedEvent{
			BaseDomainEvent: base(EventTypePurchaseOrderCreated),
			OrderID:         o.ID,
			PONumber:        m.PONumber,
			SupplierID:      m.SupplierID,
			ItemCount:       m.ItemCount,
			TotalAmount:     m.TotalAmount,
			PerformedBy:     entry.PerformedBy,
		}

	case ItemReceivedMetadata:
		event := &PurchaseOrderItemReceivedEvent{
			BaseDomainEvent:  base(EventTypePurchaseOrderItemReceived),
			OrderID:          o.ID,
			PONumber:         o.PONumber,
			SupplierID:       o.SupplierID,
			ItemID:           m.ItemID,
			ProductID:        m.ProductID,
			Quantity:         m.Quantity,
			QuantityReceived: m.QuantityReceived,
			QuantityOrdered:  m.QuantityOrdered,
			QCPassed:         m.QCPassed,
			PerformedBy:      entry.PerformedBy,
		}
		if item := o.GetItem(m.ItemID); item != nil {
			event.UnitPrice = item.UnitPrice
		}
		return event

	case ItemReturnedMetadata:
		return &PurchaseOrderItemReturnedEvent{
			BaseDomainEvent: base(EventTypePurchaseOrderItemReturned),
			OrderID:         o.ID,
			PONumber:        o.PONumber,
			SupplierID:      o.SupplierID,
			ReturnID:        m.ReturnID,
			ItemID:          m.ItemID,
			ProductID:       m.ProductID,
			Quantity:        m.Quantity,
			Reason:          m.Reason,
			RefundAmount:    m.RefundAmount,
			PerformedBy:     entry.PerformedBy,
		}
	}

	if entry.NewStatus == nil {
		return nil
	}
	event := &PurchaseOrderStatusChangedEvent{
		BaseDomainEvent: base(EventTypePurchaseOrderStatusChanged),
		OrderID:         o.ID,
		PONumber:        o.PONumber,
		SupplierID:      o.SupplierID,
		Action:          entry.ActionType,
		From:            entry.PreviousStatus,
		To:              *entry.NewStatus,
		TotalAmount:     RoundMoney(o.TotalAmount),
		PerformedBy:     entry.PerformedBy,
	}
	switch m := entry.Metadata.(type) {
	case ConfirmedMetadata:
		event.Implicit = m.Implicit
	case CancelledMetadata:
		event.Reason = m.Reason
	case ClosedMetadata:
		event.Reason = m.Reason
	case StatusChangedMetadata:
		event.Reception = m.Reception
	}
	return event
}
