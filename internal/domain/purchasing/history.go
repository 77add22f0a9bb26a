package purchasing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActionType identifies a lifecycle action in the audit trail
type ActionType string

const (
	ActionCreated       ActionType = "created"
	ActionUpdated       ActionType = "updated"
	ActionSent          ActionType = "sent"
	ActionConfirmed     ActionType = "confirmed"
	ActionCancelled     ActionType = "cancelled"
	ActionClosed        ActionType = "closed"
	ActionItemReceived  ActionType = "item_received"
	ActionStatusChanged ActionType = "status_changed"
	ActionItemReturned  ActionType = "item_returned"
)

// IsValid checks if the action type is a known value
func (a ActionType) IsValid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionSent, ActionConfirmed, ActionCancelled,
		ActionClosed, ActionItemReceived, ActionStatusChanged, ActionItemReturned:
		return true
	}
	return false
}

// IdempotencyKey builds the key that makes an action on an order safe to replay
func IdempotencyKey(orderID uuid.UUID, action ActionType, sequence string) string {
	return fmt.Sprintf("%s:%s:%s", orderID, action, sequence)
}

// HistoryMetadata is the typed payload of a history entry.
// Each implementation belongs to exactly one ActionType.
type HistoryMetadata interface {
	ActionType() ActionType
}

// CreatedMetadata is recorded when an order is created
type CreatedMetadata struct {
	PONumber    string          `json:"po_number"`
	SupplierID  uuid.UUID       `json:"supplier_id"`
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// UpdatedMetadata is recorded when a draft is edited
type UpdatedMetadata struct {
	ItemCount     int             `json:"item_count"`
	PreviousTotal decimal.Decimal `json:"previous_total"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// SentMetadata is recorded when the order goes to the supplier
type SentMetadata struct {
	SupplierID uuid.UUID `json:"supplier_id"`
}

// ConfirmedMetadata is recorded when the supplier confirms.
// Implicit is set when a delivery against a sent order confirmed it.
type ConfirmedMetadata struct {
	Implicit bool `json:"implicit"`
}

// CancelledMetadata carries the cancellation reason
type CancelledMetadata struct {
	Reason string `json:"reason,omitempty"`
}

// ClosedMetadata carries the short-close reason
type ClosedMetadata struct {
	Reason      string          `json:"reason,omitempty"`
	Outstanding decimal.Decimal `json:"outstanding_quantity"`
}

// ItemReceivedMetadata describes one delivery against one line
type ItemReceivedMetadata struct {
	ItemID           uuid.UUID       `json:"item_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
	QuantityOrdered  decimal.Decimal `json:"quantity_ordered"`
	QCPassed         *bool           `json:"qc_passed"`
}

// StatusChangedMetadata is recorded when deliveries move the order status
type StatusChangedMetadata struct {
	Reception   ReceptionStatus `json:"reception"`
	TriggeredBy string          `json:"triggered_by"`
}

// ItemReturnedMetadata describes a return against one line
type ItemReturnedMetadata struct {
	ReturnID     uuid.UUID           `json:"return_id"`
	ItemID       uuid.UUID           `json:"item_id"`
	ProductID    uuid.UUID           `json:"product_id"`
	Quantity     decimal.Decimal     `json:"quantity"`
	Reason       ReturnReason        `json:"reason"`
	RefundAmount decimal.NullDecimal `json:"refund_amount"`
}

func (CreatedMetadata) ActionType() ActionType       { return ActionCreated }
func (UpdatedMetadata) ActionType() ActionType       { return ActionUpdated }
func (SentMetadata) ActionType() ActionType          { return ActionSent }
func (ConfirmedMetadata) ActionType() ActionType     { return ActionConfirmed }
func (CancelledMetadata) ActionType() ActionType     { return ActionCancelled }
func (ClosedMetadata) ActionType() ActionType        { return ActionClosed }
func (ItemReceivedMetadata) ActionType() ActionType  { return ActionItemReceived }
func (StatusChangedMetadata) ActionType() ActionType { return ActionStatusChanged }
func (ItemReturnedMetadata) ActionType() ActionType  { return ActionItemReturned }

// EncodeMetadata serializes a metadata payload for storage
func EncodeMetadata(m HistoryMetadata) (json.RawMessage, error) {
	if m == nil {
		return nil, shared.NewDomainError("INVALID_METADATA", "History metadata is required")
	}
	return json.Marshal(m)
}

// DecodeMetadata restores the typed payload stored for action
func DecodeMetadata(action ActionType, raw []byte) (HistoryMetadata, error) {
	var m HistoryMetadata
	switch action {
	case ActionCreated:
		m = &CreatedMetadata{}
	case ActionUpdated:
		m = &UpdatedMetadata{}
	case ActionSent:
		m = &SentMetadata{}
	case ActionConfirmed:
		m = &ConfirmedMetadata{}
	case ActionCancelled:
		m = &CancelledMetadata{}
	case ActionClosed:
		m = &ClosedMetadata{}
	case ActionItemReceived:
		m = &ItemReceivedMetadata{}
	case ActionStatusChanged:
		m = &StatusChangedMetadata{}
	case ActionItemReturned:
		m = &ItemReturnedMetadata{}
	default:
		return nil, fmt.Errorf("unknown history action type %q", action)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, m); err != nil {
			return nil, fmt.Errorf("decode %s metadata: %w", action, err)
		}
	}
	return m, nil
}

// HistoryEntry is one immutable audit record of an order
type HistoryEntry struct {
	ID              uuid.UUID       `json:"id"`
	PurchaseOrderID uuid.UUID       `json:"purchase_order_id"`
	ActionType      ActionType      `json:"action_type"`
	PreviousStatus  Status          `json:"previous_status"`
	NewStatus       *Status         `json:"new_status"`
	Metadata        HistoryMetadata `json:"metadata"`
	PerformedBy     *uuid.UUID      `json:"performed_by,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewHistoryEntry validates and builds a history entry.
// newStatus is nil for actions that do not change the order status.
func NewHistoryEntry(orderID uuid.UUID, action ActionType, previous Status, newStatus *Status, metadata HistoryMetadata, key string) (HistoryEntry, error) {
	if !action.IsValid() {
		return HistoryEntry{}, shared.NewDomainError("INVALID_ACTION", fmt.Sprintf("Unknown history action %q", action))
	}
	if metadata == nil || metadata.ActionType() != action {
		return HistoryEntry{}, shared.NewDomainError("INVALID_METADATA",
			fmt.Sprintf("History metadata does not match action %s", action))
	}
	if key == "" {
		return HistoryEntry{}, shared.NewDomainError("INVALID_INPUT", "History idempotency key is required")
	}

	return HistoryEntry{
		ID:              uuid.New(),
		PurchaseOrderID: orderID,
		ActionType:      action,
		PreviousStatus:  previous,
		NewStatus:       newStatus,
		Metadata:        metadata,
		IdempotencyKey:  key,
		CreatedAt:       time.Now(),
	}, nil
}
