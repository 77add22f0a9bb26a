package models

import (
	"time"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseOrderModel is the persistence model for the PurchaseOrder aggregate root.
type PurchaseOrderModel struct {
	AggregateModel
	PONumber           string                   `gorm:"column:po_number;type:varchar(32);not null;uniqueIndex"`
	SupplierID         uuid.UUID                `gorm:"type:uuid;not null;index"`
	Status             purchasing.Status        `gorm:"type:varchar(32);not null;default:'draft';index"`
	Subtotal           decimal.Decimal          `gorm:"type:decimal(18,2);not null"`
	DiscountAmount     decimal.Decimal          `gorm:"type:decimal(18,2);not null;default:0"`
	DiscountPercentage decimal.NullDecimal      `gorm:"type:decimal(5,2)"`
	TaxAmount          decimal.Decimal          `gorm:"type:decimal(18,2);not null"`
	TotalAmount        decimal.Decimal          `gorm:"type:decimal(18,2);not null"`
	PaymentStatus      purchasing.PaymentStatus `gorm:"type:varchar(16);not null;default:'unpaid'"`
	Notes              string                   `gorm:"type:text"`
	ExpectedDate       *time.Time
	Items              []PurchaseOrderItemModel `gorm:"foreignKey:PurchaseOrderID;references:ID"`
}

// TableName returns the table name for GORM
func (PurchaseOrderModel) TableName() string {
	return "purchase_orders"
}

// ToDomain converts the persistence model to a domain PurchaseOrder.
// The returned order is marked as loaded.
func (m *PurchaseOrderModel) ToDomain() *purchasing.PurchaseOrder {
	order := &purchasing.PurchaseOrder{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: m.BaseModel.ToDomain(),
			Version:    m.Version,
		},
		PONumber:           m.PONumber,
		SupplierID:         m.SupplierID,
		Status:             m.Status,
		Subtotal:           m.Subtotal,
		DiscountAmount:     m.DiscountAmount,
		DiscountPercentage: m.DiscountPercentage,
		TaxAmount:          m.TaxAmount,
		TotalAmount:        m.TotalAmount,
		PaymentStatus:      m.PaymentStatus,
		Notes:              m.Notes,
		ExpectedDate:       m.ExpectedDate,
		Items:              make([]purchasing.PurchaseOrderItem, len(m.Items)),
	}
	for i := range m.Items {
		order.Items[i] = m.Items[i].ToDomain()
	}
	order.MarkLoaded()
	return order
}

// FromDomain populates the model from a domain order. Money is rounded here,
// once, at the persistence boundary.
func (m *PurchaseOrderModel) FromDomain(o *purchasing.PurchaseOrder) {
	m.FromDomainAggregateRoot(o.BaseAggregateRoot)
	m.PONumber = o.PONumber
	m.SupplierID = o.SupplierID
	m.Status = o.Status
	m.Subtotal = purchasing.RoundMoney(o.Subtotal)
	m.DiscountAmount = purchasing.RoundMoney(o.DiscountAmount)
	m.DiscountPercentage = o.DiscountPercentage
	m.TaxAmount = purchasing.RoundMoney(o.TaxAmount)
	m.TotalAmount = purchasing.RoundMoney(o.TotalAmount)
	m.PaymentStatus = o.PaymentStatus
	m.Notes = o.Notes
	m.ExpectedDate = o.ExpectedDate
	m.Items = make([]PurchaseOrderItemModel, len(o.Items))
	for i := range o.Items {
		m.Items[i].FromDomain(&o.Items[i])
	}
}

// PurchaseOrderModelFromDomain creates a new persistence model from a domain order
func PurchaseOrderModelFromDomain(o *purchasing.PurchaseOrder) *PurchaseOrderModel {
	m := &PurchaseOrderModel{}
	m.FromDomain(o)
	return m
}

// PurchaseOrderItemModel is the persistence model for a line item
type PurchaseOrderItemModel struct {
	BaseModel
	PurchaseOrderID    uuid.UUID           `gorm:"type:uuid;not null;index"`
	ProductID          uuid.UUID           `gorm:"type:uuid;not null;index"`
	Quantity           decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	UnitPrice          decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	DiscountAmount     decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0"`
	DiscountPercentage decimal.NullDecimal `gorm:"type:decimal(5,2)"`
	TaxRate            decimal.Decimal     `gorm:"type:decimal(5,2);not null;default:0"`
	LineTotal          decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	QuantityReceived   decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0"`
	QuantityReturned   decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0"`
	QCPassed           *bool               `gorm:"column:qc_passed"`
}

// TableName returns the table name for GORM
func (PurchaseOrderItemModel) TableName() string {
	return "purchase_order_items"
}

// ToDomain converts the model to a domain item
func (m *PurchaseOrderItemModel) ToDomain() purchasing.PurchaseOrderItem {
	return purchasing.PurchaseOrderItem{
		ID:                 m.ID,
		PurchaseOrderID:    m.PurchaseOrderID,
		ProductID:          m.ProductID,
		Quantity:           m.Quantity,
		UnitPrice:          m.UnitPrice,
		DiscountAmount:     m.DiscountAmount,
		DiscountPercentage: m.DiscountPercentage,
		TaxRate:            m.TaxRate,
		LineTotal:          m.LineTotal,
		QuantityReceived:   m.QuantityReceived,
		QuantityReturned:   m.QuantityReturned,
		QCPassed:           m.QCPassed,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// FromDomain populates the model from a domain item
func (m *PurchaseOrderItemModel) FromDomain(i *purchasing.PurchaseOrderItem) {
	m.ID = i.ID
	m.CreatedAt = i.CreatedAt
	m.UpdatedAt = i.UpdatedAt
	m.PurchaseOrderID = i.PurchaseOrderID
	m.ProductID = i.ProductID
	m.Quantity = i.Quantity
	m.UnitPrice = i.UnitPrice
	m.DiscountAmount = i.DiscountAmount
	m.DiscountPercentage = i.DiscountPercentage
	m.TaxRate = i.TaxRate
	m.LineTotal = purchasing.RoundMoney(i.LineTotal)
	m.QuantityReceived = i.QuantityReceived
	m.QuantityReturned = i.QuantityReturned
	m.QCPassed = i.QCPassed
}

// PurchaseOrderHistoryModel is one append-only audit row
type PurchaseOrderHistoryModel struct {
	ID              uuid.UUID          `gorm:"type:uuid;primary_key"`
	PurchaseOrderID uuid.UUID          `gorm:"type:uuid;not null;index"`
	ActionType      string             `gorm:"type:varchar(32);not null"`
	PreviousStatus  *purchasing.Status `gorm:"type:varchar(32)"`
	NewStatus       *purchasing.Status `gorm:"type:varchar(32)"`
	Metadata        string             `gorm:"type:jsonb;not null"`
	PerformedBy     *uuid.UUID         `gorm:"type:uuid"`
	IdempotencyKey  string             `gorm:"type:varchar(200);not null;uniqueIndex"`
	CreatedAt       time.Time          `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (PurchaseOrderHistoryModel) TableName() string {
	return "purchase_order_history"
}

// ToDomain converts the row to a history entry with its typed metadata
func (m *PurchaseOrderHistoryModel) ToDomain() (purchasing.HistoryEntry, error) {
	action := purchasing.ActionType(m.ActionType)
	meta, err := purchasing.DecodeMetadata(action, []byte(m.Metadata))
	if err != nil {
		return purchasing.HistoryEntry{}, err
	}
	entry := purchasing.HistoryEntry{
		ID:              m.ID,
		PurchaseOrderID: m.PurchaseOrderID,
		ActionType:      action,
		NewStatus:       m.NewStatus,
		Metadata:        meta,
		PerformedBy:     m.PerformedBy,
		IdempotencyKey:  m.IdempotencyKey,
		CreatedAt:       m.CreatedAt,
	}
	if m.PreviousStatus != nil {
		entry.PreviousStatus = *m.PreviousStatus
	}
	return entry, nil
}

// PurchaseOrderHistoryModelFromDomain encodes a history entry for storage
func PurchaseOrderHistoryModelFromDomain(e purchasing.HistoryEntry) (*PurchaseOrderHistoryModel, error) {
	raw, err := purchasing.EncodeMetadata(e.Metadata)
	if err != nil {
		return nil, err
	}
	m := &PurchaseOrderHistoryModel{
		ID:              e.ID,
		PurchaseOrderID: e.PurchaseOrderID,
		ActionType:      string(e.ActionType),
		NewStatus:       e.NewStatus,
		Metadata:        string(raw),
		PerformedBy:     e.PerformedBy,
		IdempotencyKey:  e.IdempotencyKey,
		CreatedAt:       e.CreatedAt,
	}
	if e.PreviousStatus != "" {
		prev := e.PreviousStatus
		m.PreviousStatus = &prev
	}
	return m, nil
}

// PurchaseReturnModel is the persistence model for a recorded return
type PurchaseReturnModel struct {
	ID                  uuid.UUID               `gorm:"type:uuid;primary_key"`
	PurchaseOrderID     uuid.UUID               `gorm:"type:uuid;not null;index"`
	PurchaseOrderItemID uuid.UUID               `gorm:"type:uuid;not null;index"`
	ProductID           uuid.UUID               `gorm:"type:uuid;not null"`
	QuantityReturned    decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	Reason              purchasing.ReturnReason `gorm:"type:varchar(32);not null"`
	ReasonDetails       string                  `gorm:"type:text"`
	ReturnDate          time.Time               `gorm:"not null"`
	RefundAmount        decimal.NullDecimal     `gorm:"type:decimal(18,2)"`
	Status              purchasing.ReturnStatus `gorm:"type:varchar(16);not null"`
	CreatedAt           time.Time               `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PurchaseReturnModel) TableName() string {
	return "purchase_order_returns"
}

// ToDomain converts the model to a domain return
func (m *PurchaseReturnModel) ToDomain() purchasing.PurchaseReturn {
	return purchasing.PurchaseReturn{
		ID:                  m.ID,
		PurchaseOrderID:     m.PurchaseOrderID,
		PurchaseOrderItemID: m.PurchaseOrderItemID,
		ProductID:           m.ProductID,
		QuantityReturned:    m.QuantityReturned,
		Reason:              m.Reason,
		ReasonDetails:       m.ReasonDetails,
		ReturnDate:          m.ReturnDate,
		RefundAmount:        m.RefundAmount,
		Status:              m.Status,
		CreatedAt:           m.CreatedAt,
	}
}

// PurchaseReturnModelFromDomain creates a model from a domain return
func PurchaseReturnModelFromDomain(r purchasing.PurchaseReturn) *PurchaseReturnModel {
	refund := r.RefundAmount
	if refund.Valid {
		refund.Decimal = purchasing.RoundMoney(refund.Decimal)
	}
	return &PurchaseReturnModel{
		ID:                  r.ID,
		PurchaseOrderID:     r.PurchaseOrderID,
		PurchaseOrderItemID: r.PurchaseOrderItemID,
		ProductID:           r.ProductID,
		QuantityReturned:    r.QuantityReturned,
		Reason:              r.Reason,
		ReasonDetails:       r.ReasonDetails,
		ReturnDate:          r.ReturnDate,
		RefundAmount:        refund,
		Status:              r.Status,
		CreatedAt:           r.CreatedAt,
	}
}

// SupplierModel is the read-only supplier directory row
type SupplierModel struct {
	BaseModel
	Code   string `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name   string `gorm:"type:varchar(200);not null"`
	Active bool   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SupplierModel) TableName() string {
	return "suppliers"
}

// ToDomain converts the model to the supplier read model
func (m *SupplierModel) ToDomain() *purchasing.Supplier {
	return &purchasing.Supplier{ID: m.ID, Code: m.Code, Name: m.Name, Active: m.Active}
}

// StockMovementModel is one applied on-hand change, unique per idempotency key
type StockMovementModel struct {
	ID                  uuid.UUID               `gorm:"type:uuid;primary_key"`
	ProductID           uuid.UUID               `gorm:"type:uuid;not null;index"`
	Quantity            decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	MovementType        purchasing.MovementType `gorm:"type:varchar(32);not null"`
	PurchaseOrderID     uuid.UUID               `gorm:"type:uuid;not null;index"`
	PurchaseOrderItemID uuid.UUID               `gorm:"type:uuid;not null"`
	IdempotencyKey      string                  `gorm:"type:varchar(200);not null;uniqueIndex"`
	CreatedAt           time.Time               `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockMovementModel) TableName() string {
	return "stock_movements"
}

// StockMovementModelFromDomain creates a model from a domain movement
func StockMovementModelFromDomain(mv purchasing.StockMovement) *StockMovementModel {
	return &StockMovementModel{
		ID:                  mv.ID,
		ProductID:           mv.ProductID,
		Quantity:            mv.Quantity,
		MovementType:        mv.Type,
		PurchaseOrderID:     mv.PurchaseOrderID,
		PurchaseOrderItemID: mv.ItemID,
		IdempotencyKey:      mv.IdempotencyKey,
		CreatedAt:           mv.CreatedAt,
	}
}

// StockLevelModel is the on-hand quantity of a product
type StockLevelModel struct {
	ProductID uuid.UUID       `gorm:"type:uuid;primary_key"`
	OnHand    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	UpdatedAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockLevelModel) TableName() string {
	return "stock_levels"
}

// PurchasingModels lists every model of the purchasing schema, in dependency order
func PurchasingModels() []any {
	return []any{
		&SupplierModel{},
		&PurchaseOrderModel{},
		&PurchaseOrderItemModel{},
		&PurchaseOrderHistoryModel{},
		&PurchaseReturnModel{},
		&StockMovementModel{},
		&StockLevelModel{},
		&OutboxEntryModel{},
	}
}
