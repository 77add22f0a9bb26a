package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/bakery/backoffice/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStockLedger is the local inventory collaborator. Every movement is
// recorded once under its idempotency key and folded into stock_levels.
type GormStockLedger struct {
	db *gorm.DB
}

// NewGormStockLedger creates a new GormStockLedger
func NewGormStockLedger(db *gorm.DB) *GormStockLedger {
	return &GormStockLedger{db: db}
}

// IncrementStock adds the movement's quantity to on-hand stock
func (l *GormStockLedger) IncrementStock(ctx context.Context, movement purchasing.StockMovement) error {
	movement.Quantity = movement.Quantity.Abs()
	return l.apply(ctx, movement)
}

// DecrementStock removes the movement's quantity from on-hand stock.
// On-hand may not go below zero.
func (l *GormStockLedger) DecrementStock(ctx context.Context, movement purchasing.StockMovement) error {
	movement.Quantity = movement.Quantity.Abs().Neg()
	return l.apply(ctx, movement)
}

// OnHand returns the current on-hand quantity of a product
func (l *GormStockLedger) OnHand(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	var level models.StockLevelModel
	err := l.db.WithContext(ctx).Where("product_id = ?", productID).Take(&level).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return level.OnHand, nil
}

func (l *GormStockLedger) apply(ctx context.Context, movement purchasing.StockMovement) error {
	if movement.IdempotencyKey == "" {
		return shared.NewDomainError("INVALID_INPUT", "Stock movement idempotency key is required")
	}
	if movement.ID == uuid.Nil {
		movement.ID = uuid.New()
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now()
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.StockMovementModelFromDomain(movement)).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("stock movement %s: %w", movement.IdempotencyKey, purchasing.ErrAlreadyApplied)
			}
			return fmt.Errorf("failed to record stock movement: %w", err)
		}

		now := time.Now()
		level := models.StockLevelModel{ProductID: movement.ProductID, OnHand: movement.Quantity, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"on_hand":    gorm.Expr("stock_levels.on_hand + excluded.on_hand"),
				"updated_at": now,
			}),
		}).Create(&level).Error; err != nil {
			return fmt.Errorf("failed to update stock level: %w", err)
		}

		read := tx
		if tx.Dialector.Name() == "postgres" {
			read = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var onHand models.StockLevelModel
		if err := read.Where("product_id = ?", movement.ProductID).Take(&onHand).Error; err != nil {
			return err
		}
		if onHand.OnHand.IsNegative() {
			return shared.ErrInsufficientStock
		}
		return nil
	})
}

var _ purchasing.InventoryService = (*GormStockLedger)(nil)
