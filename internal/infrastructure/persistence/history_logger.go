package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormHistoryLogger appends audit entries inside the caller's transaction
// and reads the trail back.
type GormHistoryLogger struct {
	db *gorm.DB
}

// NewGormHistoryLogger creates a new GormHistoryLogger
func NewGormHistoryLogger(db *gorm.DB) *GormHistoryLogger {
	return &GormHistoryLogger{db: db}
}

// LogPOHistory inserts entries using tx. A taken idempotency key yields
// purchasing.ErrAlreadyApplied so the whole transaction rolls back.
func (l *GormHistoryLogger) LogPOHistory(ctx context.Context, tx *gorm.DB, entries ...purchasing.HistoryEntry) error {
	for _, entry := range entries {
		model, err := models.PurchaseOrderHistoryModelFromDomain(entry)
		if err != nil {
			return fmt.Errorf("encode history entry: %w", err)
		}
		if err := tx.WithContext(ctx).Create(model).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("history key %s: %w", entry.IdempotencyKey, purchasing.ErrAlreadyApplied)
			}
			return fmt.Errorf("failed to write history: %w", err)
		}
	}
	return nil
}

// FindByOrder returns the order's entries oldest first
func (l *GormHistoryLogger) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]purchasing.HistoryEntry, error) {
	var rows []models.PurchaseOrderHistoryModel
	if err := l.db.WithContext(ctx).
		Where("purchase_order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]purchasing.HistoryEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ExistsByKey reports whether an entry with the idempotency key exists
func (l *GormHistoryLogger) ExistsByKey(ctx context.Context, key string) (bool, error) {
	var row models.PurchaseOrderHistoryModel
	err := l.db.WithContext(ctx).Select("id").Where("idempotency_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var _ purchasing.HistoryRepository = (*GormHistoryLogger)(nil)
