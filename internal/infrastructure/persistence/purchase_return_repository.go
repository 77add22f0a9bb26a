package persistence

import (
	"context"
	"errors"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormPurchaseReturnRepository reads returns written by SaveWithLock
type GormPurchaseReturnRepository struct {
	db *gorm.DB
}

// NewGormPurchaseReturnRepository creates a new GormPurchaseReturnRepository
func NewGormPurchaseReturnRepository(db *gorm.DB) *GormPurchaseReturnRepository {
	return &GormPurchaseReturnRepository{db: db}
}

// FindByID finds a purchase return by its ID
func (r *GormPurchaseReturnRepository) FindByID(ctx context.Context, id uuid.UUID) (*purchasing.PurchaseReturn, error) {
	var model models.PurchaseReturnModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, purchasing.ErrReturnNotFound
		}
		return nil, err
	}
	ret := model.ToDomain()
	return &ret, nil
}

// FindByOrder lists an order's returns, oldest first
func (r *GormPurchaseReturnRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]purchasing.PurchaseReturn, error) {
	var rows []models.PurchaseReturnModel
	if err := r.db.WithContext(ctx).
		Where("purchase_order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	returns := make([]purchasing.PurchaseReturn, len(rows))
	for i := range rows {
		returns[i] = rows[i].ToDomain()
	}
	return returns, nil
}

var _ purchasing.PurchaseReturnRepository = (*GormPurchaseReturnRepository)(nil)
