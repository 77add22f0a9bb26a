package persistence

import (
	"context"
	"errors"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSupplierDirectory resolves suppliers from the suppliers table
type GormSupplierDirectory struct {
	db *gorm.DB
}

// NewGormSupplierDirectory creates a new GormSupplierDirectory
func NewGormSupplierDirectory(db *gorm.DB) *GormSupplierDirectory {
	return &GormSupplierDirectory{db: db}
}

// FindSupplier finds a supplier by its ID
func (d *GormSupplierDirectory) FindSupplier(ctx context.Context, id uuid.UUID) (*purchasing.Supplier, error) {
	var model models.SupplierModel
	if err := d.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, purchasing.ErrSupplierNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert inserts or refreshes a supplier row. The directory is owned by the
// partner module; this is how it is synced and seeded.
func (d *GormSupplierDirectory) Upsert(ctx context.Context, supplier purchasing.Supplier) error {
	model := models.SupplierModel{Code: supplier.Code, Name: supplier.Name, Active: supplier.Active}
	model.ID = supplier.ID
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "name", "active", "updated_at"}),
	}).Create(&model).Error
}

var _ purchasing.SupplierDirectory = (*GormSupplierDirectory)(nil)
