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
	"gorm.io/gorm"
)

// OutboxEventSaver stores domain events inside an open transaction
type OutboxEventSaver interface {
	SaveEvents(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error
}

// GormPurchaseOrderRepository implements PurchaseOrderRepository using GORM
type GormPurchaseOrderRepository struct {
	db      *gorm.DB
	history *GormHistoryLogger
	outbox  OutboxEventSaver
}

// NewGormPurchaseOrderRepository creates a new GormPurchaseOrderRepository
func NewGormPurchaseOrderRepository(db *gorm.DB) *GormPurchaseOrderRepository {
	return &GormPurchaseOrderRepository{
		db:      db,
		history: NewGormHistoryLogger(db),
	}
}

// SetOutboxEventSaver makes every save also write the events derived from
// the staged history to the outbox, in the same transaction.
func (r *GormPurchaseOrderRepository) SetOutboxEventSaver(saver OutboxEventSaver) {
	r.outbox = saver
}

// FindByID finds a purchase order by ID with its items
func (r *GormPurchaseOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*purchasing.PurchaseOrder, error) {
	var model models.PurchaseOrderModel
	if err := r.db.WithContext(ctx).Preload("Items", orderItems).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, purchasing.ErrOrderNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNumber finds a purchase order by PO number
func (r *GormPurchaseOrderRepository) FindByNumber(ctx context.Context, poNumber string) (*purchasing.PurchaseOrder, error) {
	var model models.PurchaseOrderModel
	if err := r.db.WithContext(ctx).Preload("Items", orderItems).First(&model, "po_number = ?", poNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, purchasing.ErrOrderNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds all purchase orders matching the filter
func (r *GormPurchaseOrderRepository) FindAll(ctx context.Context, filter shared.Filter) ([]purchasing.PurchaseOrder, error) {
	var rows []models.PurchaseOrderModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.PurchaseOrderModel{}), filter)
	if err := query.Preload("Items", orderItems).Find(&rows).Error; err != nil {
		return nil, err
	}

	orders := make([]purchasing.PurchaseOrder, len(rows))
	for i := range rows {
		orders[i] = *rows[i].ToDomain()
	}
	return orders, nil
}

// Count counts purchase orders matching the filter
func (r *GormPurchaseOrderRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.PurchaseOrderModel{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountByStatus returns the number of orders in each status. Statuses with
// no orders are reported as zero.
func (r *GormPurchaseOrderRepository) CountByStatus(ctx context.Context) (map[purchasing.Status]int64, error) {
	var rows []struct {
		Status purchasing.Status
		Total  int64
	}
	if err := r.db.WithContext(ctx).Model(&models.PurchaseOrderModel{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[purchasing.Status]int64, len(purchasing.AllStatuses()))
	for _, s := range purchasing.AllStatuses() {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// FindLastNumber returns the highest PO number with the prefix. Longer
// numbers sort first so sequences past 9999 still win.
func (r *GormPurchaseOrderRepository) FindLastNumber(ctx context.Context, prefix string) (string, error) {
	var model models.PurchaseOrderModel
	err := r.db.WithContext(ctx).
		Select("po_number").
		Where("po_number LIKE ?", prefix+"%").
		Order("LENGTH(po_number) DESC, po_number DESC").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return model.PONumber, nil
}

// Create inserts a new order, its items and its staged history in one transaction
func (r *GormPurchaseOrderRepository) Create(ctx context.Context, order *purchasing.PurchaseOrder) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := models.PurchaseOrderModelFromDomain(order)
		if err := tx.Create(model).Error; err != nil {
			if isUniqueViolation(err) {
				return purchasing.ErrDuplicatePONumber
			}
			return fmt.Errorf("failed to create purchase order: %w", err)
		}
		if err := r.history.LogPOHistory(ctx, tx, order.PendingHistory()...); err != nil {
			return err
		}
		return r.saveEvents(ctx, tx, order)
	})
	if err != nil {
		return err
	}
	order.MarkLoaded()
	return nil
}

// SaveWithLock saves the order guarded by the version and status it was
// loaded with, then writes its items, staged history and staged returns.
// Stock movements are applied by the inventory collaborator in the same
// transaction scope.
func (r *GormPurchaseOrderRepository) SaveWithLock(ctx context.Context, order *purchasing.PurchaseOrder) error {
	nextVersion := order.LoadedVersion() + 1
	updatedAt := time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.PurchaseOrderModel{}).
			Where("id = ? AND version = ? AND status = ?", order.ID, order.LoadedVersion(), order.LoadedStatus()).
			Updates(map[string]any{
				"supplier_id":         order.SupplierID,
				"status":              order.Status,
				"subtotal":            purchasing.RoundMoney(order.Subtotal),
				"discount_amount":     purchasing.RoundMoney(order.DiscountAmount),
				"discount_percentage": order.DiscountPercentage,
				"tax_amount":          purchasing.RoundMoney(order.TaxAmount),
				"total_amount":        purchasing.RoundMoney(order.TotalAmount),
				"payment_status":      order.PaymentStatus,
				"notes":               order.Notes,
				"expected_date":       order.ExpectedDate,
				"version":             nextVersion,
				"updated_at":          updatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		if err := r.saveItems(tx, order); err != nil {
			return err
		}

		if err := r.history.LogPOHistory(ctx, tx, order.PendingHistory()...); err != nil {
			return err
		}

		for _, ret := range order.PendingReturns() {
			if err := tx.Create(models.PurchaseReturnModelFromDomain(ret)).Error; err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("return %s: %w", ret.ID, purchasing.ErrAlreadyApplied)
				}
				return fmt.Errorf("failed to record return: %w", err)
			}
		}
		return r.saveEvents(ctx, tx, order)
	})
	if err != nil {
		return err
	}

	order.Version = nextVersion
	order.UpdatedAt = updatedAt
	order.MarkLoaded()
	return nil
}

func (r *GormPurchaseOrderRepository) saveEvents(ctx context.Context, tx *gorm.DB, order *purchasing.PurchaseOrder) error {
	if r.outbox == nil {
		return nil
	}
	events := purchasing.EventsFromHistory(order, order.PendingHistory())
	if len(events) == 0 {
		return nil
	}
	if err := r.outbox.SaveEvents(ctx, tx, events...); err != nil {
		return fmt.Errorf("failed to save order events: %w", err)
	}
	return nil
}

func (r *GormPurchaseOrderRepository) saveItems(tx *gorm.DB, order *purchasing.PurchaseOrder) error {
	currentItemIDs := make([]uuid.UUID, len(order.Items))
	for i, item := range order.Items {
		currentItemIDs[i] = item.ID
	}

	// Drop items removed by a draft update
	remove := tx.Where("purchase_order_id = ?", order.ID)
	if len(currentItemIDs) > 0 {
		remove = remove.Where("id NOT IN ?", currentItemIDs)
	}
	if err := remove.Delete(&models.PurchaseOrderItemModel{}).Error; err != nil {
		return err
	}

	for i := range order.Items {
		order.Items[i].PurchaseOrderID = order.ID
		var itemModel models.PurchaseOrderItemModel
		itemModel.FromDomain(&order.Items[i])
		if err := tx.Save(&itemModel).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *GormPurchaseOrderRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	sortField := ValidateSortField(filter.OrderBy, PurchaseOrderSortFields, "created_at")
	return query.Order(sortField + " " + ValidateSortOrder(filter.OrderDir)).Order("id ASC")
}

func (r *GormPurchaseOrderRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "status":
			switch v := value.(type) {
			case purchasing.Status:
				query = query.Where("status = ?", string(v))
			case string:
				query = query.Where("status = ?", v)
			}
		case "supplier_id":
			query = query.Where("supplier_id = ?", value)
		case "from":
			if t, ok := value.(time.Time); ok {
				query = query.Where("created_at >= ?", t)
			}
		case "to":
			if t, ok := value.(time.Time); ok {
				query = query.Where("created_at <= ?", t)
			}
		}
	}
	return query
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC, id ASC")
}

var _ purchasing.PurchaseOrderRepository = (*GormPurchaseOrderRepository)(nil)
