package purchasing

import (
	"context"
	"time"

	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseOrderRepository defines the interface for purchase order persistence
type PurchaseOrderRepository interface {
	// FindByID finds an order with its items, or returns ErrOrderNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error)

	// FindByNumber finds an order by its PO number
	FindByNumber(ctx context.Context, poNumber string) (*PurchaseOrder, error)

	// FindAll finds orders matching the filter. Supported filter keys are
	// "status", "supplier_id", "from" and "to".
	FindAll(ctx context.Context, filter shared.Filter) ([]PurchaseOrder, error)

	// Count counts orders matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// CountByStatus returns the number of orders per status
	CountByStatus(ctx context.Context) (map[Status]int64, error)

	// FindLastNumber returns the highest PO number starting with prefix, or ""
	FindLastNumber(ctx context.Context, prefix string) (string, error)

	// Create inserts a new order with its items and staged history.
	// A taken PO number yields ErrDuplicatePONumber.
	Create(ctx context.Context, order *PurchaseOrder) error

	// SaveWithLock persists the order and everything it staged in one
	// transaction, guarded by the version and status it was loaded with.
	// A stale order yields shared.ErrConcurrencyConflict; an idempotency key
	// that was already persisted yields ErrAlreadyApplied.
	SaveWithLock(ctx context.Context, order *PurchaseOrder) error
}

// HistoryRepository reads the audit trail
type HistoryRepository interface {
	// FindByOrder returns the order's entries oldest first
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]HistoryEntry, error)

	// ExistsByKey reports whether an entry with the idempotency key exists
	ExistsByKey(ctx context.Context, key string) (bool, error)
}

// PurchaseReturnRepository reads recorded returns
type PurchaseReturnRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*PurchaseReturn, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]PurchaseReturn, error)
}

// InventoryService is the stock collaborator. Calls carry the movement's
// idempotency key so a replay never changes on-hand twice.
type InventoryService interface {
	IncrementStock(ctx context.Context, movement StockMovement) error
	DecrementStock(ctx context.Context, movement StockMovement) error
	OnHand(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error)
}

// Supplier is the read model of a supplier
type Supplier struct {
	ID     uuid.UUID `json:"id"`
	Code   string    `json:"code"`
	Name   string    `json:"name"`
	Active bool      `json:"active"`
}

// SupplierDirectory resolves suppliers referenced by orders
type SupplierDirectory interface {
	// FindSupplier returns ErrSupplierNotFound when id is unknown
	FindSupplier(ctx context.Context, id uuid.UUID) (*Supplier, error)
}

// OrderCache is a read-through cache of orders. Writers invalidate after commit.
type OrderCache interface {
	// Get returns nil, nil on a miss
	Get(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error)
	// Set stores order unless the cache already knows a newer version of it.
	// A fill that lost the race against a commit is dropped silently.
	Set(ctx context.Context, order *PurchaseOrder, ttl time.Duration) error
	// Invalidate drops the order and rejects later fills older than version,
	// the version just committed
	Invalidate(ctx context.Context, id uuid.UUID, version int) error
	Close() error
}
