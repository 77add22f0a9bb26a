package persistence

import (
	"context"

	apppurchasing "github.com/bakery/backoffice/internal/application/purchasing"
	"github.com/bakery/backoffice/internal/domain/purchasing"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Repositories handed to fn share the transaction, so nested Transaction
// calls inside them become savepoints.
type GormTransactionScope struct {
	db     *gorm.DB
	outbox OutboxEventSaver
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// SetOutboxEventSaver passes saver to the order repositories of every transaction
func (s *GormTransactionScope) SetOutboxEventSaver(saver OutboxEventSaver) {
	s.outbox = saver
}

// Execute runs fn within a database transaction. The transaction commits
// only if fn returns nil.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos apppurchasing.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, outbox: s.outbox})
	})
}

type gormTransactionalRepositories struct {
	tx     *gorm.DB
	outbox OutboxEventSaver
}

func (r *gormTransactionalRepositories) Orders() purchasing.PurchaseOrderRepository {
	repo := NewGormPurchaseOrderRepository(r.tx)
	repo.SetOutboxEventSaver(r.outbox)
	return repo
}

func (r *gormTransactionalRepositories) Inventory() purchasing.InventoryService {
	return NewGormStockLedger(r.tx)
}

var (
	_ apppurchasing.TransactionScope          = (*GormTransactionScope)(nil)
	_ apppurchasing.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)
