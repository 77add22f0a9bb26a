package purchasing

import (
	"context"

	"github.com/bakery/backoffice/internal/domain/purchasing"
)

// TransactionScope runs a unit of work in one database transaction.
// If fn returns an error, everything it wrote is rolled back.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories gives access to the collaborators that must
// commit together with an order: the order itself (items, history, returns)
// and the stock movements it staged.
type TransactionalRepositories interface {
	// Orders returns the purchase order repository scoped to the current transaction
	Orders() purchasing.PurchaseOrderRepository
	// Inventory returns the stock collaborator scoped to the current transaction
	Inventory() purchasing.InventoryService
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// This is useful for testing with mocked repositories.
type NoOpTransactionScope struct {
	orders    purchasing.PurchaseOrderRepository
	inventory purchasing.InventoryService
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given collaborators.
func NewNoOpTransactionScope(orders purchasing.PurchaseOrderRepository, inventory purchasing.InventoryService) *NoOpTransactionScope {
	return &NoOpTransactionScope{orders: orders, inventory: inventory}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Orders returns the purchase order repository.
func (s *NoOpTransactionScope) Orders() purchasing.PurchaseOrderRepository {
	return s.orders
}

// Inventory returns the stock collaborator.
func (s *NoOpTransactionScope) Inventory() purchasing.InventoryService {
	return s.inventory
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
