package purchasing

import (
	"context"
	"time"

	"github.com/bakery/backoffice/internal/domain/purchasing"
)

// NumberingService hands out month-scoped sequential PO numbers.
// Uniqueness is enforced by the po_number constraint; callers retry on
// purchasing.ErrDuplicatePONumber.
type NumberingService struct {
	orders purchasing.PurchaseOrderRepository
	now    func() time.Time
}

// NewNumberingService creates a new NumberingService
func NewNumberingService(orders purchasing.PurchaseOrderRepository) *NumberingService {
	return &NumberingService{orders: orders, now: time.Now}
}

// GeneratePONumber returns the number following the highest one of the current month
func (s *NumberingService) GeneratePONumber(ctx context.Context) (string, error) {
	now := s.now()
	last, err := s.orders.FindLastNumber(ctx, purchasing.NumberPrefix(now))
	if err != nil {
		return "", err
	}
	return purchasing.NextPONumber(now, last)
}
