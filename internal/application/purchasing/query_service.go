package purchasing

import (
	"context"
	"time"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/bakery/backoffice/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// QueryService serves the read side. Single orders are read through the
// order cache, with concurrent misses for the same order collapsed into one
// database read. Commands never read from here.
type QueryService struct {
	orders  purchasing.PurchaseOrderRepository
	history purchasing.HistoryRepository
	returns purchasing.PurchaseReturnRepository
	cache   purchasing.OrderCache
	ttl     time.Duration
	logger  *zap.Logger
	group   singleflight.Group
}

// NewQueryService creates a new QueryService
func NewQueryService(
	orders purchasing.PurchaseOrderRepository,
	history purchasing.HistoryRepository,
	returns purchasing.PurchaseReturnRepository,
	logger *zap.Logger,
) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{
		orders:  orders,
		history: history,
		returns: returns,
		logger:  logger,
	}
}

// SetOrderCache enables the read-through cache
func (s *QueryService) SetOrderCache(cache purchasing.OrderCache, ttl time.Duration) {
	s.cache = cache
	s.ttl = ttl
}

// GetOrder retrieves an order with its items
func (s *QueryService) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	response := ToOrderResponse(order)
	return &response, nil
}

// GetOrderByNumber retrieves an order by its PO number
func (s *QueryService) GetOrderByNumber(ctx context.Context, poNumber string) (*OrderResponse, error) {
	order, err := s.orders.FindByNumber(ctx, poNumber)
	if err != nil {
		return nil, err
	}
	response := ToOrderResponse(order)
	return &response, nil
}

// ListOrders retrieves a page of orders
func (s *QueryService) ListOrders(ctx context.Context, filter OrderListFilter) (*shared.Paginated[OrderListItemResponse], error) {
	domainFilter, err := toDomainFilter(filter)
	if err != nil {
		return nil, err
	}

	orders, err := s.orders.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, err
	}
	total, err := s.orders.Count(ctx, domainFilter)
	if err != nil {
		return nil, err
	}

	page := shared.NewPaginated(ToOrderListItemResponses(orders), total, domainFilter.Page, domainFilter.PageSize)
	return &page, nil
}

// GetHistory returns the audit trail of an order, oldest first
func (s *QueryService) GetHistory(ctx context.Context, orderID uuid.UUID) ([]HistoryEntryResponse, error) {
	if _, err := s.loadOrder(ctx, orderID); err != nil {
		return nil, err
	}
	entries, err := s.history.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return ToHistoryEntryResponses(entries), nil
}

// ListReturns returns the returns recorded against an order
func (s *QueryService) ListReturns(ctx context.Context, orderID uuid.UUID) ([]ReturnResponse, error) {
	if _, err := s.loadOrder(ctx, orderID); err != nil {
		return nil, err
	}
	returns, err := s.returns.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return ToReturnResponses(returns), nil
}

// GetStatusSummary counts orders per status. Every status is present.
func (s *QueryService) GetStatusSummary(ctx context.Context) (*StatusSummaryResponse, error) {
	counts, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	summary := &StatusSummaryResponse{Counts: make(map[string]int64, len(counts))}
	for _, status := range purchasing.AllStatuses() {
		n := counts[status]
		summary.Counts[status.String()] = n
		summary.Total += n
	}
	return summary, nil
}

// StatusCounts adapts GetStatusSummary for the periodic metrics collector
func (s *QueryService) StatusCounts(ctx context.Context) (map[string]int64, error) {
	summary, err := s.GetStatusSummary(ctx)
	if err != nil {
		return nil, err
	}
	return summary.Counts, nil
}

// loadOrder reads through the cache. Cache failures fall back to the database.
func (s *QueryService) loadOrder(ctx context.Context, orderID uuid.UUID) (*purchasing.PurchaseOrder, error) {
	if s.cache == nil {
		return s.orders.FindByID(ctx, orderID)
	}

	log := logger.Enrich(ctx, s.logger).With(zap.String("order_id", orderID.String()))
	cached, err := s.cache.Get(ctx, orderID)
	if err != nil {
		log.Warn("Order cache read failed", zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	v, err, _ := s.group.Do(orderID.String(), func() (any, error) {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, order, s.ttl); err != nil {
			log.Warn("Order cache write failed", zap.Error(err))
		}
		return order, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*purchasing.PurchaseOrder), nil
}

func toDomainFilter(filter OrderListFilter) (shared.Filter, error) {
	f := shared.DefaultFilter()
	if filter.Page > 0 {
		f.Page = filter.Page
	}
	if filter.PageSize > 0 {
		f.PageSize = filter.PageSize
	}
	if filter.OrderBy != "" {
		f.OrderBy = filter.OrderBy
	}
	if filter.OrderDir != "" {
		f.OrderDir = filter.OrderDir
	}

	if filter.Status != "" {
		status, err := purchasing.ParseStatus(filter.Status)
		if err != nil {
			return shared.Filter{}, err
		}
		f.Filters["status"] = status
	}
	if filter.SupplierID != nil {
		f.Filters["supplier_id"] = *filter.SupplierID
	}
	if filter.From != nil {
		f.Filters["from"] = *filter.From
	}
	if filter.To != nil {
		f.Filters["to"] = *filter.To
	}
	return f, nil
}
