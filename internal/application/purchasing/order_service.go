package purchasing

import (
	"context"
	"errors"
	"fmt"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/bakery/backoffice/internal/infrastructure/logger"
	"github.com/bakery/backoffice/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrNumberingExhausted is returned when every numbering attempt lost a race
var ErrNumberingExhausted = shared.NewConflictError("NUMBERING_EXHAUSTED",
	"Could not allocate a purchase order number, please retry")

// OrderService creates draft orders and edits them while they are drafts
type OrderService struct {
	orders    purchasing.PurchaseOrderRepository
	suppliers purchasing.SupplierDirectory
	numbering *NumberingService
	commands  *CommandExecutor
	settings  Settings
	logger    *zap.Logger
	metrics   *telemetry.PurchasingMetrics
}

// NewOrderService creates a new OrderService
func NewOrderService(
	suppliers purchasing.SupplierDirectory,
	numbering *NumberingService,
	commands *CommandExecutor,
	settings Settings,
	logger *zap.Logger,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		orders:    commands.Orders(),
		suppliers: suppliers,
		numbering: numbering,
		commands:  commands,
		settings:  settings,
		logger:    logger,
	}
}

// SetMetrics sets the purchasing metrics collector
func (s *OrderService) SetMetrics(m *telemetry.PurchasingMetrics) {
	s.metrics = m
}

// CreateOrder creates a draft order for an active supplier. A PO number
// taken by a concurrent creation is regenerated.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "purchase_order", "create",
		attribute.String("po.supplier_id", req.SupplierID.String()))
	defer span.End()

	if err := s.checkSupplier(ctx, req.SupplierID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	input := toOrderInput(req.SupplierID, req.Items, req.DiscountAmount, req.DiscountPercentage, req.Notes, req.ExpectedDate)
	log := logger.Enrich(ctx, s.logger)

	maxAttempts := s.settings.NumberingMaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		number, err := s.numbering.GeneratePONumber(ctx)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		order, err := purchasing.NewPurchaseOrder(number, input)
		if err != nil {
			return nil, err
		}
		order.SetActor(req.PerformedBy)

		err = s.orders.Create(ctx, order)
		if errors.Is(err, purchasing.ErrDuplicatePONumber) {
			log.Warn("PO number taken concurrently, regenerating",
				zap.String("po_number", number), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		if s.metrics != nil {
			s.metrics.RecordCreated(ctx)
		}
		log.Info("Purchase order created",
			zap.String("order_id", order.ID.String()),
			zap.String("po_number", order.PONumber),
			zap.String("total_amount", purchasing.RoundMoney(order.TotalAmount).String()),
		)
		response := ToOrderResponse(order)
		return &response, nil
	}

	telemetry.RecordError(span, ErrNumberingExhausted)
	return nil, ErrNumberingExhausted
}

// UpdateDraft replaces the lines and header fields of a draft order
func (s *OrderService) UpdateDraft(ctx context.Context, orderID uuid.UUID, req UpdateDraftRequest) (*OrderResponse, error) {
	input := toOrderInput(uuid.Nil, req.Items, req.DiscountAmount, req.DiscountPercentage, req.Notes, req.ExpectedDate)
	if req.SupplierID != nil {
		if err := s.checkSupplier(ctx, *req.SupplierID); err != nil {
			return nil, err
		}
		input.SupplierID = *req.SupplierID
	}

	key := purchasing.IdempotencyKey(orderID, purchasing.ActionUpdated, sequenceOrRandom(req.Sequence))
	result, err := s.commands.Execute(ctx, Command{
		Action:  string(purchasing.ActionUpdated),
		OrderID: orderID,
		Key:     key,
		Actor:   req.PerformedBy,
		Mutate: func(order *purchasing.PurchaseOrder) error {
			return order.UpdateDraft(input, key)
		},
	})
	if err != nil {
		return nil, err
	}
	response := ToOrderResponse(result.Order)
	return &response, nil
}

func (s *OrderService) checkSupplier(ctx context.Context, supplierID uuid.UUID) error {
	supplier, err := s.suppliers.FindSupplier(ctx, supplierID)
	if err != nil {
		return err
	}
	if !supplier.Active {
		return shared.NewDomainError("SUPPLIER_INACTIVE",
			fmt.Sprintf("Supplier %s is inactive and cannot receive orders", supplier.Code))
	}
	return nil
}

// sequenceOrRandom returns the caller's sequence, or a fresh one when empty
func sequenceOrRandom(sequence string) string {
	if sequence != "" {
		return sequence
	}
	return uuid.NewString()
}
