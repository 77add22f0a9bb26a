package purchasing

import (
	"context"
	"errors"
	"time"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/bakery/backoffice/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnService records goods sent back to the supplier
type ReturnService struct {
	returns  purchasing.PurchaseReturnRepository
	commands *CommandExecutor
	metrics  *telemetry.PurchasingMetrics
}

// NewReturnService creates a new ReturnService
func NewReturnService(returns purchasing.PurchaseReturnRepository, commands *CommandExecutor) *ReturnService {
	return &ReturnService{returns: returns, commands: commands}
}

// SetMetrics sets the purchasing metrics collector
func (s *ReturnService) SetMetrics(m *telemetry.PurchasingMetrics) {
	s.metrics = m
}

// ProcessReturn records a return against a received line and reverses its
// stock. The return id is the idempotency sequence: replaying it returns the
// stored return without touching stock or history again.
func (s *ReturnService) ProcessReturn(ctx context.Context, orderID uuid.UUID, req ReturnItemRequest) (*ReturnResultResponse, error) {
	returnID := uuid.New()
	if req.ReturnID != nil && *req.ReturnID != uuid.Nil {
		returnID = *req.ReturnID
	}

	input := purchasing.ReturnInput{
		ReturnID:      returnID,
		ItemID:        req.ItemID,
		Quantity:      req.Quantity,
		Reason:        purchasing.ReturnReason(req.Reason),
		ReasonDetails: req.ReasonDetails,
	}
	if req.ReturnDate != nil {
		input.ReturnDate = *req.ReturnDate
	} else {
		input.ReturnDate = time.Now()
	}
	if req.RefundAmount != nil {
		input.RefundOverride = decimal.NewNullDecimal(*req.RefundAmount)
	}

	key := purchasing.IdempotencyKey(orderID, purchasing.ActionItemReturned, returnID.String())

	var recorded *purchasing.PurchaseReturn
	result, err := s.commands.Execute(ctx, Command{
		Action:  string(purchasing.ActionItemReturned),
		OrderID: orderID,
		Key:     key,
		Actor:   req.PerformedBy,
		Mutate: func(order *purchasing.PurchaseOrder) error {
			var err error
			recorded, err = order.RecordReturn(input, key)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		stored, err := s.storedReturn(ctx, orderID, returnID)
		if err != nil {
			return nil, err
		}
		return &ReturnResultResponse{Return: ToReturnResponse(stored), Replayed: true}, nil
	}

	if s.metrics != nil {
		s.metrics.RecordReturn(ctx, string(recorded.Reason))
	}
	return &ReturnResultResponse{Return: ToReturnResponse(recorded)}, nil
}

// storedReturn loads a replayed return and checks it belongs to the order
func (s *ReturnService) storedReturn(ctx context.Context, orderID, returnID uuid.UUID) (*purchasing.PurchaseReturn, error) {
	stored, err := s.returns.FindByID(ctx, returnID)
	if errors.Is(err, purchasing.ErrReturnNotFound) {
		return nil, shared.NewDomainError("RETURN_ID_CONFLICT", "Return ID was already used for another operation")
	}
	if err != nil {
		return nil, err
	}
	if stored.PurchaseOrderID != orderID {
		return nil, shared.NewDomainError("RETURN_ID_CONFLICT", "Return ID belongs to another purchase order")
	}
	return stored, nil
}
