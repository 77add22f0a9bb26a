package purchasing

import (
	"context"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

// ReceptionService records deliveries against order lines
type ReceptionService struct {
	commands *CommandExecutor
	metrics  *telemetry.PurchasingMetrics
}

// NewReceptionService creates a new ReceptionService
func NewReceptionService(commands *CommandExecutor) *ReceptionService {
	return &ReceptionService{commands: commands}
}

// SetMetrics sets the purchasing metrics collector
func (s *ReceptionService) SetMetrics(m *telemetry.PurchasingMetrics) {
	s.metrics = m
}

// ReceivePOItem adds quantity to the item's received quantity, books it into
// stock and moves the order to partially_received or received. Replaying a
// delivery with the same sequence changes nothing.
func (s *ReceptionService) ReceivePOItem(ctx context.Context, orderID uuid.UUID, req ReceiveItemRequest) (*ReceiveResultResponse, error) {
	key := purchasing.IdempotencyKey(orderID, purchasing.ActionItemReceived, sequenceOrRandom(req.Sequence))

	var reception purchasing.ReceptionStatus
	result, err := s.commands.Execute(ctx, Command{
		Action:  string(purchasing.ActionItemReceived),
		OrderID: orderID,
		Key:     key,
		Actor:   req.PerformedBy,
		Mutate: func(order *purchasing.PurchaseOrder) error {
			var err error
			reception, err = order.ReceiveItem(req.ItemID, req.Quantity, req.QCPassed, key)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		reception = result.Order.ReceptionStatus()
	} else if s.metrics != nil {
		s.metrics.RecordReception(ctx, string(reception))
	}

	return &ReceiveResultResponse{
		Order:           ToOrderResponse(result.Order),
		ItemID:          req.ItemID,
		ReceptionStatus: string(reception),
		Replayed:        result.Replayed,
	}, nil
}
