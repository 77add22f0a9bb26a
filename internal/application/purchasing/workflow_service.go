package purchasing

import (
	"context"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/google/uuid"
)

// workflowSequence is the sequence of every workflow action: each
// transition happens at most once per order
const workflowSequence = "1"

// WorkflowService drives the explicit status transitions of an order
type WorkflowService struct {
	commands *CommandExecutor
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(commands *CommandExecutor) *WorkflowService {
	return &WorkflowService{commands: commands}
}

// SendToSupplier moves a draft to sent
func (s *WorkflowService) SendToSupplier(ctx context.Context, orderID uuid.UUID, req TransitionRequest) (*OrderResponse, error) {
	return s.transition(ctx, orderID, purchasing.ActionSent, req, func(o *purchasing.PurchaseOrder, key string) error {
		return o.Send(key)
	})
}

// ConfirmOrder records the supplier's confirmation of a sent order
func (s *WorkflowService) ConfirmOrder(ctx context.Context, orderID uuid.UUID, req TransitionRequest) (*OrderResponse, error) {
	return s.transition(ctx, orderID, purchasing.ActionConfirmed, req, func(o *purchasing.PurchaseOrder, key string) error {
		return o.Confirm(key)
	})
}

// CancelOrder cancels an order that is not yet terminal
func (s *WorkflowService) CancelOrder(ctx context.Context, orderID uuid.UUID, req TransitionRequest) (*OrderResponse, error) {
	return s.transition(ctx, orderID, purchasing.ActionCancelled, req, func(o *purchasing.PurchaseOrder, key string) error {
		return o.Cancel(req.Reason, key)
	})
}

// CloseOrder short-closes a partially received order
func (s *WorkflowService) CloseOrder(ctx context.Context, orderID uuid.UUID, req TransitionRequest) (*OrderResponse, error) {
	return s.transition(ctx, orderID, purchasing.ActionClosed, req, func(o *purchasing.PurchaseOrder, key string) error {
		return o.Close(req.Reason, key)
	})
}

// ValidTransitions lists the statuses the order can move to next
func (s *WorkflowService) ValidTransitions(ctx context.Context, orderID uuid.UUID) (*TransitionsResponse, error) {
	order, err := s.commands.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &TransitionsResponse{
		OrderID:          order.ID,
		Status:           order.Status.String(),
		ValidTransitions: statusStrings(purchasing.ValidTransitions(order.Status)),
		CanReceiveItems:  purchasing.CanReceiveItems(order.Status),
	}, nil
}

func (s *WorkflowService) transition(
	ctx context.Context,
	orderID uuid.UUID,
	action purchasing.ActionType,
	req TransitionRequest,
	apply func(o *purchasing.PurchaseOrder, key string) error,
) (*OrderResponse, error) {
	key := purchasing.IdempotencyKey(orderID, action, workflowSequence)
	result, err := s.commands.Execute(ctx, Command{
		Action:  string(action),
		OrderID: orderID,
		Key:     key,
		Actor:   req.PerformedBy,
		Mutate: func(order *purchasing.PurchaseOrder) error {
			return apply(order, key)
		},
	})
	if err != nil {
		return nil, err
	}
	response := ToOrderResponse(result.Order)
	return &response, nil
}
