package purchasing

import (
	"fmt"

	"github.com/bakery/backoffice/internal/domain/shared"
)

// Status is the lifecycle state of a purchase order
type Status string

const (
	StatusDraft             Status = "draft"
	StatusSent              Status = "sent"
	StatusConfirmed         Status = "confirmed"
	StatusPartiallyReceived Status = "partially_received"
	StatusReceived          Status = "received"
	StatusCancelled         Status = "cancelled"
	StatusClosed            Status = "closed"
)

// transitions is the adjacency table of the workflow. A status missing from
// the table has no outgoing edges.
var transitions = map[Status][]Status{
	StatusDraft:             {StatusSent, StatusCancelled},
	StatusSent:              {StatusConfirmed, StatusCancelled},
	StatusConfirmed:         {StatusPartiallyReceived, StatusReceived, StatusCancelled},
	StatusPartiallyReceived: {StatusReceived, StatusCancelled, StatusClosed},
	StatusReceived:          nil,
	StatusCancelled:         nil,
	StatusClosed:            nil,
}

// AllStatuses returns every status in lifecycle order
func AllStatuses() []Status {
	return []Status{
		StatusDraft,
		StatusSent,
		StatusConfirmed,
		StatusPartiallyReceived,
		StatusReceived,
		StatusCancelled,
		StatusClosed,
	}
}

// ParseStatus converts a persisted or user supplied string into a Status
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", shared.NewDomainError("INVALID_STATUS", fmt.Sprintf("Unknown purchase order status %q", s))
	}
	return status, nil
}

// IsValid checks if the status is a known value
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// String returns the string representation
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if no transition leaves this status
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

// CanTransitionTo checks if the status can transition to the target status
func (s Status) CanTransitionTo(target Status) bool {
	return IsValidTransition(s, target)
}

// ValidTransitions returns the statuses reachable from status in one step.
// The returned slice is a copy.
func ValidTransitions(status Status) []Status {
	next := transitions[status]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// IsValidTransition is a pure membership check against the adjacency table
func IsValidTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanReceiveItems returns true when deliveries may be recorded against an order in this status
func CanReceiveItems(status Status) bool {
	switch status {
	case StatusSent, StatusConfirmed, StatusPartiallyReceived:
		return true
	default:
		return false
	}
}

// checkTransition returns nil when from -> to is allowed, a terminal-state
// error when from is terminal, and a validation error otherwise.
func checkTransition(from, to Status) error {
	if IsValidTransition(from, to) {
		return nil
	}
	if from.IsTerminal() {
		return shared.NewTerminalStateError(CodeTerminalState,
			fmt.Sprintf("Purchase order is %s and can no longer change status", from))
	}
	return shared.NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("Cannot change purchase order status from %s to %s", from, to))
}

// PaymentStatus tracks settlement of the order with the supplier
type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// IsValid checks if the payment status is a known value
func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentStatusUnpaid, PaymentStatusPartial, PaymentStatusPaid:
		return true
	}
	return false
}
