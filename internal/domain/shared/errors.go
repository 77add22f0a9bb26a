package shared

import "errors"

// ErrorKind classifies a domain error so callers can decide whether to retry
type ErrorKind string

const (
	// KindValidation is bad input or a rule violation detected before any write
	KindValidation ErrorKind = "validation"
	// KindConflict is a stale-state or uniqueness collision; retry with fresh state
	KindConflict ErrorKind = "conflict"
	// KindTerminalState is an operation against an order that can no longer change
	KindTerminalState ErrorKind = "terminal_state"
	// KindNotFound is a missing aggregate or entity
	KindNotFound ErrorKind = "not_found"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so wrapped copies compare equal to the sentinels
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Retryable reports whether the failed operation may succeed when re-run against fresh state
func (e *DomainError) Retryable() bool {
	return e.Kind == KindConflict
}

// NewDomainError creates a new validation-kind domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Kind:    KindValidation,
		Code:    code,
		Message: message,
	}
}

// NewConflictError creates a retryable conflict error
func NewConflictError(code, message string) *DomainError {
	return &DomainError{Kind: KindConflict, Code: code, Message: message}
}

// NewTerminalStateError creates a non-retryable terminal-state error
func NewTerminalStateError(code, message string) *DomainError {
	return &DomainError{Kind: KindTerminalState, Code: code, Message: message}
}

// NewNotFoundError creates a not-found error with a specific message
func NewNotFoundError(message string) *DomainError {
	return &DomainError{Kind: KindNotFound, Code: ErrNotFound.Code, Message: message}
}

// Common domain errors
var (
	ErrNotFound            = &DomainError{Kind: KindNotFound, Code: "NOT_FOUND", Message: "Resource not found"}
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewConflictError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrTerminalState       = NewTerminalStateError("TERMINAL_STATE", "Operation not allowed once the resource reached a terminal state")
	ErrInsufficientStock   = NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock available")
)

// KindOf returns the kind of a domain error in err's chain, or "" for other errors
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsRetryable reports whether err is a conflict that a caller should retry
func IsRetryable(err error) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Retryable()
}
