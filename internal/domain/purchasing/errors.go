package purchasing

import "github.com/bakery/backoffice/internal/domain/shared"

// Error codes raised by the purchasing domain
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeTerminalState     = "TERMINAL_STATE"
	CodeOverReceipt       = "OVER_RECEIPT"
	CodeOverReturn        = "OVER_RETURN"
	CodeNegativeQuantity  = "NEGATIVE_QUANTITY"
	CodeCannotReceive     = "CANNOT_RECEIVE"
	CodeDuplicatePONumber = "DUPLICATE_PO_NUMBER"
	CodeAlreadyApplied    = "ALREADY_APPLIED"
)

var (
	// ErrOrderNotFound is returned when no purchase order matches
	ErrOrderNotFound = shared.NewNotFoundError("Purchase order not found")
	// ErrItemNotFound is returned when the item does not belong to the order
	ErrItemNotFound = &shared.DomainError{Kind: shared.KindNotFound, Code: "ITEM_NOT_FOUND", Message: "Purchase order item not found"}
	// ErrSupplierNotFound is returned by the supplier directory
	ErrSupplierNotFound = &shared.DomainError{Kind: shared.KindNotFound, Code: "SUPPLIER_NOT_FOUND", Message: "Supplier not found"}
	// ErrReturnNotFound is returned when a return id is unknown
	ErrReturnNotFound = &shared.DomainError{Kind: shared.KindNotFound, Code: "RETURN_NOT_FOUND", Message: "Purchase order return not found"}

	// ErrDuplicatePONumber signals a lost race on the po_number unique constraint
	ErrDuplicatePONumber = shared.NewConflictError(CodeDuplicatePONumber, "Purchase order number already taken")
	// ErrAlreadyApplied signals that an idempotency key was already persisted
	ErrAlreadyApplied = shared.NewConflictError(CodeAlreadyApplied, "Operation was already applied")
)
