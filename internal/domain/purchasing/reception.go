package purchasing

// ReceptionStatus is the order-level view of how much has been delivered
type ReceptionStatus string

const (
	ReceptionNone    ReceptionStatus = "none"
	ReceptionPartial ReceptionStatus = "partial"
	ReceptionFull    ReceptionStatus = "full"
)

// CalculateReceptionStatus derives the reception status from item quantities.
// An order without items counts as not received.
func CalculateReceptionStatus(items []PurchaseOrderItem) ReceptionStatus {
	if len(items) == 0 {
		return ReceptionNone
	}

	allZero, allFull := true, true
	for _, item := range items {
		if !item.QuantityReceived.IsZero() {
			allZero = false
		}
		if !item.QuantityReceived.Equal(item.Quantity) {
			allFull = false
		}
	}

	switch {
	case allFull:
		return ReceptionFull
	case allZero:
		return ReceptionNone
	default:
		return ReceptionPartial
	}
}

// TargetStatus maps a reception status to the order status it drives.
// ok is false for ReceptionNone, which drives no transition.
func (r ReceptionStatus) TargetStatus() (Status, bool) {
	switch r {
	case ReceptionFull:
		return StatusReceived, true
	case ReceptionPartial:
		return StatusPartiallyReceived, true
	default:
		return "", false
	}
}
