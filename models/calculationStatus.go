package models

// CalculationStatus is the lifecycle status of a durable calculation record.
// Transitions are forward-only except FAILED -> PROCESSING on retry.
// PERMANENTLY_FAILED is terminal.
type CalculationStatus string

const (
	CalculationStatusPending           CalculationStatus = "PENDING"
	CalculationStatusProcessing        CalculationStatus = "PROCESSING"
	CalculationStatusCompleted         CalculationStatus = "COMPLETED"
	CalculationStatusFailed            CalculationStatus = "FAILED"
	CalculationStatusPermanentlyFailed CalculationStatus = "PERMANENTLY_FAILED"
)

// CanTransition reports whether moving from -> to is a legal status change.
func CanTransition(from, to CalculationStatus) bool {
	switch from {
	case CalculationStatusPending:
		return to == CalculationStatusProcessing
	case CalculationStatusProcessing:
		return to == CalculationStatusCompleted || to == CalculationStatusFailed
	case CalculationStatusFailed:
		// Retry path, or terminal after attempts are exhausted.
		return to == CalculationStatusProcessing || to == CalculationStatusPermanentlyFailed
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is allowed from s.
func (s CalculationStatus) IsTerminal() bool {
	return s == CalculationStatusCompleted || s == CalculationStatusPermanentlyFailed
}
