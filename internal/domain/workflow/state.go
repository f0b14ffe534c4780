// Package workflow derives the single lifecycle state of an expense from its
// two normalized status axes. The state is always recomputed from the axes,
// never assigned directly, so an unlinked bank movement immediately moves the
// expense backward instead of leaving a stale RECONCILED behind.
package workflow

// State represents a workflow state in the expense lifecycle.
type State string

const (
	// StateCaptured is the initial state right after capture, before any
	// status has been normalized.
	StateCaptured State = "CAPTURED"
	// StatePendingInvoice means the expense is waiting for its CFDI.
	StatePendingInvoice State = "PENDING_INVOICE"
	// StateInvoiced means the CFDI arrived and bank matching can start.
	StateInvoiced State = "INVOICED"
	// StateReconciled means the expense is linked to bank movements.
	StateReconciled State = "RECONCILED"
	// StateClosedNoInvoice is the terminal state of expenses that will
	// never carry a CFDI.
	StateClosedNoInvoice State = "CLOSED_NO_INVOICE"
)

var validStates = map[State]bool{
	StateCaptured:        true,
	StatePendingInvoice:  true,
	StateInvoiced:        true,
	StateReconciled:      true,
	StateClosedNoInvoice: true,
}

var terminalStates = map[State]bool{
	StateClosedNoInvoice: true,
}

// IsTerminal returns true if the state admits no further transitions.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if the state is a known workflow state.
func (s State) IsValid() bool {
	return validStates[s]
}

// Closed reports whether the expense needs no further action.
func (s State) Closed() bool {
	return s == StateReconciled || s == StateClosedNoInvoice
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}
