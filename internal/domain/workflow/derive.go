package workflow

import "github.com/contaflow/expense-engine/internal/domain/status"

// Derive combines the invoice and bank axes into one workflow state. The
// mapping is total: every combination of the two enumerations resolves to
// exactly one state.
//
// The invoice axis dominates. NO_INVOICE closes the expense no matter what
// the bank axis says; an invoiced expense is RECONCILED only while its bank
// axis agrees.
func Derive(inv status.InvoiceStatus, bank status.BankStatus) State {
	switch inv {
	case status.InvoiceNotRequired:
		return StateClosedNoInvoice
	case status.InvoiceReceived:
		if bank == status.BankReconciled {
			return StateReconciled
		}
		return StateInvoiced
	case status.InvoicePending:
		return StatePendingInvoice
	default:
		// Unknown axis values never reach here from the normalizer, but
		// the mapping stays total for raw enum values built by hand.
		return StateCaptured
	}
}
