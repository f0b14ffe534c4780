// Package status normalizes the heterogeneous status vocabulary coming from
// upstream invoice and banking sources onto two small canonical enumerations.
// All functions are pure and never fail: unrecognized input resolves to a
// documented fallback bucket.
package status

import "strings"

// InvoiceStatus is the canonical invoice-axis status of an expense.
type InvoiceStatus string

const (
	// InvoicePending means a CFDI is expected but has not been received.
	InvoicePending InvoiceStatus = "PENDING"
	// InvoiceReceived means the supporting CFDI has been registered.
	InvoiceReceived InvoiceStatus = "INVOICED"
	// InvoiceNotRequired means the expense will never carry a CFDI.
	InvoiceNotRequired InvoiceStatus = "NO_INVOICE"
)

// BankStatus is the canonical bank-axis status of an expense.
type BankStatus string

const (
	// BankPendingInvoice means bank matching cannot start until the CFDI arrives.
	BankPendingInvoice BankStatus = "PENDING_INVOICE"
	// BankPending means the expense is invoiced and waiting for a bank match.
	BankPending BankStatus = "PENDING_BANK"
	// BankReconciled means the expense is linked to one or more bank movements.
	BankReconciled BankStatus = "RECONCILED"
	// BankNotRequired mirrors InvoiceNotRequired on the bank axis.
	BankNotRequired BankStatus = "NO_INVOICE"
)

// String returns the string representation of the status.
func (s InvoiceStatus) String() string { return string(s) }

// String returns the string representation of the status.
func (s BankStatus) String() string { return string(s) }

// accentReplacer folds the accented vowels that appear in Spanish status
// vocabulary so table lookups stay locale-insensitive.
var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ñ", "n",
)

func canon(raw string) string {
	return accentReplacer.Replace(strings.ToLower(strings.TrimSpace(raw)))
}

// invoiceTokens maps known upstream invoice-status tokens (already folded by
// canon) to their canonical value. Canonical values are included so a status
// that round-trips through storage normalizes to itself.
var invoiceTokens = map[string]InvoiceStatus{
	"pending":             InvoicePending,
	"pendiente":           InvoicePending,
	"por facturar":        InvoicePending,
	"en espera de cfdi":   InvoicePending,
	"invoiced":            InvoiceReceived,
	"facturado":           InvoiceReceived,
	"facturada":           InvoiceReceived,
	"factura recibida":    InvoiceReceived,
	"cfdi recibido":       InvoiceReceived,
	"con factura":         InvoiceReceived,
	"no_invoice":          InvoiceNotRequired,
	"sin factura":         InvoiceNotRequired,
	"no requiere factura": InvoiceNotRequired,
	"no aplica":           InvoiceNotRequired,
}

// bankTokens maps known upstream bank-status tokens to their canonical value.
var bankTokens = map[string]BankStatus{
	"pending_invoice":     BankPendingInvoice,
	"pendiente factura":   BankPendingInvoice,
	"pending_bank":        BankPending,
	"por conciliar":       BankPending,
	"pendiente banco":     BankPending,
	"sin conciliar":       BankPending,
	"reconciled":          BankReconciled,
	"conciliado":          BankReconciled,
	"conciliada":          BankReconciled,
	"pagado y conciliado": BankReconciled,
	"no_invoice":          BankNotRequired,
	"sin factura":         BankNotRequired,
}

// NormalizeInvoice maps a raw upstream invoice status onto the canonical
// enumeration. When invoiceExpected is false the result is always
// InvoiceNotRequired, regardless of what the upstream system reports.
func NormalizeInvoice(raw string, invoiceExpected bool) InvoiceStatus {
	if !invoiceExpected {
		return InvoiceNotRequired
	}

	token := canon(raw)
	if token == "" {
		return InvoicePending
	}
	if s, ok := invoiceTokens[token]; ok {
		return s
	}

	// Substring heuristics for vocabulary the table does not know. The
	// no-invoice checks run first: "sin factura aun" must not match "fact".
	if strings.Contains(token, "sin ") || strings.Contains(token, "no requiere") {
		return InvoiceNotRequired
	}
	if strings.Contains(token, "fact") {
		return InvoiceReceived
	}
	return InvoicePending
}

// NormalizeBank maps a raw upstream bank status onto the canonical
// enumeration. An unrecognized or empty token is derived from the invoice
// axis: an invoiced expense with linked movements is reconciled, an invoiced
// one without is waiting for the bank, and everything earlier in the
// lifecycle is still waiting for its invoice.
func NormalizeBank(raw string, inv InvoiceStatus, hasBankLink bool) BankStatus {
	if s, ok := bankTokens[canon(raw)]; ok {
		return s
	}

	switch inv {
	case InvoiceNotRequired:
		return BankNotRequired
	case InvoiceReceived:
		if hasBankLink {
			return BankReconciled
		}
		return BankPending
	default:
		return BankPendingInvoice
	}
}
