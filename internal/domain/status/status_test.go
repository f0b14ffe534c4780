package status

import "testing"

func TestNormalizeInvoice(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected bool
		want     InvoiceStatus
	}{
		{"empty defaults to pending", "", true, InvoicePending},
		{"known pending token", "Pendiente", true, InvoicePending},
		{"known invoiced token", "FACTURADO", true, InvoiceReceived},
		{"accented token", "facturada", true, InvoiceReceived},
		{"cfdi received", "CFDI recibido", true, InvoiceReceived},
		{"no invoice token", "Sin factura", true, InvoiceNotRequired},
		{"no requiere", "no requiere factura", true, InvoiceNotRequired},
		{"heuristic fact", "facturacion completa", true, InvoiceReceived},
		{"heuristic sin beats fact", "sin facturar", true, InvoiceNotRequired},
		{"garbage defaults to pending", "???", true, InvoicePending},
		{"canonical round trip", "INVOICED", true, InvoiceReceived},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeInvoice(tt.raw, tt.expected); got != tt.want {
				t.Errorf("NormalizeInvoice(%q, %v) = %v, want %v", tt.raw, tt.expected, got, tt.want)
			}
		})
	}
}

// Whatever the upstream says, an expense that never expects an invoice
// normalizes to NO_INVOICE.
func TestNormalizeInvoice_NotExpectedOverridesRaw(t *testing.T) {
	raws := []string{"", "facturado", "pendiente", "conciliado", "garbage", "INVOICED"}
	for _, raw := range raws {
		if got := NormalizeInvoice(raw, false); got != InvoiceNotRequired {
			t.Errorf("NormalizeInvoice(%q, false) = %v, want %v", raw, got, InvoiceNotRequired)
		}
	}
}

func TestNormalizeBank(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		inv     InvoiceStatus
		hasLink bool
		want    BankStatus
	}{
		{"known token wins", "conciliado", InvoicePending, false, BankReconciled},
		{"por conciliar", "Por Conciliar", InvoiceReceived, false, BankPending},
		{"empty derives pending invoice", "", InvoicePending, false, BankPendingInvoice},
		{"empty invoiced no link", "", InvoiceReceived, false, BankPending},
		{"empty invoiced with link", "", InvoiceReceived, true, BankReconciled},
		{"empty no invoice", "", InvoiceNotRequired, true, BankNotRequired},
		{"unknown derives from invoice axis", "estado raro", InvoiceReceived, false, BankPending},
		{"canonical round trip", "RECONCILED", InvoicePending, false, BankReconciled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeBank(tt.raw, tt.inv, tt.hasLink); got != tt.want {
				t.Errorf("NormalizeBank(%q, %v, %v) = %v, want %v", tt.raw, tt.inv, tt.hasLink, got, tt.want)
			}
		})
	}
}
