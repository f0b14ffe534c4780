package expense

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TaxType classifies a tax line by the tax it represents.
type TaxType string

const (
	TaxIVA   TaxType = "IVA"  // value-added tax
	TaxISR   TaxType = "ISR"  // income tax withholding
	TaxIEPS  TaxType = "IEPS" // excise tax
	TaxOther TaxType = "OTRO"
)

// TaxKind distinguishes taxes the supplier passes through from taxes the
// payer withholds.
type TaxKind string

const (
	KindTransferred TaxKind = "TRASLADO"
	KindWithheld    TaxKind = "RETENCION"
)

// TaxLine is one tax in a schedule, as parsed from the source CFDI.
// Immutable once parsed.
type TaxLine struct {
	Type   TaxType          `json:"type"`
	Kind   TaxKind          `json:"kind"`
	Rate   *decimal.Decimal `json:"rate,omitempty"`
	Amount decimal.Decimal  `json:"amount"`
}

// TaxSchedule is the raw tax breakdown attached to an expense. Subtotal is
// optional; when absent the ledger engine derives it from the total and the
// per-kind sums.
type TaxSchedule struct {
	Subtotal *decimal.Decimal `json:"subtotal,omitempty"`
	Lines    []TaxLine        `json:"lines,omitempty"`
}

// TaxTotals is the per-kind and per-type aggregation consumed by the ledger
// derivation engine.
type TaxTotals struct {
	Transferred decimal.Decimal
	Withheld    decimal.Decimal
}

// ParseTaxType maps upstream tax names onto the closed TaxType set.
// Unknown names resolve to TaxOther.
func ParseTaxType(raw string) TaxType {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "IVA", "VAT", "VALUE-ADDED", "VALUE_ADDED", "002":
		return TaxIVA
	case "ISR", "INCOME", "WITHHOLDING", "001":
		return TaxISR
	case "IEPS", "EXCISE", "003":
		return TaxIEPS
	default:
		return TaxOther
	}
}

// ParseTaxKind maps upstream kind vocabulary onto TaxKind. Anything not
// recognizably a withholding is treated as passed through.
func ParseTaxKind(raw string) TaxKind {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "RETENCION", "RETENCIÓN", "RETENIDO", "WITHHELD", "WITHHOLDING":
		return KindWithheld
	default:
		return KindTransferred
	}
}

// Totals sums the schedule's lines per kind. Safe on a nil schedule: an
// expense without a tax breakdown simply has zero totals.
func (s *TaxSchedule) Totals() TaxTotals {
	var t TaxTotals
	t.Transferred = decimal.Zero
	t.Withheld = decimal.Zero
	if s == nil {
		return t
	}
	for _, l := range s.Lines {
		switch l.Kind {
		case KindWithheld:
			t.Withheld = t.Withheld.Add(l.Amount)
		default:
			t.Transferred = t.Transferred.Add(l.Amount)
		}
	}
	return t
}

// TransferredLines returns the pass-through lines with a positive amount, in
// schedule order.
func (s *TaxSchedule) TransferredLines() []TaxLine {
	return s.linesOf(KindTransferred)
}

// WithheldLines returns the withheld lines with a positive amount, in
// schedule order.
func (s *TaxSchedule) WithheldLines() []TaxLine {
	return s.linesOf(KindWithheld)
}

func (s *TaxSchedule) linesOf(kind TaxKind) []TaxLine {
	if s == nil {
		return nil
	}
	var out []TaxLine
	for _, l := range s.Lines {
		// Anything that is not a withholding passes through, matching Totals.
		lineKind := KindTransferred
		if l.Kind == KindWithheld {
			lineKind = KindWithheld
		}
		if lineKind == kind && l.Amount.IsPositive() {
			out = append(out, l)
		}
	}
	return out
}
