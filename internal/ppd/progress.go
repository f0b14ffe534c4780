// Package ppd tracks payment progress of deferred-payment (PPD) invoices.
// A PPD invoice is settled through partial-payment complements; the set of
// complements plus the invoice total fully determines how much has been paid,
// so progress is always recomputed from scratch and never kept as state.
package ppd

import (
	"time"

	"github.com/shopspring/decimal"
)

// Complement is one recorded partial payment against a PPD invoice.
// Complements are append-only.
type Complement struct {
	Date      time.Time       `json:"date"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
}

// Progress summarizes how far along a PPD invoice is.
type Progress struct {
	Paid                  decimal.Decimal `json:"paid"`
	Remaining             decimal.Decimal `json:"remaining"`
	Percent               int             `json:"percent"`
	NextInstallment       int             `json:"next_installment"`
	CurrentPaymentPercent int             `json:"current_payment_percent"`
}

var hundred = decimal.NewFromInt(100)

// ComputeProgress derives paid amount, remaining balance and percentages from
// the invoice total and its complements. Pure: no incremental state to
// corrupt. Percent is rounded and clamped to [0,100]; a non-positive total
// yields 0 to avoid dividing by zero. Remaining never goes negative even when
// the invoice is overpaid.
func ComputeProgress(total decimal.Decimal, complements []Complement) Progress {
	paid := decimal.Zero
	for _, c := range complements {
		paid = paid.Add(c.Amount)
	}

	remaining := total.Sub(paid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	p := Progress{
		Paid:            paid,
		Remaining:       remaining,
		NextInstallment: len(complements) + 1,
	}

	if total.IsPositive() {
		p.Percent = percentOf(paid, total)
		if n := len(complements); n > 0 {
			p.CurrentPaymentPercent = percentOf(complements[n-1].Amount, total)
		}
	}

	return p
}

func percentOf(part, total decimal.Decimal) int {
	pct := int(part.Div(total).Mul(hundred).Round(0).IntPart())
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
