package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/contaflow/expense-engine/internal/domain/expense"
	"github.com/contaflow/expense-engine/internal/domain/status"
	"github.com/contaflow/expense-engine/internal/domain/workflow"
)

// ErrNilExpense is returned when the engine is handed no expense at all.
// Malformed-but-present input never errors; it resolves through fallbacks.
var ErrNilExpense = errors.New("expense is required")

// Engine derives journal entries from expenses. Deterministic and pure: the
// same normalized expense always yields the same entry.
type Engine struct {
	chart *Chart
	now   func() time.Time
}

// NewEngine creates a derivation engine over the given chart. A nil chart
// selects the default one.
func NewEngine(chart *Chart) *Engine {
	if chart == nil {
		chart = DefaultChart()
	}
	return &Engine{chart: chart, now: time.Now}
}

// Derive produces the balanced journal entry for the expense at its current
// lifecycle state.
//
// Debit side: the subtotal against the category account plus one line per
// pass-through tax. Credit side: supplier payable while the invoice is
// unpaid, the bank account once reconciled, and the payment-source account
// while no invoice has been registered. Withheld taxes credit their
// liability accounts. A final correction absorbs rounding drift so the
// entry always balances.
func (g *Engine) Derive(e *expense.Expense) (*Entry, error) {
	if e == nil {
		return nil, ErrNilExpense
	}

	state := e.State()
	totals := e.Taxes.Totals()

	entry := &Entry{
		Number:     policyNumber(e),
		Date:       truncateDay(g.now()),
		PolicyType: policyType(e),
		Concept:    concept(e),
	}

	// Debit side.
	subtotal := g.subtotal(e, totals)
	expAcct := g.chart.CategoryAccount(e.Category)
	if subtotal.IsPositive() {
		entry.Lines = append(entry.Lines, Line{
			AccountCode: expAcct.Code,
			AccountName: expAcct.Name,
			Description: e.Description,
			Debit:       subtotal,
			Credit:      decimal.Zero,
			Kind:        KindExpense,
		})
	}
	for _, l := range e.Taxes.TransferredLines() {
		acct := g.chart.TaxInputAccount(l.Type)
		entry.Lines = append(entry.Lines, Line{
			AccountCode: acct.Code,
			AccountName: acct.Name,
			Description: taxDescription(l),
			Debit:       l.Amount,
			Credit:      decimal.Zero,
			Kind:        KindTaxInput,
		})
	}

	debitTotal := decimal.Zero
	for _, l := range entry.Lines {
		debitTotal = debitTotal.Add(l.Debit)
	}

	// A nonzero expense must never produce an empty journal: if the tax
	// schedule collapsed the debit side to nothing, book the full total.
	if debitTotal.IsZero() && e.Total.IsPositive() {
		entry.Lines = append(entry.Lines, Line{
			AccountCode: expAcct.Code,
			AccountName: expAcct.Name,
			Description: e.Description,
			Debit:       e.Total,
			Credit:      decimal.Zero,
			Kind:        KindExpense,
		})
		debitTotal = e.Total
	}

	// Credit side. The main credit leaves room for the withholding lines
	// that follow it.
	creditBase := debitTotal.Sub(totals.Withheld)
	if creditBase.IsNegative() {
		creditBase = decimal.Zero
	}
	if creditBase.IsPositive() {
		entry.Lines = append(entry.Lines, g.creditLine(e, state, creditBase))
	}
	for _, l := range e.Taxes.WithheldLines() {
		acct := g.chart.WithholdingAccount(l.Type)
		entry.Lines = append(entry.Lines, Line{
			AccountCode: acct.Code,
			AccountName: acct.Name,
			Description: taxDescription(l),
			Debit:       decimal.Zero,
			Credit:      l.Amount,
			Kind:        KindTaxWithheld,
		})
	}

	g.balance(entry)
	return entry, nil
}

// subtotal prefers the explicit schedule value; otherwise it derives one as
// total + withheld − transferred, floored at zero when withholdings exceed
// the total.
func (g *Engine) subtotal(e *expense.Expense, totals expense.TaxTotals) decimal.Decimal {
	if e.Taxes != nil && e.Taxes.Subtotal != nil {
		return *e.Taxes.Subtotal
	}
	sub := e.Total.Add(totals.Withheld).Sub(totals.Transferred)
	if sub.IsNegative() {
		return decimal.Zero
	}
	return sub
}

func (g *Engine) creditLine(e *expense.Expense, state workflow.State, amount decimal.Decimal) Line {
	switch state {
	case workflow.StateReconciled:
		// A paid liability is not carried: credit the bank directly.
		return Line{
			AccountCode: g.chart.Bank.Code,
			AccountName: g.chart.Bank.Name,
			Description: fmt.Sprintf("Pago %s", e.Description),
			Debit:       decimal.Zero,
			Credit:      amount,
			Kind:        KindBank,
		}
	case workflow.StateInvoiced:
		return Line{
			AccountCode: g.chart.Payable.Code,
			AccountName: g.chart.Payable.Name,
			Description: fmt.Sprintf("Provisión proveedor %s", e.Description),
			Debit:       decimal.Zero,
			Credit:      amount,
			Kind:        KindPayable,
		}
	default:
		acct := g.chart.PaymentAccount(e.Payment)
		desc := fmt.Sprintf("Gasto por comprobar %s", e.Description)
		if state == workflow.StateClosedNoInvoice {
			desc = fmt.Sprintf("Pago gasto sin comprobante %s", e.Description)
		}
		return Line{
			AccountCode: acct.Code,
			AccountName: acct.Name,
			Description: desc,
			Debit:       decimal.Zero,
			Credit:      amount,
			Kind:        KindBank,
		}
	}
}

// balance recomputes the totals and, when they drift apart by the tolerance
// or more, adjusts the first credit line (or the first debit line when no
// credit exists) by the signed difference.
func (g *Engine) balance(entry *Entry) {
	entry.recomputeTotals()
	diff := entry.TotalDebit.Sub(entry.TotalCredit)
	if diff.Abs().LessThan(balanceTolerance) {
		return
	}

	for i := range entry.Lines {
		if !entry.Lines[i].Credit.IsZero() {
			entry.Lines[i].Credit = entry.Lines[i].Credit.Add(diff)
			entry.recomputeTotals()
			return
		}
	}
	for i := range entry.Lines {
		if !entry.Lines[i].Debit.IsZero() {
			entry.Lines[i].Debit = entry.Lines[i].Debit.Sub(diff)
			entry.recomputeTotals()
			return
		}
	}
	// No lines at all: totals are both zero, nothing to correct.
}

func policyNumber(e *expense.Expense) string {
	id := strings.ReplaceAll(e.ID.String(), "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return "PG-" + strings.ToUpper(id)
}

func policyType(e *expense.Expense) string {
	if e.InvoiceStatus() == status.InvoiceReceived {
		return PolicyWithCFDI
	}
	return PolicyWithoutCFDI
}

func concept(e *expense.Expense) string {
	if e.Description != "" {
		return e.Description
	}
	if e.Category != "" {
		return "Gasto " + e.Category
	}
	return "Gasto sin descripción"
}

func taxDescription(l expense.TaxLine) string {
	label := string(l.Type)
	if l.Kind == expense.KindWithheld {
		label = "Retención " + label
	}
	if l.Rate != nil {
		return fmt.Sprintf("%s %s%%", label, l.Rate.Mul(decimal.NewFromInt(100)).String())
	}
	return label
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
