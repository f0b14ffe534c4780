package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineKind tags what a journal line represents.
type LineKind string

const (
	KindExpense     LineKind = "EXPENSE"
	KindTaxInput    LineKind = "TAX_INPUT"
	KindTaxWithheld LineKind = "TAX_WITHHELD"
	KindPayable     LineKind = "PAYABLE"
	KindBank        LineKind = "BANK"
)

// PolicyType labels whether the journal is backed by a tax document.
const (
	PolicyWithCFDI    = "GASTO_CFDI"
	PolicyWithoutCFDI = "GASTO_SIN_CFDI"
)

// Line is a single debit or credit in a journal entry. Exactly one of Debit
// and Credit is nonzero on a well-formed line.
type Line struct {
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Kind        LineKind        `json:"kind"`
}

// Entry is the derived journal for one expense state snapshot. It is not
// primary data: rerunning the derivation on the same expense produces the
// same entry.
type Entry struct {
	Number      string          `json:"number"`
	Date        time.Time       `json:"date"`
	PolicyType  string          `json:"policy_type"`
	Concept     string          `json:"concept"`
	Lines       []Line          `json:"lines"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Balanced    bool            `json:"balanced"`
}

// balanceTolerance is the rounding slack allowed between the debit and
// credit totals before the correction step kicks in.
var balanceTolerance = decimal.NewFromFloat(0.01)

func (e *Entry) recomputeTotals() {
	debit := decimal.Zero
	credit := decimal.Zero
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	e.TotalDebit = debit
	e.TotalCredit = credit
	e.Balanced = debit.Sub(credit).Abs().LessThan(balanceTolerance)
}
