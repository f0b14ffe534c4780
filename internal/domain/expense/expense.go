// Package expense holds the core domain model: the expense itself, its tax
// schedule, and the bank movements it can be linked to. Statuses and the
// workflow state are derived on demand from the raw upstream strings so the
// model never carries a stale lifecycle value.
package expense

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contaflow/expense-engine/internal/domain/status"
	"github.com/contaflow/expense-engine/internal/domain/workflow"
	"github.com/contaflow/expense-engine/internal/ppd"
)

// PaymentSource identifies how an expense was (or will be) paid. It selects
// the credit-side account while the expense has no registered invoice.
type PaymentSource string

const (
	SourceCompanyBank   PaymentSource = "COMPANY_BANK"
	SourcePettyCash     PaymentSource = "PETTY_CASH"
	SourceCorporateCard PaymentSource = "CORPORATE_CARD"
)

// ParsePaymentSource maps upstream payer vocabulary onto PaymentSource.
// Unknown values fall back to the company bank account.
func ParsePaymentSource(raw string) PaymentSource {
	switch PaymentSource(raw) {
	case SourcePettyCash, SourceCorporateCard, SourceCompanyBank:
		return PaymentSource(raw)
	}
	switch raw {
	case "employee", "reembolso", "caja chica", "petty_cash":
		return SourcePettyCash
	case "card", "tarjeta", "corporate_card":
		return SourceCorporateCard
	default:
		return SourceCompanyBank
	}
}

// ReconciliationSource records how the bank link was established.
const (
	ReconciliationAccepted = "accepted" // suggestion accepted as ranked
	ReconciliationManual   = "manual"   // movements picked by hand
)

// BankMovement is a bank charge an expense can be linked to.
type BankMovement struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	GroupID     string          `json:"group_id,omitempty"`
}

// Expense is the unit of work. Created on capture, mutated as the invoice is
// registered or bank movements are linked, never deleted.
type Expense struct {
	ID                   uuid.UUID
	Description          string
	Total                decimal.Decimal
	Currency             string
	Category             string
	InvoiceExpected      bool
	Payment              PaymentSource
	Taxes                *TaxSchedule
	RawInvoiceStatus     string
	RawBankStatus        string
	Movements            []BankMovement
	ReconciledAt         *time.Time
	ReconciliationSource string
	PPD                  bool
	Complements          []ppd.Complement
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ErrMissingTotal is returned when an expense arrives without its one
// load-bearing field.
var ErrMissingTotal = errors.New("expense total is required")

// Validate checks boundary invariants before the expense enters the core.
// Amount signs are validated here, not inside the ledger engine.
func (e *Expense) Validate() error {
	if e.Total.IsNegative() {
		return fmt.Errorf("expense total must be non-negative, got %s", e.Total)
	}
	if e.Currency == "" {
		return errors.New("currency code is required")
	}
	for _, l := range e.taxLines() {
		if l.Amount.IsNegative() {
			return fmt.Errorf("tax amount must be non-negative, got %s", l.Amount)
		}
	}
	return nil
}

func (e *Expense) taxLines() []TaxLine {
	if e.Taxes == nil {
		return nil
	}
	return e.Taxes.Lines
}

// InvoiceStatus normalizes the raw upstream invoice status.
func (e *Expense) InvoiceStatus() status.InvoiceStatus {
	return status.NormalizeInvoice(e.RawInvoiceStatus, e.InvoiceExpected)
}

// BankStatus normalizes the raw upstream bank status, deriving it from the
// invoice axis and the current movement links when the raw value is unknown.
func (e *Expense) BankStatus() status.BankStatus {
	return status.NormalizeBank(e.RawBankStatus, e.InvoiceStatus(), len(e.Movements) > 0)
}

// State derives the workflow state from the two status axes.
func (e *Expense) State() workflow.State {
	return workflow.Derive(e.InvoiceStatus(), e.BankStatus())
}

// LinkedTotal sums the amounts of all linked bank movements. For split
// payments this is the figure surfaced for human review; no exact-sum
// enforcement happens here.
func (e *Expense) LinkedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, m := range e.Movements {
		total = total.Add(m.Amount)
	}
	return total
}

// PaymentProgress computes the PPD progress of the expense.
func (e *Expense) PaymentProgress() ppd.Progress {
	return ppd.ComputeProgress(e.Total, e.Complements)
}
