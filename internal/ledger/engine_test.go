package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contaflow/expense-engine/internal/domain/expense"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func testEngine() *Engine {
	g := NewEngine(nil)
	g.now = func() time.Time { return time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC) }
	return g
}

func fuelExpense() *expense.Expense {
	rate := dec("0.16")
	return &expense.Expense{
		ID:              uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Description:     "Gasolina camioneta",
		Total:           dec("1000"),
		Currency:        "MXN",
		Category:        "fuel",
		InvoiceExpected: true,
		Payment:         expense.SourceCompanyBank,
		Taxes: &expense.TaxSchedule{
			Lines: []expense.TaxLine{
				{Type: expense.TaxIVA, Kind: expense.KindTransferred, Rate: &rate, Amount: dec("160")},
			},
		},
	}
}

func assertBalanced(t *testing.T, e *Entry) {
	t.Helper()
	assert.True(t, e.Balanced, "entry should be balanced")
	diff := e.TotalDebit.Sub(e.TotalCredit).Abs()
	assert.True(t, diff.LessThan(dec("0.01")), "|debit-credit| = %s", diff)
}

// Scenario: total 1000, one pass-through VAT line of 160, no explicit
// subtotal, invoice not yet received. Subtotal derives to 840; the credit
// goes against the company payment account for the full 1000.
func TestDerive_PendingInvoice(t *testing.T) {
	entry, err := testEngine().Derive(fuelExpense())
	require.NoError(t, err)

	require.Len(t, entry.Lines, 3)

	assert.Equal(t, "601-01", entry.Lines[0].AccountCode)
	assert.Equal(t, KindExpense, entry.Lines[0].Kind)
	assert.True(t, entry.Lines[0].Debit.Equal(dec("840")), "expense debit = %s", entry.Lines[0].Debit)

	assert.Equal(t, "118-01", entry.Lines[1].AccountCode)
	assert.Equal(t, KindTaxInput, entry.Lines[1].Kind)
	assert.True(t, entry.Lines[1].Debit.Equal(dec("160")))

	assert.Equal(t, "102-01", entry.Lines[2].AccountCode)
	assert.Equal(t, KindBank, entry.Lines[2].Kind)
	assert.True(t, entry.Lines[2].Credit.Equal(dec("1000")))

	assert.Equal(t, PolicyWithoutCFDI, entry.PolicyType)
	assertBalanced(t, entry)
}

// Same expense later invoiced, then reconciled: the credit account switches
// from supplier payable to bank, the total never changes.
func TestDerive_CreditSideFollowsLifecycle(t *testing.T) {
	g := testEngine()

	e := fuelExpense()
	e.RawInvoiceStatus = "facturado"
	invoiced, err := g.Derive(e)
	require.NoError(t, err)

	require.Len(t, invoiced.Lines, 3)
	assert.Equal(t, KindPayable, invoiced.Lines[2].Kind)
	assert.Equal(t, "201-01", invoiced.Lines[2].AccountCode)
	assert.True(t, invoiced.Lines[2].Credit.Equal(dec("1000")))
	assert.Equal(t, PolicyWithCFDI, invoiced.PolicyType)
	assertBalanced(t, invoiced)

	e.Movements = []expense.BankMovement{{ID: "mv-1", Amount: dec("1000")}}
	reconciled, err := g.Derive(e)
	require.NoError(t, err)

	require.Len(t, reconciled.Lines, 3)
	assert.Equal(t, KindBank, reconciled.Lines[2].Kind)
	assert.Equal(t, "102-01", reconciled.Lines[2].AccountCode)
	assert.True(t, reconciled.Lines[2].Credit.Equal(dec("1000")))
	assert.True(t, reconciled.TotalDebit.Equal(invoiced.TotalDebit))
	assertBalanced(t, reconciled)
}

func TestDerive_WithheldTaxes(t *testing.T) {
	e := &expense.Expense{
		ID:               uuid.New(),
		Description:      "Honorarios contables",
		Total:            dec("953.33"),
		Currency:         "MXN",
		Category:         "honorarios",
		InvoiceExpected:  true,
		RawInvoiceStatus: "facturado",
		Payment:          expense.SourceCompanyBank,
		Taxes: &expense.TaxSchedule{
			Subtotal: decPtr("1000"),
			Lines: []expense.TaxLine{
				{Type: expense.TaxIVA, Kind: expense.KindTransferred, Amount: dec("160")},
				{Type: expense.TaxISR, Kind: expense.KindWithheld, Amount: dec("100")},
				{Type: expense.TaxIVA, Kind: expense.KindWithheld, Amount: dec("106.67")},
			},
		},
	}

	entry, err := testEngine().Derive(e)
	require.NoError(t, err)

	// 1000 + 160 debit; 953.33 payable + 100 + 106.67 withheld credit.
	require.Len(t, entry.Lines, 5)
	assert.Equal(t, KindPayable, entry.Lines[2].Kind)
	assert.True(t, entry.Lines[2].Credit.Equal(dec("953.33")), "payable = %s", entry.Lines[2].Credit)
	assert.Equal(t, "216-01", entry.Lines[3].AccountCode)
	assert.True(t, entry.Lines[3].Credit.Equal(dec("100")))
	assert.Equal(t, "216-02", entry.Lines[4].AccountCode)
	assert.True(t, entry.Lines[4].Credit.Equal(dec("106.67")))
	assertBalanced(t, entry)
}

func TestDerive_UnknownCategoryFallsBack(t *testing.T) {
	e := fuelExpense()
	e.Category = "something nobody mapped"

	entry, err := testEngine().Derive(e)
	require.NoError(t, err)
	assert.Equal(t, "601-99", entry.Lines[0].AccountCode)
	assertBalanced(t, entry)
}

// A schedule that zeroes out the derived subtotal must still produce a
// journal for a nonzero expense.
func TestDerive_ZeroSubtotalFallsBackToTotal(t *testing.T) {
	e := &expense.Expense{
		ID:              uuid.New(),
		Description:     "Cuota rara",
		Total:           dec("100"),
		Currency:        "MXN",
		InvoiceExpected: true,
		Payment:         expense.SourcePettyCash,
		Taxes: &expense.TaxSchedule{
			Subtotal: decPtr("0"),
			Lines: []expense.TaxLine{
				{Type: expense.TaxOther, Kind: expense.KindTransferred, Amount: decimal.Zero},
			},
		},
	}

	entry, err := testEngine().Derive(e)
	require.NoError(t, err)
	require.NotEmpty(t, entry.Lines)
	assert.True(t, entry.Lines[0].Debit.Equal(dec("100")))
	assert.Equal(t, "107-01", entry.Lines[1].AccountCode, "petty cash credit account")
	assertBalanced(t, entry)
}

func TestDerive_ZeroAmountExpense(t *testing.T) {
	e := &expense.Expense{
		ID:              uuid.New(),
		Description:     "Cortesía",
		Currency:        "MXN",
		InvoiceExpected: true,
	}

	entry, err := testEngine().Derive(e)
	require.NoError(t, err)
	assert.Empty(t, entry.Lines)
	assert.True(t, entry.Balanced)
	assert.True(t, entry.TotalDebit.IsZero())
	assert.True(t, entry.TotalCredit.IsZero())
}

// When withholdings exceed the debit side the main credit floors at zero and
// the raw totals drift apart; the correction step against the first credit
// line must absorb the difference.
func TestDerive_BalanceCorrection(t *testing.T) {
	e := &expense.Expense{
		ID:               uuid.New(),
		Description:      "Ajuste extraño",
		Total:            dec("10"),
		Currency:         "MXN",
		Category:         "services",
		InvoiceExpected:  true,
		RawInvoiceStatus: "facturado",
		Payment:          expense.SourceCompanyBank,
		Taxes: &expense.TaxSchedule{
			Subtotal: decPtr("10"),
			Lines: []expense.TaxLine{
				{Type: expense.TaxISR, Kind: expense.KindWithheld, Amount: dec("100")},
			},
		},
	}

	entry, err := testEngine().Derive(e)
	require.NoError(t, err)
	assertBalanced(t, entry)
	assert.True(t, entry.TotalDebit.Equal(entry.TotalCredit),
		"correction should make totals match exactly, debit=%s credit=%s",
		entry.TotalDebit, entry.TotalCredit)
}

func TestDerive_Idempotent(t *testing.T) {
	g := testEngine()
	e := fuelExpense()

	first, err := g.Derive(e)
	require.NoError(t, err)
	second, err := g.Derive(e)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDerive_NilExpense(t *testing.T) {
	_, err := testEngine().Derive(nil)
	assert.ErrorIs(t, err, ErrNilExpense)
}

// Every line carries either a debit or a credit, never both.
func TestDerive_LinesAreSingleSided(t *testing.T) {
	e := fuelExpense()
	e.RawInvoiceStatus = "facturado"

	entry, err := testEngine().Derive(e)
	require.NoError(t, err)
	for i, l := range entry.Lines {
		bothSet := !l.Debit.IsZero() && !l.Credit.IsZero()
		assert.False(t, bothSet, "line %d has both debit %s and credit %s", i, l.Debit, l.Credit)
	}
}
