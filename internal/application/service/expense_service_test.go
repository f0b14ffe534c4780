package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contaflow/expense-engine/internal/domain/expense"
	"github.com/contaflow/expense-engine/internal/domain/status"
	"github.com/contaflow/expense-engine/internal/domain/workflow"
	"github.com/contaflow/expense-engine/internal/ledger"
	"github.com/contaflow/expense-engine/internal/matching"
	"github.com/contaflow/expense-engine/internal/ppd"
	"github.com/contaflow/expense-engine/internal/repository"
	"github.com/contaflow/expense-engine/pkg/database"
)

func newTestService(t *testing.T) (*ExpenseService, *repository.FeedbackRepository) {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).Run(context.Background(), repository.Migrations()))

	feedback := repository.NewFeedbackRepository(db, logger)
	policy := matching.NewPolicy(matching.DefaultThresholds(), feedback, logger)
	svc := NewExpenseService(
		repository.NewExpenseRepository(db, logger),
		ledger.NewEngine(nil),
		policy,
		logger,
		"Contaflow SA de CV",
		"MXN",
	)
	return svc, feedback
}

func captureExpense(t *testing.T, svc *ExpenseService, total string, invoiceExpected bool) *expense.Expense {
	t.Helper()
	e, err := svc.Capture(context.Background(), CaptureInput{
		Description:     "Papelería oficina",
		Total:           decimal.RequireFromString(total),
		Category:        "papeleria",
		InvoiceExpected: invoiceExpected,
	})
	require.NoError(t, err)
	return e
}

func TestCapture_StartsPendingInvoice(t *testing.T) {
	svc, _ := newTestService(t)

	e := captureExpense(t, svc, "1000", true)

	assert.Equal(t, workflow.StatePendingInvoice, e.State())
	assert.Equal(t, "MXN", e.Currency)
	assert.Equal(t, expense.SourceCompanyBank, e.Payment)

	got, err := svc.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("1000")))
}

func TestCapture_RejectsNegativeTotal(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Capture(context.Background(), CaptureInput{
		Description: "bad",
		Total:       decimal.RequireFromString("-1"),
	})
	assert.Error(t, err)
}

func TestRegisterInvoice_MovesToInvoiced(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	e := captureExpense(t, svc, "1000", true)

	rate := decimal.RequireFromString("0.16")
	updated, err := svc.RegisterInvoice(ctx, e.ID, InvoiceInput{
		RawStatus: "Facturado",
		Taxes: &expense.TaxSchedule{
			Lines: []expense.TaxLine{
				{Type: expense.TaxIVA, Kind: expense.KindTransferred, Rate: &rate, Amount: decimal.RequireFromString("137.93")},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.StateInvoiced, updated.State())
	require.NotNil(t, updated.Taxes)
	assert.Len(t, updated.Taxes.Lines, 1)
}

func TestCloseWithoutInvoice_IsTerminal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	e := captureExpense(t, svc, "250", true)

	closed, err := svc.CloseWithoutInvoice(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateClosedNoInvoice, closed.State())
	assert.True(t, closed.State().IsTerminal())
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJournal_BalancedForPendingExpense(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	e := captureExpense(t, svc, "1000", true)

	entry, err := svc.Journal(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, entry.TotalDebit.Equal(entry.TotalCredit))
	assert.True(t, entry.TotalDebit.Equal(decimal.RequireFromString("1000")))
}

func TestAcceptMatch_ReconcilesAndPersistsFeedback(t *testing.T) {
	svc, feedback := newTestService(t)
	ctx := context.Background()
	e := captureExpense(t, svc, "1000", true)
	_, err := svc.RegisterInvoice(ctx, e.ID, InvoiceInput{RawStatus: "facturado"})
	require.NoError(t, err)

	sug := matching.Suggestion{
		Confidence: 93,
		Reasons:    []string{"amount_exact", "date_close"},
		Movements: []expense.BankMovement{
			{ID: "mov-1", Description: "SPEI PAPELERIA", Amount: decimal.RequireFromString("1000")},
		},
	}

	reconciled, err := svc.AcceptMatch(ctx, e.ID, sug)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateReconciled, reconciled.State())
	assert.Equal(t, expense.ReconciliationAccepted, reconciled.ReconciliationSource)
	require.NotNil(t, reconciled.ReconciledAt)
	require.Len(t, reconciled.Movements, 1)
	assert.Equal(t, "mov-1", reconciled.Movements[0].ID)

	events, err := feedback.ListByExpense(ctx, e.ID.String())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, matching.DecisionAccepted, events[0].Decision)
	assert.Equal(t, "mov-1", events[0].MovementID)
}

func TestAcceptMatch_RejectedWhenNotInvoiced(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	e := captureExpense(t, svc, "1000", true)

	_, err := svc.AcceptMatch(ctx, e.ID, matching.Suggestion{
		Confidence: 95,
		Movements:  []expense.BankMovement{{ID: "mov-1", Amount: decimal.RequireFromString("1000")}},
	})
	assert.ErrorIs(t, err, ErrNotMatchable)
}

func TestAcceptMatch_RejectsMovementClaimedElsewhere(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	winner := captureExpense(t, svc, "500", true)
	_, err := svc.RegisterInvoice(ctx, winner.ID, InvoiceInput{RawStatus: "facturado"})
	require.NoError(t, err)
	_, err = svc.AcceptMatch(ctx, winner.ID, matching.Suggestion{
		Confidence: 91,
		Movements:  []expense.BankMovement{{ID: "mov-shared", Amount: decimal.RequireFromString("500")}},
	})
	require.NoError(t, err)

	// A direct accept on a second expense must not double-claim the
	// movement, even though it never went through suggestion consumption.
	other := captureExpense(t, svc, "500", true)
	_, err = svc.RegisterInvoice(ctx, other.ID, InvoiceInput{RawStatus: "facturado"})
	require.NoError(t, err)

	_, err = svc.AcceptMatch(ctx, other.ID, matching.Suggestion{
		Confidence: 95,
		Movements:  []expense.BankMovement{{ID: "mov-shared", Amount: decimal.RequireFromString("500")}},
	})
	assert.ErrorIs(t, err, ErrMovementClaimed)

	got, err := svc.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateInvoiced, got.State())
	assert.Empty(t, got.Movements)
}

func TestConsumeSuggestions_ExcludesMovementsClaimedElsewhere(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	winner := captureExpense(t, svc, "500", true)
	_, err := svc.RegisterInvoice(ctx, winner.ID, InvoiceInput{RawStatus: "facturado"})
	require.NoError(t, err)
	_, err = svc.AcceptMatch(ctx, winner.ID, matching.Suggestion{
		Confidence: 91,
		Movements:  []expense.BankMovement{{ID: "mov-shared", Amount: decimal.RequireFromString("500")}},
	})
	require.NoError(t, err)

	other := captureExpense(t, svc, "500", true)
	_, err = svc.RegisterInvoice(ctx, other.ID, InvoiceInput{RawStatus: "facturado"})
	require.NoError(t, err)

	got, err := svc.ConsumeSuggestions(ctx, other.ID, []matching.Suggestion{
		{Confidence: 88, Movements: []expense.BankMovement{{ID: "mov-shared", Amount: decimal.RequireFromString("500")}}},
		{Confidence: 80, Movements: []expense.BankMovement{{ID: "mov-free", Amount: decimal.RequireFromString("500")}}},
	})
	require.NoError(t, err)
	require.Equal(t, matching.ConsumptionSuggested, got.State)
	require.NotNil(t, got.Top)
	assert.Equal(t, "mov-free", got.Top.Movements[0].ID)
	assert.Equal(t, matching.BandMedium, got.Band)
}

func TestUnlink_MovesStateBackward(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	e := captureExpense(t, svc, "1000", true)
	_, err := svc.RegisterInvoice(ctx, e.ID, InvoiceInput{RawStatus: "facturado"})
	require.NoError(t, err)
	_, err = svc.AcceptMatch(ctx, e.ID, matching.Suggestion{
		Confidence: 92,
		Movements:  []expense.BankMovement{{ID: "mov-1", Amount: decimal.RequireFromString("1000")}},
	})
	require.NoError(t, err)

	unlinked, err := svc.Unlink(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateInvoiced, unlinked.State())
	assert.Equal(t, status.BankPending, unlinked.BankStatus())
	assert.Empty(t, unlinked.Movements)
	assert.Nil(t, unlinked.ReconciledAt)
}

func TestAddComplement_TracksProgress(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	e, err := svc.Capture(ctx, CaptureInput{
		Description:     "Renta maquinaria",
		Total:           decimal.RequireFromString("900"),
		InvoiceExpected: true,
		PPD:             true,
	})
	require.NoError(t, err)

	p1, err := svc.AddComplement(ctx, e.ID, ppd.Complement{Reference: "P-001", Amount: decimal.RequireFromString("300")})
	require.NoError(t, err)
	assert.True(t, p1.Remaining.Equal(decimal.RequireFromString("600")))

	p2, err := svc.AddComplement(ctx, e.ID, ppd.Complement{Reference: "P-002", Amount: decimal.RequireFromString("300")})
	require.NoError(t, err)
	assert.True(t, p2.Paid.Equal(decimal.RequireFromString("600")))
	assert.Equal(t, 3, p2.NextInstallment)

	progress, err := svc.PaymentProgress(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, progress.Remaining.Equal(decimal.RequireFromString("300")))
}

func TestAddComplement_RejectsNegativeAmount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	e := captureExpense(t, svc, "900", true)

	_, err := svc.AddComplement(ctx, e.ID, ppd.Complement{Amount: decimal.RequireFromString("-1")})
	assert.Error(t, err)
}

func TestAddComplement_RejectsNonDeferredExpense(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	e := captureExpense(t, svc, "900", true) // PPD not set

	_, err := svc.AddComplement(ctx, e.ID, ppd.Complement{Reference: "P-001", Amount: decimal.RequireFromString("300")})
	assert.ErrorIs(t, err, ErrNotDeferred)
}

// Registering the invoice with the PPD flag makes the expense accept
// complements even when capture did not mark it deferred.
func TestAddComplement_AfterInvoiceMarksPPD(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	e := captureExpense(t, svc, "900", true)

	_, err := svc.RegisterInvoice(ctx, e.ID, InvoiceInput{RawStatus: "facturado", PPD: true})
	require.NoError(t, err)

	p, err := svc.AddComplement(ctx, e.ID, ppd.Complement{Reference: "P-001", Amount: decimal.RequireFromString("300")})
	require.NoError(t, err)
	assert.True(t, p.Remaining.Equal(decimal.RequireFromString("600")))
}
