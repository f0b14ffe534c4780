// Package service orchestrates the expense lifecycle: capture,
// normalization, ledger derivation, PPD tracking and match consumption, on
// top of the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/contaflow/expense-engine/internal/domain/expense"
	"github.com/contaflow/expense-engine/internal/domain/workflow"
	"github.com/contaflow/expense-engine/internal/ledger"
	"github.com/contaflow/expense-engine/internal/matching"
	"github.com/contaflow/expense-engine/internal/ppd"
	"github.com/contaflow/expense-engine/internal/repository"
	"github.com/contaflow/expense-engine/pkg/utils"
)

// ErrNotFound is returned when the referenced expense does not exist.
var ErrNotFound = errors.New("expense not found")

// ErrNotMatchable is returned when a match operation targets an expense that
// is not in a matchable state.
var ErrNotMatchable = errors.New("expense is not ready for bank matching")

// ErrMovementClaimed is returned when a suggested movement is already linked
// to another reconciled expense.
var ErrMovementClaimed = errors.New("movement is already claimed by another expense")

// ErrNotDeferred is returned when a payment complement targets an expense
// that is not under deferred payment.
var ErrNotDeferred = errors.New("expense is not under deferred payment")

// CaptureInput carries the fields of a newly captured expense.
type CaptureInput struct {
	Description     string
	Total           decimal.Decimal
	Currency        string
	Category        string
	InvoiceExpected bool
	Payment         expense.PaymentSource
	PPD             bool
}

// InvoiceInput carries the data registered when a CFDI arrives.
type InvoiceInput struct {
	RawStatus string
	Taxes     *expense.TaxSchedule
	PPD       bool
}

// ExpenseService is the application-facing API over the expense core.
type ExpenseService struct {
	repo     *repository.ExpenseRepository
	engine   *ledger.Engine
	policy   *matching.Policy
	logger   *zap.Logger
	tenant   string
	currency string

	// Serializes link mutations so two concurrent accepts on the same
	// expense cannot both win; the repository's version check backs this
	// up across processes.
	linkMu sync.Mutex
}

// NewExpenseService creates the expense service. The tenant (active company)
// is an explicit parameter, never ambient state.
func NewExpenseService(
	repo *repository.ExpenseRepository,
	engine *ledger.Engine,
	policy *matching.Policy,
	logger *zap.Logger,
	tenant string,
	defaultCurrency string,
) *ExpenseService {
	if defaultCurrency == "" {
		defaultCurrency = "MXN"
	}
	return &ExpenseService{
		repo:     repo,
		engine:   engine,
		policy:   policy,
		logger:   logger,
		tenant:   tenant,
		currency: defaultCurrency,
	}
}

// Capture creates a new expense from voice, OCR or manual input.
func (s *ExpenseService) Capture(ctx context.Context, in CaptureInput) (*expense.Expense, error) {
	e := &expense.Expense{
		ID:              uuid.New(),
		Description:     utils.SanitizeString(in.Description),
		Total:           in.Total,
		Currency:        strings.ToUpper(strings.TrimSpace(in.Currency)),
		Category:        in.Category,
		InvoiceExpected: in.InvoiceExpected,
		Payment:         in.Payment,
		PPD:             in.PPD,
	}
	if e.Currency == "" {
		e.Currency = s.currency
	}
	if e.Payment == "" {
		e.Payment = expense.SourceCompanyBank
	}
	if err := utils.ValidateCurrency(e.Currency); err != nil {
		return nil, err
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	s.logger.Info("Expense captured",
		zap.String("tenant", s.tenant),
		zap.String("id", e.ID.String()),
		zap.String("total", e.Total.String()),
		zap.String("state", e.State().String()))
	return e, nil
}

// Get returns one expense.
func (s *ExpenseService) Get(ctx context.Context, id uuid.UUID) (*expense.Expense, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	return e, nil
}

// List returns a page of expenses.
func (s *ExpenseService) List(ctx context.Context, limit, offset int) ([]*expense.Expense, error) {
	return s.repo.List(ctx, limit, offset)
}

// RegisterInvoice records the arrival of the CFDI: raw status, tax schedule
// and the deferred-payment flag.
func (s *ExpenseService) RegisterInvoice(ctx context.Context, id uuid.UUID, in InvoiceInput) (*expense.Expense, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	e.RawInvoiceStatus = in.RawStatus
	if e.RawInvoiceStatus == "" {
		e.RawInvoiceStatus = "facturado"
	}
	e.Taxes = in.Taxes
	if in.PPD {
		e.PPD = true
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}

	s.logger.Info("Invoice registered",
		zap.String("id", e.ID.String()),
		zap.String("state", e.State().String()))
	return s.Get(ctx, id)
}

// CloseWithoutInvoice marks the expense as never expecting a CFDI, moving it
// to its terminal state.
func (s *ExpenseService) CloseWithoutInvoice(ctx context.Context, id uuid.UUID) (*expense.Expense, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	e.InvoiceExpected = false
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}

	s.logger.Info("Expense closed without invoice", zap.String("id", e.ID.String()))
	return s.Get(ctx, id)
}

// Journal derives the balanced journal entry for the expense at its current
// lifecycle state.
func (s *ExpenseService) Journal(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.engine.Derive(e)
}

// PaymentProgress computes PPD progress for the expense.
func (s *ExpenseService) PaymentProgress(ctx context.Context, id uuid.UUID) (ppd.Progress, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return ppd.Progress{}, err
	}
	return e.PaymentProgress(), nil
}

// AddComplement appends one partial payment to a PPD expense and returns the
// recomputed progress.
func (s *ExpenseService) AddComplement(ctx context.Context, id uuid.UUID, c ppd.Complement) (ppd.Progress, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return ppd.Progress{}, err
	}
	if c.Amount.IsNegative() {
		return ppd.Progress{}, fmt.Errorf("complement amount must be non-negative, got %s", c.Amount)
	}
	if !e.PPD {
		return ppd.Progress{}, ErrNotDeferred
	}

	// Stamp the resulting balance so the stored complement is
	// self-describing.
	progress := ppd.ComputeProgress(e.Total, append(e.Complements, c))
	c.Balance = progress.Remaining

	if err := s.repo.AppendComplement(ctx, id, c); err != nil {
		return ppd.Progress{}, err
	}
	return progress, nil
}

// ConsumeSuggestions filters a ranked suggestion list for the expense. The
// claimed-movement set is rebuilt from the whole collection on every call so
// exclusions are never stale.
func (s *ExpenseService) ConsumeSuggestions(ctx context.Context, id uuid.UUID, ranked []matching.Suggestion) (matching.Consumption, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return matching.Consumption{}, err
	}

	if err := s.refreshClaimed(ctx); err != nil {
		return matching.Consumption{}, err
	}
	return s.policy.Consume(e, ranked), nil
}

// AcceptMatch links the expense to the suggestion's movements as one atomic
// replacement.
func (s *ExpenseService) AcceptMatch(ctx context.Context, id uuid.UUID, sug matching.Suggestion) (*expense.Expense, error) {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.State() != workflow.StateInvoiced {
		return nil, ErrNotMatchable
	}
	if len(sug.Movements) == 0 {
		return nil, ErrNotMatchable
	}

	// A direct accept bypasses Consume, so re-check the claimed set here
	// before linking.
	if err := s.refreshClaimed(ctx); err != nil {
		return nil, err
	}
	if !s.policy.Claimable(e, sug) {
		return nil, ErrMovementClaimed
	}

	update := s.policy.Accept(ctx, e, sug)
	return s.applyLinkUpdate(ctx, e, update)
}

// LinkManual links hand-picked movements to the expense.
func (s *ExpenseService) LinkManual(ctx context.Context, id uuid.UUID, movements []expense.BankMovement) (*expense.Expense, error) {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(movements) > 0 && e.State() != workflow.StateInvoiced {
		return nil, ErrNotMatchable
	}

	update := s.policy.Link(e, movements)
	return s.applyLinkUpdate(ctx, e, update)
}

// RejectMatch dismisses a suggestion and reports the decision upstream. The
// expense itself is untouched.
func (s *ExpenseService) RejectMatch(ctx context.Context, id uuid.UUID, sug matching.Suggestion) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	s.policy.Reject(ctx, e, sug)
	return nil
}

// Unlink removes all movement links, moving the workflow state backward by
// re-deriving the bank axis.
func (s *ExpenseService) Unlink(ctx context.Context, id uuid.UUID) (*expense.Expense, error) {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	update := s.policy.Unlink(e)
	return s.applyLinkUpdate(ctx, e, update)
}

func (s *ExpenseService) applyLinkUpdate(ctx context.Context, e *expense.Expense, update matching.LinkUpdate) (*expense.Expense, error) {
	err := s.repo.ReplaceLinks(ctx, e.ID,
		update.Movements, update.BankStatus, update.ReconciledAt, update.Source, e.Version)
	if err != nil {
		return nil, err
	}

	if err := s.refreshClaimed(ctx); err != nil {
		// The link change is committed; a stale claimed set only lasts
		// until the next consumption.
		s.logger.Warn("Failed to refresh claimed movements", zap.Error(err))
	}

	s.logger.Info("Expense links replaced",
		zap.String("id", e.ID.String()),
		zap.Int("movements", len(update.Movements)),
		zap.String("bank_status", string(update.BankStatus)),
		zap.String("source", update.Source),
		zap.String("claimed_total", update.ClaimedTotal.String()))
	return s.Get(ctx, e.ID)
}

func (s *ExpenseService) refreshClaimed(ctx context.Context) error {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return err
	}
	s.policy.SetClaimed(matching.BuildClaimedSet(all))
	return nil
}
