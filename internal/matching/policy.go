package matching

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/contaflow/expense-engine/internal/domain/expense"
	"github.com/contaflow/expense-engine/internal/domain/status"
	"github.com/contaflow/expense-engine/internal/domain/workflow"
)

// ConsumptionState is the UI-visible acceptance state for an expense's
// suggestion list.
type ConsumptionState string

const (
	// ConsumptionNone means no eligible suggestion remains.
	ConsumptionNone ConsumptionState = "NONE"
	// ConsumptionSuggested means the top suggestion is awaiting a decision.
	ConsumptionSuggested ConsumptionState = "SUGGESTED"
	// ConsumptionAccepted means the expense is already reconciled.
	ConsumptionAccepted ConsumptionState = "ACCEPTED"
)

// Consumption is the result of consuming a ranked suggestion list.
type Consumption struct {
	Top   *Suggestion      `json:"top,omitempty"`
	Band  Band             `json:"band,omitempty"`
	State ConsumptionState `json:"state"`
}

// LinkUpdate is the single atomic mutation the policy emits: replace the
// linked movements and the bank status together. The caller applies it under
// its own concurrency control (optimistic version checks in the repository).
type LinkUpdate struct {
	Movements    []expense.BankMovement
	BankStatus   status.BankStatus
	ReconciledAt *time.Time
	Source       string
	ClaimedTotal decimal.Decimal
}

// ApplyTo writes the update onto the expense as one replacement, never a
// partial patch.
func (u LinkUpdate) ApplyTo(e *expense.Expense) {
	e.Movements = u.Movements
	e.RawBankStatus = string(u.BankStatus)
	e.ReconciledAt = u.ReconciledAt
	e.ReconciliationSource = u.Source
}

// Policy decides which suggestions are presentable and turns decisions into
// link updates and feedback events.
type Policy struct {
	thresholds Thresholds
	sink       FeedbackSink
	logger     *zap.Logger
	now        func() time.Time

	// One policy instance is shared by every request goroutine, so the
	// claimed and dismissed maps need their own lock.
	mu        sync.RWMutex
	claimed   ClaimedSet
	dismissed map[string]bool
}

// NewPolicy creates a match consumption policy. The sink may be nil when no
// feedback channel is configured.
func NewPolicy(thresholds Thresholds, sink FeedbackSink, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{
		thresholds: thresholds,
		sink:       sink,
		logger:     logger,
		claimed:    make(ClaimedSet),
		dismissed:  make(map[string]bool),
		now:        time.Now,
	}
}

// SetClaimed replaces the claimed-movement set. The caller rebuilds it with
// BuildClaimedSet whenever the expense collection changes.
func (p *Policy) SetClaimed(claimed ClaimedSet) {
	if claimed == nil {
		claimed = make(ClaimedSet)
	}
	p.mu.Lock()
	p.claimed = claimed
	p.mu.Unlock()
}

// Consume filters the ranked suggestions for the expense and returns the top
// eligible one with its presentation band. Only an invoiced expense that is
// not yet reconciled is matchable.
func (p *Policy) Consume(e *expense.Expense, ranked []Suggestion) Consumption {
	switch e.State() {
	case workflow.StateReconciled:
		return Consumption{State: ConsumptionAccepted}
	case workflow.StateInvoiced:
		// Matchable.
	default:
		return Consumption{State: ConsumptionNone}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for i := range ranked {
		s := ranked[i]
		if p.dismissed[dismissKey(e, s)] || !p.available(e, s) {
			continue
		}
		return Consumption{
			Top:   &s,
			Band:  p.thresholds.Band(s.Confidence),
			State: ConsumptionSuggested,
		}
	}
	return Consumption{State: ConsumptionNone}
}

// Claimable reports whether every movement in the suggestion is unclaimed or
// already owned by this expense.
func (p *Policy) Claimable(e *expense.Expense, s Suggestion) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.available(e, s)
}

// available requires p.mu to be held.
func (p *Policy) available(e *expense.Expense, s Suggestion) bool {
	if len(s.Movements) == 0 {
		return false
	}
	for _, m := range s.Movements {
		if !p.claimed.Available(m.ID, e.ID) {
			return false
		}
	}
	return true
}

// Accept links the expense to the suggestion's movements. The returned
// LinkUpdate reconciles the bank axis, stamps the timestamp and records
// "accepted" provenance plus the claimed total for split-payment review.
// Feedback publishing is optimistic: a sink failure is logged, never rolled
// back.
func (p *Policy) Accept(ctx context.Context, e *expense.Expense, s Suggestion) LinkUpdate {
	now := p.now()
	update := LinkUpdate{
		Movements:    s.Movements,
		BankStatus:   status.BankReconciled,
		ReconciledAt: &now,
		Source:       expense.ReconciliationAccepted,
		ClaimedTotal: s.Total(),
	}
	p.publish(ctx, e, s, DecisionAccepted)
	return update
}

// Link builds a manual link update from hand-picked movements.
func (p *Policy) Link(e *expense.Expense, movements []expense.BankMovement) LinkUpdate {
	if len(movements) == 0 {
		return p.Unlink(e)
	}
	now := p.now()
	total := decimal.Zero
	for _, m := range movements {
		total = total.Add(m.Amount)
	}
	return LinkUpdate{
		Movements:    movements,
		BankStatus:   status.BankReconciled,
		ReconciledAt: &now,
		Source:       expense.ReconciliationManual,
		ClaimedTotal: total,
	}
}

// Unlink reverts the expense to its pre-reconciliation bank status. This is
// the one place the workflow moves backward: the bank axis is re-derived
// from the invoice axis instead of cached.
func (p *Policy) Unlink(e *expense.Expense) LinkUpdate {
	derived := status.NormalizeBank("", e.InvoiceStatus(), false)
	return LinkUpdate{
		Movements:    nil,
		BankStatus:   derived,
		ReconciledAt: nil,
		Source:       "",
		ClaimedTotal: decimal.Zero,
	}
}

// Reject dismisses the suggestion and reports the decision. The expense's
// linkage is not touched.
func (p *Policy) Reject(ctx context.Context, e *expense.Expense, s Suggestion) {
	p.mu.Lock()
	p.dismissed[dismissKey(e, s)] = true
	p.mu.Unlock()
	p.publish(ctx, e, s, DecisionRejected)
}

func (p *Policy) publish(ctx context.Context, e *expense.Expense, s Suggestion, decision Decision) {
	if p.sink == nil {
		return
	}
	for _, m := range s.Movements {
		event := FeedbackEvent{
			ExpenseID:  e.ID.String(),
			MovementID: m.ID,
			Confidence: s.Confidence,
			Decision:   decision,
			Reasons:    s.Reasons,
			Timestamp:  p.now(),
		}
		if s.SplitPayment || s.GroupID != "" {
			event.Metadata = map[string]interface{}{
				"split_payment": s.SplitPayment,
				"group_id":      s.GroupID,
			}
		}
		if err := p.sink.Publish(ctx, event); err != nil {
			// Eventually consistent: the local decision stands.
			p.logger.Error("Failed to publish match feedback",
				zap.String("expense_id", e.ID.String()),
				zap.String("movement_id", m.ID),
				zap.String("decision", string(decision)),
				zap.Error(err))
		}
	}
}

func dismissKey(e *expense.Expense, s Suggestion) string {
	return e.ID.String() + "|" + s.Key()
}
