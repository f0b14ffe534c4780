// Package matching consumes ranked bank-matching suggestions produced by the
// external scoring service. It never computes scores itself: it decides what
// is presentable, applies accept/unlink as one atomic link replacement, and
// reports decisions back so the scorer can learn.
package matching

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/contaflow/expense-engine/internal/domain/expense"
)

// Suggestion is one ranked match candidate: a single bank movement or an
// ordered combination whose amounts sum to (approximately) the expense total.
type Suggestion struct {
	Confidence     float64                `json:"confidence"`
	Reasons        []string               `json:"reasons,omitempty"`
	Movements      []expense.BankMovement `json:"movements"`
	CombinedAmount decimal.Decimal        `json:"combined_amount"`
	SplitPayment   bool                   `json:"split_payment,omitempty"`
	GroupID        string                 `json:"group_id,omitempty"`
}

// Key identifies the suggestion for dismissal bookkeeping: the linked-group
// identifier when the scorer assigned one, else the member movement IDs.
func (s Suggestion) Key() string {
	if s.GroupID != "" {
		return s.GroupID
	}
	ids := make([]string, len(s.Movements))
	for i, m := range s.Movements {
		ids[i] = m.ID
	}
	return strings.Join(ids, "+")
}

// Total sums the member movement amounts, preferring the scorer-provided
// combined amount when present.
func (s Suggestion) Total() decimal.Decimal {
	if !s.CombinedAmount.IsZero() {
		return s.CombinedAmount
	}
	total := decimal.Zero
	for _, m := range s.Movements {
		total = total.Add(m.Amount)
	}
	return total
}

// Band is the presentation bucket of a confidence score.
type Band string

const (
	BandHigh   Band = "HIGH"
	BandMedium Band = "MEDIUM"
	BandLow    Band = "LOW"
)

// Thresholds holds the confidence boundaries for presentation banding.
// Not a correctness invariant; the UI uses it for emphasis only.
type Thresholds struct {
	High   float64
	Medium float64
}

// DefaultThresholds returns the standard presentation bands.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 90, Medium: 75}
}

// Band buckets a confidence score.
func (t Thresholds) Band(confidence float64) Band {
	switch {
	case confidence >= t.High:
		return BandHigh
	case confidence >= t.Medium:
		return BandMedium
	default:
		return BandLow
	}
}
