package matching

import (
	"github.com/google/uuid"

	"github.com/contaflow/expense-engine/internal/domain/expense"
	"github.com/contaflow/expense-engine/internal/domain/status"
)

// ClaimedSet maps a bank movement identifier to the expense that already
// claims it. A movement linked to one reconciled expense is excluded from
// every other expense's pool.
type ClaimedSet map[string]uuid.UUID

// BuildClaimedSet derives the claimed set from the whole expense collection.
// It is always rebuilt from scratch, never patched incrementally, so stale
// exclusions cannot survive collection changes. Combination links contribute
// all of their member movements.
func BuildClaimedSet(expenses []*expense.Expense) ClaimedSet {
	claimed := make(ClaimedSet)
	for _, e := range expenses {
		if e.BankStatus() != status.BankReconciled {
			continue
		}
		for _, m := range e.Movements {
			if _, taken := claimed[m.ID]; !taken {
				claimed[m.ID] = e.ID
			}
		}
	}
	return claimed
}

// Available reports whether the movement can still be offered to the given
// expense. A movement the expense itself claims stays available to it.
func (c ClaimedSet) Available(movementID string, forExpense uuid.UUID) bool {
	owner, taken := c[movementID]
	return !taken || owner == forExpense
}
