package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/contaflow/expense-engine/internal/domain/expense"
	"github.com/contaflow/expense-engine/internal/domain/status"
	"github.com/contaflow/expense-engine/internal/ppd"
	"github.com/contaflow/expense-engine/pkg/database"
)

// ErrVersionConflict is returned when an optimistic version check fails: the
// expense changed underneath the caller.
var ErrVersionConflict = errors.New("expense was modified concurrently")

// ExpenseRepository handles expense database operations
type ExpenseRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *database.DB, logger *zap.Logger) *ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

const expenseColumns = `id, description, total, currency, category, invoice_expected,
	payment_source, taxes, raw_invoice_status, raw_bank_status, reconciled_at,
	reconciliation_source, ppd, version, created_at, updated_at`

// Create inserts a new expense with its movement links and complements.
func (r *ExpenseRepository) Create(ctx context.Context, e *expense.Expense) error {
	taxes, err := marshalTaxes(e.Taxes)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Version == 0 {
		e.Version = 1
	}

	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO expenses (
				id, description, total, currency, category, invoice_expected,
				payment_source, taxes, raw_invoice_status, raw_bank_status,
				reconciled_at, reconciliation_source, ppd, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.ID.String(), e.Description, e.Total.String(), e.Currency, e.Category,
			e.InvoiceExpected, string(e.Payment), taxes, e.RawInvoiceStatus,
			e.RawBankStatus, e.ReconciledAt, e.ReconciliationSource, e.PPD,
			e.Version, e.CreatedAt, e.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create expense", zap.String("id", e.ID.String()), zap.Error(err))
			return fmt.Errorf("failed to create expense: %w", err)
		}

		if err := insertMovements(tx, e.ID, e.Movements); err != nil {
			return err
		}
		return insertComplements(tx, e.ID, e.Complements, 0)
	})
}

// GetByID retrieves one expense with its movements and complements. Returns
// nil without error when the expense does not exist.
func (r *ExpenseRepository) GetByID(ctx context.Context, id uuid.UUID) (*expense.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ?", id.String())

	e, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get expense", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	if err := r.loadChildren(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// List returns expenses ordered by creation time, newest first.
func (r *ExpenseRepository) List(ctx context.Context, limit, offset int) ([]*expense.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	return r.collect(ctx, rows)
}

// ListAll returns the full collection. The claimed-movement set is rebuilt
// from this, so it must reflect every expense, not a page.
func (r *ExpenseRepository) ListAll(ctx context.Context) ([]*expense.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses ORDER BY created_at, id")
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	return r.collect(ctx, rows)
}

// Update persists mutable expense fields under an optimistic version check.
// Movement links are not touched here; those go through ReplaceLinks.
func (r *ExpenseRepository) Update(ctx context.Context, e *expense.Expense) error {
	taxes, err := marshalTaxes(e.Taxes)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE expenses SET
			description = ?, total = ?, currency = ?, category = ?,
			invoice_expected = ?, payment_source = ?, taxes = ?,
			raw_invoice_status = ?, raw_bank_status = ?, ppd = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`,
		e.Description, e.Total.String(), e.Currency, e.Category,
		e.InvoiceExpected, string(e.Payment), taxes,
		e.RawInvoiceStatus, e.RawBankStatus, e.PPD,
		time.Now().UTC(), e.ID.String(), e.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update expense", zap.String("id", e.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to update expense: %w", err)
	}
	return r.checkVersion(result, e.ID)
}

// ReplaceLinks atomically replaces the linked movements and the bank status
// of an expense. This is the single mutation the matching policy emits;
// unlinking is the same call with no movements.
func (r *ExpenseRepository) ReplaceLinks(
	ctx context.Context,
	id uuid.UUID,
	movements []expense.BankMovement,
	bankStatus status.BankStatus,
	reconciledAt *time.Time,
	source string,
	expectedVersion int64,
) error {
	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE expenses SET
				raw_bank_status = ?, reconciled_at = ?, reconciliation_source = ?,
				version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`,
			string(bankStatus), reconciledAt, source,
			time.Now().UTC(), id.String(), expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("failed to update expense links: %w", err)
		}
		if err := r.checkVersion(result, id); err != nil {
			return err
		}

		if _, err := tx.Exec("DELETE FROM bank_movements WHERE expense_id = ?", id.String()); err != nil {
			return fmt.Errorf("failed to clear movement links: %w", err)
		}
		return insertMovements(tx, id, movements)
	})
}

// AppendComplement records one more partial payment for a PPD expense.
func (r *ExpenseRepository) AppendComplement(ctx context.Context, id uuid.UUID, c ppd.Complement) error {
	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		var next int
		err := tx.QueryRow(
			"SELECT COALESCE(MAX(seq), 0) + 1 FROM payment_complements WHERE expense_id = ?",
			id.String()).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to compute complement sequence: %w", err)
		}

		_, err = tx.Exec(`
			INSERT INTO payment_complements (expense_id, seq, paid_at, reference, amount, balance)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id.String(), next, c.Date, c.Reference, c.Amount.String(), c.Balance.String())
		if err != nil {
			return fmt.Errorf("failed to append complement: %w", err)
		}
		return nil
	})
}

func (r *ExpenseRepository) checkVersion(result sql.Result, id uuid.UUID) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		r.logger.Warn("Optimistic version check failed", zap.String("id", id.String()))
		return ErrVersionConflict
	}
	return nil
}

func (r *ExpenseRepository) collect(ctx context.Context, rows *sql.Rows) ([]*expense.Expense, error) {
	var expenses []*expense.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, e := range expenses {
		if err := r.loadChildren(ctx, e); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

func (r *ExpenseRepository) loadChildren(ctx context.Context, e *expense.Expense) error {
	movements, err := r.loadMovements(ctx, e.ID)
	if err != nil {
		return err
	}
	e.Movements = movements

	complements, err := r.loadComplements(ctx, e.ID)
	if err != nil {
		return err
	}
	e.Complements = complements
	return nil
}

func (r *ExpenseRepository) loadMovements(ctx context.Context, id uuid.UUID) ([]expense.BankMovement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT movement_id, movement_date, description, amount, group_id
		FROM bank_movements WHERE expense_id = ? ORDER BY position
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load movements: %w", err)
	}
	defer rows.Close()

	var movements []expense.BankMovement
	for rows.Next() {
		var m expense.BankMovement
		var date sql.NullTime
		var amount string
		if err := rows.Scan(&m.ID, &date, &m.Description, &amount, &m.GroupID); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		if date.Valid {
			m.Date = date.Time
		}
		if m.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid movement amount %q: %w", amount, err)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *ExpenseRepository) loadComplements(ctx context.Context, id uuid.UUID) ([]ppd.Complement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT paid_at, reference, amount, balance
		FROM payment_complements WHERE expense_id = ? ORDER BY seq
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load complements: %w", err)
	}
	defer rows.Close()

	var complements []ppd.Complement
	for rows.Next() {
		var c ppd.Complement
		var paidAt sql.NullTime
		var amount, balance string
		if err := rows.Scan(&paidAt, &c.Reference, &amount, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan complement: %w", err)
		}
		if paidAt.Valid {
			c.Date = paidAt.Time
		}
		if c.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid complement amount %q: %w", amount, err)
		}
		if c.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("invalid complement balance %q: %w", balance, err)
		}
		complements = append(complements, c)
	}
	return complements, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(row rowScanner) (*expense.Expense, error) {
	var e expense.Expense
	var id, total, payment string
	var taxes sql.NullString
	var reconciledAt sql.NullTime

	err := row.Scan(
		&id, &e.Description, &total, &e.Currency, &e.Category, &e.InvoiceExpected,
		&payment, &taxes, &e.RawInvoiceStatus, &e.RawBankStatus, &reconciledAt,
		&e.ReconciliationSource, &e.PPD, &e.Version, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid expense id %q: %w", id, err)
	}
	if e.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("invalid expense total %q: %w", total, err)
	}
	e.Payment = expense.PaymentSource(payment)
	if reconciledAt.Valid {
		e.ReconciledAt = &reconciledAt.Time
	}
	if taxes.Valid && taxes.String != "" {
		var schedule expense.TaxSchedule
		if err := json.Unmarshal([]byte(taxes.String), &schedule); err != nil {
			return nil, fmt.Errorf("invalid tax schedule: %w", err)
		}
		e.Taxes = &schedule
	}
	return &e, nil
}

func marshalTaxes(s *expense.TaxSchedule) (sql.NullString, error) {
	if s == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal tax schedule: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func insertMovements(tx *sql.Tx, id uuid.UUID, movements []expense.BankMovement) error {
	for i, m := range movements {
		_, err := tx.Exec(`
			INSERT INTO bank_movements (movement_id, expense_id, movement_date, description, amount, group_id, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, m.ID, id.String(), m.Date, m.Description, m.Amount.String(), m.GroupID, i)
		if err != nil {
			return fmt.Errorf("failed to insert movement link: %w", err)
		}
	}
	return nil
}

func insertComplements(tx *sql.Tx, id uuid.UUID, complements []ppd.Complement, fromSeq int) error {
	for i, c := range complements {
		_, err := tx.Exec(`
			INSERT INTO payment_complements (expense_id, seq, paid_at, reference, amount, balance)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id.String(), fromSeq+i+1, c.Date, c.Reference, c.Amount.String(), c.Balance.String())
		if err != nil {
			return fmt.Errorf("failed to insert complement: %w", err)
		}
	}
	return nil
}
