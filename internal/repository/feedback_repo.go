package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/contaflow/expense-engine/internal/matching"
	"github.com/contaflow/expense-engine/pkg/database"
)

// FeedbackRepository stores match-decision feedback events. It implements
// matching.FeedbackSink, so accepted/rejected decisions land here before the
// out-of-process forwarder picks them up.
type FeedbackRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewFeedbackRepository creates a new feedback repository
func NewFeedbackRepository(db *database.DB, logger *zap.Logger) *FeedbackRepository {
	return &FeedbackRepository{
		db:     db,
		logger: logger,
	}
}

// Publish appends one feedback event. Fire-and-forget from the caller's
// point of view: the caller only logs failures.
func (r *FeedbackRepository) Publish(ctx context.Context, event matching.FeedbackEvent) error {
	reasons, err := marshalNullable(event.Reasons)
	if err != nil {
		return err
	}
	metadata, err := marshalNullable(event.Metadata)
	if err != nil {
		return err
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO feedback_events (expense_id, movement_id, confidence, decision, reasons, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ExpenseID, event.MovementID, event.Confidence, string(event.Decision), reasons, metadata, ts)
	if err != nil {
		r.logger.Error("Failed to store feedback event",
			zap.String("expense_id", event.ExpenseID),
			zap.String("movement_id", event.MovementID),
			zap.Error(err))
		return fmt.Errorf("failed to store feedback event: %w", err)
	}
	return nil
}

// ListByExpense returns the stored feedback events for one expense, oldest
// first.
func (r *FeedbackRepository) ListByExpense(ctx context.Context, expenseID string) ([]matching.FeedbackEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT expense_id, movement_id, confidence, decision, reasons, metadata, created_at
		FROM feedback_events WHERE expense_id = ? ORDER BY id
	`, expenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback events: %w", err)
	}
	defer rows.Close()

	var events []matching.FeedbackEvent
	for rows.Next() {
		var ev matching.FeedbackEvent
		var decision string
		var reasons, metadata sql.NullString
		if err := rows.Scan(&ev.ExpenseID, &ev.MovementID, &ev.Confidence,
			&decision, &reasons, &metadata, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan feedback event: %w", err)
		}
		ev.Decision = matching.Decision(decision)
		if reasons.Valid && reasons.String != "" {
			if err := json.Unmarshal([]byte(reasons.String), &ev.Reasons); err != nil {
				return nil, fmt.Errorf("invalid feedback reasons: %w", err)
			}
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("invalid feedback metadata: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func marshalNullable(v interface{}) (sql.NullString, error) {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]interface{}:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal feedback field: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
