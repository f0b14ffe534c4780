package matching

import (
	"context"
	"time"
)

// Decision is the user's verdict on a suggestion, reported to the scorer.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// FeedbackEvent is the fire-and-forget record sent to the feedback sink for
// every decision. The scorer uses it to learn; this core only needs
// success/failure for logging.
type FeedbackEvent struct {
	ExpenseID  string                 `json:"expense_id"`
	MovementID string                 `json:"movement_id"`
	Confidence float64                `json:"confidence"`
	Decision   Decision               `json:"decision"`
	Reasons    []string               `json:"reasons,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// FeedbackSink receives decision events. Implementations may persist them or
// forward them upstream; a Publish failure never rolls back the local state
// change that triggered it.
type FeedbackSink interface {
	Publish(ctx context.Context, event FeedbackEvent) error
}
