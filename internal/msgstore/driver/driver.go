// Package driver defines the MessageStore interface and associated types.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/models"
)

var (
	ErrMessageNotFound  = errors.New("message does not exist")
	ErrDuplicateMessage = errors.New("message already exists")
)

// MessageStore is the durable queue shared by the API and delivery workers.
//
// The transition methods are conditional: they only apply while the message
// is still queued AND its retry_count matches what the caller observed when
// it loaded the message. They return applied=false when a concurrent worker
// advanced the message first; the losing caller discards its result. This is
// the only coordination mechanism between delivery workers.
type MessageStore interface {
	Init(ctx context.Context) error

	// Insert durably persists a new queued message.
	Insert(ctx context.Context, msg models.Message) error

	Retrieve(ctx context.Context, id string) (*models.Message, error)

	// ListQueued returns every queued message in stable (created_at, id) order.
	ListQueued(ctx context.Context) ([]models.Message, error)

	// ListQueuedFor narrows ListQueued to a single recipient.
	ListQueuedFor(ctx context.Context, toAgent string) ([]models.Message, error)

	// MarkDelivered transitions queued -> delivered, stamping both
	// last_attempt_at and delivered_at and clearing any recorded error.
	MarkDelivered(ctx context.Context, id string, observedRetryCount int, at time.Time) (bool, error)

	// MarkFailed transitions queued -> failed with a definitive reason.
	// attemptAt stamps last_attempt_at when the failure was produced by an
	// actual HTTP attempt (terminal rejection); pass nil when no attempt was
	// made (missing recipient, exhausted budget found during a scan).
	MarkFailed(ctx context.Context, id string, observedRetryCount int, reason string, attemptAt *time.Time) (bool, error)

	// RecordTransientFailure bumps retry_count, stamps last_attempt_at, and
	// records the error. With final=true it also transitions to failed (the
	// bumped count reached the retry budget).
	RecordTransientFailure(ctx context.Context, id string, observedRetryCount int, reason string, at time.Time, final bool) (bool, error)

	// ResetAttemptTime clears last_attempt_at on a queued message so the
	// presence fast path can attempt it immediately. retry_count is preserved.
	ResetAttemptTime(ctx context.Context, id string) (bool, error)
}
