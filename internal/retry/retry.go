// Package retry decides when a queued message is eligible for another
// delivery attempt.
package retry

import (
	"time"

	"github.com/Chronic700/Agent-Connect/internal/backoff"
	"github.com/Chronic700/Agent-Connect/internal/models"
)

const DefaultMaxRetries = 5

// DefaultLadder spaces attempts at 1m, 5m, 15m, 1h, 6h.
var DefaultLadder = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
	6 * time.Hour,
}

// Policy pairs a retry ceiling with a backoff curve.
type Policy struct {
	MaxRetries int
	Backoff    backoff.Backoff
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		Backoff:    &backoff.ScheduledBackoff{Schedule: DefaultLadder},
	}
}

// Exhausted reports whether the message has used up its retry budget.
func (p Policy) Exhausted(msg models.Message) bool {
	return msg.RetryCount >= p.MaxRetries
}

// IsDue reports whether the message should be attempted now. A message that
// has never failed is always due. After n failures the next attempt waits
// the ladder's nth interval, measured from the last attempt.
func (p Policy) IsDue(msg models.Message, now time.Time) bool {
	if msg.RetryCount == 0 {
		return true
	}
	wait := p.Backoff.Duration(msg.RetryCount - 1)
	return !now.Before(msg.AttemptBase().Add(wait))
}

// NextAttemptAt returns when the message becomes due. Messages with no
// failed attempts are due immediately.
func (p Policy) NextAttemptAt(msg models.Message) time.Time {
	if msg.RetryCount == 0 {
		return msg.AttemptBase()
	}
	return msg.AttemptBase().Add(p.Backoff.Duration(msg.RetryCount - 1))
}
