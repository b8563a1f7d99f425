package retry_test

import (
	"testing"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/models"
	"github.com/Chronic700/Agent-Connect/internal/retry"
	"github.com/stretchr/testify/assert"
)

func queuedAt(created time.Time, retryCount int, lastAttempt *time.Time) models.Message {
	return models.Message{
		ID:            "msg_retrytest",
		Status:        models.MessageStatusQueued,
		RetryCount:    retryCount,
		CreatedAt:     created,
		LastAttemptAt: lastAttempt,
	}
}

func TestExhausted(t *testing.T) {
	t.Parallel()

	p := retry.DefaultPolicy()
	now := time.Now().UTC()

	assert.False(t, p.Exhausted(queuedAt(now, 0, nil)))
	assert.False(t, p.Exhausted(queuedAt(now, 4, &now)))
	assert.True(t, p.Exhausted(queuedAt(now, 5, &now)))
	assert.True(t, p.Exhausted(queuedAt(now, 6, &now)))
}

func TestIsDueFreshMessage(t *testing.T) {
	t.Parallel()

	p := retry.DefaultPolicy()
	created := time.Now().UTC()

	// Never-attempted messages are due immediately, even at creation time.
	assert.True(t, p.IsDue(queuedAt(created, 0, nil), created))
}

func TestIsDueLadder(t *testing.T) {
	t.Parallel()

	p := retry.DefaultPolicy()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		retryCount int
		elapsed    time.Duration
		want       bool
	}{
		{"first retry too early", 1, 59 * time.Second, false},
		{"first retry at boundary", 1, 60 * time.Second, true},
		{"second retry too early", 2, 4 * time.Minute, false},
		{"second retry due", 2, 5 * time.Minute, true},
		{"third retry due", 3, 15 * time.Minute, true},
		{"fourth retry too early", 4, 59 * time.Minute, false},
		{"fourth retry due", 4, time.Hour, true},
		{"fifth retry due", 5, 6 * time.Hour, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			attempt := base
			msg := queuedAt(base.Add(-time.Hour), tc.retryCount, &attempt)
			assert.Equal(t, tc.want, p.IsDue(msg, base.Add(tc.elapsed)))
		})
	}
}

func TestIsDueFallsBackToCreatedAt(t *testing.T) {
	t.Parallel()

	p := retry.DefaultPolicy()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// A retried message whose attempt stamp was cleared measures the wait
	// from creation instead.
	msg := queuedAt(created, 1, nil)
	assert.False(t, p.IsDue(msg, created.Add(30*time.Second)))
	assert.True(t, p.IsDue(msg, created.Add(time.Minute)))
}

func TestNextAttemptAt(t *testing.T) {
	t.Parallel()

	p := retry.DefaultPolicy()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	attempt := created.Add(10 * time.Minute)

	assert.Equal(t, created, p.NextAttemptAt(queuedAt(created, 0, nil)))
	assert.Equal(t, attempt.Add(time.Minute), p.NextAttemptAt(queuedAt(created, 1, &attempt)))
	assert.Equal(t, attempt.Add(6*time.Hour), p.NextAttemptAt(queuedAt(created, 5, &attempt)))
}
