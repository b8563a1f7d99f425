// Package delivery runs the relay's delivery loop: it scans the queue on an
// interval, attempts due messages against recipient webhooks, and applies
// retry bookkeeping. Presence events short-circuit the wait for agents that
// just came online.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/agentstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/dispatch"
	"github.com/Chronic700/Agent-Connect/internal/logging"
	"github.com/Chronic700/Agent-Connect/internal/models"
	msgdriver "github.com/Chronic700/Agent-Connect/internal/msgstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/presence"
	"github.com/Chronic700/Agent-Connect/internal/retry"
	"github.com/Chronic700/Agent-Connect/internal/worker"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 5 * time.Second

	// reasonExhausted is recorded when a message runs out of retries
	// without a reason from its last attempt.
	reasonExhausted = "max delivery attempts exceeded"

	reasonNoRecipient = "recipient not found"
)

// Worker is the delivery loop. Multiple instances may run against the same
// store; conditional updates ensure each attempt's outcome is applied at
// most once.
type Worker struct {
	messages     msgdriver.MessageStore
	agents       driver.AgentStore
	dispatcher   *dispatch.Dispatcher
	policy       retry.Policy
	logger       *logging.Logger
	pollInterval time.Duration
	events       <-chan presence.StatusEvent
	now          func() time.Time
}

type Option func(*Worker)

// WithPollInterval sets how often the queue is scanned.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		w.pollInterval = interval
	}
}

// WithPresenceEvents feeds agent status transitions into the loop. When an
// agent comes online its backlog is flushed without waiting for the next
// scan. Nil disables the fast path.
func WithPresenceEvents(events <-chan presence.StatusEvent) Option {
	return func(w *Worker) {
		w.events = events
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

func New(messages msgdriver.MessageStore, agents driver.AgentStore, dispatcher *dispatch.Dispatcher, policy retry.Policy, logger *logging.Logger, opts ...Option) *Worker {
	w := &Worker{
		messages:     messages,
		agents:       agents,
		dispatcher:   dispatcher,
		policy:       policy,
		logger:       logger,
		pollInterval: defaultPollInterval,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Name() string {
	return "delivery"
}

// Run scans immediately, then on every poll interval, until ctx is
// canceled. Presence events trigger per-agent flushes between scans.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Ctx(ctx).Info("delivery loop starting",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Bool("fast_path", w.events != nil))

	if err := w.Tick(ctx); err != nil {
		w.logger.Ctx(ctx).Error("queue scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.Ctx(ctx).Error("queue scan failed", zap.Error(err))
			}
		case event, ok := <-w.events:
			if !ok {
				// Subscriber is gone; polling alone keeps deliveries
				// correct, just slower.
				w.events = nil
				w.logger.Ctx(ctx).Warn("presence events closed, falling back to polling only")
				continue
			}
			if event.Status != models.AgentStatusOnline {
				continue
			}
			if err := w.Flush(ctx, event.AgentID); err != nil {
				w.logger.Ctx(ctx).Error("backlog flush failed",
					zap.Error(err),
					zap.String("agent_id", event.AgentID))
			}
		}
	}
}

// Tick makes one pass over the queue, attempting every message that is due
// and whose recipient is online.
func (w *Worker) Tick(ctx context.Context) error {
	msgs, err := w.messages.ListQueued(ctx)
	if err != nil {
		return fmt.Errorf("list queued messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	w.logger.Ctx(ctx).Debug("scanning queue", zap.Int("queued", len(msgs)))

	for _, msg := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.process(ctx, msg)
	}
	return nil
}

// Flush attempts an agent's entire backlog right away. Attempt timestamps
// are cleared first so the backoff ladder does not hold messages back; the
// retry budget still applies.
func (w *Worker) Flush(ctx context.Context, agentID string) error {
	msgs, err := w.messages.ListQueuedFor(ctx, agentID)
	if err != nil {
		return fmt.Errorf("list backlog for %s: %w", agentID, err)
	}
	if len(msgs) == 0 {
		return nil
	}

	agent, err := w.agents.RetrieveAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("retrieve agent %s: %w", agentID, err)
	}

	w.logger.Ctx(ctx).Info("flushing backlog",
		zap.String("agent_id", agentID),
		zap.Int("queued", len(msgs)))

	for _, msg := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if agent == nil {
			w.failMessage(ctx, msg, reasonNoRecipient, nil)
			continue
		}
		if w.policy.Exhausted(msg) {
			w.failExhausted(ctx, msg)
			continue
		}
		// The event already told us the agent is online; a stale store
		// read should not strand the flush.
		if applied, err := w.messages.ResetAttemptTime(ctx, msg.ID); err != nil {
			w.logger.Ctx(ctx).Error("failed to reset attempt time", zap.Error(err), zap.String("message_id", msg.ID))
			continue
		} else if !applied {
			continue
		}
		msg.LastAttemptAt = nil
		w.attempt(ctx, msg, *agent)
	}
	return nil
}

// process applies the scan-time decision tree for one queued message.
func (w *Worker) process(ctx context.Context, msg models.Message) {
	agent, err := w.agents.RetrieveAgent(ctx, msg.ToAgent)
	if err != nil {
		w.logger.Ctx(ctx).Error("failed to retrieve recipient",
			zap.Error(err),
			zap.String("message_id", msg.ID),
			zap.String("agent_id", msg.ToAgent))
		return
	}
	if agent == nil {
		// The recipient was deleted after enqueue. No attempt is made,
		// so the attempt timestamp stays as it was.
		w.failMessage(ctx, msg, reasonNoRecipient, nil)
		return
	}
	if w.policy.Exhausted(msg) {
		w.failExhausted(ctx, msg)
		return
	}
	if agent.Status != models.AgentStatusOnline {
		return
	}
	if !w.policy.IsDue(msg, w.now()) {
		return
	}
	w.attempt(ctx, msg, *agent)
}

// attempt performs one dispatch and applies its outcome. Conditional store
// updates keyed on the observed retry count make concurrent workers safe:
// the loser of a race sees applied=false and walks away.
func (w *Worker) attempt(ctx context.Context, msg models.Message, agent models.Agent) {
	now := w.now()
	outcome := w.dispatcher.Dispatch(ctx, msg, agent)

	switch outcome.Kind {
	case dispatch.OutcomeSuccess:
		applied, err := w.messages.MarkDelivered(ctx, msg.ID, msg.RetryCount, now)
		if err != nil {
			w.logger.Ctx(ctx).Error("failed to mark delivered", zap.Error(err), zap.String("message_id", msg.ID))
			return
		}
		if applied {
			w.logger.Ctx(ctx).Info("message delivered",
				zap.String("message_id", msg.ID),
				zap.String("agent_id", agent.ID),
				zap.Int("retry_count", msg.RetryCount))
		}
	case dispatch.OutcomeTerminal:
		w.failMessage(ctx, msg, outcome.Reason, &now)
	case dispatch.OutcomeTransient:
		final := msg.RetryCount+1 >= w.policy.MaxRetries
		applied, err := w.messages.RecordTransientFailure(ctx, msg.ID, msg.RetryCount, outcome.Reason, now, final)
		if err != nil {
			w.logger.Ctx(ctx).Error("failed to record attempt", zap.Error(err), zap.String("message_id", msg.ID))
			return
		}
		if applied {
			w.logger.Ctx(ctx).Warn("delivery attempt failed",
				zap.String("message_id", msg.ID),
				zap.String("agent_id", agent.ID),
				zap.String("reason", outcome.Reason),
				zap.Int("retry_count", msg.RetryCount+1),
				zap.Bool("final", final))
		}
	}
}

func (w *Worker) failExhausted(ctx context.Context, msg models.Message) {
	reason := msg.Error
	if reason == "" {
		reason = reasonExhausted
	}
	w.failMessage(ctx, msg, reason, nil)
}

func (w *Worker) failMessage(ctx context.Context, msg models.Message, reason string, attemptAt *time.Time) {
	applied, err := w.messages.MarkFailed(ctx, msg.ID, msg.RetryCount, reason, attemptAt)
	if err != nil {
		w.logger.Ctx(ctx).Error("failed to mark failed", zap.Error(err), zap.String("message_id", msg.ID))
		return
	}
	if applied {
		w.logger.Ctx(ctx).Warn("message failed",
			zap.String("message_id", msg.ID),
			zap.String("agent_id", msg.ToAgent),
			zap.String("reason", reason))
	}
}

var _ worker.Worker = (*Worker)(nil)
