// Package presence propagates agent online/offline transitions over Redis
// pub/sub. The channel is advisory: if Redis is down or an event is lost,
// delivery falls back to the polling loop and no message is stranded.
package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Chronic700/Agent-Connect/internal/logging"
	"github.com/Chronic700/Agent-Connect/internal/models"
	"github.com/Chronic700/Agent-Connect/internal/redis"
	"go.uber.org/zap"
)

// Channel carries agent status transitions.
const Channel = "agent_status_change"

// StatusEvent is the wire format published on Channel.
type StatusEvent struct {
	AgentID string             `json:"agent_id"`
	Status  models.AgentStatus `json:"status"`
}

// Publisher announces agent status transitions.
type Publisher struct {
	client redis.Client
	logger *logging.Logger
}

func NewPublisher(client redis.Client, logger *logging.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// Publish announces a status change. Failures are logged and swallowed;
// presence is a fast path, not a source of truth.
func (p *Publisher) Publish(ctx context.Context, agentID string, status models.AgentStatus) {
	event := StatusEvent{AgentID: agentID, Status: status}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Ctx(ctx).Error("failed to marshal status event", zap.Error(err), zap.String("agent_id", agentID))
		return
	}
	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		p.logger.Ctx(ctx).Warn("failed to publish status event",
			zap.Error(err),
			zap.String("agent_id", agentID),
			zap.String("status", string(status)))
	}
}

// Subscriber receives status transitions published on Channel.
type Subscriber struct {
	client redis.Client
	logger *logging.Logger
	events chan StatusEvent
}

func NewSubscriber(client redis.Client, logger *logging.Logger) *Subscriber {
	return &Subscriber{
		client: client,
		logger: logger,
		events: make(chan StatusEvent, 64),
	}
}

func (s *Subscriber) Name() string {
	return "presence"
}

// Events returns the stream of decoded status events. The channel is closed
// when Run returns.
func (s *Subscriber) Events() <-chan StatusEvent {
	return s.events
}

// Run subscribes and forwards events until ctx is canceled. Malformed
// events are dropped with a log line.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, Channel)
	defer pubsub.Close()
	defer close(s.events)

	// Confirm the subscription before consuming so callers racing a
	// publish after Run starts do not miss events.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", Channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event StatusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Ctx(ctx).Warn("dropping malformed status event",
					zap.Error(err),
					zap.String("payload", msg.Payload))
				continue
			}
			if event.AgentID == "" || !event.Status.Valid() {
				s.logger.Ctx(ctx).Warn("dropping invalid status event",
					zap.String("payload", msg.Payload))
				continue
			}
			select {
			case s.events <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
