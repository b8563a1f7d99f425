package models

import (
	"encoding/json"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/idgen"
)

type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "queued"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s MessageStatus) Terminal() bool {
	return s == MessageStatusDelivered || s == MessageStatusFailed
}

// Message is a single agent-to-agent message and its delivery bookkeeping.
// RetryCount counts failed attempts; LastAttemptAt is stamped after each
// HTTP attempt, successful or not. DeliveredAt is set exactly when the
// message transitions to delivered.
type Message struct {
	ID            string          `json:"id"`
	FromAgent     string          `json:"from_agent_id"`
	ToAgent       string          `json:"to_agent_id"`
	Content       json.RawMessage `json:"content"`
	Status        MessageStatus   `json:"status"`
	RetryCount    int             `json:"retry_count"`
	CreatedAt     time.Time       `json:"created_at"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
	DeliveredAt   *time.Time      `json:"delivered_at,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// NewMessage creates a queued message with a fresh ID.
func NewMessage(fromAgent, toAgent string, content json.RawMessage) Message {
	return Message{
		ID:        idgen.Message(),
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Content:   content,
		Status:    MessageStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
}

// AttemptBase returns the reference time the retry ladder is measured from.
func (m *Message) AttemptBase() time.Time {
	if m.LastAttemptAt != nil {
		return *m.LastAttemptAt
	}
	return m.CreatedAt
}
