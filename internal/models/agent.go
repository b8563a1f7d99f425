package models

import (
	"time"

	"github.com/Chronic700/Agent-Connect/internal/idgen"
)

type AgentStatus string

const (
	AgentStatusOnline  AgentStatus = "online"
	AgentStatusOffline AgentStatus = "offline"
)

func (s AgentStatus) Valid() bool {
	return s == AgentStatusOnline || s == AgentStatusOffline
}

// Agent is a registered identity. Secret is the HMAC key shared with the
// agent for webhook verification; APIKeyHash is the SHA-256 of the API key
// issued at registration (the key itself is never stored).
type Agent struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	WebhookURL  string      `json:"webhook_url"`
	APIKeyHash  string      `json:"-"`
	Secret      string      `json:"-"`
	Status      AgentStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewAgent creates an offline agent with a fresh ID and signing secret.
// The API key is issued by the caller so it can be returned exactly once.
func NewAgent(name, description, webhookURL, apiKeyHash string) Agent {
	now := time.Now().UTC()
	return Agent{
		ID:          idgen.Agent(),
		Name:        name,
		Description: description,
		WebhookURL:  webhookURL,
		APIKeyHash:  apiKeyHash,
		Secret:      idgen.WebhookSecret(),
		Status:      AgentStatusOffline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
