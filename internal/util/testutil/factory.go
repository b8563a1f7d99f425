package testutil

import (
	"encoding/json"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/models"
)

// ============================== Mock Agent ==============================

var AgentFactory = &mockAgentFactory{}

type mockAgentFactory struct {
}

func (f *mockAgentFactory) Any(opts ...func(*models.Agent)) models.Agent {
	agent := models.NewAgent("agent-"+RandomString(6), "", "http://localhost:4444/webhook", RandomString(16))

	for _, opt := range opts {
		opt(&agent)
	}

	return agent
}

func (f *mockAgentFactory) WithID(id string) func(*models.Agent) {
	return func(agent *models.Agent) {
		agent.ID = id
	}
}

func (f *mockAgentFactory) WithName(name string) func(*models.Agent) {
	return func(agent *models.Agent) {
		agent.Name = name
	}
}

func (f *mockAgentFactory) WithStatus(status models.AgentStatus) func(*models.Agent) {
	return func(agent *models.Agent) {
		agent.Status = status
	}
}

func (f *mockAgentFactory) WithWebhookURL(url string) func(*models.Agent) {
	return func(agent *models.Agent) {
		agent.WebhookURL = url
	}
}

func (f *mockAgentFactory) WithSecret(secret string) func(*models.Agent) {
	return func(agent *models.Agent) {
		agent.Secret = secret
	}
}

func (f *mockAgentFactory) WithAPIKeyHash(hash string) func(*models.Agent) {
	return func(agent *models.Agent) {
		agent.APIKeyHash = hash
	}
}

// ============================== Mock Message ==============================

var MessageFactory = &mockMessageFactory{}

type mockMessageFactory struct {
}

func (f *mockMessageFactory) Any(opts ...func(*models.Message)) models.Message {
	message := models.NewMessage("agent_sender", "agent_recipient", json.RawMessage(`{"text":"hello"}`))

	for _, opt := range opts {
		opt(&message)
	}

	return message
}

func (f *mockMessageFactory) WithID(id string) func(*models.Message) {
	return func(message *models.Message) {
		message.ID = id
	}
}

func (f *mockMessageFactory) WithFromAgent(id string) func(*models.Message) {
	return func(message *models.Message) {
		message.FromAgent = id
	}
}

func (f *mockMessageFactory) WithToAgent(id string) func(*models.Message) {
	return func(message *models.Message) {
		message.ToAgent = id
	}
}

func (f *mockMessageFactory) WithContent(content json.RawMessage) func(*models.Message) {
	return func(message *models.Message) {
		message.Content = content
	}
}

func (f *mockMessageFactory) WithRetryCount(n int) func(*models.Message) {
	return func(message *models.Message) {
		message.RetryCount = n
	}
}

func (f *mockMessageFactory) WithCreatedAt(createdAt time.Time) func(*models.Message) {
	return func(message *models.Message) {
		message.CreatedAt = createdAt
	}
}

func (f *mockMessageFactory) WithLastAttemptAt(lastAttemptAt time.Time) func(*models.Message) {
	return func(message *models.Message) {
		message.LastAttemptAt = &lastAttemptAt
	}
}
