// Package driver defines the AgentStore interface and associated types.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/models"
)

var (
	ErrAgentNotFound  = errors.New("agent does not exist")
	ErrDuplicateAgent = errors.New("agent already exists")
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 100
)

// AgentStore owns the agents table: identity, webhook endpoint, signing
// secret, API-key hash, and presence. The delivery core only reads from it
// (RetrieveAgent); mutations come from the API layer.
type AgentStore interface {
	Init(ctx context.Context) error

	CreateAgent(ctx context.Context, agent models.Agent) error

	// RetrieveAgent returns nil (no error) when the agent does not exist.
	RetrieveAgent(ctx context.Context, id string) (*models.Agent, error)

	// RetrieveAgentByAPIKeyHash resolves an API key hash for authentication.
	// Returns nil (no error) when no agent owns the key.
	RetrieveAgentByAPIKeyHash(ctx context.Context, hash string) (*models.Agent, error)

	ListAgents(ctx context.Context, req ListAgentsRequest) (*ListAgentsResponse, error)

	// UpdateAgentStatus sets the presence status and bumps updated_at.
	UpdateAgentStatus(ctx context.Context, id string, status models.AgentStatus, at time.Time) error
}

// ListAgentsRequest filters and paginates the agent directory.
type ListAgentsRequest struct {
	Status *models.AgentStatus
	Offset int
	Limit  int
}

// ListAgentsResponse holds one page plus the unpaginated total.
type ListAgentsResponse struct {
	Agents []models.Agent `json:"agents"`
	Total  int            `json:"total"`
}
