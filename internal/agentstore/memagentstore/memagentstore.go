// Package memagentstore provides an in-memory implementation of
// driver.AgentStore. Used in tests and for single-node development runs.
package memagentstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/agentstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/models"
)

type store struct {
	mu     sync.RWMutex
	agents map[string]*models.Agent
	byKey  map[string]string // api key hash -> agent id
}

var _ driver.AgentStore = (*store)(nil)

// New creates a new in-memory AgentStore.
func New() driver.AgentStore {
	return &store{
		agents: make(map[string]*models.Agent),
		byKey:  make(map[string]string),
	}
}

func (s *store) Init(_ context.Context) error {
	return nil
}

func (s *store) CreateAgent(_ context.Context, agent models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agent.ID]; ok {
		return driver.ErrDuplicateAgent
	}
	a := agent
	s.agents[agent.ID] = &a
	s.byKey[agent.APIKeyHash] = agent.ID
	return nil
}

func (s *store) RetrieveAgent(_ context.Context, id string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *store) RetrieveAgentByAPIKeyHash(_ context.Context, hash string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[hash]
	if !ok {
		return nil, nil
	}
	cp := *s.agents[id]
	return &cp, nil
}

func (s *store) ListAgents(_ context.Context, req driver.ListAgentsRequest) (*driver.ListAgentsResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]models.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if req.Status != nil && a.Status != *req.Status {
			continue
		}
		all = append(all, *a)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := len(all)
	limit := req.Limit
	if limit <= 0 || limit > driver.MaxListLimit {
		limit = driver.DefaultListLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return &driver.ListAgentsResponse{
		Agents: all[offset:end],
		Total:  total,
	}, nil
}

func (s *store) UpdateAgentStatus(_ context.Context, id string, status models.AgentStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return driver.ErrAgentNotFound
	}
	a.Status = status
	a.UpdatedAt = at.UTC()
	return nil
}
