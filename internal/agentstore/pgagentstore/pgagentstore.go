// Package pgagentstore provides a Postgres-backed implementation of
// driver.AgentStore.
package pgagentstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/agentstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type store struct {
	db *pgxpool.Pool
}

var _ driver.AgentStore = (*store)(nil)

// New creates a new Postgres-backed AgentStore.
func New(db *pgxpool.Pool) driver.AgentStore {
	return &store{db: db}
}

func (s *store) Init(ctx context.Context) error {
	return s.db.Ping(ctx)
}

const agentColumns = `id, name, description, webhook_url, api_key_hash, secret, status, created_at, updated_at`

func (s *store) CreateAgent(ctx context.Context, agent models.Agent) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, agent.ID, agent.Name, agent.Description, agent.WebhookURL, agent.APIKeyHash,
		agent.Secret, string(agent.Status), agent.CreatedAt.UTC(), agent.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return driver.ErrDuplicateAgent
		}
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *store) RetrieveAgent(ctx context.Context, id string) (*models.Agent, error) {
	return s.retrieveWhere(ctx, "id = $1", id)
}

func (s *store) RetrieveAgentByAPIKeyHash(ctx context.Context, hash string) (*models.Agent, error) {
	return s.retrieveWhere(ctx, "api_key_hash = $1", hash)
}

func (s *store) retrieveWhere(ctx context.Context, cond string, arg any) (*models.Agent, error) {
	row := s.db.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE `+cond, arg)
	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("retrieve agent: %w", err)
	}
	return agent, nil
}

func (s *store) ListAgents(ctx context.Context, req driver.ListAgentsRequest) (*driver.ListAgentsResponse, error) {
	limit := req.Limit
	if limit <= 0 || limit > driver.MaxListLimit {
		limit = driver.DefaultListLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	var status string
	if req.Status != nil {
		status = string(*req.Status)
	}

	var total int
	if err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM agents WHERE ($1::text = '' OR status = $1)
	`, status).Scan(&total); err != nil {
		return nil, fmt.Errorf("count agents: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+agentColumns+` FROM agents
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at, id
		OFFSET $2 LIMIT $3
	`, status, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents := make([]models.Agent, 0)
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, *agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}

	return &driver.ListAgentsResponse{Agents: agents, Total: total}, nil
}

func (s *store) UpdateAgentStatus(ctx context.Context, id string, status models.AgentStatus, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE agents SET status = $2, updated_at = $3 WHERE id = $1
	`, id, string(status), at.UTC())
	if err != nil {
		return fmt.Errorf("update agent status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return driver.ErrAgentNotFound
	}
	return nil
}

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var (
		agent  models.Agent
		status string
	)
	if err := row.Scan(&agent.ID, &agent.Name, &agent.Description, &agent.WebhookURL,
		&agent.APIKeyHash, &agent.Secret, &status, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
		return nil, err
	}
	agent.Status = models.AgentStatus(status)
	agent.CreatedAt = agent.CreatedAt.UTC()
	agent.UpdatedAt = agent.UpdatedAt.UTC()
	return &agent, nil
}
