// Package pgmsgstore provides a Postgres-backed implementation of
// driver.MessageStore.
package pgmsgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/models"
	"github.com/Chronic700/Agent-Connect/internal/msgstore/driver"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type store struct {
	db *pgxpool.Pool
}

var _ driver.MessageStore = (*store)(nil)

// New creates a new Postgres-backed MessageStore. Schema is owned by the
// migrator; Init only verifies connectivity.
func New(db *pgxpool.Pool) driver.MessageStore {
	return &store{db: db}
}

func (s *store) Init(ctx context.Context) error {
	return s.db.Ping(ctx)
}

const messageColumns = `id, from_agent, to_agent, content, status, retry_count, created_at, last_attempt_at, delivered_at, error`

func (s *store) Insert(ctx context.Context, msg models.Message) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
	`, msg.ID, msg.FromAgent, msg.ToAgent, []byte(msg.Content), string(msg.Status),
		msg.RetryCount, msg.CreatedAt.UTC(), msg.LastAttemptAt, msg.DeliveredAt, msg.Error)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return driver.ErrDuplicateMessage
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *store) Retrieve(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = $1
	`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("retrieve message: %w", err)
	}
	return msg, nil
}

func (s *store) ListQueued(ctx context.Context) ([]models.Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE status = 'queued'
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list queued: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *store) ListQueuedFor(ctx context.Context, toAgent string) ([]models.Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE status = 'queued' AND to_agent = $1
		ORDER BY created_at, id
	`, toAgent)
	if err != nil {
		return nil, fmt.Errorf("list queued for %s: %w", toAgent, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *store) MarkDelivered(ctx context.Context, id string, observedRetryCount int, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE messages
		SET status = 'delivered', last_attempt_at = $3, delivered_at = $3, error = NULL
		WHERE id = $1 AND status = 'queued' AND retry_count = $2
	`, id, observedRetryCount, at.UTC())
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	return s.applied(ctx, id, tag)
}

func (s *store) MarkFailed(ctx context.Context, id string, observedRetryCount int, reason string, attemptAt *time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE messages
		SET status = 'failed', error = $3, last_attempt_at = COALESCE($4, last_attempt_at)
		WHERE id = $1 AND status = 'queued' AND retry_count = $2
	`, id, observedRetryCount, reason, attemptAt)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return s.applied(ctx, id, tag)
}

func (s *store) RecordTransientFailure(ctx context.Context, id string, observedRetryCount int, reason string, at time.Time, final bool) (bool, error) {
	status := "queued"
	if final {
		status = "failed"
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE messages
		SET retry_count = retry_count + 1, last_attempt_at = $3, error = $4, status = $5
		WHERE id = $1 AND status = 'queued' AND retry_count = $2
	`, id, observedRetryCount, at.UTC(), reason, status)
	if err != nil {
		return false, fmt.Errorf("record transient failure: %w", err)
	}
	return s.applied(ctx, id, tag)
}

func (s *store) ResetAttemptTime(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE messages SET last_attempt_at = NULL
		WHERE id = $1 AND status = 'queued'
	`, id)
	if err != nil {
		return false, fmt.Errorf("reset attempt time: %w", err)
	}
	return s.applied(ctx, id, tag)
}

// applied distinguishes "lost the conditional update" from "no such message".
func (s *store) applied(ctx context.Context, id string, tag pgconn.CommandTag) (bool, error) {
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check message exists: %w", err)
	}
	if !exists {
		return false, driver.ErrMessageNotFound
	}
	return false, nil
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	out := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		msg           models.Message
		content       []byte
		status        string
		lastAttemptAt *time.Time
		deliveredAt   *time.Time
		errMsg        *string
	)
	if err := row.Scan(&msg.ID, &msg.FromAgent, &msg.ToAgent, &content, &status,
		&msg.RetryCount, &msg.CreatedAt, &lastAttemptAt, &deliveredAt, &errMsg); err != nil {
		return nil, err
	}
	msg.Content = content
	msg.Status = models.MessageStatus(status)
	msg.CreatedAt = msg.CreatedAt.UTC()
	if lastAttemptAt != nil {
		at := lastAttemptAt.UTC()
		msg.LastAttemptAt = &at
	}
	if deliveredAt != nil {
		at := deliveredAt.UTC()
		msg.DeliveredAt = &at
	}
	if errMsg != nil {
		msg.Error = *errMsg
	}
	return &msg, nil
}
