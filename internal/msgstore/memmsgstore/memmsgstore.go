// Package memmsgstore provides an in-memory implementation of
// driver.MessageStore. Used in tests and for single-node development runs.
package memmsgstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/models"
	"github.com/Chronic700/Agent-Connect/internal/msgstore/driver"
)

type store struct {
	mu       sync.RWMutex
	messages map[string]*models.Message
}

var _ driver.MessageStore = (*store)(nil)

// New creates a new in-memory MessageStore.
func New() driver.MessageStore {
	return &store{
		messages: make(map[string]*models.Message),
	}
}

func (s *store) Init(_ context.Context) error {
	return nil
}

func (s *store) Insert(_ context.Context, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.ID]; ok {
		return driver.ErrDuplicateMessage
	}
	m := msg
	s.messages[msg.ID] = &m
	return nil
}

func (s *store) Retrieve(_ context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *store) ListQueued(_ context.Context) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listQueuedLocked(func(*models.Message) bool { return true }), nil
}

func (s *store) ListQueuedFor(_ context.Context, toAgent string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listQueuedLocked(func(m *models.Message) bool { return m.ToAgent == toAgent }), nil
}

func (s *store) listQueuedLocked(match func(*models.Message) bool) []models.Message {
	out := make([]models.Message, 0)
	for _, m := range s.messages {
		if m.Status == models.MessageStatusQueued && match(m) {
			out = append(out, *m)
		}
	}
	// (created_at, id) order to match the Postgres driver
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// transition applies fn under the conditional-update discipline.
func (s *store) transition(id string, observedRetryCount int, fn func(*models.Message)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return false, driver.ErrMessageNotFound
	}
	if m.Status != models.MessageStatusQueued || m.RetryCount != observedRetryCount {
		return false, nil
	}
	fn(m)
	return true, nil
}

func (s *store) MarkDelivered(_ context.Context, id string, observedRetryCount int, at time.Time) (bool, error) {
	return s.transition(id, observedRetryCount, func(m *models.Message) {
		at := at.UTC()
		m.Status = models.MessageStatusDelivered
		m.LastAttemptAt = &at
		m.DeliveredAt = &at
		m.Error = ""
	})
}

func (s *store) MarkFailed(_ context.Context, id string, observedRetryCount int, reason string, attemptAt *time.Time) (bool, error) {
	return s.transition(id, observedRetryCount, func(m *models.Message) {
		m.Status = models.MessageStatusFailed
		m.Error = reason
		if attemptAt != nil {
			at := attemptAt.UTC()
			m.LastAttemptAt = &at
		}
	})
}

func (s *store) RecordTransientFailure(_ context.Context, id string, observedRetryCount int, reason string, at time.Time, final bool) (bool, error) {
	return s.transition(id, observedRetryCount, func(m *models.Message) {
		at := at.UTC()
		m.RetryCount++
		m.LastAttemptAt = &at
		m.Error = reason
		if final {
			m.Status = models.MessageStatusFailed
		}
	})
}

func (s *store) ResetAttemptTime(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return false, driver.ErrMessageNotFound
	}
	if m.Status != models.MessageStatusQueued {
		return false, nil
	}
	m.LastAttemptAt = nil
	return true, nil
}
