package drivertest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/models"
	"github.com/Chronic700/Agent-Connect/internal/msgstore/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queuedMessage(from, to string, createdAt time.Time) models.Message {
	msg := models.NewMessage(from, to, json.RawMessage(`{"x":1}`))
	msg.CreatedAt = createdAt.UTC()
	return msg
}

func testQueue(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	ctx := context.Background()
	h, err := newHarness(ctx, t)
	require.NoError(t, err)
	t.Cleanup(h.Close)

	store, err := h.MakeDriver(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Init(ctx))

	base := time.Now().UTC().Truncate(time.Second)

	t.Run("insert and retrieve", func(t *testing.T) {
		msg := queuedMessage("agent_a", "agent_b", base)
		require.NoError(t, store.Insert(ctx, msg))

		got, err := store.Retrieve(ctx, msg.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, models.MessageStatusQueued, got.Status)
		assert.Equal(t, 0, got.RetryCount)
		assert.Nil(t, got.LastAttemptAt)
		assert.Nil(t, got.DeliveredAt)
		assert.JSONEq(t, `{"x":1}`, string(got.Content))
	})

	t.Run("duplicate insert", func(t *testing.T) {
		msg := queuedMessage("agent_a", "agent_b", base)
		require.NoError(t, store.Insert(ctx, msg))
		assert.ErrorIs(t, store.Insert(ctx, msg), driver.ErrDuplicateMessage)
	})

	t.Run("retrieve unknown", func(t *testing.T) {
		got, err := store.Retrieve(ctx, "msg_unknown")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("queued scans", func(t *testing.T) {
		h2, err := newHarness(ctx, t)
		require.NoError(t, err)
		t.Cleanup(h2.Close)
		store, err := h2.MakeDriver(ctx)
		require.NoError(t, err)

		older := queuedMessage("agent_a", "agent_b", base.Add(-2*time.Minute))
		newer := queuedMessage("agent_a", "agent_b", base.Add(-1*time.Minute))
		other := queuedMessage("agent_a", "agent_c", base)
		delivered := queuedMessage("agent_a", "agent_b", base)
		for _, msg := range []models.Message{newer, older, other, delivered} {
			require.NoError(t, store.Insert(ctx, msg))
		}
		applied, err := store.MarkDelivered(ctx, delivered.ID, 0, base)
		require.NoError(t, err)
		require.True(t, applied)

		queued, err := store.ListQueued(ctx)
		require.NoError(t, err)
		require.Len(t, queued, 3)
		// Stable (created_at, id) order.
		assert.Equal(t, older.ID, queued[0].ID)
		assert.Equal(t, newer.ID, queued[1].ID)

		forB, err := store.ListQueuedFor(ctx, "agent_b")
		require.NoError(t, err)
		require.Len(t, forB, 2)
		for _, msg := range forB {
			assert.Equal(t, "agent_b", msg.ToAgent)
		}
	})
}
