package drivertest

import (
	"context"
	"testing"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/models"
	"github.com/Chronic700/Agent-Connect/internal/msgstore/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransitions(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	ctx := context.Background()
	h, err := newHarness(ctx, t)
	require.NoError(t, err)
	t.Cleanup(h.Close)

	store, err := h.MakeDriver(ctx)
	require.NoError(t, err)

	base := time.Now().UTC().Truncate(time.Second)

	insert := func(t *testing.T) models.Message {
		t.Helper()
		msg := queuedMessage("agent_a", "agent_b", base)
		require.NoError(t, store.Insert(ctx, msg))
		return msg
	}

	t.Run("delivered", func(t *testing.T) {
		msg := insert(t)
		at := base.Add(time.Second)

		applied, err := store.MarkDelivered(ctx, msg.ID, 0, at)
		require.NoError(t, err)
		require.True(t, applied)

		got, err := store.Retrieve(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusDelivered, got.Status)
		require.NotNil(t, got.DeliveredAt)
		require.NotNil(t, got.LastAttemptAt)
		assert.True(t, got.DeliveredAt.Equal(at))
		assert.True(t, got.LastAttemptAt.Equal(at))
		assert.Empty(t, got.Error)
		assert.Equal(t, 0, got.RetryCount)
	})

	t.Run("delivered is terminal", func(t *testing.T) {
		msg := insert(t)
		applied, err := store.MarkDelivered(ctx, msg.ID, 0, base)
		require.NoError(t, err)
		require.True(t, applied)

		applied, err = store.MarkFailed(ctx, msg.ID, 0, "late failure", nil)
		require.NoError(t, err)
		assert.False(t, applied)

		got, err := store.Retrieve(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusDelivered, got.Status)
	})

	t.Run("terminal failure stamps attempt", func(t *testing.T) {
		msg := insert(t)
		at := base.Add(time.Second)

		applied, err := store.MarkFailed(ctx, msg.ID, 0, "webhook returned 404", &at)
		require.NoError(t, err)
		require.True(t, applied)

		got, err := store.Retrieve(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusFailed, got.Status)
		assert.Equal(t, "webhook returned 404", got.Error)
		require.NotNil(t, got.LastAttemptAt)
		assert.True(t, got.LastAttemptAt.Equal(at))
		assert.Nil(t, got.DeliveredAt)
		assert.Equal(t, 0, got.RetryCount)
	})

	t.Run("failure without attempt leaves stamp alone", func(t *testing.T) {
		msg := insert(t)

		applied, err := store.MarkFailed(ctx, msg.ID, 0, "recipient not found", nil)
		require.NoError(t, err)
		require.True(t, applied)

		got, err := store.Retrieve(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusFailed, got.Status)
		assert.Nil(t, got.LastAttemptAt)
	})

	t.Run("transient failure bookkeeping", func(t *testing.T) {
		msg := insert(t)
		at1 := base.Add(time.Second)
		at2 := base.Add(2 * time.Second)

		applied, err := store.RecordTransientFailure(ctx, msg.ID, 0, "webhook returned 503", at1, false)
		require.NoError(t, err)
		require.True(t, applied)

		got, err := store.Retrieve(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusQueued, got.Status)
		assert.Equal(t, 1, got.RetryCount)
		require.NotNil(t, got.LastAttemptAt)
		assert.True(t, got.LastAttemptAt.Equal(at1))
		assert.Equal(t, "webhook returned 503", got.Error)

		// Final transient failure flips to failed.
		applied, err = store.RecordTransientFailure(ctx, msg.ID, 1, "connection refused", at2, true)
		require.NoError(t, err)
		require.True(t, applied)

		got, err = store.Retrieve(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusFailed, got.Status)
		assert.Equal(t, 2, got.RetryCount)
		assert.Equal(t, "connection refused", got.Error)
	})

	t.Run("stale retry count loses", func(t *testing.T) {
		msg := insert(t)

		applied, err := store.RecordTransientFailure(ctx, msg.ID, 0, "timeout", base, false)
		require.NoError(t, err)
		require.True(t, applied)

		// A writer still holding the rc=0 snapshot must lose.
		applied, err = store.MarkDelivered(ctx, msg.ID, 0, base)
		require.NoError(t, err)
		assert.False(t, applied)

		got, err := store.Retrieve(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusQueued, got.Status)
		assert.Equal(t, 1, got.RetryCount)
	})

	t.Run("reset attempt time", func(t *testing.T) {
		msg := insert(t)
		applied, err := store.RecordTransientFailure(ctx, msg.ID, 0, "timeout", base, false)
		require.NoError(t, err)
		require.True(t, applied)

		applied, err = store.ResetAttemptTime(ctx, msg.ID)
		require.NoError(t, err)
		require.True(t, applied)

		got, err := store.Retrieve(ctx, msg.ID)
		require.NoError(t, err)
		assert.Nil(t, got.LastAttemptAt)
		assert.Equal(t, 1, got.RetryCount, "retry_count preserved across reset")
	})

	t.Run("transitions on unknown message", func(t *testing.T) {
		_, err := store.MarkDelivered(ctx, "msg_unknown", 0, base)
		assert.ErrorIs(t, err, driver.ErrMessageNotFound)
	})
}
