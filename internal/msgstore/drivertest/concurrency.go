package drivertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConcurrency races N workers over the same observed snapshot and
// asserts exactly one wins each transition.
func testConcurrency(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	ctx := context.Background()
	h, err := newHarness(ctx, t)
	require.NoError(t, err)
	t.Cleanup(h.Close)

	store, err := h.MakeDriver(ctx)
	require.NoError(t, err)

	base := time.Now().UTC().Truncate(time.Second)
	const workers = 8

	t.Run("single delivered transition", func(t *testing.T) {
		msg := queuedMessage("agent_a", "agent_b", base)
		require.NoError(t, store.Insert(ctx, msg))

		var wg sync.WaitGroup
		wins := make(chan bool, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				applied, err := store.MarkDelivered(ctx, msg.ID, 0, base)
				assert.NoError(t, err)
				wins <- applied
			}()
		}
		wg.Wait()
		close(wins)

		won := 0
		for applied := range wins {
			if applied {
				won++
			}
		}
		assert.Equal(t, 1, won, "exactly one worker observes the delivered transition")
	})

	t.Run("racing bump and delivery", func(t *testing.T) {
		msg := queuedMessage("agent_a", "agent_b", base)
		require.NoError(t, store.Insert(ctx, msg))

		var wg sync.WaitGroup
		wins := make(chan bool, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var applied bool
				var err error
				if i%2 == 0 {
					applied, err = store.MarkDelivered(ctx, msg.ID, 0, base)
				} else {
					applied, err = store.RecordTransientFailure(ctx, msg.ID, 0, "timeout", base, false)
				}
				assert.NoError(t, err)
				wins <- applied
			}(i)
		}
		wg.Wait()
		close(wins)

		won := 0
		for applied := range wins {
			if applied {
				won++
			}
		}
		assert.Equal(t, 1, won)

		got, err := store.Retrieve(ctx, msg.ID)
		require.NoError(t, err)
		// Whichever writer won, the message is in a consistent state.
		switch got.Status {
		case models.MessageStatusDelivered:
			assert.Equal(t, 0, got.RetryCount)
			assert.NotNil(t, got.DeliveredAt)
		case models.MessageStatusQueued:
			assert.Equal(t, 1, got.RetryCount)
			assert.Nil(t, got.DeliveredAt)
		default:
			t.Fatalf("unexpected status %s", got.Status)
		}
	})
}
