package delivery_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	agentdriver "github.com/Chronic700/Agent-Connect/internal/agentstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/agentstore/memagentstore"
	"github.com/Chronic700/Agent-Connect/internal/delivery"
	"github.com/Chronic700/Agent-Connect/internal/dispatch"
	"github.com/Chronic700/Agent-Connect/internal/models"
	msgdriver "github.com/Chronic700/Agent-Connect/internal/msgstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/msgstore/memmsgstore"
	"github.com/Chronic700/Agent-Connect/internal/presence"
	"github.com/Chronic700/Agent-Connect/internal/retry"
	"github.com/Chronic700/Agent-Connect/internal/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// webhookStub is a recipient endpoint with a scriptable response code.
type webhookStub struct {
	server *httptest.Server
	code   atomic.Int64
	hits   atomic.Int64
}

func newWebhookStub(t *testing.T, code int) *webhookStub {
	stub := &webhookStub{}
	stub.code.Store(int64(code))
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.hits.Add(1)
		w.WriteHeader(int(stub.code.Load()))
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

type fixture struct {
	messages msgdriver.MessageStore
	agents   agentdriver.AgentStore
	worker   *delivery.Worker
	clock    *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T, opts ...delivery.Option) *fixture {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	f := &fixture{
		messages: memmsgstore.New(),
		agents:   memagentstore.New(),
		clock:    clock,
	}
	opts = append([]delivery.Option{delivery.WithClock(clock.Now)}, opts...)
	f.worker = delivery.New(
		f.messages,
		f.agents,
		dispatch.New(),
		retry.DefaultPolicy(),
		testutil.CreateTestLogger(t),
		opts...,
	)
	return f
}

func (f *fixture) addAgent(t *testing.T, status models.AgentStatus, webhookURL string) models.Agent {
	agent := testutil.AgentFactory.Any(
		testutil.AgentFactory.WithStatus(status),
		testutil.AgentFactory.WithWebhookURL(webhookURL),
	)
	require.NoError(t, f.agents.CreateAgent(context.Background(), agent))
	return agent
}

func (f *fixture) enqueue(t *testing.T, toAgent string, opts ...func(*models.Message)) models.Message {
	opts = append([]func(*models.Message){
		testutil.MessageFactory.WithToAgent(toAgent),
		testutil.MessageFactory.WithCreatedAt(f.clock.Now()),
	}, opts...)
	msg := testutil.MessageFactory.Any(opts...)
	require.NoError(t, f.messages.Insert(context.Background(), msg))
	return msg
}

func (f *fixture) message(t *testing.T, id string) models.Message {
	msg, err := f.messages.Retrieve(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, msg)
	return *msg
}

func TestTickDeliversToOnlineAgent(t *testing.T) {
	t.Parallel()

	stub := newWebhookStub(t, http.StatusOK)
	f := newFixture(t)
	agent := f.addAgent(t, models.AgentStatusOnline, stub.server.URL)
	msg := f.enqueue(t, agent.ID)

	require.NoError(t, f.worker.Tick(context.Background()))

	got := f.message(t, msg.ID)
	assert.Equal(t, models.MessageStatusDelivered, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	require.NotNil(t, got.DeliveredAt)
	assert.Equal(t, f.clock.Now(), got.DeliveredAt.UTC())
	assert.EqualValues(t, 1, stub.hits.Load())
}

func TestTickSkipsOfflineAgent(t *testing.T) {
	t.Parallel()

	stub := newWebhookStub(t, http.StatusOK)
	f := newFixture(t)
	agent := f.addAgent(t, models.AgentStatusOffline, stub.server.URL)
	msg := f.enqueue(t, agent.ID)

	require.NoError(t, f.worker.Tick(context.Background()))

	got := f.message(t, msg.ID)
	assert.Equal(t, models.MessageStatusQueued, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Nil(t, got.LastAttemptAt)
	assert.EqualValues(t, 0, stub.hits.Load())
}

func TestTickTransientFailureFollowsLadder(t *testing.T) {
	t.Parallel()

	stub := newWebhookStub(t, http.StatusServiceUnavailable)
	f := newFixture(t)
	agent := f.addAgent(t, models.AgentStatusOnline, stub.server.URL)
	msg := f.enqueue(t, agent.ID)

	require.NoError(t, f.worker.Tick(context.Background()))

	got := f.message(t, msg.ID)
	assert.Equal(t, models.MessageStatusQueued, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.LastAttemptAt)
	assert.Contains(t, got.Error, "webhook returned 503")

	// Not due again until a minute has passed.
	f.clock.Advance(30 * time.Second)
	require.NoError(t, f.worker.Tick(context.Background()))
	assert.Equal(t, 1, f.message(t, msg.ID).RetryCount)
	assert.EqualValues(t, 1, stub.hits.Load())

	f.clock.Advance(30 * time.Second)
	require.NoError(t, f.worker.Tick(context.Background()))
	assert.Equal(t, 2, f.message(t, msg.ID).RetryCount)
	assert.EqualValues(t, 2, stub.hits.Load())

	// Recovery: the endpoint comes back and the next due attempt lands.
	stub.code.Store(http.StatusOK)
	f.clock.Advance(5 * time.Minute)
	require.NoError(t, f.worker.Tick(context.Background()))

	got = f.message(t, msg.ID)
	assert.Equal(t, models.MessageStatusDelivered, got.Status)
	assert.Equal(t, 2, got.RetryCount)
	assert.Empty(t, got.Error)
}

func TestTickTerminalFailureDoesNotRetry(t *testing.T) {
	t.Parallel()

	stub := newWebhookStub(t, http.StatusNotFound)
	f := newFixture(t)
	agent := f.addAgent(t, models.AgentStatusOnline, stub.server.URL)
	msg := f.enqueue(t, agent.ID)

	require.NoError(t, f.worker.Tick(context.Background()))

	got := f.message(t, msg.ID)
	assert.Equal(t, models.MessageStatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Contains(t, got.Error, "webhook returned 404")
	require.NotNil(t, got.LastAttemptAt)

	// Failed is terminal; further scans leave it alone.
	require.NoError(t, f.worker.Tick(context.Background()))
	assert.EqualValues(t, 1, stub.hits.Load())
}

func TestTickExhaustedMessageFails(t *testing.T) {
	t.Parallel()

	stub := newWebhookStub(t, http.StatusOK)
	f := newFixture(t)
	agent := f.addAgent(t, models.AgentStatusOnline, stub.server.URL)
	msg := f.enqueue(t, agent.ID, testutil.MessageFactory.WithRetryCount(5))

	require.NoError(t, f.worker.Tick(context.Background()))

	got := f.message(t, msg.ID)
	assert.Equal(t, models.MessageStatusFailed, got.Status)
	assert.Equal(t, 5, got.RetryCount)
	assert.Equal(t, "max delivery attempts exceeded", got.Error)
	// No attempt was made.
	assert.EqualValues(t, 0, stub.hits.Load())
}

func TestTickMissingRecipientFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	msg := f.enqueue(t, "agent_ghost")

	require.NoError(t, f.worker.Tick(context.Background()))

	got := f.message(t, msg.ID)
	assert.Equal(t, models.MessageStatusFailed, got.Status)
	assert.Equal(t, "recipient not found", got.Error)
	assert.Nil(t, got.LastAttemptAt)
}

func TestFlushDeliversBacklogImmediately(t *testing.T) {
	t.Parallel()

	stub := newWebhookStub(t, http.StatusOK)
	f := newFixture(t)
	agent := f.addAgent(t, models.AgentStatusOnline, stub.server.URL)

	// A backlog accumulated while the agent was offline: two messages mid
	// ladder, neither due for hours.
	attempt := f.clock.Now().Add(-time.Minute)
	first := f.enqueue(t, agent.ID,
		testutil.MessageFactory.WithRetryCount(4),
		testutil.MessageFactory.WithLastAttemptAt(attempt))
	second := f.enqueue(t, agent.ID,
		testutil.MessageFactory.WithRetryCount(2),
		testutil.MessageFactory.WithLastAttemptAt(attempt))

	// A regular scan would not touch them yet.
	require.NoError(t, f.worker.Tick(context.Background()))
	assert.EqualValues(t, 0, stub.hits.Load())

	require.NoError(t, f.worker.Flush(context.Background(), agent.ID))

	assert.Equal(t, models.MessageStatusDelivered, f.message(t, first.ID).Status)
	assert.Equal(t, models.MessageStatusDelivered, f.message(t, second.ID).Status)
	assert.EqualValues(t, 2, stub.hits.Load())
}

func TestFlushPreservesRetryBudget(t *testing.T) {
	t.Parallel()

	stub := newWebhookStub(t, http.StatusOK)
	f := newFixture(t)
	agent := f.addAgent(t, models.AgentStatusOnline, stub.server.URL)

	attempt := f.clock.Now().Add(-time.Minute)
	exhausted := f.enqueue(t, agent.ID,
		testutil.MessageFactory.WithRetryCount(5),
		testutil.MessageFactory.WithLastAttemptAt(attempt))

	require.NoError(t, f.worker.Flush(context.Background(), agent.ID))

	got := f.message(t, exhausted.ID)
	assert.Equal(t, models.MessageStatusFailed, got.Status)
	assert.EqualValues(t, 0, stub.hits.Load())
}

func TestFlushTransientFailureKeepsLadder(t *testing.T) {
	t.Parallel()

	stub := newWebhookStub(t, http.StatusServiceUnavailable)
	f := newFixture(t)
	agent := f.addAgent(t, models.AgentStatusOnline, stub.server.URL)

	attempt := f.clock.Now().Add(-time.Minute)
	msg := f.enqueue(t, agent.ID,
		testutil.MessageFactory.WithRetryCount(2),
		testutil.MessageFactory.WithLastAttemptAt(attempt))

	require.NoError(t, f.worker.Flush(context.Background(), agent.ID))

	got := f.message(t, msg.ID)
	assert.Equal(t, models.MessageStatusQueued, got.Status)
	assert.Equal(t, 3, got.RetryCount)
	require.NotNil(t, got.LastAttemptAt)
}

func TestRunFlushesOnPresenceEvent(t *testing.T) {
	t.Parallel()

	stub := newWebhookStub(t, http.StatusOK)
	events := make(chan presence.StatusEvent, 1)
	f := newFixture(t,
		delivery.WithPollInterval(time.Hour),
		delivery.WithPresenceEvents(events),
	)

	agent := f.addAgent(t, models.AgentStatusOffline, stub.server.URL)
	attempt := f.clock.Now().Add(-time.Minute)
	msg := f.enqueue(t, agent.ID,
		testutil.MessageFactory.WithRetryCount(3),
		testutil.MessageFactory.WithLastAttemptAt(attempt))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.worker.Run(ctx)

	// The initial scan skips the offline agent.
	require.Never(t, func() bool {
		return stub.hits.Load() > 0
	}, 200*time.Millisecond, 20*time.Millisecond)

	// The agent comes online and its backlog flushes without waiting for
	// the next scan.
	require.NoError(t, f.agents.UpdateAgentStatus(ctx, agent.ID, models.AgentStatusOnline, f.clock.Now()))
	events <- presence.StatusEvent{AgentID: agent.ID, Status: models.AgentStatusOnline}

	require.Eventually(t, func() bool {
		return f.message(t, msg.ID).Status == models.MessageStatusDelivered
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRunIgnoresOfflineEvents(t *testing.T) {
	t.Parallel()

	stub := newWebhookStub(t, http.StatusOK)
	events := make(chan presence.StatusEvent, 1)
	f := newFixture(t,
		delivery.WithPollInterval(time.Hour),
		delivery.WithPresenceEvents(events),
	)

	agent := f.addAgent(t, models.AgentStatusOffline, stub.server.URL)
	attempt := f.clock.Now().Add(-time.Minute)
	f.enqueue(t, agent.ID,
		testutil.MessageFactory.WithRetryCount(1),
		testutil.MessageFactory.WithLastAttemptAt(attempt))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.worker.Run(ctx)

	events <- presence.StatusEvent{AgentID: agent.ID, Status: models.AgentStatusOffline}

	require.Never(t, func() bool {
		return stub.hits.Load() > 0
	}, 300*time.Millisecond, 20*time.Millisecond)
}

func TestConcurrentWorkersDeliverOnce(t *testing.T) {
	t.Parallel()

	stub := newWebhookStub(t, http.StatusOK)
	f := newFixture(t)
	agent := f.addAgent(t, models.AgentStatusOnline, stub.server.URL)
	msg := f.enqueue(t, agent.ID)

	// A second worker sharing the same stores races the first over the
	// same queue scan.
	other := delivery.New(
		f.messages,
		f.agents,
		dispatch.New(),
		retry.DefaultPolicy(),
		testutil.CreateTestLogger(t),
		delivery.WithClock(f.clock.Now),
	)

	var wg sync.WaitGroup
	for _, w := range []*delivery.Worker{f.worker, other} {
		wg.Add(1)
		go func(w *delivery.Worker) {
			defer wg.Done()
			require.NoError(t, w.Tick(context.Background()))
		}(w)
	}
	wg.Wait()

	got := f.message(t, msg.ID)
	assert.Equal(t, models.MessageStatusDelivered, got.Status)
	// Both may have dispatched, but the state machine settled exactly once.
	assert.Equal(t, 0, got.RetryCount)
	require.NotNil(t, got.DeliveredAt)
}
