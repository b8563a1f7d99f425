package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/agentstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/agentstore/memagentstore"
	"github.com/Chronic700/Agent-Connect/internal/models"
	msgdriver "github.com/Chronic700/Agent-Connect/internal/msgstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/msgstore/memmsgstore"
	"github.com/Chronic700/Agent-Connect/internal/presence"
	"github.com/Chronic700/Agent-Connect/internal/services/api"
	"github.com/Chronic700/Agent-Connect/internal/util/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router   http.Handler
	agents   driver.AgentStore
	messages msgdriver.MessageStore
}

func newTestAPI(t *testing.T, cfg api.RouterConfig) *testAPI {
	a := &testAPI{
		agents:   memagentstore.New(),
		messages: memmsgstore.New(),
	}
	a.router = api.NewRouter(cfg, testutil.CreateTestLogger(t), a.agents, a.messages, nil, nil)
	return a
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type registeredAgent struct {
	api.RegisterAgentResponse
	apiKey string
}

func (a *testAPI) register(t *testing.T, name string) registeredAgent {
	w := a.do(http.MethodPost, "/api/agents/register", "", gin.H{
		"name":        name,
		"webhook_url": "https://example.com/hook",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp api.RegisterAgentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return registeredAgent{RegisterAgentResponse: resp, apiKey: resp.APIKey}
}

func TestRegisterAgent(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t, api.RouterConfig{})
	reg := a.register(t, "translator")

	assert.NotEmpty(t, reg.ID)
	assert.NotEmpty(t, reg.apiKey)
	assert.NotEmpty(t, reg.Secret)
	assert.Equal(t, models.AgentStatusOffline, reg.Status)

	// The stored record carries only the key hash.
	stored, err := a.agents.RetrieveAgent(context.Background(), reg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, api.HashAPIKey(reg.apiKey), stored.APIKeyHash)
}

func TestRegisterAgentValidation(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t, api.RouterConfig{})

	tests := []struct {
		name string
		body gin.H
	}{
		{"missing name", gin.H{"webhook_url": "https://example.com/hook"}},
		{"missing webhook", gin.H{"name": "x"}},
		{"bad webhook url", gin.H{"name": "x", "webhook_url": "not a url"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := a.do(http.MethodPost, "/api/agents/register", "", tc.body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t, api.RouterConfig{})

	w := a.do(http.MethodGet, "/api/agents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(http.MethodGet, "/api/agents", "not-a-real-key", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRetrieveAgent(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t, api.RouterConfig{})
	alpha := a.register(t, "alpha")
	beta := a.register(t, "beta")

	w := a.do(http.MethodGet, "/api/agents/"+beta.ID, alpha.apiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Agent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, beta.ID, got.ID)
	assert.Equal(t, "beta", got.Name)

	w = a.do(http.MethodGet, "/api/agents/agent_nope", alpha.apiKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAgentsStatusFilter(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t, api.RouterConfig{})
	alpha := a.register(t, "alpha")
	a.register(t, "beta")

	require.NoError(t, a.agents.UpdateAgentStatus(context.Background(), alpha.ID, models.AgentStatusOnline, time.Now()))

	w := a.do(http.MethodGet, "/api/agents?status=online", alpha.apiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp driver.ListAgentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Agents, 1)
	assert.Equal(t, alpha.ID, resp.Agents[0].ID)
	assert.Equal(t, 1, resp.Total)

	w = a.do(http.MethodGet, "/api/agents?status=bogus", alpha.apiKey, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUpdateAgentStatus(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t, api.RouterConfig{})
	alpha := a.register(t, "alpha")
	beta := a.register(t, "beta")

	w := a.do(http.MethodPut, "/api/agents/"+alpha.ID+"/status", alpha.apiKey, gin.H{"status": "online"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := a.agents.RetrieveAgent(context.Background(), alpha.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusOnline, stored.Status)

	// Agents cannot change each other's status.
	w = a.do(http.MethodPut, "/api/agents/"+beta.ID+"/status", alpha.apiKey, gin.H{"status": "online"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(http.MethodPut, "/api/agents/"+alpha.ID+"/status", alpha.apiKey, gin.H{"status": "asleep"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUpdateStatusPublishesPresence(t *testing.T) {
	t.Parallel()

	client := testutil.CreateTestRedisClient(t)
	logger := testutil.CreateTestLogger(t)

	agents := memagentstore.New()
	messages := memmsgstore.New()
	publisher := presence.NewPublisher(client, logger)
	router := api.NewRouter(api.RouterConfig{}, logger, agents, messages, publisher, nil)
	a := &testAPI{router: router, agents: agents, messages: messages}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	subscriber := presence.NewSubscriber(client, logger)
	go subscriber.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	reg := a.register(t, "alpha")
	w := a.do(http.MethodPut, "/api/agents/"+reg.ID+"/status", reg.apiKey, gin.H{"status": "online"})
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case event := <-subscriber.Events():
		assert.Equal(t, reg.ID, event.AgentID)
		assert.Equal(t, models.AgentStatusOnline, event.Status)
	case <-ctx.Done():
		t.Fatal("timed out waiting for presence event")
	}
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t, api.RouterConfig{})
	alpha := a.register(t, "alpha")

	// Recipient existence is not checked at submission.
	w := a.do(http.MethodPost, "/api/messages/send", alpha.apiKey, gin.H{
		"to_agent_id": "agent_unknown",
		"content":     gin.H{"task": "summarize"},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var msg models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	assert.Equal(t, alpha.ID, msg.FromAgent)
	assert.Equal(t, "agent_unknown", msg.ToAgent)
	assert.Equal(t, models.MessageStatusQueued, msg.Status)
	assert.JSONEq(t, `{"task":"summarize"}`, string(msg.Content))

	stored, err := a.messages.Retrieve(context.Background(), msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestSendMessageValidation(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t, api.RouterConfig{})
	alpha := a.register(t, "alpha")

	w := a.do(http.MethodPost, "/api/messages/send", alpha.apiKey, gin.H{"content": gin.H{"x": 1}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = a.do(http.MethodPost, "/api/messages/send", alpha.apiKey, gin.H{"to_agent_id": "agent_x"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRetrieveMessageVisibility(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t, api.RouterConfig{})
	alpha := a.register(t, "alpha")
	beta := a.register(t, "beta")
	gamma := a.register(t, "gamma")

	w := a.do(http.MethodPost, "/api/messages/send", alpha.apiKey, gin.H{
		"to_agent_id": beta.ID,
		"content":     gin.H{"x": 1},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	var msg models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))

	// Sender and recipient can read it.
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/messages/"+msg.ID, alpha.apiKey, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/messages/"+msg.ID, beta.apiKey, nil).Code)

	// A third party gets the same response as for a missing message.
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/messages/"+msg.ID, gamma.apiKey, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/messages/msg_nope", alpha.apiKey, nil).Code)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t, api.RouterConfig{RateLimit: 2})
	alpha := a.register(t, "alpha")

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/agents", alpha.apiKey, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/agents", alpha.apiKey, nil).Code)

	w := a.do(http.MethodGet, "/api/agents", alpha.apiKey, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Other agents are unaffected.
	beta := a.register(t, "beta")
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/agents", beta.apiKey, nil).Code)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t, api.RouterConfig{})
	w := a.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
