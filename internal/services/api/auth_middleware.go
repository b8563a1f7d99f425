package api

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/Chronic700/Agent-Connect/internal/agentstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/logging"
	"github.com/Chronic700/Agent-Connect/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var ErrInvalidBearerToken = errors.New("invalid token")

const agentContextKey = "agent"

// HashAPIKey is the stored form of an agent API key. Only the hash is
// persisted; the plaintext key is shown once at registration.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// AgentAuthMiddleware resolves the bearer token to an agent and stores it in
// the request context.
func AgentAuthMiddleware(logger *logging.Logger, agents driver.AgentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, http.StatusBadRequest, ErrInvalidBearerToken)
			return
		}
		if token == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		agent, err := agents.RetrieveAgentByAPIKeyHash(c.Request.Context(), HashAPIKey(token))
		if err != nil {
			logger.Ctx(c.Request.Context()).Error("failed to resolve api key", zap.Error(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if agent == nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set(agentContextKey, *agent)
		c.Next()
	}
}

func mustAgentFromContext(c *gin.Context) models.Agent {
	return c.MustGet(agentContextKey).(models.Agent)
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", nil
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("invalid bearer token")
	}
	return strings.TrimPrefix(header, "Bearer "), nil
}
