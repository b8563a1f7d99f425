package api

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/Chronic700/Agent-Connect/internal/agentstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/logging"
	msgdriver "github.com/Chronic700/Agent-Connect/internal/msgstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/presence"
	"github.com/Chronic700/Agent-Connect/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type RouterConfig struct {
	// RateLimit caps authenticated requests per agent per hour. Zero
	// disables limiting.
	RateLimit int
}

// NewRouter assembles the HTTP surface. The presence publisher and health
// tracker may be nil; the corresponding features degrade gracefully.
func NewRouter(
	cfg RouterConfig,
	logger *logging.Logger,
	agents driver.AgentStore,
	messages msgdriver.MessageStore,
	publisher *presence.Publisher,
	health *worker.HealthTracker,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}

	r.Use(LoggerMiddleware(logger))
	r.Use(ErrorHandlerMiddleware(logger))

	r.GET("/healthz", healthzHandler(health))

	agentHandlers := NewAgentHandlers(logger, agents, publisher)
	messageHandlers := NewMessageHandlers(logger, messages)

	auth := AgentAuthMiddleware(logger, agents)
	rateLimit := RateLimitMiddleware(cfg.RateLimit)

	apiRouter := r.Group("/api")

	// Registration is the one unauthenticated endpoint; it is what hands
	// out API keys in the first place.
	apiRouter.POST("/agents/register", agentHandlers.Register)

	authed := apiRouter.Group("")
	authed.Use(auth, rateLimit)
	authed.GET("/agents", agentHandlers.List)
	authed.GET("/agents/:agentID", agentHandlers.Retrieve)
	authed.PUT("/agents/:agentID/status", agentHandlers.UpdateStatus)
	authed.POST("/messages/send", messageHandlers.Send)
	authed.GET("/messages/:messageID", messageHandlers.Retrieve)

	return r
}

func healthzHandler(health *worker.HealthTracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if health == nil {
			c.String(http.StatusOK, "OK")
			return
		}
		status := health.Status()
		if health.IsHealthy() {
			c.JSON(http.StatusOK, status)
			return
		}
		c.JSON(http.StatusServiceUnavailable, status)
	}
}
