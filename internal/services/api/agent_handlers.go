package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/agentstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/idgen"
	"github.com/Chronic700/Agent-Connect/internal/logging"
	"github.com/Chronic700/Agent-Connect/internal/models"
	"github.com/Chronic700/Agent-Connect/internal/presence"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AgentHandlers struct {
	logger    *logging.Logger
	agents    driver.AgentStore
	publisher *presence.Publisher
}

func NewAgentHandlers(logger *logging.Logger, agents driver.AgentStore, publisher *presence.Publisher) *AgentHandlers {
	return &AgentHandlers{
		logger:    logger,
		agents:    agents,
		publisher: publisher,
	}
}

type RegisterAgentRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	WebhookURL  string `json:"webhook_url" binding:"required,url"`
}

type RegisterAgentResponse struct {
	models.Agent
	// APIKey and Secret are returned exactly once, here.
	APIKey string `json:"api_key"`
	Secret string `json:"webhook_secret"`
}

func (h *AgentHandlers) Register(c *gin.Context) {
	var req RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithValidationError(c, err)
		return
	}

	apiKey := idgen.APIKey()
	agent := models.NewAgent(req.Name, req.Description, req.WebhookURL, HashAPIKey(apiKey))

	if err := h.agents.CreateAgent(c.Request.Context(), agent); err != nil {
		if errors.Is(err, driver.ErrDuplicateAgent) {
			AbortWithError(c, http.StatusConflict, ErrorResponse{
				Code:    http.StatusConflict,
				Message: "agent already exists",
			})
			return
		}
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	h.logger.Ctx(c.Request.Context()).Info("agent registered",
		zap.String("agent_id", agent.ID),
		zap.String("name", agent.Name))

	c.JSON(http.StatusCreated, RegisterAgentResponse{
		Agent:  agent,
		APIKey: apiKey,
		Secret: agent.Secret,
	})
}

func (h *AgentHandlers) Retrieve(c *gin.Context) {
	agentID := c.Param("agentID")

	agent, err := h.agents.RetrieveAgent(c.Request.Context(), agentID)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}
	if agent == nil {
		AbortWithError(c, http.StatusNotFound, ErrorResponse{
			Code:    http.StatusNotFound,
			Message: "agent not found",
		})
		return
	}

	c.JSON(http.StatusOK, agent)
}

func (h *AgentHandlers) List(c *gin.Context) {
	req := driver.ListAgentsRequest{
		Limit: driver.DefaultListLimit,
	}

	if statusParam := c.Query("status"); statusParam != "" {
		status := models.AgentStatus(statusParam)
		if !status.Valid() {
			AbortWithError(c, http.StatusUnprocessableEntity, ErrorResponse{
				Code:    http.StatusUnprocessableEntity,
				Message: "invalid status filter",
			})
			return
		}
		req.Status = &status
	}
	if limitParam := c.Query("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 1 || limit > driver.MaxListLimit {
			AbortWithError(c, http.StatusUnprocessableEntity, ErrorResponse{
				Code:    http.StatusUnprocessableEntity,
				Message: "invalid limit",
			})
			return
		}
		req.Limit = limit
	}
	if offsetParam := c.Query("offset"); offsetParam != "" {
		offset, err := strconv.Atoi(offsetParam)
		if err != nil || offset < 0 {
			AbortWithError(c, http.StatusUnprocessableEntity, ErrorResponse{
				Code:    http.StatusUnprocessableEntity,
				Message: "invalid offset",
			})
			return
		}
		req.Offset = offset
	}

	resp, err := h.agents.ListAgents(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	c.JSON(http.StatusOK, resp)
}

type UpdateAgentStatusRequest struct {
	Status models.AgentStatus `json:"status" binding:"required,oneof=online offline"`
}

// UpdateStatus lets an agent flip its own availability. Coming online
// publishes a presence event so queued messages flush without waiting for
// the next scan.
func (h *AgentHandlers) UpdateStatus(c *gin.Context) {
	authed := mustAgentFromContext(c)
	agentID := c.Param("agentID")

	if authed.ID != agentID {
		AbortWithError(c, http.StatusForbidden, ErrorResponse{
			Code:    http.StatusForbidden,
			Message: "agents may only update their own status",
		})
		return
	}

	var req UpdateAgentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithValidationError(c, err)
		return
	}

	now := time.Now().UTC()
	if err := h.agents.UpdateAgentStatus(c.Request.Context(), agentID, req.Status, now); err != nil {
		if errors.Is(err, driver.ErrAgentNotFound) {
			AbortWithError(c, http.StatusNotFound, ErrorResponse{
				Code:    http.StatusNotFound,
				Message: "agent not found",
			})
			return
		}
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	h.logger.Ctx(c.Request.Context()).Info("agent status updated",
		zap.String("agent_id", agentID),
		zap.String("status", string(req.Status)))

	if h.publisher != nil && req.Status == models.AgentStatusOnline && authed.Status != models.AgentStatusOnline {
		h.publisher.Publish(c.Request.Context(), agentID, req.Status)
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         agentID,
		"status":     req.Status,
		"updated_at": now,
	})
}
