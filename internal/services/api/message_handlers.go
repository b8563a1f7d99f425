package api

import (
	"encoding/json"
	"net/http"

	"github.com/Chronic700/Agent-Connect/internal/logging"
	"github.com/Chronic700/Agent-Connect/internal/models"
	msgdriver "github.com/Chronic700/Agent-Connect/internal/msgstore/driver"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MessageHandlers struct {
	logger   *logging.Logger
	messages msgdriver.MessageStore
}

func NewMessageHandlers(logger *logging.Logger, messages msgdriver.MessageStore) *MessageHandlers {
	return &MessageHandlers{
		logger:   logger,
		messages: messages,
	}
}

type SendMessageRequest struct {
	ToAgentID string          `json:"to_agent_id" binding:"required"`
	Content   json.RawMessage `json:"content" binding:"required"`
}

// Send enqueues a message for delivery. The recipient is deliberately not
// checked here; acceptance means "queued", and the delivery loop resolves
// recipients at attempt time.
func (h *MessageHandlers) Send(c *gin.Context) {
	sender := mustAgentFromContext(c)

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithValidationError(c, err)
		return
	}
	if !json.Valid(req.Content) {
		AbortWithError(c, http.StatusUnprocessableEntity, ErrorResponse{
			Code:    http.StatusUnprocessableEntity,
			Message: "content must be valid JSON",
		})
		return
	}

	msg := models.NewMessage(sender.ID, req.ToAgentID, req.Content)
	if err := h.messages.Insert(c.Request.Context(), msg); err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	h.logger.Ctx(c.Request.Context()).Info("message queued",
		zap.String("message_id", msg.ID),
		zap.String("from_agent_id", msg.FromAgent),
		zap.String("to_agent_id", msg.ToAgent))

	c.JSON(http.StatusAccepted, msg)
}

// Retrieve returns a message's delivery state to its sender or recipient.
// Anyone else gets a 404 rather than confirmation the message exists.
func (h *MessageHandlers) Retrieve(c *gin.Context) {
	agent := mustAgentFromContext(c)
	messageID := c.Param("messageID")

	msg, err := h.messages.Retrieve(c.Request.Context(), messageID)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}
	if msg == nil || (msg.FromAgent != agent.ID && msg.ToAgent != agent.ID) {
		AbortWithError(c, http.StatusNotFound, ErrorResponse{
			Code:    http.StatusNotFound,
			Message: "message not found",
		})
		return
	}

	c.JSON(http.StatusOK, msg)
}
