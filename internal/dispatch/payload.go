package dispatch

import (
	"encoding/json"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/models"
)

// Payload is the wire format POSTed to recipient webhooks. The timestamp is
// the message's creation time, not the attempt time, so recipients can
// detect replays; together with the stored content bytes this keeps the
// serialized payload identical across retries of the same message.
type Payload struct {
	MessageID      string          `json:"message_id"`
	FromAgentID    string          `json:"from_agent_id"`
	ToAgentID      string          `json:"to_agent_id"`
	MessageContent json.RawMessage `json:"message_content"`
	Timestamp      string          `json:"timestamp"`
}

// NewPayload builds the webhook payload for a message.
func NewPayload(msg models.Message) Payload {
	return Payload{
		MessageID:      msg.ID,
		FromAgentID:    msg.FromAgent,
		ToAgentID:      msg.ToAgent,
		MessageContent: msg.Content,
		Timestamp:      msg.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Bytes returns the serialized payload. These exact bytes are signed and
// sent as the request body.
func (p Payload) Bytes() ([]byte, error) {
	return json.Marshal(p)
}
