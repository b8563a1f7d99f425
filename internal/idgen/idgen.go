// Package idgen generates the prefixed identifiers used across the system
// (e.g. "msg_V1StGXR8z5jdHi6BmyT91", "agent_...", "ak_...").
package idgen

import (
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Alphanumeric only so IDs stay double-click selectable and URL-safe.
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	defaultSize = 21
	keySize     = 32
	secretSize  = 43
)

func generate(prefix string, size int) string {
	id, err := gonanoid.Generate(alphabet, size)
	if err != nil {
		// crypto/rand failure; fall back to UUID v4
		id = uuid.New().String()
	}
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// Message generates a message ID.
func Message() string {
	return generate("msg", defaultSize)
}

// Agent generates an agent ID.
func Agent() string {
	return generate("agent", defaultSize)
}

// APIKey generates an API key. Only its SHA-256 hash is persisted.
func APIKey() string {
	return generate("ak", keySize)
}

// WebhookSecret generates the HMAC signing secret shared with an agent.
func WebhookSecret() string {
	return generate("", secretSize)
}
