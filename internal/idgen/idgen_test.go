package idgen_test

import (
	"strings"
	"testing"

	"github.com/Chronic700/Agent-Connect/internal/idgen"
	"github.com/stretchr/testify/assert"
)

func TestIDPrefixes(t *testing.T) {
	t.Parallel()

	assert.True(t, strings.HasPrefix(idgen.Message(), "msg_"))
	assert.True(t, strings.HasPrefix(idgen.Agent(), "agent_"))
	assert.True(t, strings.HasPrefix(idgen.APIKey(), "ak_"))
	assert.NotContains(t, idgen.WebhookSecret(), "_")
}

func TestIDUniqueness(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := idgen.Message()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id: %s", id)
		seen[id] = struct{}{}
	}
}
