package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "warden/pkg/domain"
)

func TestMarshal(t *testing.T) {
	userID := id.UserID(uuid.New())
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	raw, err := Marshal(Event{
		Name:       EventThrottled,
		Timestamp:  at,
		UserID:     userID,
		Scope:      "user",
		RetryAfter: 45 * time.Second,
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "throttled", got["name"])
	assert.Equal(t, "security", got["category"])
	assert.Equal(t, userID.String(), got["user_id"])
	assert.Equal(t, float64(45000), got["retry_after_ms"])
	assert.Equal(t, "2026-03-01T12:00:00Z", got["timestamp"])
}

func TestPartitionKey(t *testing.T) {
	assert.Equal(t, "login.failed", PartitionKey(Event{Name: EventLoginFailed}))
	userID := id.UserID(uuid.New())
	assert.Equal(t, userID.String(), PartitionKey(Event{Name: EventLoginFailed, UserID: userID}))
}
