package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "warden/pkg/domain"
	audit "warden/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	alice := id.UserID(uuid.New())
	bob := id.UserID(uuid.New())
	now := time.Now()

	require.NoError(t, store.Emit(ctx, audit.Event{Name: audit.EventLoginFailed, UserID: alice, Timestamp: now}))
	require.NoError(t, store.Emit(ctx, audit.Event{Name: audit.EventLoginSucceeded, UserID: alice, Timestamp: now}))
	require.NoError(t, store.Append(ctx, audit.Event{Name: audit.EventLoginFailed, UserID: bob, Timestamp: now}))

	t.Run("list by user", func(t *testing.T) {
		events, err := store.ListByUser(ctx, alice)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, audit.EventLoginFailed, events[0].Name)
	})

	t.Run("list by name", func(t *testing.T) {
		events, err := store.ListByName(ctx, audit.EventLoginFailed)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("clear", func(t *testing.T) {
		store.Clear()
		events, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
