package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"investafrik-messaging/internal/database"
	"investafrik-messaging/internal/logging"
	"investafrik-messaging/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenLookup struct{}

func (brokenLookup) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return nil, errors.New("database down")
}

func TestCanJoinConversation(t *testing.T) {
	store := database.NewMemoryStore()
	conv, _, err := store.GetOrCreateConversation(context.Background(), "alice", "bob", nil)
	require.NoError(t, err)
	guard := NewGuard(store, logging.Discard())
	ctx := context.Background()

	tests := []struct {
		name      string
		principal *models.Principal
		convID    string
		want      bool
	}{
		{"first participant", &models.Principal{UserID: "alice"}, conv.ID, true},
		{"second participant", &models.Principal{UserID: "bob"}, conv.ID, true},
		{"outsider", &models.Principal{UserID: "mallory"}, conv.ID, false},
		{"anonymous", nil, conv.ID, false},
		{"expired token", &models.Principal{UserID: "alice", ExpiresAt: time.Now().Add(-time.Second)}, conv.ID, false},
		{"unknown conversation", &models.Principal{UserID: "alice"}, "9f1c2d3e-4b5a-4c6d-8e7f-0a1b2c3d4e5f", false},
		{"malformed id", &models.Principal{UserID: "alice"}, "not-a-uuid", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guard.CanJoinConversation(ctx, tt.principal, tt.convID))
		})
	}
}

func TestCanJoinConversationLookupFailureDenies(t *testing.T) {
	guard := NewGuard(brokenLookup{}, logging.Discard())
	ok := guard.CanJoinConversation(context.Background(), &models.Principal{UserID: "alice"}, "9f1c2d3e-4b5a-4c6d-8e7f-0a1b2c3d4e5f")
	assert.False(t, ok)
}

func TestCanJoinNotifications(t *testing.T) {
	guard := NewGuard(brokenLookup{}, logging.Discard())
	assert.True(t, guard.CanJoinNotifications(&models.Principal{UserID: "alice"}))
	assert.False(t, guard.CanJoinNotifications(nil))
	assert.False(t, guard.CanJoinNotifications(&models.Principal{}))
}
