package database

import (
	"context"
	"sync"
	"testing"

	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetOrCreateIsCanonical(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, created, err := store.GetOrCreateConversation(ctx, "bob", "alice", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice", first.Participant1)
	assert.Equal(t, "bob", first.Participant2)

	second, created, err := store.GetOrCreateConversation(ctx, "alice", "bob", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	_, _, err = store.GetOrCreateConversation(ctx, "alice", "alice", nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
}

func TestMemoryConcurrentGetOrCreateYieldsOneRow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ids := make([]string, 20)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 0 {
				a, b = b, a
			}
			conv, _, err := store.GetOrCreateConversation(ctx, a, b, nil)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestMemoryPostMessageIncrementsRecipientOnly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _, err := store.GetOrCreateConversation(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	msg, err := store.PostMessage(ctx, models.NewMessage{ConversationID: conv.ID, SenderID: "alice", Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.MessageText, msg.Type)
	assert.False(t, msg.IsRead)

	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadCountFor("alice"))
	assert.Equal(t, 1, got.UnreadCountFor("bob"))
	assert.Equal(t, "hello", got.LastMessagePreview)
	require.NotNil(t, got.LastMessageAt)
	assert.Equal(t, msg.SentAt, *got.LastMessageAt)
}

func TestMemoryPostMessageValidation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _, err := store.GetOrCreateConversation(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   models.NewMessage
		code string
	}{
		{"blank text", models.NewMessage{ConversationID: conv.ID, SenderID: "alice", Content: "   "}, utils.ErrInvalidInput},
		{"image without attachment", models.NewMessage{ConversationID: conv.ID, SenderID: "alice", Type: models.MessageImage}, utils.ErrInvalidInput},
		{"unknown type", models.NewMessage{ConversationID: conv.ID, SenderID: "alice", Content: "x", Type: "video"}, utils.ErrInvalidInput},
		{"outsider", models.NewMessage{ConversationID: conv.ID, SenderID: "mallory", Content: "hi"}, utils.ErrNotParticipant},
		{"unknown conversation", models.NewMessage{ConversationID: "missing", SenderID: "alice", Content: "hi"}, utils.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.PostMessage(ctx, tt.in)
			assert.True(t, utils.IsErrorCode(err, tt.code), "got %v", err)
		})
	}

	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadCountP1+got.UnreadCountP2)
}

func TestMemoryMarkReadResetsCounter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _, _ := store.GetOrCreateConversation(ctx, "alice", "bob", nil)

	for i := 0; i < 3; i++ {
		_, err := store.PostMessage(ctx, models.NewMessage{ConversationID: conv.ID, SenderID: "alice", Content: "ping"})
		require.NoError(t, err)
	}
	_, err := store.PostMessage(ctx, models.NewMessage{ConversationID: conv.ID, SenderID: "bob", Content: "pong"})
	require.NoError(t, err)

	require.NoError(t, store.MarkConversationRead(ctx, conv.ID, "bob"))
	require.NoError(t, store.MarkConversationRead(ctx, conv.ID, "bob"))

	got, _ := store.GetConversation(ctx, conv.ID)
	assert.Equal(t, 0, got.UnreadCountFor("bob"))
	assert.Equal(t, 1, got.UnreadCountFor("alice"))

	for _, m := range store.Messages(conv.ID) {
		if m.SenderID == "alice" {
			assert.True(t, m.IsRead)
			assert.NotNil(t, m.ReadAt)
		} else {
			assert.False(t, m.IsRead)
		}
	}

	err = store.MarkConversationRead(ctx, conv.ID, "mallory")
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotParticipant))
}

func TestMemoryConcurrentPostsLoseNoIncrements(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _, _ := store.GetOrCreateConversation(ctx, "alice", "bob", nil)

	const perSender = 50
	var wg sync.WaitGroup
	for _, sender := range []string{"alice", "bob"} {
		for i := 0; i < perSender; i++ {
			wg.Add(1)
			go func(sender string) {
				defer wg.Done()
				_, err := store.PostMessage(ctx, models.NewMessage{ConversationID: conv.ID, SenderID: sender, Content: "hi"})
				assert.NoError(t, err)
			}(sender)
		}
	}
	wg.Wait()

	got, _ := store.GetConversation(ctx, conv.ID)
	assert.Equal(t, perSender, got.UnreadCountP1)
	assert.Equal(t, perSender, got.UnreadCountP2)
}

func TestMemoryDeleteMessageRecomputesPreview(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _, _ := store.GetOrCreateConversation(ctx, "alice", "bob", nil)

	_, err := store.PostMessage(ctx, models.NewMessage{ConversationID: conv.ID, SenderID: "alice", Content: "first"})
	require.NoError(t, err)
	second, err := store.PostMessage(ctx, models.NewMessage{ConversationID: conv.ID, SenderID: "alice", Content: "second"})
	require.NoError(t, err)

	err = store.DeleteMessage(ctx, second.ID, "bob")
	assert.True(t, utils.IsErrorCode(err, utils.ErrForbidden))

	require.NoError(t, store.DeleteMessage(ctx, second.ID, "alice"))
	got, _ := store.GetConversation(ctx, conv.ID)
	assert.Equal(t, "first", got.LastMessagePreview)

	_, err = store.GetMessage(ctx, second.ID)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestMemoryReactUpserts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _, _ := store.GetOrCreateConversation(ctx, "alice", "bob", nil)
	msg, _ := store.PostMessage(ctx, models.NewMessage{ConversationID: conv.ID, SenderID: "alice", Content: "hi"})

	require.NoError(t, store.React(ctx, msg.ID, "bob", models.ReactionLike))
	require.NoError(t, store.React(ctx, msg.ID, "bob", models.ReactionLove))

	reactions := store.Reactions(msg.ID)
	require.Len(t, reactions, 1)
	assert.Equal(t, models.ReactionLove, reactions[0].Type)

	err := store.React(ctx, msg.ID, "mallory", models.ReactionLike)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotParticipant))
	err = store.React(ctx, msg.ID, "bob", "meh")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
}

func TestMemoryNotificationsAreOwnerScoped(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	n := &models.Notification{UserID: "alice", Type: models.NotificationWelcome, Title: "Welcome"}
	require.NoError(t, store.CreateNotification(ctx, n))
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, models.PriorityNormal, n.Priority)

	found, err := store.MarkNotificationRead(ctx, n.ID, "bob")
	require.NoError(t, err)
	assert.False(t, found)
	stored, _ := store.Notification(n.ID)
	assert.False(t, stored.IsRead)

	found, err = store.MarkNotificationRead(ctx, n.ID, "alice")
	require.NoError(t, err)
	assert.True(t, found)
	stored, _ = store.Notification(n.ID)
	assert.True(t, stored.IsRead)

	found, err = store.MarkNotificationRead(ctx, "missing", "alice")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryPingAfterClose(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close(context.Background()))
	assert.True(t, utils.IsErrorCode(store.Ping(context.Background()), utils.ErrStoreUnavailable))
}
