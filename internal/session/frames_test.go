package session

import (
	"encoding/json"
	"testing"
	"time"

	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Frame
	}{
		{"chat message", `{"type":"chat_message","message":"hi"}`, &ChatMessageFrame{Message: "hi"}},
		{"typing", `{"type":"typing","is_typing":true}`, &TypingFrame{IsTyping: true}},
		{"mark read", `{"type":"mark_read"}`, &MarkReadFrame{}},
		{"mark notification read", `{"type":"mark_notification_read","notification_id":"n1"}`, &MarkNotificationReadFrame{NotificationID: "n1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFrame([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFrameRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		msg  string
	}{
		{"not json", `hello`, "invalid JSON"},
		{"array", `[1,2]`, "invalid JSON"},
		{"missing type", `{"message":"hi"}`, "missing frame type"},
		{"empty type", `{"type":""}`, "missing frame type"},
		{"unknown type", `{"type":"shout"}`, "unknown frame type: shout"},
		{"wrong field type", `{"type":"chat_message","message":42}`, "invalid chat_message frame"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame([]byte(tt.in))
			require.Error(t, err)
			assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
			assert.Equal(t, tt.msg, clientMessage(err))
		})
	}
}

func TestChatMessageEventShape(t *testing.T) {
	avatar := "https://cdn.example/a.png"
	sentAt := time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC)
	msg := &models.Message{ID: "m1", Content: "Hello", SentAt: sentAt}

	var got map[string]any
	require.NoError(t, json.Unmarshal(encode(NewChatMessageEvent(msg, &models.Principal{UserID: "u1", Name: "Ada", Avatar: &avatar})), &got))

	assert.Equal(t, "chat_message", got["type"])
	payload := got["message"].(map[string]any)
	assert.Equal(t, "m1", payload["id"])
	assert.Equal(t, "Hello", payload["content"])
	assert.Equal(t, "2024-03-01T12:00:00.0000005Z", payload["sent_at"])
	assert.Equal(t, false, payload["is_read"])
	assert.Equal(t, map[string]any{"id": "u1", "name": "Ada", "avatar": avatar}, payload["sender"])

	require.NoError(t, json.Unmarshal(encode(NewChatMessageEvent(msg, &models.Principal{UserID: "u2"})), &got))
	sender := got["message"].(map[string]any)["sender"].(map[string]any)
	assert.Contains(t, sender, "avatar")
	assert.Nil(t, sender["avatar"])
}
