package session

import (
	"encoding/json"
	"time"

	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"
)

// Inbound frame types.
const (
	FrameChatMessage          = "chat_message"
	FrameTyping               = "typing"
	FrameMarkRead             = "mark_read"
	FrameMarkNotificationRead = "mark_notification_read"
)

// Outbound event types.
const (
	EventChatMessage     = "chat_message"
	EventTypingIndicator = "typing_indicator"
	EventMessagesRead    = "messages_read"
	EventNotification    = "notification"
)

// Frame is one decoded inbound frame. The set of implementations is closed;
// sessions match on it with a type switch.
type Frame interface {
	frameType() string
}

type ChatMessageFrame struct {
	Message string `json:"message"`
}

type TypingFrame struct {
	IsTyping bool `json:"is_typing"`
}

type MarkReadFrame struct{}

type MarkNotificationReadFrame struct {
	NotificationID string `json:"notification_id"`
}

func (*ChatMessageFrame) frameType() string          { return FrameChatMessage }
func (*TypingFrame) frameType() string               { return FrameTyping }
func (*MarkReadFrame) frameType() string             { return FrameMarkRead }
func (*MarkNotificationReadFrame) frameType() string { return FrameMarkNotificationRead }

// ParseFrame decodes an inbound frame by its required "type" field. Every
// failure is a ValidationError whose message is safe to send to the client.
func ParseFrame(data []byte) (Frame, error) {
	var envelope struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, utils.NewValidationError("invalid JSON")
	}
	if envelope.Type == nil || *envelope.Type == "" {
		return nil, utils.NewValidationError("missing frame type")
	}

	var frame Frame
	switch *envelope.Type {
	case FrameChatMessage:
		frame = &ChatMessageFrame{}
	case FrameTyping:
		frame = &TypingFrame{}
	case FrameMarkRead:
		return &MarkReadFrame{}, nil
	case FrameMarkNotificationRead:
		frame = &MarkNotificationReadFrame{}
	default:
		return nil, utils.NewValidationError("unknown frame type: " + *envelope.Type)
	}
	if err := json.Unmarshal(data, frame); err != nil {
		return nil, utils.NewValidationError("invalid " + *envelope.Type + " frame")
	}
	return frame, nil
}

type Sender struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar"`
}

type MessagePayload struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Sender  Sender `json:"sender"`
	SentAt  string `json:"sent_at"`
	IsRead  bool   `json:"is_read"`
}

type ChatMessageEvent struct {
	Type    string         `json:"type"`
	Message MessagePayload `json:"message"`
}

type TypingEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

type MessagesReadEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

type NotificationEvent struct {
	Type         string               `json:"type"`
	Notification *models.Notification `json:"notification"`
}

type ErrorFrame struct {
	Error string `json:"error"`
}

// NewChatMessageEvent renders a stored message as sent by p.
func NewChatMessageEvent(msg *models.Message, p *models.Principal) ChatMessageEvent {
	return ChatMessageEvent{
		Type: EventChatMessage,
		Message: MessagePayload{
			ID:      msg.ID,
			Content: msg.Content,
			Sender:  Sender{ID: p.UserID, Name: p.Name, Avatar: p.Avatar},
			SentAt:  msg.SentAt.UTC().Format(time.RFC3339Nano),
			IsRead:  msg.IsRead,
		},
	}
}

func NewNotificationEvent(n *models.Notification) NotificationEvent {
	return NotificationEvent{Type: EventNotification, Notification: n}
}
