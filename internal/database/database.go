// internal/database/database.go
package database

import (
	"context"
	"strings"
	"time"

	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"
)

// Store defines the persistence operations of the messaging core. The
// PostgreSQL, MongoDB and in-memory backends all satisfy it.
type Store interface {
	// Conversations
	GetOrCreateConversation(ctx context.Context, userA, userB string, projectID *string) (*models.Conversation, bool, error)
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	MarkConversationRead(ctx context.Context, conversationID, userID string) error

	// Messages
	PostMessage(ctx context.Context, msg models.NewMessage) (*models.Message, error)
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID, userID string) error
	React(ctx context.Context, messageID, userID string, reaction models.ReactionType) error

	// Notifications
	CreateNotification(ctx context.Context, n *models.Notification) error
	MarkNotificationRead(ctx context.Context, notificationID, userID string) (bool, error)

	// Connection
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func validatePair(userA, userB string) error {
	if userA == "" || userB == "" {
		return utils.NewValidationError("both participants are required")
	}
	if userA == userB {
		return utils.NewValidationError("cannot start a conversation with yourself")
	}
	return nil
}

// normalizeMessage fills defaults and rejects messages that cannot be stored.
func normalizeMessage(msg models.NewMessage) (models.NewMessage, error) {
	if msg.ConversationID == "" {
		return msg, utils.NewValidationError("conversation id is required")
	}
	if msg.SenderID == "" {
		return msg, utils.NewValidationError("sender id is required")
	}
	if msg.Type == "" {
		msg.Type = models.MessageText
	}
	if !msg.Type.Valid() {
		return msg, utils.NewValidationError("unknown message type")
	}
	switch msg.Type {
	case models.MessageText:
		if strings.TrimSpace(msg.Content) == "" {
			return msg, utils.NewValidationError("message content cannot be empty")
		}
	case models.MessageImage, models.MessageFile:
		if msg.Attachment == nil || msg.Attachment.Ref == "" {
			return msg, utils.NewValidationError("attachment is required for " + string(msg.Type) + " messages")
		}
	}
	return msg, nil
}

func validateNotification(n *models.Notification) error {
	if n == nil || n.UserID == "" {
		return utils.NewValidationError("notification owner is required")
	}
	if !n.Type.Valid() {
		return utils.NewValidationError("unknown notification type")
	}
	if strings.TrimSpace(n.Title) == "" {
		return utils.NewValidationError("notification title is required")
	}
	if n.Priority == "" {
		n.Priority = models.PriorityNormal
	}
	if !n.Priority.Valid() {
		return utils.NewValidationError("unknown notification priority")
	}
	return nil
}

// buildMessage turns validated input into the row that gets stored.
func buildMessage(id string, msg models.NewMessage, sentAt time.Time) *models.Message {
	m := &models.Message{
		ID:             id,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Type:           msg.Type,
		SentAt:         sentAt,
	}
	if msg.Attachment != nil {
		ref := msg.Attachment.Ref
		size := msg.Attachment.Size
		m.AttachmentRef = &ref
		m.AttachmentName = msg.Attachment.Name
		m.AttachmentSize = &size
	}
	return m
}
