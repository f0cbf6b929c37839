package auth

import (
	"context"
	"log/slog"

	"investafrik-messaging/internal/models"

	"github.com/google/uuid"
)

// ConversationLookup is the slice of the store the guard needs.
type ConversationLookup interface {
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
}

// Guard answers whether a principal may join a room. It never mutates state
// and never returns an error: anything it cannot confirm is a denial.
type Guard struct {
	conversations ConversationLookup
	logger        *slog.Logger
}

func NewGuard(conversations ConversationLookup, logger *slog.Logger) *Guard {
	return &Guard{conversations: conversations, logger: logger}
}

// CanJoinConversation is true iff p is authenticated and is one of the two
// participants of the conversation.
func (g *Guard) CanJoinConversation(ctx context.Context, p *models.Principal, conversationID string) bool {
	if !p.Authenticated() {
		return false
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return false
	}
	conv, err := g.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		g.logger.Debug("conversation lookup denied join", "conversation", conversationID, "user", p.UserID, "error", err)
		return false
	}
	return conv.HasParticipant(p.UserID)
}

// CanJoinNotifications is true iff p is authenticated.
func (g *Guard) CanJoinNotifications(p *models.Principal) bool {
	return p.Authenticated()
}
