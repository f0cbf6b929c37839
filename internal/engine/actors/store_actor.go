package actors

import (
	"context"
	"log/slog"
	"time"

	"investafrik-messaging/internal/database"
	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

// Message types for StoreActor. Each carries the caller's context so a
// cancelled connection also cancels its in-flight query.
type (
	GetOrCreateConversationMsg struct {
		Ctx       context.Context
		UserA     string
		UserB     string
		ProjectID *string
	}

	GetConversationMsg struct {
		Ctx            context.Context
		ConversationID string
	}

	PostMessageMsg struct {
		Ctx     context.Context
		Message models.NewMessage
	}

	GetMessageMsg struct {
		Ctx       context.Context
		MessageID string
	}

	DeleteMessageMsg struct {
		Ctx       context.Context
		MessageID string
		UserID    string // The user deleting the message
	}

	MarkConversationReadMsg struct {
		Ctx            context.Context
		ConversationID string
		UserID         string // The user marking the conversation as read
	}

	ReactMsg struct {
		Ctx       context.Context
		MessageID string
		UserID    string
		Reaction  models.ReactionType
	}

	CreateNotificationMsg struct {
		Ctx          context.Context
		Notification *models.Notification
	}

	MarkNotificationReadMsg struct {
		Ctx            context.Context
		NotificationID string
		UserID         string
	}
)

// Reply types
type (
	ConversationReply struct {
		Conversation *models.Conversation
		Created      bool
		Err          error
	}

	MessageReply struct {
		Message *models.Message
		Err     error
	}

	AckReply struct {
		Found bool
		Err   error
	}
)

// ReplyError extracts the store error carried by a reply.
func ReplyError(reply interface{}) error {
	switch r := reply.(type) {
	case *ConversationReply:
		return r.Err
	case *MessageReply:
		return r.Err
	case *AckReply:
		return r.Err
	case error:
		return r
	}
	return nil
}

// StoreActor runs store calls off the connection goroutines. The engine
// spawns a fixed pool of them.
type StoreActor struct {
	store   database.Store
	metrics *utils.MetricsCollector
	logger  *slog.Logger
}

func NewStoreActor(store database.Store, metrics *utils.MetricsCollector, logger *slog.Logger) actor.Actor {
	return &StoreActor{
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

func (a *StoreActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *GetOrCreateConversationMsg:
		startTime := time.Now()
		conv, created, err := a.store.GetOrCreateConversation(msg.Ctx, msg.UserA, msg.UserB, msg.ProjectID)
		a.observe("get_or_create_conversation", startTime, err)
		context.Respond(&ConversationReply{Conversation: conv, Created: created, Err: err})

	case *GetConversationMsg:
		startTime := time.Now()
		conv, err := a.store.GetConversation(msg.Ctx, msg.ConversationID)
		a.observe("get_conversation", startTime, err)
		context.Respond(&ConversationReply{Conversation: conv, Err: err})

	case *PostMessageMsg:
		startTime := time.Now()
		m, err := a.store.PostMessage(msg.Ctx, msg.Message)
		a.observe("post_message", startTime, err)
		context.Respond(&MessageReply{Message: m, Err: err})

	case *GetMessageMsg:
		startTime := time.Now()
		m, err := a.store.GetMessage(msg.Ctx, msg.MessageID)
		a.observe("get_message", startTime, err)
		context.Respond(&MessageReply{Message: m, Err: err})

	case *DeleteMessageMsg:
		startTime := time.Now()
		err := a.store.DeleteMessage(msg.Ctx, msg.MessageID, msg.UserID)
		a.observe("delete_message", startTime, err)
		context.Respond(&AckReply{Found: err == nil, Err: err})

	case *MarkConversationReadMsg:
		startTime := time.Now()
		err := a.store.MarkConversationRead(msg.Ctx, msg.ConversationID, msg.UserID)
		a.observe("mark_conversation_read", startTime, err)
		context.Respond(&AckReply{Found: err == nil, Err: err})

	case *ReactMsg:
		startTime := time.Now()
		err := a.store.React(msg.Ctx, msg.MessageID, msg.UserID, msg.Reaction)
		a.observe("react", startTime, err)
		context.Respond(&AckReply{Found: err == nil, Err: err})

	case *CreateNotificationMsg:
		startTime := time.Now()
		err := a.store.CreateNotification(msg.Ctx, msg.Notification)
		a.observe("create_notification", startTime, err)
		context.Respond(&AckReply{Found: err == nil, Err: err})

	case *MarkNotificationReadMsg:
		startTime := time.Now()
		found, err := a.store.MarkNotificationRead(msg.Ctx, msg.NotificationID, msg.UserID)
		a.observe("mark_notification_read", startTime, err)
		context.Respond(&AckReply{Found: found, Err: err})
	}
}

func (a *StoreActor) observe(operation string, startTime time.Time, err error) {
	a.metrics.AddOperationLatency(operation, time.Since(startTime))
	if err != nil && !utils.IsClientError(err) {
		a.metrics.IncrementErrors(err)
		a.logger.Error("store operation failed", "operation", operation, "error", err)
	}
}
