package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"
	"investafrik-messaging/internal/websocket"
)

// State is where a session is in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAuthorized
	StateActive
	StateRejected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthorized:
		return "authorized"
	case StateActive:
		return "active"
	case StateRejected:
		return "rejected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Store is the persistence a session mutates.
type Store interface {
	PostMessage(ctx context.Context, msg models.NewMessage) (*models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, userID string) error
	MarkNotificationRead(ctx context.Context, notificationID, userID string) (bool, error)
}

// Authorizer decides whether a principal may join, and keep acting in, a room.
type Authorizer interface {
	CanJoinConversation(ctx context.Context, p *models.Principal, conversationID string) bool
	CanJoinNotifications(p *models.Principal) bool
}

// Deps are shared by every session of a process.
type Deps struct {
	Store          Store
	Guard          Authorizer
	Registry       websocket.Registry
	Metrics        *utils.MetricsCollector
	Logger         *slog.Logger
	TypingInterval time.Duration
}

// Generic error text for failures whose detail stays server side.
const (
	errSendFailed    = "failed to send message"
	errMarkFailed    = "failed to mark messages as read"
	errDeliverFailed = "message saved but could not be delivered"
)

func encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Outbound frames hold nothing json cannot encode.
		panic(err)
	}
	return data
}

// clientMessage is the part of err that may be shown to the client.
func clientMessage(err error) string {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "invalid request"
}

func errorFrame(message string) []byte {
	return encode(ErrorFrame{Error: message})
}

// publish sends ev to room, retrying once unless ctx is already done.
func publish(ctx context.Context, deps Deps, room string, ev websocket.Event) error {
	err := deps.Registry.Publish(ctx, room, ev)
	if err != nil && ctx.Err() == nil {
		deps.Logger.Warn("publish failed, retrying", "room", room, "type", ev.Type, "error", err)
		err = deps.Registry.Publish(ctx, room, ev)
	}
	if err != nil {
		deps.Metrics.IncrementErrors(err)
		return err
	}
	deps.Metrics.EventPublished(ev.Type)
	return nil
}
