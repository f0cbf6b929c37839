package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"
	"investafrik-messaging/internal/websocket"
)

const notificationKind = "notifications"

// NotificationSession drives one connection to a user's notification room.
// Pushes arrive through the registry; the only inbound action is marking a
// notification read. Anything else the client sends is ignored.
type NotificationSession struct {
	deps      Deps
	principal *models.Principal
	client    *websocket.Client
	logger    *slog.Logger

	mu     sync.Mutex
	state  State
	room   string
	joined bool
}

func NewNotificationSession(deps Deps, p *models.Principal, client *websocket.Client) *NotificationSession {
	return &NotificationSession{
		deps:      deps,
		principal: p,
		client:    client,
		logger:    deps.Logger.With("client", client.ID, "user", client.UserID),
		state:     StateConnecting,
	}
}

func (s *NotificationSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *NotificationSession) Connect(ctx context.Context) error {
	if !s.deps.Guard.CanJoinNotifications(s.principal) {
		s.mu.Lock()
		s.state = StateRejected
		s.mu.Unlock()
		return utils.NewAppError(utils.ErrAuthenticationRequired, "authentication required", nil)
	}

	room := websocket.NotificationRoom(s.principal.UserID)
	if err := s.deps.Registry.Join(ctx, room, s.client); err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		return utils.NewAppError(utils.ErrTransport, "failed to join notifications", err)
	}

	s.mu.Lock()
	s.room = room
	s.joined = true
	s.state = StateActive
	s.mu.Unlock()
	s.deps.Metrics.ConnectionOpened(notificationKind)
	s.logger.Info("notification session active")
	return nil
}

func (s *NotificationSession) Receive(ctx context.Context, data []byte) {
	if s.State() != StateActive {
		return
	}
	frame, err := ParseFrame(data)
	if err != nil {
		s.deps.Metrics.FrameReceived("invalid")
		s.logger.Debug("ignoring frame", "error", err)
		return
	}
	s.deps.Metrics.FrameReceived(frame.frameType())

	f, ok := frame.(*MarkNotificationReadFrame)
	if !ok {
		return
	}
	id := strings.TrimSpace(f.NotificationID)
	if id == "" {
		return
	}
	if !s.deps.Guard.CanJoinNotifications(s.principal) {
		s.logger.Info("authorization expired, closing notification session")
		s.client.CloseWith(websocket.ClosePolicyViolation, "")
		return
	}

	found, err := s.deps.Store.MarkNotificationRead(ctx, id, s.principal.UserID)
	switch {
	case utils.IsErrorCode(err, utils.ErrStoreUnavailable):
		s.deps.Metrics.IncrementErrors(err)
		s.logger.Error("store unavailable, closing notification session", "error", err)
		s.client.CloseWith(websocket.CloseInternalError, "")
	case err != nil:
		s.deps.Metrics.IncrementErrors(err)
		s.logger.Warn("mark notification read failed", "notification", id, "error", err)
	case !found:
		s.logger.Debug("notification not found for user", "notification", id)
	}
}

// Disconnect leaves the room if it was joined. Safe to call repeatedly.
func (s *NotificationSession) Disconnect(ctx context.Context) {
	s.mu.Lock()
	wasClosed := s.state == StateClosed
	joined := s.joined
	s.joined = false
	s.state = StateClosed
	s.mu.Unlock()

	s.client.Close()
	if wasClosed || !joined {
		return
	}
	if err := s.deps.Registry.Leave(ctx, s.room, s.client); err != nil {
		s.logger.Warn("leave failed", "error", err)
	}
	s.deps.Metrics.ConnectionClosed(notificationKind)
	s.logger.Info("notification session closed")
}
