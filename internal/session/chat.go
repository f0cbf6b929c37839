package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"
	"investafrik-messaging/internal/websocket"
)

const chatKind = "chat"

// ChatSession drives one connection to a conversation room.
type ChatSession struct {
	deps           Deps
	principal      *models.Principal
	conversationID string
	room           string
	client         *websocket.Client
	logger         *slog.Logger
	now            func() time.Time

	mu     sync.Mutex
	state  State
	joined bool

	// Last typing state published, for coalescing repeats.
	typingSent   bool
	typingState  bool
	typingSentAt time.Time
}

func NewChatSession(deps Deps, p *models.Principal, conversationID string, client *websocket.Client) *ChatSession {
	userID := ""
	if p != nil {
		userID = p.UserID
	}
	return &ChatSession{
		deps:           deps,
		principal:      p,
		conversationID: conversationID,
		room:           websocket.ChatRoom(conversationID),
		client:         client,
		logger:         deps.Logger.With("conversation", conversationID, "user", userID, "client", client.ID),
		now:            time.Now,
		state:          StateConnecting,
	}
}

func (s *ChatSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ChatSession) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Connect authorizes the principal and joins the conversation room. A
// returned error means the handshake must be refused; nothing was joined.
func (s *ChatSession) Connect(ctx context.Context) error {
	if !s.principal.Authenticated() {
		s.setState(StateRejected)
		return utils.NewAppError(utils.ErrAuthenticationRequired, "authentication required", nil)
	}
	if !s.deps.Guard.CanJoinConversation(ctx, s.principal, s.conversationID) {
		s.setState(StateRejected)
		s.logger.Info("chat connection rejected")
		return utils.NewAppError(utils.ErrForbidden, "forbidden", nil)
	}
	s.setState(StateAuthorized)

	own := s.principal.UserID
	s.client.SetFilter(func(ev websocket.Event) bool {
		return ev.Type != EventTypingIndicator || ev.Origin != own
	})
	if err := s.deps.Registry.Join(ctx, s.room, s.client); err != nil {
		s.setState(StateClosed)
		return utils.NewAppError(utils.ErrTransport, "failed to join conversation", err)
	}

	s.mu.Lock()
	s.joined = true
	s.state = StateActive
	s.mu.Unlock()
	s.deps.Metrics.ConnectionOpened(chatKind)
	s.logger.Info("chat session active")
	return nil
}

// Receive handles one inbound frame. Frames arriving outside the Active
// state, or after the client was closed, are dropped.
func (s *ChatSession) Receive(ctx context.Context, data []byte) {
	if s.State() != StateActive {
		return
	}
	select {
	case <-s.client.Done():
		return
	default:
	}

	frame, err := ParseFrame(data)
	if err != nil {
		s.deps.Metrics.FrameReceived("invalid")
		s.deps.Metrics.IncrementErrors(err)
		s.reply(errorFrame(clientMessage(err)))
		return
	}
	s.deps.Metrics.FrameReceived(frame.frameType())

	switch f := frame.(type) {
	case *ChatMessageFrame:
		s.handleChatMessage(ctx, f)
	case *TypingFrame:
		s.handleTyping(ctx, f)
	case *MarkReadFrame:
		s.handleMarkRead(ctx)
	default:
		s.reply(errorFrame("unsupported frame type: " + frame.frameType()))
	}
}

func (s *ChatSession) handleChatMessage(ctx context.Context, f *ChatMessageFrame) {
	content := strings.TrimSpace(f.Message)
	if content == "" {
		return
	}
	if !s.authorized(ctx) {
		return
	}

	msg, err := s.deps.Store.PostMessage(ctx, models.NewMessage{
		ConversationID: s.conversationID,
		SenderID:       s.principal.UserID,
		Content:        content,
		Type:           models.MessageText,
	})
	if err != nil {
		s.fail(err, errSendFailed)
		return
	}

	ev := websocket.Event{
		Type:   EventChatMessage,
		Origin: s.principal.UserID,
		Frame:  encode(NewChatMessageEvent(msg, s.principal)),
	}
	if err := publish(ctx, s.deps, s.room, ev); err != nil {
		s.logger.Error("chat message persisted but not broadcast", "message", msg.ID, "error", err)
		s.reply(errorFrame(errDeliverFailed))
	}
}

func (s *ChatSession) handleTyping(ctx context.Context, f *TypingFrame) {
	now := s.now()
	s.mu.Lock()
	if s.typingSent && s.typingState == f.IsTyping && now.Sub(s.typingSentAt) < s.deps.TypingInterval {
		s.mu.Unlock()
		return
	}
	s.typingSent = true
	s.typingState = f.IsTyping
	s.typingSentAt = now
	s.mu.Unlock()

	ev := websocket.Event{
		Type:   EventTypingIndicator,
		Origin: s.principal.UserID,
		Frame: encode(TypingEvent{
			Type:     EventTypingIndicator,
			UserID:   s.principal.UserID,
			UserName: s.principal.Name,
			IsTyping: f.IsTyping,
		}),
	}
	if err := publish(ctx, s.deps, s.room, ev); err != nil {
		s.logger.Debug("typing indicator dropped", "error", err)
	}
}

func (s *ChatSession) handleMarkRead(ctx context.Context) {
	if !s.authorized(ctx) {
		return
	}
	if err := s.deps.Store.MarkConversationRead(ctx, s.conversationID, s.principal.UserID); err != nil {
		s.fail(err, errMarkFailed)
		return
	}
	ev := websocket.Event{
		Type:   EventMessagesRead,
		Origin: s.principal.UserID,
		Frame:  encode(MessagesReadEvent{Type: EventMessagesRead, UserID: s.principal.UserID}),
	}
	if err := publish(ctx, s.deps, s.room, ev); err != nil {
		s.logger.Warn("read receipt not broadcast", "error", err)
		s.reply(errorFrame(errDeliverFailed))
	}
}

// authorized re-runs the guard before a mutating frame and closes the
// session when it no longer passes.
func (s *ChatSession) authorized(ctx context.Context) bool {
	if s.principal.Authenticated() && s.deps.Guard.CanJoinConversation(ctx, s.principal, s.conversationID) {
		return true
	}
	s.logger.Info("authorization revoked, closing chat session")
	s.client.CloseWith(websocket.ClosePolicyViolation, "")
	return false
}

// fail reports a store error to this connection only.
func (s *ChatSession) fail(err error, generic string) {
	s.deps.Metrics.IncrementErrors(err)
	switch {
	case utils.IsErrorCode(err, utils.ErrNotParticipant), utils.IsErrorCode(err, utils.ErrInvalidInput):
		s.reply(errorFrame(clientMessage(err)))
	case utils.IsErrorCode(err, utils.ErrStoreUnavailable):
		s.logger.Error("store unavailable, closing chat session", "error", err)
		s.reply(errorFrame(generic))
		s.client.CloseWith(websocket.CloseInternalError, "")
	default:
		s.logger.Error("store operation failed", "error", err)
		s.reply(errorFrame(generic))
	}
}

func (s *ChatSession) reply(frame []byte) {
	s.client.Reply(frame)
}

// Disconnect leaves the room if it was joined and closes the client. It is
// safe to call from any state and more than once.
func (s *ChatSession) Disconnect(ctx context.Context) {
	s.mu.Lock()
	wasClosed := s.state == StateClosed
	joined := s.joined
	s.joined = false
	s.state = StateClosed
	s.mu.Unlock()

	s.client.Close()
	if wasClosed {
		return
	}
	if joined {
		if err := s.deps.Registry.Leave(ctx, s.room, s.client); err != nil {
			s.logger.Warn("leave failed", "error", err)
		}
		s.deps.Metrics.ConnectionClosed(chatKind)
	}
	s.logger.Info("chat session closed")
}
