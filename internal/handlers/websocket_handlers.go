package handlers

import (
	"context"
	"net/http"

	"investafrik-messaging/internal/middleware"
	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/session"
	"investafrik-messaging/internal/utils"
	"investafrik-messaging/internal/websocket"
)

type connectionSession interface {
	Connect(ctx context.Context) error
	Receive(ctx context.Context, frame []byte)
	Disconnect(ctx context.Context)
}

// HandleChatWebSocket serves GET /ws/chat/{conversationId}.
func (s *Server) HandleChatWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := middleware.GetPrincipalFromContext(r.Context())
		client := websocket.NewClient(userIDOf(p), s.ClientOptions, s.Logger)
		s.serve(w, r, client, session.NewChatSession(s.Sessions, p, r.PathValue("conversationId"), client))
	}
}

// HandleNotificationWebSocket serves GET /ws/notifications.
func (s *Server) HandleNotificationWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := middleware.GetPrincipalFromContext(r.Context())
		client := websocket.NewClient(userIDOf(p), s.ClientOptions, s.Logger)
		s.serve(w, r, client, session.NewNotificationSession(s.Sessions, p, client))
	}
}

// serve authorizes and joins before upgrading, so a refused caller gets a
// plain 403 and never appears in a room. It returns once the connection is
// gone and the session has left its room.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, client *websocket.Client, sess connectionSession) {
	ctx := r.Context()
	cleanup := context.WithoutCancel(ctx)

	if err := sess.Connect(ctx); err != nil {
		sess.Disconnect(cleanup)
		s.Logger.Info("websocket handshake refused", "path", r.URL.Path, "error", err)
		if utils.IsAuthError(err) {
			http.Error(w, "Forbidden", http.StatusForbidden)
		} else {
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		}
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered the request.
		s.Logger.Info("websocket upgrade failed", "path", r.URL.Path, "error", err)
		sess.Disconnect(cleanup)
		return
	}

	client.Attach(conn)
	s.track(client)
	defer s.untrack(client)

	go client.WritePump()
	client.ReadPump(func(frame []byte) {
		sess.Receive(ctx, frame)
	})
	sess.Disconnect(cleanup)
}

func userIDOf(p *models.Principal) string {
	if p == nil {
		return ""
	}
	return p.UserID
}
