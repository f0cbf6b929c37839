package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"investafrik-messaging/internal/middleware"
	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/notify"
	"investafrik-messaging/internal/session"
	"investafrik-messaging/internal/utils"
	"investafrik-messaging/internal/websocket"

	ws "github.com/gorilla/websocket"
)

// PrincipalResolver turns a handshake request into a principal.
type PrincipalResolver interface {
	Resolve(r *http.Request) (*models.Principal, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds all HTTP and WebSocket dependencies.
type Server struct {
	Store          Pinger
	Sessions       session.Deps
	Resolver       PrincipalResolver
	Notifier       *notify.Publisher
	Metrics        *utils.MetricsCollector
	CORS           *middleware.CORSConfig
	ClientOptions  websocket.Options
	InternalAPIKey string
	RequestTimeout time.Duration
	Logger         *slog.Logger

	upgrader ws.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Client]struct{}
}

// NewServer creates a new Server instance with the given components
func NewServer(
	store Pinger,
	sessions session.Deps,
	resolver PrincipalResolver,
	notifier *notify.Publisher,
	metrics *utils.MetricsCollector,
	cors *middleware.CORSConfig,
	clientOptions websocket.Options,
	internalAPIKey string,
	logger *slog.Logger,
) *Server {
	if cors == nil {
		cors = middleware.DefaultCORSConfig(nil)
	}
	return &Server{
		Store:          store,
		Sessions:       sessions,
		Resolver:       resolver,
		Notifier:       notifier,
		Metrics:        metrics,
		CORS:           cors,
		ClientOptions:  clientOptions,
		InternalAPIKey: internalAPIKey,
		RequestTimeout: 5 * time.Second, // Default timeout for store requests
		Logger:         logger,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cors.CheckOrigin,
		},
		clients: make(map[*websocket.Client]struct{}),
	}
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /ws/chat/{conversationId}", s.withPrincipal(s.HandleChatWebSocket()))
	mux.Handle("GET /ws/notifications", s.withPrincipal(s.HandleNotificationWebSocket()))

	mux.HandleFunc("GET /health", s.HandleHealth())
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}
	mux.Handle("POST /internal/notifications", middleware.ServiceKeyMiddleware(s.InternalAPIKey, s.HandleCreateNotification()))

	return middleware.CORSMiddleware(s.CORS)(mux)
}

// withPrincipal resolves the caller and stores the principal in the request
// context. Unresolvable callers continue without one; sessions reject them.
func (s *Server) withPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.Resolver.Resolve(r)
		if err != nil {
			s.Logger.Debug("principal not resolved", "path", r.URL.Path, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(middleware.SetPrincipalInContext(r.Context(), p)))
	})
}

func (s *Server) track(c *websocket.Client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *websocket.Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// CloseConnections closes every live WebSocket connection. http.Server's
// Shutdown does not touch hijacked connections, so it is registered with
// RegisterOnShutdown.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.Close()
	}
	s.Logger.Info("closed websocket connections", "count", len(s.clients))
}
