package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"investafrik-messaging/internal/middleware"
	"investafrik-messaging/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

type SimConfig struct {
	NumPairs        int
	MessagesPerUser int           // Upper bound; actual counts follow a Zipf distribution
	SendInterval    time.Duration // Pause between two messages from one user
	TypingRate      float64       // Probability of a typing indicator before a message
	ZipfS           float64
	SettleTimeout   time.Duration // How long to wait for deliveries after the last send
	EngineURL       string        // ws:// or wss:// base URL of the engine
	JWTSecret       string
	JWTIssuer       string
}

func DefaultConfig() SimConfig {
	return SimConfig{
		NumPairs:        10,
		MessagesPerUser: 50,
		SendInterval:    20 * time.Millisecond,
		TypingRate:      0.3,
		ZipfS:           1.07,
		SettleTimeout:   10 * time.Second,
		EngineURL:       "ws://localhost:8080",
		JWTIssuer:       "investafrik",
	}
}

// ConversationStore is used to seed conversations and read back counters.
type ConversationStore interface {
	GetOrCreateConversation(ctx context.Context, userA, userB string, projectID *string) (*models.Conversation, bool, error)
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
}

// SimulatedUser is one side of a simulated conversation.
type SimulatedUser struct {
	ID       string
	Name     string
	token    string
	conn     *websocket.Conn
	toSend   int
	sent     atomic.Int64
	received atomic.Int64
}

type simulatedPair struct {
	conversationID string
	users          [2]*SimulatedUser
}

// Mismatch is a conversation whose stored unread counter disagrees with the
// number of messages the user was sent.
type Mismatch struct {
	ConversationID string
	UserID         string
	Expected       int
	Stored         int
}

type Report struct {
	Pairs          int
	MessagesSent   int64
	Delivered      int64
	Errors         int64
	AverageLatency time.Duration
	Duration       time.Duration
	Mismatches     []Mismatch
}

// Consistent is true when every unread counter matched.
func (r *Report) Consistent() bool {
	return len(r.Mismatches) == 0
}

type Simulator struct {
	config SimConfig
	store  ConversationStore
	tokens *middleware.TokenResolver
	dialer *websocket.Dialer
	logger *slog.Logger
	rng    *rand.Rand

	pairs []*simulatedPair

	errors       atomic.Int64
	latencyMu    sync.Mutex
	latencyTotal time.Duration
	latencyCount int64
}

func NewSimulator(config SimConfig, store ConversationStore, logger *slog.Logger) *Simulator {
	return &Simulator{
		config: config,
		store:  store,
		tokens: middleware.NewTokenResolver(config.JWTSecret, config.JWTIssuer),
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run seeds conversations, drives concurrent traffic over WebSocket
// connections and then checks every unread counter.
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	s.logger.Info("starting simulation", "pairs", s.config.NumPairs, "max_messages", s.config.MessagesPerUser, "engine", s.config.EngineURL)

	if err := s.initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialization failed: %w", err)
	}
	defer s.disconnectAll()

	if err := s.simulateTraffic(ctx); err != nil {
		return nil, err
	}

	report, err := s.verify(ctx)
	if err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)
	return report, nil
}

func (s *Simulator) initialize(ctx context.Context) error {
	zipf := rand.NewZipf(s.rng, s.config.ZipfS, 1, uint64(max(s.config.MessagesPerUser-1, 1)))

	s.pairs = make([]*simulatedPair, 0, s.config.NumPairs)
	for i := 0; i < s.config.NumPairs; i++ {
		pair := &simulatedPair{}
		for j := range pair.users {
			user := &SimulatedUser{ID: uuid.NewString(), Name: fmt.Sprintf("investor_%d_%d", i, j)}
			token, err := s.tokens.GenerateToken(user.ID, user.Name, nil)
			if err != nil {
				return fmt.Errorf("mint token: %w", err)
			}
			user.token = token
			// Most users send close to the maximum, with a long tail of quieter ones.
			user.toSend = s.config.MessagesPerUser - int(zipf.Uint64())
			if user.toSend < 1 {
				user.toSend = 1
			}
			pair.users[j] = user
		}

		conv, _, err := s.store.GetOrCreateConversation(ctx, pair.users[0].ID, pair.users[1].ID, nil)
		if err != nil {
			return fmt.Errorf("seed conversation %d: %w", i, err)
		}
		pair.conversationID = conv.ID

		for _, user := range pair.users {
			if err := s.connect(ctx, pair.conversationID, user); err != nil {
				return err
			}
		}
		s.pairs = append(s.pairs, pair)
	}
	s.logger.Info("initialization completed", "pairs", len(s.pairs))
	return nil
}

func (s *Simulator) connect(ctx context.Context, conversationID string, user *SimulatedUser) error {
	url := strings.TrimSuffix(s.config.EngineURL, "/") + "/ws/chat/" + conversationID + "?token=" + user.token
	conn, resp, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect %s: %w (status %d)", user.Name, err, resp.StatusCode)
		}
		return fmt.Errorf("connect %s: %w", user.Name, err)
	}
	user.conn = conn
	return nil
}

func (s *Simulator) disconnectAll() {
	for _, pair := range s.pairs {
		for _, user := range pair.users {
			if user.conn != nil {
				user.conn.Close()
			}
		}
	}
}

func (s *Simulator) recordLatency(d time.Duration) {
	s.latencyMu.Lock()
	s.latencyTotal += d
	s.latencyCount++
	s.latencyMu.Unlock()
}

func (s *Simulator) verify(ctx context.Context) (*Report, error) {
	report := &Report{Pairs: len(s.pairs), Errors: s.errors.Load()}
	for _, pair := range s.pairs {
		conv, err := s.store.GetConversation(ctx, pair.conversationID)
		if err != nil {
			return nil, fmt.Errorf("read back conversation %s: %w", pair.conversationID, err)
		}
		for j, user := range pair.users {
			other := pair.users[1-j]
			report.MessagesSent += user.sent.Load()
			report.Delivered += user.received.Load()

			expected := int(other.sent.Load())
			if stored := conv.UnreadCountFor(user.ID); stored != expected {
				report.Mismatches = append(report.Mismatches, Mismatch{
					ConversationID: pair.conversationID,
					UserID:         user.ID,
					Expected:       expected,
					Stored:         stored,
				})
			}
		}
	}

	s.latencyMu.Lock()
	if s.latencyCount > 0 {
		report.AverageLatency = s.latencyTotal / time.Duration(s.latencyCount)
	}
	s.latencyMu.Unlock()

	s.logger.Info("simulation verified",
		"sent", report.MessagesSent,
		"delivered", report.Delivered,
		"errors", report.Errors,
		"mismatches", len(report.Mismatches),
		"avg_latency", report.AverageLatency)
	return report, nil
}

// forEachUser fans fn out over every simulated user and waits for all of them.
func (s *Simulator) forEachUser(ctx context.Context, fn func(ctx context.Context, pair *simulatedPair, user *SimulatedUser) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, pair := range s.pairs {
		for _, user := range pair.users {
			g.Go(func() error { return fn(gctx, pair, user) })
		}
	}
	return g.Wait()
}
