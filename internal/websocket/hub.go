package websocket

import (
	"context"
	"log/slog"
	"sync"
)

type membership struct {
	room   string
	client *Client
}

type publication struct {
	room  string
	event Event
}

// Hub is the single-process Registry. One loop goroutine applies joins,
// leaves and publishes in the order they arrive, so every member of a room
// sees that room's events in publish order.
type Hub struct {
	// Registered clients. Maps room to the set of joined connections.
	rooms map[string]map[*Client]struct{}

	register   chan membership
	unregister chan membership
	publish    chan publication
	done       chan struct{}

	// Protects rooms for readers outside the loop.
	mu sync.RWMutex

	logger *slog.Logger
}

var _ Registry = (*Hub)(nil)

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan membership),
		unregister: make(chan membership),
		publish:    make(chan publication),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's processing loop and blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub stopped")
			return

		case m := <-h.register:
			h.mu.Lock()
			if _, ok := h.rooms[m.room]; !ok {
				h.rooms[m.room] = make(map[*Client]struct{})
			}
			h.rooms[m.room][m.client] = struct{}{}
			h.logger.Debug("client joined", "room", m.room, "client", m.client.ID, "members", len(h.rooms[m.room]))
			h.mu.Unlock()

		case m := <-h.unregister:
			h.mu.Lock()
			if members, ok := h.rooms[m.room]; ok {
				delete(members, m.client)
				if len(members) == 0 {
					delete(h.rooms, m.room)
				}
			}
			h.logger.Debug("client left", "room", m.room, "client", m.client.ID)
			h.mu.Unlock()

		case p := <-h.publish:
			h.mu.RLock()
			for client := range h.rooms[p.room] {
				client.Deliver(p.event)
			}
			h.mu.RUnlock()
		}
	}
}

// Join returns once the loop has recorded the membership, so any publish
// issued afterwards reaches c.
func (h *Hub) Join(ctx context.Context, room string, c *Client) error {
	return h.send(ctx, h.register, membership{room: room, client: c})
}

// Leave is idempotent; leaving a room the client never joined is a no-op.
func (h *Hub) Leave(ctx context.Context, room string, c *Client) error {
	return h.send(ctx, h.unregister, membership{room: room, client: c})
}

func (h *Hub) send(ctx context.Context, ch chan<- membership, m membership) error {
	select {
	case ch <- m:
		return nil
	case <-h.done:
		return ErrRegistryStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Publish(ctx context.Context, room string, ev Event) error {
	select {
	case h.publish <- publication{room: room, event: ev}:
		return nil
	case <-h.done:
		return ErrRegistryStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Members reports how many connections are joined to room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms reports how many rooms have at least one member.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
