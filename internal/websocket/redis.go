package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"investafrik-messaging/internal/utils"

	redis "github.com/redis/go-redis/v9"
)

const (
	channelPrefix = "investafrik:rooms:"

	// subscribeTimeout bounds how long Join waits for Redis to confirm a
	// new room subscription.
	subscribeTimeout = 5 * time.Second
)

// NewRedisClient connects to REDIS_URL and verifies the connection.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

// RedisRegistry spreads rooms across processes. Each process keeps its own
// connections in a local Hub and holds one Redis subscription per room that
// has at least one local member. Publishes go through Redis, so every
// process, including the publisher, delivers them in Redis order.
//
// Join returns only after Redis confirms the room subscription, which Run
// reports, so Run must be running for Join to succeed.
type RedisRegistry struct {
	client *redis.Client
	pubsub *redis.PubSub
	local  *Hub
	logger *slog.Logger

	mu      sync.Mutex
	members map[string]map[*Client]struct{}

	pendingMu sync.Mutex
	pending   map[string]chan struct{}
}

var _ Registry = (*RedisRegistry)(nil)

func NewRedisRegistry(ctx context.Context, client *redis.Client, local *Hub, logger *slog.Logger) *RedisRegistry {
	return &RedisRegistry{
		client:  client,
		pubsub:  client.Subscribe(ctx),
		local:   local,
		logger:  logger,
		members: make(map[string]map[*Client]struct{}),
		pending: make(map[string]chan struct{}),
	}
}

func roomChannel(room string) string {
	return channelPrefix + room
}

// Run forwards Redis messages into the local hub until ctx is cancelled.
// Subscription confirmations release the matching Join.
func (r *RedisRegistry) Run(ctx context.Context) {
	messages := r.pubsub.ChannelWithSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-messages:
			if !ok {
				return
			}
			switch msg := m.(type) {
			case *redis.Subscription:
				if msg.Kind == "subscribe" {
					r.confirm(msg.Channel)
				}
			case *redis.Message:
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.Warn("dropping undecodable room event", "channel", msg.Channel, "error", err)
					continue
				}
				room := strings.TrimPrefix(msg.Channel, channelPrefix)
				if err := r.local.Publish(ctx, room, ev); err != nil {
					return
				}
			}
		}
	}
}

func (r *RedisRegistry) confirm(channel string) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if done, ok := r.pending[channel]; ok {
		close(done)
		delete(r.pending, channel)
	}
}

// subscribe sends SUBSCRIBE for channel and waits for the confirmation.
func (r *RedisRegistry) subscribe(ctx context.Context, channel string) error {
	done := make(chan struct{})
	r.pendingMu.Lock()
	r.pending[channel] = done
	r.pendingMu.Unlock()

	err := r.pubsub.Subscribe(ctx, channel)
	if err == nil {
		timer := time.NewTimer(subscribeTimeout)
		defer timer.Stop()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			err = ctx.Err()
		case <-timer.C:
			err = fmt.Errorf("no confirmation for %s after %s", channel, subscribeTimeout)
		}
		_ = r.pubsub.Unsubscribe(context.WithoutCancel(ctx), channel)
	}

	r.pendingMu.Lock()
	if r.pending[channel] == done {
		delete(r.pending, channel)
	}
	r.pendingMu.Unlock()
	return err
}

func (r *RedisRegistry) Join(ctx context.Context, room string, c *Client) error {
	if err := r.local.Join(ctx, room, c); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.members[room]
	if !ok {
		if err := r.subscribe(ctx, roomChannel(room)); err != nil {
			_ = r.local.Leave(context.WithoutCancel(ctx), room, c)
			return utils.NewAppError(utils.ErrTransport, "failed to subscribe to room", err)
		}
		members = make(map[*Client]struct{})
		r.members[room] = members
	}
	members[c] = struct{}{}
	return nil
}

func (r *RedisRegistry) Leave(ctx context.Context, room string, c *Client) error {
	if err := r.local.Leave(ctx, room, c); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.members[room]
	if !ok {
		return nil
	}
	delete(members, c)
	if len(members) > 0 {
		return nil
	}
	delete(r.members, room)
	if err := r.pubsub.Unsubscribe(ctx, roomChannel(room)); err != nil {
		return utils.NewAppError(utils.ErrTransport, "failed to unsubscribe from room", err)
	}
	return nil
}

func (r *RedisRegistry) Publish(ctx context.Context, room string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return utils.NewAppError(utils.ErrTransport, "failed to encode room event", err)
	}
	if err := r.client.Publish(ctx, roomChannel(room), payload).Err(); err != nil {
		return utils.NewAppError(utils.ErrTransport, "failed to publish room event", err)
	}
	return nil
}

func (r *RedisRegistry) Close() error {
	return r.pubsub.Close()
}
