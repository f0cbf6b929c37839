package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"investafrik-messaging/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logging.Discard())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func newTestClient(userID string, buffer int) *Client {
	opts := DefaultOptions()
	opts.SendBuffer = buffer
	return NewClient(userID, opts, logging.Discard())
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case frame := <-c.Outbound():
		return frame
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.UserID)
		return nil
	}
}

func assertNothingQueued(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.Outbound():
		t.Fatalf("unexpected frame for %s: %s", c.UserID, frame)
	default:
	}
}

func event(kind, origin, frame string) Event {
	return Event{Type: kind, Origin: origin, Frame: json.RawMessage(frame)}
}

func TestHubFansOutToEveryMember(t *testing.T) {
	hub := startHub(t)
	ctx := context.Background()
	room := ChatRoom("c1")

	alicePhone := newTestClient("alice", 8)
	aliceLaptop := newTestClient("alice", 8)
	bob := newTestClient("bob", 8)
	for _, c := range []*Client{alicePhone, aliceLaptop, bob} {
		require.NoError(t, hub.Join(ctx, room, c))
	}
	assert.Equal(t, 3, hub.Members(room))

	require.NoError(t, hub.Publish(ctx, room, event("chat_message", "bob", `{"type":"chat_message"}`)))

	for _, c := range []*Client{alicePhone, aliceLaptop, bob} {
		assert.JSONEq(t, `{"type":"chat_message"}`, string(receive(t, c)))
	}
}

func TestHubSkipsClientsOutsideTheRoom(t *testing.T) {
	hub := startHub(t)
	ctx := context.Background()

	member := newTestClient("alice", 8)
	outsider := newTestClient("mallory", 8)
	leaver := newTestClient("bob", 8)
	require.NoError(t, hub.Join(ctx, ChatRoom("c1"), member))
	require.NoError(t, hub.Join(ctx, ChatRoom("c2"), outsider))
	require.NoError(t, hub.Join(ctx, ChatRoom("c1"), leaver))
	require.NoError(t, hub.Leave(ctx, ChatRoom("c1"), leaver))
	require.NoError(t, hub.Leave(ctx, ChatRoom("c1"), leaver))

	require.NoError(t, hub.Publish(ctx, ChatRoom("c1"), event("chat_message", "alice", `{}`)))
	receive(t, member)

	assertNothingQueued(t, outsider)
	assertNothingQueued(t, leaver)
}

func TestHubPreservesPublishOrder(t *testing.T) {
	hub := startHub(t)
	ctx := context.Background()
	room := ChatRoom("c1")

	c := newTestClient("alice", 64)
	require.NoError(t, hub.Join(ctx, room, c))

	for i := 0; i < 50; i++ {
		require.NoError(t, hub.Publish(ctx, room, event("chat_message", "bob", fmt.Sprintf(`{"n":%d}`, i))))
	}
	for i := 0; i < 50; i++ {
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(receive(t, c)))
	}
}

func TestHubAppliesDeliveryFilter(t *testing.T) {
	hub := startHub(t)
	ctx := context.Background()
	room := ChatRoom("c1")

	alice := newTestClient("alice", 8)
	alice.SetFilter(func(ev Event) bool { return !(ev.Type == "typing_indicator" && ev.Origin == "alice") })
	require.NoError(t, hub.Join(ctx, room, alice))

	require.NoError(t, hub.Publish(ctx, room, event("typing_indicator", "alice", `{"own":true}`)))
	require.NoError(t, hub.Publish(ctx, room, event("typing_indicator", "bob", `{"own":false}`)))

	assert.JSONEq(t, `{"own":false}`, string(receive(t, alice)))
}

func TestHubClosesSlowClients(t *testing.T) {
	hub := startHub(t)
	ctx := context.Background()
	room := NotificationRoom("alice")

	slow := newTestClient("alice", 1)
	require.NoError(t, hub.Join(ctx, room, slow))

	require.NoError(t, hub.Publish(ctx, room, event("notification", "", `{"n":1}`)))
	require.NoError(t, hub.Publish(ctx, room, event("notification", "", `{"n":2}`)))

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("slow client was not closed")
	}
	assert.False(t, slow.Reply([]byte(`{}`)))
}

func TestHubStopsAcceptingAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logging.Discard())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	err := hub.Publish(context.Background(), ChatRoom("c1"), event("chat_message", "", `{}`))
	assert.ErrorIs(t, err, ErrRegistryStopped)
}

func TestRoomNames(t *testing.T) {
	assert.Equal(t, "chat:abc", ChatRoom("abc"))
	assert.Equal(t, "notify:u1", NotificationRoom("u1"))
}
