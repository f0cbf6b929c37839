package websocket

import (
	"context"
	"encoding/json"
	"errors"
)

// Room name prefixes. These are the only two room topologies.
const (
	chatRoomPrefix         = "chat:"
	notificationRoomPrefix = "notify:"
)

// ErrRegistryStopped is returned once the registry loop has exited.
var ErrRegistryStopped = errors.New("registry stopped")

func ChatRoom(conversationID string) string {
	return chatRoomPrefix + conversationID
}

func NotificationRoom(userID string) string {
	return notificationRoomPrefix + userID
}

// Event is one broadcast. Frame is written to every receiving connection
// verbatim; Type and Origin let receivers filter without decoding it.
type Event struct {
	Type   string          `json:"type"`
	Origin string          `json:"origin,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// Registry maps rooms to the live connections joined to them. Delivery is
// best effort: a connection that is not joined when Publish runs does not
// receive the event, and nothing is queued for it.
type Registry interface {
	Join(ctx context.Context, room string, c *Client) error
	Leave(ctx context.Context, room string, c *Client) error
	Publish(ctx context.Context, room string, ev Event) error
}
