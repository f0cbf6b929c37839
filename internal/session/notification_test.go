package session

import (
	"context"
	"testing"
	"time"

	"investafrik-messaging/internal/logging"
	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"
	"investafrik-messaging/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) notifications(t *testing.T, p *models.Principal) (*NotificationSession, *websocket.Client) {
	t.Helper()
	client := websocket.NewClient(p.UserID, websocket.DefaultOptions(), logging.Discard())
	s := NewNotificationSession(f.deps, p, client)
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { s.Disconnect(context.Background()) })
	return s, client
}

func (f *fixture) notify(t *testing.T, userID string) *models.Notification {
	t.Helper()
	n := &models.Notification{UserID: userID, Type: models.NotificationNewInvestment, Title: "New investment"}
	require.NoError(t, f.store.CreateNotification(context.Background(), n))
	return n
}

func assertNoFrame(t *testing.T, c *websocket.Client) {
	t.Helper()
	select {
	case frame := <-c.Outbound():
		t.Fatalf("unexpected frame: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotificationSessionForwardsPushes(t *testing.T) {
	f := newFixture(t)
	_, conn := f.notifications(t, f.alice)

	frame := []byte(`{"type":"notification","notification":{"id":"n1"}}`)
	require.NoError(t, f.hub.Publish(context.Background(), websocket.NotificationRoom(f.alice.UserID), websocket.Event{
		Type:  EventNotification,
		Frame: frame,
	}))

	select {
	case got := <-conn.Outbound():
		assert.JSONEq(t, string(frame), string(got))
	case <-time.After(time.Second):
		t.Fatal("push not forwarded")
	}
}

func TestNotificationSessionMarksOwnNotificationRead(t *testing.T) {
	f := newFixture(t)
	s, conn := f.notifications(t, f.alice)
	n := f.notify(t, f.alice.UserID)

	send(s, `{"type":"mark_notification_read","notification_id":"`+n.ID+`"}`)

	stored, ok := f.store.Notification(n.ID)
	require.True(t, ok)
	assert.True(t, stored.IsRead)
	assert.NotNil(t, stored.ReadAt)
	assertNoFrame(t, conn)
}

func TestNotificationSessionIgnoresForeignAndUnknownIDs(t *testing.T) {
	f := newFixture(t)
	s, conn := f.notifications(t, f.alice)
	bobs := f.notify(t, f.bob.UserID)

	send(s, `{"type":"mark_notification_read","notification_id":"`+bobs.ID+`"}`)
	send(s, `{"type":"mark_notification_read","notification_id":"does-not-exist"}`)
	send(s, `{"type":"mark_notification_read"}`)

	stored, _ := f.store.Notification(bobs.ID)
	assert.False(t, stored.IsRead)
	assert.Equal(t, StateActive, s.State())
	assertNoFrame(t, conn)
}

func TestNotificationSessionIgnoresOtherFrames(t *testing.T) {
	f := newFixture(t)
	s, conn := f.notifications(t, f.alice)

	send(s, `garbage`)
	send(s, `{"type":"chat_message","message":"hi"}`)
	send(s, `{"type":"whatever"}`)

	assert.Equal(t, StateActive, s.State())
	assertNoFrame(t, conn)
}

func TestNotificationSessionRejectsAnonymous(t *testing.T) {
	f := newFixture(t)
	client := websocket.NewClient("", websocket.DefaultOptions(), logging.Discard())
	s := NewNotificationSession(f.deps, &models.Principal{}, client)

	err := s.Connect(context.Background())

	assert.True(t, utils.IsAuthError(err))
	assert.Equal(t, StateRejected, s.State())
	assert.Equal(t, 0, f.hub.Rooms())
}

func TestNotificationSessionDisconnectLeavesRoom(t *testing.T) {
	f := newFixture(t)
	s, conn := f.notifications(t, f.alice)
	room := websocket.NotificationRoom(f.alice.UserID)
	assert.Eventually(t, func() bool { return f.hub.Members(room) == 1 }, time.Second, 10*time.Millisecond)

	s.Disconnect(context.Background())
	s.Disconnect(context.Background())

	assert.Eventually(t, func() bool { return f.hub.Members(room) == 0 }, time.Second, 10*time.Millisecond)
	assertClosed(t, conn)
}
