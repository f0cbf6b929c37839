package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Close codes sessions use when they end a connection.
const (
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseInternalError   = websocket.CloseInternalServerErr
)

// Options bound the resources a single connection may hold.
type Options struct {
	// Buffered outbound frames. A client that falls this far behind is closed.
	SendBuffer int

	// Maximum message size allowed from peer.
	MaxMessageSize int64

	// Time allowed to read the next pong message from the peer.
	PongWait time.Duration

	// Time allowed to write a message to the peer.
	WriteWait time.Duration
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:     256,
		MaxMessageSize: 8192,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
	}
}

// Send pings to peer with this period. Must be less than pongWait.
func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Client is a middleman between the websocket connection and the registry.
type Client struct {
	// Unique per connection; one user may hold several.
	ID string

	// The user ID this client represents.
	UserID string

	// The websocket connection. Nil until Attach.
	conn *websocket.Conn

	// Buffered channel of outbound frames. Never closed; done signals shutdown.
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string

	// filter must be set before the client joins a room.
	filter func(Event) bool

	opts   Options
	logger *slog.Logger
}

func NewClient(userID string, opts Options, logger *slog.Logger) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	id := uuid.New().String()
	return &Client{
		ID:        id,
		UserID:    userID,
		send:      make(chan []byte, opts.SendBuffer),
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
		opts:      opts,
		logger:    logger.With("client", id, "user", userID),
	}
}

// SetFilter installs a delivery-side filter; events it rejects are dropped.
func (c *Client) SetFilter(filter func(Event) bool) {
	c.filter = filter
}

// Attach binds the upgraded connection.
func (c *Client) Attach(conn *websocket.Conn) {
	c.conn = conn
}

// Deliver queues a broadcast frame without blocking. A full queue means the
// peer is not keeping up and the connection is closed.
func (c *Client) Deliver(ev Event) bool {
	if c.filter != nil && !c.filter(ev) {
		return true
	}
	return c.enqueue(ev.Frame)
}

// Reply queues a frame for this connection only.
func (c *Client) Reply(frame []byte) bool {
	return c.enqueue(frame)
}

func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("send buffer full, closing connection")
		c.CloseWith(websocket.ClosePolicyViolation, "too slow")
		return false
	}
}

// Outbound exposes the queued frames. Only one reader may consume it; the
// write pump does so once a connection is attached.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith closes the client; the first call decides the close code sent
// to the peer.
func (c *Client) CloseWith(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

// ReadPump pumps frames from the websocket connection to handle. It returns
// when the peer goes away, the read deadline passes or the client is closed.
func (c *Client) ReadPump(handle func(frame []byte)) {
	defer func() {
		c.Close()
		c.logger.Debug("read pump stopped")
	}()
	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Info("websocket read error", "error", err)
			}
			return
		}
		handle(message)
	}
}

// WritePump pumps queued frames to the websocket connection, one frame per
// websocket message, and sends pings while idle.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Debug("write pump stopped")
	}()
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.logger.Info("websocket write error", "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Info("websocket ping error", "error", err)
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(c.closeCode, c.closeText))
			return
		}
	}
}

// flush writes whatever is still queued, such as the error frame that
// preceded a close.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return c.conn.WriteMessage(messageType, data)
}
