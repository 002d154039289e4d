package registry

import (
	"sync"

	"github.com/gorilla/websocket"

	bridgeerrors "wsbridge/pkg/errors"
)

// sendBufferSize bounds the per-client outbound queue. A client that
// falls this far behind the TCP stream is dropped.
const sendBufferSize = 256

// Client represents one connected WebSocket peer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	closed  bool
	writeMu sync.Mutex // websocket writes are not concurrency-safe
}

// NewClient wraps an accepted WebSocket connection.
func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// ID returns the client identifier.
func (c *Client) ID() string {
	return c.id
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// RemoteAddr returns the peer address for diagnostics.
func (c *Client) RemoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// Send queues a payload for delivery to the client. It never blocks: a
// full buffer returns ErrSendBufferFull and a closed client returns
// ErrClientClosed.
func (c *Client) Send(p []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return bridgeerrors.ErrClientClosed
	}
	select {
	case c.send <- p:
		return nil
	default:
		return bridgeerrors.ErrSendBufferFull
	}
}

// Close closes the client connection and its send queue. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsClosed checks if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// writePump drains the send queue to the WebSocket connection. It runs
// in its own goroutine and exits when the queue is closed or a write
// fails; onFail is invoked on a failed write.
func (c *Client) writePump(onFail func()) {
	for p := range c.send {
		c.writeMu.Lock()
		err := c.conn.WriteMessage(websocket.BinaryMessage, p)
		c.writeMu.Unlock()
		if err != nil {
			onFail()
			return
		}
	}
}
