package link

import (
	"context"
	"fmt"
	"net"
	"sync"

	bridgeerrors "wsbridge/pkg/errors"
	"wsbridge/pkg/logger"
)

// Link owns the single outbound TCP connection to the legacy device.
// At most one connection is live at a time. The read side is single-owner
// (ReadLoop), the write side is serialized by an internal mutex.
type Link struct {
	addr       string
	bufferSize int

	mu      sync.Mutex // guards conn and open
	conn    net.Conn
	open    bool
	writeMu sync.Mutex // serializes writes to the socket

	onDown func()
}

// New creates a link for the given host:port. bufferSize bounds the chunk
// size of each read.
func New(addr string, bufferSize int) *Link {
	return &Link{
		addr:       addr,
		bufferSize: bufferSize,
	}
}

// OnDown registers a callback fired once per established connection when
// the link transitions to closed because of a read or write failure.
// A deliberate Close does not fire it. Must be set before Dial.
func (l *Link) OnDown(fn func()) {
	l.onDown = fn
}

// Dial establishes the TCP session. Safe to call again after the link
// went down.
func (l *Link) Dial(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", bridgeerrors.ErrConnect, l.addr, err)
	}

	l.mu.Lock()
	if l.open {
		// A live connection already exists; keep it.
		l.mu.Unlock()
		conn.Close()
		return nil
	}
	l.conn = conn
	l.open = true
	l.mu.Unlock()

	logger.Get().InfoWith("tcp link established", "addr", l.addr)
	return nil
}

// Open reports whether the link currently holds a live connection.
func (l *Link) Open() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// ReadLoop reads chunks of up to bufferSize bytes and hands each chunk to
// fn in the order read. It returns when the peer closes the connection,
// a read fails, or the link is closed. Each chunk is a fresh slice; fn
// may retain it.
func (l *Link) ReadLoop(ctx context.Context, fn func([]byte)) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		buf := make([]byte, l.bufferSize)
		n, err := conn.Read(buf)
		if n > 0 {
			fn(buf[:n])
		}
		if err != nil {
			if ctx.Err() == nil {
				logger.Get().InfoWith("tcp link read ended", "addr", l.addr, "reason", err.Error())
			}
			l.markDown()
			return
		}
	}
}

// Write sends bytes to the TCP peer. Writes are serialized; concurrent
// callers never interleave partial writes. Fails with ErrLinkClosed when
// the link is down; a failed write transitions the link to closed.
func (l *Link) Write(p []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	if !l.open {
		l.mu.Unlock()
		return bridgeerrors.ErrLinkClosed
	}
	conn := l.conn
	l.mu.Unlock()

	if _, err := conn.Write(p); err != nil {
		logger.Get().WarnWith("tcp link write failed", "addr", l.addr, "error", err.Error())
		l.markDown()
		return fmt.Errorf("tcp write: %w", err)
	}
	return nil
}

// Close closes the underlying socket. Idempotent; safe to call when the
// link is already down. Closing unblocks a blocked ReadLoop.
func (l *Link) Close() error {
	l.mu.Lock()
	conn := l.conn
	wasOpen := l.open
	l.open = false
	l.conn = nil
	l.mu.Unlock()

	if conn != nil {
		err := conn.Close()
		if wasOpen {
			logger.Get().InfoWith("tcp link closed", "addr", l.addr)
		}
		return err
	}
	return nil
}

// markDown transitions the link to closed after a read or write failure
// and fires the down callback exactly once per connection.
func (l *Link) markDown() {
	l.mu.Lock()
	if !l.open {
		l.mu.Unlock()
		return
	}
	l.open = false
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if l.onDown != nil {
		l.onDown()
	}
}
