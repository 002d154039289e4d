package link

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	bridgeerrors "wsbridge/pkg/errors"
)

// startPeer starts a TCP listener that hands the first accepted
// connection to the returned channel.
func startPeer(t *testing.T) (net.Listener, chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	conns := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conns <- conn
	}()
	return ln, conns
}

func TestDialAndClose(t *testing.T) {
	ln, _ := startPeer(t)
	l := New(ln.Addr().String(), 1024)

	if err := l.Dial(context.Background()); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if !l.Open() {
		t.Error("Link should be open after Dial")
	}

	if err := l.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if l.Open() {
		t.Error("Link should be closed after Close")
	}

	// Idempotent close
	if err := l.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestDialUnreachable(t *testing.T) {
	// Bind then close to get a port nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	l := New(addr, 1024)
	err = l.Dial(context.Background())
	if err == nil {
		t.Fatal("Dial should fail for unreachable address")
	}
	if !errors.Is(err, bridgeerrors.ErrConnect) {
		t.Errorf("Expected ErrConnect, got %v", err)
	}
	if l.Open() {
		t.Error("Link should not be open after failed Dial")
	}
}

func TestReadLoopOrder(t *testing.T) {
	ln, conns := startPeer(t)
	l := New(ln.Addr().String(), 1024)
	if err := l.Dial(context.Background()); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer l.Close()

	peer := <-conns
	defer peer.Close()

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})
	go func() {
		l.ReadLoop(context.Background(), func(p []byte) {
			mu.Lock()
			got = append(got, p...)
			mu.Unlock()
		})
		close(done)
	}()

	chunks := [][]byte{[]byte("HEL"), []byte("LO "), []byte("WORLD")}
	for _, c := range chunks {
		if _, err := peer.Write(c); err != nil {
			t.Fatalf("peer write failed: %v", err)
		}
	}
	peer.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLoop did not exit after peer close")
	}

	mu.Lock()
	defer mu.Unlock()
	if !bytes.Equal(got, []byte("HELLO WORLD")) {
		t.Errorf("Expected %q, got %q", "HELLO WORLD", got)
	}
}

func TestWrite(t *testing.T) {
	ln, conns := startPeer(t)
	l := New(ln.Addr().String(), 1024)
	if err := l.Dial(context.Background()); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer l.Close()

	peer := <-conns
	defer peer.Close()

	if err := l.Write([]byte("PING")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	buf := make([]byte, 16)
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := peer.Read(buf)
	if err != nil {
		t.Fatalf("peer read failed: %v", err)
	}
	if string(buf[:n]) != "PING" {
		t.Errorf("Expected PING, got %q", buf[:n])
	}
}

func TestWriteWhenClosed(t *testing.T) {
	l := New("127.0.0.1:1", 1024)
	err := l.Write([]byte("data"))
	if !errors.Is(err, bridgeerrors.ErrLinkClosed) {
		t.Errorf("Expected ErrLinkClosed, got %v", err)
	}
}

func TestOnDownFiredOnPeerClose(t *testing.T) {
	ln, conns := startPeer(t)
	l := New(ln.Addr().String(), 1024)

	down := make(chan struct{})
	l.OnDown(func() { close(down) })

	if err := l.Dial(context.Background()); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	go l.ReadLoop(context.Background(), func([]byte) {})

	peer := <-conns
	peer.Close()

	select {
	case <-down:
	case <-time.After(2 * time.Second):
		t.Fatal("down callback not fired after peer close")
	}
	if l.Open() {
		t.Error("Link should be closed after peer disconnect")
	}
}

func TestOnDownNotFiredOnDeliberateClose(t *testing.T) {
	ln, _ := startPeer(t)
	l := New(ln.Addr().String(), 1024)

	fired := make(chan struct{}, 1)
	l.OnDown(func() { fired <- struct{}{} })

	if err := l.Dial(context.Background()); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		l.ReadLoop(context.Background(), func([]byte) {})
		close(done)
	}()

	l.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLoop did not exit after Close")
	}

	select {
	case <-fired:
		t.Error("down callback should not fire on deliberate Close")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConcurrentWrites(t *testing.T) {
	ln, conns := startPeer(t)
	l := New(ln.Addr().String(), 1024)
	if err := l.Dial(context.Background()); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer l.Close()

	peer := <-conns
	defer peer.Close()

	var received []byte
	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		buf := make([]byte, 64)
		for len(received) < 40 {
			peer.SetReadDeadline(time.Now().Add(2 * time.Second))
			n, err := peer.Read(buf)
			if err != nil {
				return
			}
			received = append(received, buf[:n]...)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Write([]byte("abcd"))
		}()
	}
	wg.Wait()

	<-recvDone
	if len(received) != 40 {
		t.Fatalf("Expected 40 bytes, got %d", len(received))
	}
	// Serialized writes must never interleave mid-chunk.
	for i := 0; i < 40; i += 4 {
		if string(received[i:i+4]) != "abcd" {
			t.Fatalf("Interleaved write detected at offset %d: %q", i, received)
		}
	}
}
