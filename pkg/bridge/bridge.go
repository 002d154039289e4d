package bridge

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"wsbridge/pkg/config"
	bridgeerrors "wsbridge/pkg/errors"
	"wsbridge/pkg/health"
	"wsbridge/pkg/link"
	"wsbridge/pkg/logger"
	"wsbridge/pkg/registry"
	"wsbridge/pkg/storage"
	"wsbridge/server"
)

// State is the lifecycle state of a Bridge instance.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

const shutdownTimeout = 10 * time.Second

// Bridge relays bytes between the single TCP link and the set of
// WebSocket clients. Start and Stop are the only entry and exit points.
type Bridge struct {
	cfg      *config.Config
	link     *link.Link
	registry *registry.Registry
	srv      *server.Server
	monitor  *health.Monitor
	store    storage.Store // nil when history is disabled
	pending  *pendingQueue // nil when outage buffering is disabled

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	runCtx    context.Context
	startedAt time.Time
	wg        sync.WaitGroup // read loop, serve loop, reconnect supervisor
}

// New creates a stopped bridge from a validated configuration.
func New(cfg *config.Config) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Bridge{
		cfg:      cfg,
		link:     link.New(cfg.TCPAddr(), cfg.BufferSize),
		registry: registry.NewRegistry(),
		monitor:  health.NewMonitor(),
		state:    StateStopped,
	}

	if cfg.History.Enabled {
		store, err := storage.NewStore(cfg.History)
		if err != nil {
			return nil, err
		}
		b.store = store
	}

	if cfg.Pending.Enabled {
		b.pending = newPendingQueue(cfg.Pending.Limit)
	}

	b.link.OnDown(b.handleLinkDown)
	b.srv = server.New(b.registry, b, b.monitor, b.store)
	return b, nil
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Start opens the TCP link, binds the WebSocket listener, and launches
// the relay loops. Non-blocking: it returns once both sides are up.
// Calling Start on a bridge that is not stopped returns
// ErrAlreadyRunning. A TCP connect failure leaves no listener bound.
func (b *Bridge) Start() error {
	b.mu.Lock()
	if b.state != StateStopped {
		b.mu.Unlock()
		return bridgeerrors.ErrAlreadyRunning
	}
	b.state = StateStarting
	ctx, cancel := context.WithCancel(context.Background())
	b.runCtx = ctx
	b.cancel = cancel
	b.mu.Unlock()

	// TCP link first: a connect failure must surface synchronously and
	// leave nothing behind.
	if err := b.link.Dial(ctx); err != nil {
		cancel()
		b.setState(StateStopped)
		return err
	}
	b.record(storage.EventLinkUp, "", b.cfg.TCPAddr())
	b.monitor.SetComponentStatus("tcp_link", health.StatusHealthy, "connected")

	ln, err := net.Listen("tcp", b.cfg.WSAddr())
	if err != nil {
		b.link.Close()
		cancel()
		b.setState(StateStopped)
		return err
	}
	b.monitor.SetComponentStatus("ws_server", health.StatusHealthy, "listening")

	// Running must be visible before the read loop starts: a link that
	// drops right away reaches handleLinkDown, which only supervises a
	// reconnect while the bridge is running.
	b.mu.Lock()
	if b.state != StateStarting {
		// A concurrent Stop won; leave nothing behind.
		b.mu.Unlock()
		ln.Close()
		b.link.Close()
		return nil
	}
	b.state = StateRunning
	b.startedAt = time.Now()
	b.mu.Unlock()

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.link.ReadLoop(ctx, b.registry.Broadcast)
	}()
	go func() {
		defer b.wg.Done()
		if err := b.srv.Serve(ln); err != nil {
			logger.Get().ErrorWithErr("websocket server failed", err)
		}
	}()

	logger.Get().InfoWith("bridge started", "tcp", b.cfg.TCPAddr(), "ws", b.cfg.WSAddr())
	return nil
}

// Stop tears the bridge down: stop accepting, close all clients, close
// the TCP link, then wait for every loop to exit. Idempotent; Stop on a
// stopped bridge returns nil. After Stop returns, no goroutine can
// reach the link or the registry.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if b.state == StateStopped || b.state == StateStopping {
		b.mu.Unlock()
		return nil
	}
	b.state = StateStopping
	cancel := b.cancel
	b.mu.Unlock()

	cancel()

	ctx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := b.srv.Shutdown(ctx); err != nil {
		logger.Get().WarnWith("websocket server shutdown", "error", err.Error())
	}

	b.registry.CloseAll()
	b.link.Close()

	b.wg.Wait()         // read loop, serve loop, reconnect supervisor
	b.srv.WaitClients() // per-client receive loops

	if b.store != nil {
		b.store.Close()
	}

	b.setState(StateStopped)
	logger.Get().Info("bridge stopped")
	return nil
}

// Forward delivers one client message toward the TCP link. Messages
// from a single client arrive here in that client's send order; the
// link serializes concurrent writers. While the link is down the
// payload is buffered when outage buffering is on, dropped otherwise.
func (b *Bridge) Forward(clientID string, p []byte) {
	if err := b.link.Write(p); err != nil {
		if b.pending != nil {
			b.pending.push(p)
			logger.Get().DebugWith("link down, message buffered", "client", clientID, "bytes", len(p))
			return
		}
		logger.Get().DebugWith("link down, message dropped", "client", clientID, "bytes", len(p))
	}
}

// Status reports the diagnostic snapshot served by the API.
func (b *Bridge) Status() server.Status {
	b.mu.Lock()
	startedAt := b.startedAt
	state := b.state
	b.mu.Unlock()

	var uptime int64
	if state == StateRunning && !startedAt.IsZero() {
		uptime = int64(time.Since(startedAt).Seconds())
	}
	return server.Status{
		State:         state.String(),
		LinkOpen:      b.link.Open(),
		Clients:       b.registry.Count(),
		UptimeSeconds: uptime,
	}
}

// handleLinkDown runs when the link drops after being established.
// Clients stay connected; their messages are dropped or buffered until
// a redial succeeds.
func (b *Bridge) handleLinkDown() {
	b.record(storage.EventLinkDown, "", "")

	b.mu.Lock()
	if b.state != StateRunning {
		b.mu.Unlock()
		return
	}
	ctx := b.runCtx
	reconnect := b.cfg.Reconnect.Enabled
	if reconnect {
		b.monitor.SetComponentStatus("tcp_link", health.StatusDegraded, "reconnecting")
		b.wg.Add(1)
	} else {
		b.monitor.SetComponentStatus("tcp_link", health.StatusUnhealthy, "link lost")
	}
	b.mu.Unlock()

	if reconnect {
		go b.reconnectLoop(ctx)
	}
}

// reconnectLoop redials the TCP endpoint with jittered backoff until it
// succeeds, the attempt budget runs out, or the bridge stops.
func (b *Bridge) reconnectLoop(ctx context.Context) {
	defer b.wg.Done()

	bo := &backoff.Backoff{
		Min:    b.cfg.Reconnect.MinDelay(),
		Max:    b.cfg.Reconnect.MaxDelay(),
		Jitter: true,
	}

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.Duration()):
		}

		if err := b.link.Dial(ctx); err != nil {
			logger.Get().WarnWith("redial failed", "attempt", attempt, "error", err.Error())
			if max := b.cfg.Reconnect.MaxAttempts; max > 0 && attempt >= max {
				logger.Get().ErrorWith("redial budget exhausted, link stays down", "attempts", attempt)
				b.monitor.SetComponentStatus("tcp_link", health.StatusUnhealthy, "link lost")
				return
			}
			continue
		}

		b.record(storage.EventLinkUp, "", b.cfg.TCPAddr())
		b.monitor.SetComponentStatus("tcp_link", health.StatusHealthy, "connected")
		logger.Get().InfoWith("tcp link reestablished", "attempt", attempt)

		b.flushPending()

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.link.ReadLoop(ctx, b.registry.Broadcast)
		}()
		return
	}
}

// flushPending writes buffered payloads to the fresh link in arrival
// order. If the link fails again mid-flush, the unsent remainder is
// requeued for the next redial.
func (b *Bridge) flushPending() {
	if b.pending == nil {
		return
	}
	drained, dropped := b.pending.drain()
	if len(drained) > 0 || dropped > 0 {
		logger.Get().InfoWith("flushing buffered messages", "count", len(drained), "evicted", dropped)
	}
	for i, p := range drained {
		if err := b.link.Write(p); err != nil {
			for _, rest := range drained[i:] {
				b.pending.push(rest)
			}
			return
		}
	}
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// record writes an event to the history store when one is configured.
func (b *Bridge) record(evtType storage.EventType, clientID, detail string) {
	if b.store == nil {
		return
	}
	if err := b.store.RecordEvent(evtType, clientID, detail); err != nil {
		logger.Get().WarnWith("event record failed", "type", string(evtType), "error", err.Error())
	}
}
