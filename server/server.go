package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wsbridge/pkg/health"
	"wsbridge/pkg/logger"
	"wsbridge/pkg/registry"
	"wsbridge/pkg/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // the bridge fronts a trusted device network
	},
}

// Relay is the bridge-side surface the server forwards inbound client
// messages to.
type Relay interface {
	// Forward delivers one client message's raw payload toward the TCP link
	Forward(clientID string, p []byte)
	// Status reports current bridge state for diagnostics
	Status() Status
}

// Status is the diagnostic snapshot served by /api/status
type Status struct {
	State         string `json:"state"`
	LinkOpen      bool   `json:"link_open"`
	Clients       int    `json:"clients"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Server accepts WebSocket connections and serves the diagnostics API.
type Server struct {
	registry *registry.Registry
	relay    Relay
	monitor  *health.Monitor
	store    storage.Store // nil when history is disabled

	httpServer *http.Server
	wg         sync.WaitGroup // per-client read loops

	mu     sync.Mutex
	closed bool // set by Shutdown, bars late registrations
}

// New creates a server around the given registry and relay. store may
// be nil.
func New(reg *registry.Registry, relay Relay, monitor *health.Monitor, store storage.Store) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		registry: reg,
		relay:    relay,
		monitor:  monitor,
		store:    store,
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/ws", s.handleWebSocket)
	router.GET("/healthz", s.handleHealth)
	router.GET("/api/status", s.handleStatus)
	router.GET("/api/clients", s.handleClients)
	router.GET("/api/events", s.handleEvents)

	s.httpServer = &http.Server{Handler: router}
	return s
}

// Serve runs the HTTP server on an already bound listener. It returns
// after Shutdown with a nil error.
func (s *Server) Serve(ln net.Listener) error {
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections. Upgrades already hijacked
// off the HTTP server are barred from registering once it returns; the
// caller closes the registered clients afterwards.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

// WaitClients blocks until every per-client read loop has exited.
// Callers close the registered clients first.
func (s *Server) WaitClients() {
	s.wg.Wait()
}

// handleWebSocket upgrades the connection, registers the client, and
// runs its receive loop until the client closes or errors.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Get().WarnWith("websocket upgrade failed", "remote", c.Request.RemoteAddr, "error", err.Error())
		return
	}

	id := uuid.NewString()
	client := registry.NewClient(id, conn)

	// Upgrade hijacks the connection, so httpServer.Shutdown does not
	// wait for this handler. Holding mu across the check and the Add
	// keeps a late upgrade from landing in the registry after Shutdown
	// has returned and the caller has closed the registered clients.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	err = s.registry.Add(client)
	s.mu.Unlock()
	if err != nil {
		logger.Get().ErrorWithErr("client registration failed", err, "client", id)
		conn.Close()
		return
	}
	s.record(storage.EventClientJoined, id, client.RemoteAddr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(client)
	}()
}

// readLoop forwards each inbound message's payload to the relay. It
// exits on client close or transport error; other clients and the TCP
// link are unaffected.
func (s *Server) readLoop(client *registry.Client) {
	conn := client.Conn()
	defer func() {
		s.registry.Remove(client.ID())
		s.record(storage.EventClientLeft, client.ID(), "")
	}()

	for {
		mt, p, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Get().DebugWith("client read ended", "client", client.ID(), "error", err.Error())
			}
			return
		}
		switch mt {
		case websocket.TextMessage, websocket.BinaryMessage:
			s.relay.Forward(client.ID(), p)
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.GetHealth(s.registry.Count()))
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.relay.Status())
}

func (s *Server) handleClients(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"count":   s.registry.Count(),
		"clients": s.registry.Snapshot(),
	})
}

func (s *Server) handleEvents(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event history disabled"})
		return
	}

	limit := 50
	if q := c.Query("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	events, err := s.store.RecentEvents(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// record writes an event to the history store when one is configured.
// Failures are logged, never propagated.
func (s *Server) record(evtType storage.EventType, clientID, detail string) {
	if s.store == nil {
		return
	}
	if err := s.store.RecordEvent(evtType, clientID, detail); err != nil {
		logger.Get().WarnWith("event record failed", "type", string(evtType), "error", err.Error())
	}
}
