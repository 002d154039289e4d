package registry

import (
	"sync"

	bridgeerrors "wsbridge/pkg/errors"
	"wsbridge/pkg/logger"
)

// ClientInfo is a diagnostic snapshot of one registered client.
type ClientInfo struct {
	ID         string `json:"id"`
	RemoteAddr string `json:"remote_addr"`
}

// Registry tracks the set of currently connected WebSocket clients.
// It is the single writer of the client set; membership reflects only
// currently open connections.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	wg      sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// Add inserts a newly accepted client and starts its write pump.
func (r *Registry) Add(c *Client) error {
	r.mu.Lock()
	if _, exists := r.clients[c.id]; exists {
		r.mu.Unlock()
		return bridgeerrors.ErrDuplicateClient
	}
	r.clients[c.id] = c
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		c.writePump(func() {
			logger.Get().WarnWith("client write failed, dropping", "client", c.id)
			r.Remove(c.id)
		})
	}()

	logger.Get().InfoWith("client joined", "client", c.id, "remote", c.RemoteAddr(), "total", r.Count())
	return nil
}

// Remove closes and deletes a client. Idempotent; no-op if absent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	r.mu.Unlock()

	if ok {
		c.Close()
		logger.Get().InfoWith("client left", "client", id, "total", r.Count())
	}
}

// Get retrieves a client by id, ErrClientNotFound if absent.
func (r *Registry) Get(id string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, bridgeerrors.ErrClientNotFound
	}
	return c, nil
}

// Broadcast queues the payload for every currently registered client.
// Per-client failures are isolated: a slow or closed client is removed
// and delivery to the others continues. Broadcast never returns an error.
func (r *Registry) Broadcast(p []byte) {
	r.mu.RLock()
	snapshot := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	for _, c := range snapshot {
		if err := c.Send(p); err != nil {
			logger.Get().WarnWith("broadcast to client failed, dropping", "client", c.id, "error", err.Error())
			r.Remove(c.id)
		}
	}
}

// Count returns the number of registered clients. Diagnostics only.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Snapshot returns diagnostic info for every registered client.
func (r *Registry) Snapshot() []ClientInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]ClientInfo, 0, len(r.clients))
	for _, c := range r.clients {
		infos = append(infos, ClientInfo{ID: c.id, RemoteAddr: c.RemoteAddr()})
	}
	return infos
}

// CloseAll removes and closes every client and waits for all write
// pumps to exit. Used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	snapshot := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		snapshot = append(snapshot, c)
	}
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range snapshot {
		c.Close()
	}
	r.wg.Wait()
}
