package bridge

import (
	"sync"

	"github.com/eapache/queue"
)

// pendingQueue buffers client payloads while the TCP link is down and
// reconnect is in progress. Bounded: when full, the oldest payload is
// discarded so a long outage cannot grow memory without limit.
type pendingQueue struct {
	mu      sync.Mutex
	q       *queue.Queue
	limit   int
	dropped int
}

func newPendingQueue(limit int) *pendingQueue {
	return &pendingQueue{
		q:     queue.New(),
		limit: limit,
	}
}

// push enqueues a payload, evicting the oldest entry when at capacity.
func (p *pendingQueue) push(payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.q.Length() >= p.limit {
		p.q.Remove()
		p.dropped++
	}
	p.q.Add(payload)
}

// drain removes and returns all buffered payloads in arrival order,
// along with the number of payloads evicted since the last drain.
func (p *pendingQueue) drain() ([][]byte, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, 0, p.q.Length())
	for p.q.Length() > 0 {
		out = append(out, p.q.Remove().([]byte))
	}
	dropped := p.dropped
	p.dropped = 0
	return out, dropped
}

// size returns the number of buffered payloads.
func (p *pendingQueue) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Length()
}
