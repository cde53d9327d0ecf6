package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"portalchat/internal/metrics"
)

// Hub owns the set of live clients. Every broadcast goes to every client
// regardless of session; clients filter by sessionId themselves.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewHub(m *metrics.Metrics, log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		metrics: m,
		log:     log,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.ConnectionOpened()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		h.metrics.ConnectionClosed()
	}
	c.close()
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues frame for every client except the given one, which may be
// nil. Clients that cannot keep up are disconnected.
func (h *Hub) Broadcast(frame []byte, except *Client) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(frame) {
			delivered++
			continue
		}
		if c.isClosed() {
			continue
		}
		h.log.Warn().Str("client_id", c.id).Msg("dropping slow client")
		h.metrics.RecordDroppedClient()
		h.unregister(c)
	}
	return delivered
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.unregister(c)
	}
}
