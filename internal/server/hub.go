package server

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/omochice/termchat/internal/chat"
	"github.com/omochice/termchat/pkg/protocol"
)

// ErrHubClosed is returned by Register once the hub is shutting down.
var ErrHubClosed = errors.New("hub closed")

// client is one connection, authenticated or not.
type client struct {
	id       string
	stream   chat.Stream
	framer   protocol.Framer
	limiter  *rate.Limiter
	logger   *zap.Logger
	username string

	outgoing chan []byte
	ready    atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
	farewell atomic.Bool
}

// close ends the writer. With farewell an authenticated client is sent
// /exit before the stream is closed.
func (c *client) close(farewell bool) {
	c.stopOnce.Do(func() {
		c.farewell.Store(farewell)
		close(c.stop)
	})
}

// send queues payload, waiting for room until the client is closed.
func (c *client) send(payload []byte) bool {
	select {
	case c.outgoing <- payload:
		return true
	case <-c.stop:
		return false
	}
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
	logger  *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		logger:  logger,
	}
}

func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.clients[c.id] = c
	return nil
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues payload for every authenticated client, including the
// sender. Clients whose queue is full miss the message.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if !c.ready.Load() {
			continue
		}
		select {
		case c.outgoing <- payload:
		default:
			h.logger.Warn("client queue full, message dropped", zap.String("client", c.id))
		}
	}
}

// closeAll refuses new clients and returns the ones still connected.
func (h *Hub) closeAll() []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	out := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}
