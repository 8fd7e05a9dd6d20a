// Package hub fans canonical events out to live connections.
//
// Every connection owns a bounded send buffer drained by its own writer
// goroutine. Publishing never blocks: a message that does not fit in a
// connection's buffer is dropped for that connection only.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/existflow/collabtask/internal/logger"
	"github.com/existflow/collabtask/internal/protocol"
)

// DefaultBufferSize is the per-connection send buffer
const DefaultBufferSize = 64

// Conn is a live connection as seen by the hub
type Conn struct {
	ID string

	send      chan protocol.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn creates a connection with the given buffer size
func NewConn(id string, bufferSize int) *Conn {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Conn{
		ID:   id,
		send: make(chan protocol.Message, bufferSize),
		done: make(chan struct{}),
	}
}

// Outbox is drained by the connection's writer
func (c *Conn) Outbox() <-chan protocol.Message {
	return c.send
}

// Done is closed once the connection is closed
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close marks the connection closed. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue never blocks; it reports false when the message was dropped
func (c *Conn) enqueue(msg protocol.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Hub tracks live connections
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]*Conn
	dropped atomic.Int64
}

// New creates an empty hub
func New() *Hub {
	return &Hub{conns: make(map[string]*Conn)}
}

// Register adds a connection
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()
	logger.Debug("Connection registered", logger.F("conn", c.ID))
}

// Unregister removes and closes a connection
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()

	if ok {
		c.Close()
		logger.Debug("Connection unregistered", logger.F("conn", id))
	}
}

// CloseAll removes and closes every connection
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*Conn)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Len returns the number of live connections
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Dropped returns how many deliveries were dropped so far
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Publish delivers msg to every live connection except the excluded ids
// and returns how many connections accepted it.
func (h *Hub) Publish(msg protocol.Message, exclude ...string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, c := range h.conns {
		if excluded(id, exclude) {
			continue
		}
		if c.enqueue(msg) {
			delivered++
			continue
		}
		h.dropped.Add(1)
		logger.Warn("Delivery dropped",
			logger.F("conn", id),
			logger.F("type", msg.Type))
	}
	return delivered
}

// Send delivers msg to a single connection
func (h *Hub) Send(id string, msg protocol.Message) bool {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if !c.enqueue(msg) {
		h.dropped.Add(1)
		logger.Warn("Delivery dropped", logger.F("conn", id), logger.F("type", msg.Type))
		return false
	}
	return true
}

func excluded(id string, exclude []string) bool {
	for _, e := range exclude {
		if e != "" && e == id {
			return true
		}
	}
	return false
}
