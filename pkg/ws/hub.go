package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// client serializes writes; gorilla connections allow one concurrent writer.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

type Hub struct {
	mu    sync.RWMutex
	conns map[string]*client
}

func NewHub() *Hub {
	return &Hub{conns: map[string]*client{}}
}

func (h *Hub) Add(id string, c *websocket.Conn) {
	h.mu.Lock()
	h.conns[id] = &client{conn: c}
	h.mu.Unlock()
}

func (h *Hub) Remove(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Send writes v to one connection.
func (h *Hub) Send(id string, v any) error {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return websocket.ErrCloseSent
	}
	return c.writeJSON(v)
}

// Broadcast writes v to every connection and drops the ones that fail.
func (h *Hub) Broadcast(v any) {
	h.mu.RLock()
	targets := make(map[string]*client, len(h.conns))
	for id, c := range h.conns {
		targets[id] = c
	}
	h.mu.RUnlock()

	for id, c := range targets {
		if err := c.writeJSON(v); err != nil {
			h.Remove(id)
			_ = c.conn.Close()
		}
	}
}
