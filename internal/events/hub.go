package events

import (
	"context"
	"log"
	"sync"
	"time"

	"lazla/internal/domain"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Hub keeps one live websocket per staff member and broadcasts payment
// events to all of them.
type Hub struct {
	connections map[int64]*websocket.Conn
	mutex       sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		connections: make(map[int64]*websocket.Conn),
	}
}

// Register replaces any previous connection held by the same staff member.
func (h *Hub) Register(staffID int64, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if old, ok := h.connections[staffID]; ok && old != nil && old != conn {
		_ = old.Close()
	}
	h.connections[staffID] = conn
}

// Unregister drops conn if it is still the one registered for staffID.
func (h *Hub) Unregister(staffID int64, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if cur, ok := h.connections[staffID]; ok && cur == conn {
		if cur != nil {
			_ = cur.Close()
		}
		delete(h.connections, staffID)
	}
}

func (h *Hub) OnlineCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections)
}

// Publish writes the event to every connection. Connections that fail the
// write are dropped. Writes happen under the hub lock so a socket never has
// two concurrent writers. Each write is bounded by writeWait and by the ctx
// deadline; once ctx is done the remaining connections are skipped.
func (h *Hub) Publish(ctx context.Context, e *domain.PaymentEvent) error {
	msg := NewMessage(e)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for staffID, conn := range h.connections {
		if err := ctx.Err(); err != nil {
			return err
		}
		if conn == nil {
			continue
		}
		deadline := time.Now().Add(writeWait)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		_ = conn.SetWriteDeadline(deadline)
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("level=warn msg=\"ws write failed\" staff_id=%d err=%v", staffID, err)
			_ = conn.Close()
			delete(h.connections, staffID)
		}
	}
	return nil
}

func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for staffID, conn := range h.connections {
		if conn != nil {
			_ = conn.Close()
		}
		delete(h.connections, staffID)
	}
}
