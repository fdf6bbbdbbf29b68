package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"banking-settlement/internal/domain"
)

// Hub pushes notifications to connected account-holder sessions. It is a
// Sink: delivery succeeds when every live connection for the recipient took
// the frame; a recipient with no connections is simply not listening, which
// is not a delivery failure.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{connections: make(map[string]map[*websocket.Conn]struct{})}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handle upgrades and registers a connection for the account in the query
// string, then holds it open until the peer goes away.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		http.Error(w, "account query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS upgrade failed for %s: %v", account, err)
		return
	}
	h.add(account, conn)

	go func() {
		defer h.remove(account, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) add(account string, conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.connections[account]; !ok {
		h.connections[account] = make(map[*websocket.Conn]struct{})
	}
	h.connections[account][conn] = struct{}{}
	total := len(h.connections[account])
	h.mu.Unlock()

	log.Printf("WS connected: %s (total=%d)", account, total)
}

func (h *Hub) remove(account string, conn *websocket.Conn) {
	h.mu.Lock()
	if conns, ok := h.connections[account]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.connections, account)
		}
	}
	h.mu.Unlock()
	_ = conn.Close()
	log.Printf("WS disconnected: %s", account)
}

func (h *Hub) Send(_ context.Context, n *domain.Notification) error {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.connections[n.Recipient]))
	for c := range h.connections[n.Recipient] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var firstErr error
	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.WriteJSON(n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
