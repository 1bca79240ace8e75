package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// WSHub fans task mutation events out to the owning user's connected
// websocket clients.
type WSHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]string
	seq     atomic.Uint64
}

func NewWSHub() *WSHub {
	return &WSHub{clients: map[*websocket.Conn]string{}}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	s.hub.Handle(w, r, user.ID)
}

func (h *WSHub) Handle(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.clients[conn] = userID
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *WSHub) Publish(userID, event string, payload map[string]any) {
	msg, err := json.Marshal(map[string]any{
		"id":      fmt.Sprintf("evt_%d", h.seq.Add(1)),
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c, owner := range h.clients {
		if owner == userID {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		_ = c.Write(ctx, websocket.MessageText, msg)
		cancel()
	}
}
