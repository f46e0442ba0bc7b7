package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/brightforge/siteaudit/internal/audit"
	"github.com/brightforge/siteaudit/internal/database"
)

// Hub manages WebSocket clients subscribed to audit status events.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) Subscribe(auditID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[auditID] == nil {
		h.clients[auditID] = make(map[*websocket.Conn]struct{})
	}
	h.clients[auditID][conn] = struct{}{}
}

func (h *Hub) Unsubscribe(auditID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[auditID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, auditID)
		}
	}
}

func (h *Hub) Broadcast(auditID string, event audit.StatusEvent) {
	// Snapshot under the lock; disconnecting clients delete from the map
	// concurrently, so the live map must never be ranged unlocked.
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[auditID]))
	for conn := range h.clients[auditID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	var failed []*websocket.Conn
	for _, conn := range conns {
		if err := conn.Write(context.Background(), websocket.MessageText, data); err != nil {
			slog.Debug("ws write error", "error", err)
			failed = append(failed, conn)
		}
	}
	for _, conn := range failed {
		h.Unsubscribe(auditID, conn)
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

type wsSubscribeMsg struct {
	AuditID string `json:"audit_id"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("ws accept error", "error", err)
		return
	}
	defer conn.CloseNow()

	// Read subscribe message
	_, data, err := conn.Read(r.Context())
	if err != nil {
		return
	}

	var msg wsSubscribeMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.AuditID == "" {
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid subscribe message")
		return
	}

	s.hub.Subscribe(msg.AuditID, conn)
	defer s.hub.Unsubscribe(msg.AuditID, conn)

	// Send the current state immediately so subscribers to an already
	// terminal audit are not left waiting for an event that never comes.
	if a, err := s.db.GetAudit(msg.AuditID); err == nil && a != nil {
		grade := ""
		if a.OverallGrade != nil {
			grade = *a.OverallGrade
		}
		event := audit.StatusEvent{
			AuditID:      a.ID,
			Status:       a.Status,
			OverallGrade: grade,
			Timestamp:    time.Now(),
			Done:         database.IsTerminal(a.Status),
		}
		if data, err := json.Marshal(event); err == nil {
			conn.Write(r.Context(), websocket.MessageText, data)
		}
	}

	// Keep connection alive until close or context cancellation
	for {
		_, _, err := conn.Read(r.Context())
		if err != nil {
			return
		}
	}
}
