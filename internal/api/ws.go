package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fuellog-sync-service/internal/logger"
	syncpkg "fuellog-sync-service/internal/sync"
)

// Event types pushed to the shell so it can badge the UI without polling.
const (
	EventSyncStarted      = "sync.started"
	EventSyncCompleted    = "sync.completed"
	EventConflictDetected = "sync.conflict_detected"
	EventNetworkChanged   = "network.changed"
)

// Envelope wraps all websocket messages.
type Envelope struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// Hub fans sync engine events out to connected websocket clients. It
// implements sync.Notifier.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The shell connects from the local origin only.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	logger.Log.Debug("websocket client connected", zap.Int("total", total))

	// Clients only listen; the read loop just detects disconnects.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *Hub) broadcast(eventType string, data map[string]any) {
	envelope := Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(envelope); err != nil {
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

func (h *Hub) DrainStarted(pending int) {
	h.broadcast(EventSyncStarted, map[string]any{"pending": pending})
}

func (h *Hub) DrainCompleted(result syncpkg.DrainResult) {
	h.broadcast(EventSyncCompleted, map[string]any{
		"synced":   result.SyncedCount,
		"outcomes": len(result.Outcomes),
	})
}

func (h *Hub) ConflictDetected(conflict *syncpkg.Conflict) {
	h.broadcast(EventConflictDetected, map[string]any{
		"record_id":      conflict.Record.ID,
		"classification": string(conflict.Classification),
		"overlapping":    len(conflict.Overlapping),
	})
}

func (h *Hub) NetworkChanged(online, wasOffline bool) {
	h.broadcast(EventNetworkChanged, map[string]any{
		"online":      online,
		"was_offline": wasOffline,
	})
}
