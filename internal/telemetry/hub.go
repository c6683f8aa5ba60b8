package telemetry

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans trading-loop snapshots out to connected websocket clients.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	lock      sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 64),
	}
}

// Run delivers broadcast messages to all clients. Dead connections are
// dropped on write failure. Run until the broadcast channel is closed.
func (h *Hub) Run() {
	for message := range h.broadcast {
		h.lock.Lock()
		for client := range h.clients {
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				client.Close()
				delete(h.clients, client)
			}
		}
		h.lock.Unlock()
	}
}

// Broadcast marshals v to JSON and queues it for delivery. Drops the
// message when the queue is full so the trading loop never blocks.
func (h *Hub) Broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("telemetry marshal failed", slog.Any("error", err))
		return
	}
	select {
	case h.broadcast <- b:
	default:
	}
}

// HandleWS upgrades an HTTP request and registers the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WS upgrade error", slog.Any("error", err))
		return
	}
	h.lock.Lock()
	h.clients[conn] = true
	h.lock.Unlock()
}

// ClientCount reports currently connected clients.
func (h *Hub) ClientCount() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}
