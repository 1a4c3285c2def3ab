package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quotapace/quotapace/internal/json"
	log "github.com/quotapace/quotapace/internal/logging"
	"github.com/quotapace/quotapace/internal/quota"
)

const writeTimeout = 10 * time.Second

// wsClient wraps a subscriber connection. The mutex serializes writes:
// the replay on subscribe and broadcasts from the scheduler goroutine may
// target the same connection, and gorilla allows only one writer at a time.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub tracks WebSocket subscribers and implements sink.Sink so every
// published resolution reaches connected status-bar clients.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

// streamFrame is the wire shape pushed to subscribers. Exactly one of
// Resolution or Error is set.
type streamFrame struct {
	Resolution *quota.Resolution `json:"resolution,omitempty"`
	Error      string            `json:"error,omitempty"`
	Code       string            `json:"code,omitempty"`
	RetryAfter int               `json:"retry_after_seconds,omitempty"`
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Subscribers are local status-bar clients.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Subscribe upgrades the connection and replays the latest resolution so
// new clients render immediately.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, latest *quota.Resolution) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	cl := &wsClient{conn: conn}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return conn.Close()
	}
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	if latest != nil {
		h.send(cl, streamFrame{Resolution: latest})
	}

	// Reader goroutine exists only to notice the close.
	go func() {
		for {
			if _, _, errRead := conn.ReadMessage(); errRead != nil {
				h.drop(cl)
				return
			}
		}
	}()
	return nil
}

// Publish implements sink.Sink.
func (h *Hub) Publish(res *quota.Resolution) {
	h.broadcast(streamFrame{Resolution: res})
}

// PublishError implements sink.Sink.
func (h *Hub) PublishError(err error) {
	frame := streamFrame{Error: err.Error(), Code: string(quota.CodeOf(err))}
	if qe, ok := quota.AsError(err); ok && qe.RetryAfter > 0 {
		frame.RetryAfter = int(qe.RetryAfter.Seconds())
	}
	h.broadcast(frame)
}

func (h *Hub) broadcast(frame streamFrame) {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		h.send(cl, frame)
	}
}

func (h *Hub) send(cl *wsClient, frame streamFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.WithError(err).Warn("stream frame marshal failed")
		return
	}
	cl.mu.Lock()
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	errWrite := cl.conn.WriteMessage(websocket.TextMessage, payload)
	cl.mu.Unlock()
	if errWrite != nil {
		h.drop(cl)
	}
}

func (h *Hub) drop(cl *wsClient) {
	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
	_ = cl.conn.Close()
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for _, cl := range clients {
		_ = cl.conn.Close()
	}
}
