// Package websocket broadcasts structured order/notification events to
// connected operator clients, realizing the notification-sink boundary
// spec.md §1 leaves as an external collaborator (SPEC_FULL.md §15).
package websocket

import (
	"bytes"
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/metrics"
)

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub is the central broadcast manager for every connected operator
// WebSocket client: order updates, notifications, balance/stats/price-
// watcher events (the MessageType set in messages.go).
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// dropped counts messages not delivered because a slow client's
	// send buffer overflowed.
	dropped int64

	log *zap.SugaredLogger
}

// NewHub builds a Hub. Call Run in its own goroutine before Broadcast.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

// Run is the Hub's main loop; start it in its own goroutine before
// any Broadcast call. Broadcast fan-out copies the client list under a
// short RLock, sends without holding it, then removes slow clients
// under a write lock.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SetWebSocketClients(n)
			h.log.Infow("client connected", "total_clients", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SetWebSocketClients(n)
			h.log.Infow("client disconnected", "total_clients", n)

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				atomic.AddInt64(&h.dropped, int64(len(toRemove)))
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				n := len(h.clients)
				h.mu.Unlock()
				metrics.SetWebSocketClients(n)
				h.log.Warnw("removed slow clients", "removed", len(toRemove), "total_clients", n)
			}
		}
	}
}

// Broadcast serializes message and fans it out to every connected
// client, using a pooled buffer to avoid an allocation per call.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.log.Errorw("failed to marshal broadcast message", "err", err)
		jsonBufferPool.Put(buf)
		return
	}

	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.broadcast <- msgCopy
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages returns how many messages were not delivered
// because a slow client's send buffer overflowed, since hub start.
func (h *Hub) DroppedMessages() int64 {
	return atomic.LoadInt64(&h.dropped)
}
