package webui

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	opcua "opcua-demo/driver/opcua"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Hub verteilt jeden Read eines Pollers an alle WebSocket-Clients.
// Langsame Clients verlieren Nachrichten statt die Poller aufzuhalten.
type Hub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
	closed  bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

type liveMessage struct {
	Endpoint string      `json:"endpoint"`
	Values   []DataPoint `json:"values"`
}

// Broadcast passt zur Signatur von logic.Manager.OnSamples.
func (h *Hub) Broadcast(endpoint string, samples []opcua.Sample) {
	payload, err := json.Marshal(liveMessage{Endpoint: endpoint, Values: toDataPoints(samples)})
	if err != nil {
		logrus.Errorf("WEBUI: marshal live values: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

func (h *Hub) subscribe() (chan []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan []byte, 16)
	h.clients[ch] = struct{}{}
	return ch, true
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// Close trennt alle Clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// valuesWebSocket streamt Live-Werte als JSON, eine Nachricht pro Read.
func (s *Server) valuesWebSocket(c *gin.Context) {
	if s.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live values disabled"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Errorf("WEBUI: error upgrading to WebSocket: %v", err)
		return
	}

	ch, ok := s.hub.subscribe()
	if !ok {
		gracefulShutdown(conn)
		return
	}
	defer s.hub.unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		monitorWebSocket(conn)
	}()

	for {
		select {
		case <-done:
			return
		case payload, ok := <-ch:
			if !ok {
				gracefulShutdown(conn)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logrus.Warnf("WEBUI: error sending live values: %v", err)
				conn.Close()
				return
			}
		}
	}
}
