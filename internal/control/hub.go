// ABOUTME: Websocket hub fanning recorder events out to connected clients
// ABOUTME: One buffered writer goroutine per client; slow clients drop messages
package control

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/internal/metrics"
	"github.com/Resonate-Protocol/resonate-recorder/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeDeadline = 3 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 20 * time.Second
	sendBuffer    = 100
)

// Client is one event stream subscriber
type Client struct {
	ID       string
	Addr     string
	Conn     *websocket.Conn
	sendChan chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.sendChan)
}

// enqueue queues data without blocking. It reports false when the send
// buffer is full; data for a closed client is discarded.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.sendChan <- data:
		return true
	default:
		return false
	}
}

// Hub tracks event stream clients
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *metrics.Metrics
	hello    func() protocol.Message

	mu       sync.RWMutex
	clients  map[string]*Client
	shutdown bool
	wg       sync.WaitGroup
}

// NewHub creates a hub. hello builds the first message sent to each client.
func NewHub(hello func() protocol.Message, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Non-browser clients send no Origin; the API is meant for trusted networks
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.Named("hub"),
		metrics: m,
		hello:   hello,
		clients: make(map[string]*Client),
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	client := &Client{
		ID:       uuid.New().String(),
		Addr:     r.RemoteAddr,
		Conn:     conn,
		sendChan: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		conn.Close()
		h.logger.Info("Rejecting connection during shutdown")
		return
	}
	h.clients[client.ID] = client
	h.wg.Add(1)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSClients.Inc()
	}
	h.logger.Info("Event client connected", zap.String("client", client.ID), zap.String("addr", client.Addr))

	if h.hello != nil {
		h.send(client, h.hello())
	}

	go h.clientWriter(client)
	h.clientReader(client)
}

// clientReader consumes control frames until the connection fails
func (h *Hub) clientReader(client *Client) {
	defer h.remove(client)

	client.Conn.SetReadDeadline(time.Now().Add(readDeadline))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) clientWriter(client *Client) {
	defer h.wg.Done()
	defer client.Conn.Close()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case data, ok := <-client.sendChan:
			if !ok {
				client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				client.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("Write failed", zap.String("client", client.ID), zap.Error(err))
				return
			}
		case <-ping.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.ID]
	delete(h.clients, client.ID)
	h.mu.Unlock()

	if !ok {
		return
	}
	client.close()
	if h.metrics != nil {
		h.metrics.WSClients.Dec()
	}
	h.logger.Info("Event client disconnected", zap.String("client", client.ID))
}

// Broadcast queues msg for every client without blocking
func (h *Hub) Broadcast(msg protocol.Message) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.send(c, msg)
	}
}

func (h *Hub) send(client *Client, msg protocol.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	if !client.enqueue(data) {
		h.logger.Warn("Dropping message for slow client", zap.String("client", client.ID), zap.String("type", msg.Type))
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their writers
func (h *Hub) Close() {
	h.mu.Lock()
	h.shutdown = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
	h.wg.Wait()
}
