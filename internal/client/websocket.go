// ABOUTME: WebSocket client for a recorder's event stream
// ABOUTME: Handles connection, the hello handshake and message routing
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/internal/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config holds client configuration
type Config struct {
	ServerAddr string // host:port
	Logger     *zap.Logger
}

// Client follows one recorder
type Client struct {
	config Config
	http   *httpClient
	logger *zap.Logger
	conn   *websocket.Conn
	mu     sync.RWMutex

	// Message channels
	CaptureStarted chan protocol.CaptureStarted
	CaptureStopped chan protocol.Record
	Progress       chan protocol.TranscodeProgress
	Done           chan protocol.TranscodeDone
	Failed         chan protocol.TranscodeFailed
	Archived       chan protocol.Archived

	// State
	server    protocol.ServerHello
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new client
func NewClient(config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:         config,
		http:           newHTTPClient(config.ServerAddr),
		logger:         logger.Named("client"),
		CaptureStarted: make(chan protocol.CaptureStarted, 10),
		CaptureStopped: make(chan protocol.Record, 10),
		Progress:       make(chan protocol.TranscodeProgress, 100),
		Done:           make(chan protocol.TranscodeDone, 10),
		Failed:         make(chan protocol.TranscodeFailed, 10),
		Archived:       make(chan protocol.Archived, 10),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Connect opens the event stream and waits for server/hello
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: "/events"}
	c.logger.Info("Connecting", zap.String("url", u.String()))

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	return nil
}

// Server returns the hello received on connect
func (c *Client) Server() protocol.ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

func (c *Client) handshake() error {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msg, err := c.readMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	if msg.Type != protocol.TypeHello {
		return fmt.Errorf("expected server/hello, got %s", msg.Type)
	}

	var hello protocol.ServerHello
	if err := json.Unmarshal(msg.Payload, &hello); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	c.mu.Lock()
	c.server = hello
	c.mu.Unlock()

	c.logger.Info("Handshake complete", zap.String("server", hello.Name), zap.String("version", hello.Version))
	return nil
}

// rawMessage defers payload decoding until the type is known
type rawMessage struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func (c *Client) readMessage() (rawMessage, error) {
	var msg rawMessage
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("failed to parse message: %w", err)
	}
	return msg, nil
}

func (c *Client) readMessages() {
	defer c.Close()

	for {
		msg, err := c.readMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				c.logger.Warn("Read error", zap.Error(err))
			}
			return
		}
		if err := c.route(msg); err != nil {
			c.logger.Warn("Failed to handle message", zap.String("type", msg.Type), zap.Error(err))
		}
	}
}

// route decodes msg onto its channel
func (c *Client) route(msg rawMessage) error {
	switch msg.Type {
	case protocol.TypeCaptureStarted:
		return deliver(c.ctx, msg.Payload, c.CaptureStarted)
	case protocol.TypeCaptureStopped:
		return deliver(c.ctx, msg.Payload, c.CaptureStopped)
	case protocol.TypeTranscodeProgress:
		return deliver(c.ctx, msg.Payload, c.Progress)
	case protocol.TypeTranscodeDone:
		return deliver(c.ctx, msg.Payload, c.Done)
	case protocol.TypeTranscodeFailed:
		return deliver(c.ctx, msg.Payload, c.Failed)
	case protocol.TypeArchived:
		return deliver(c.ctx, msg.Payload, c.Archived)
	default:
		c.logger.Debug("Unknown message type", zap.String("type", msg.Type))
		return nil
	}
}

func deliver[T any](ctx context.Context, payload json.RawMessage, ch chan T) error {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return err
	}
	select {
	case ch <- v:
	case <-ctx.Done():
	}
	return nil
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		c.logger.Info("Connection closed")
	}
}

// Closed is closed when the connection ends
func (c *Client) Closed() <-chan struct{} { return c.ctx.Done() }

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
