// ABOUTME: WebSocket client for LED nodes
// ABOUTME: Handles connection, handshake and routing of show messages
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lumenshow/lumen-go/internal/discovery"
	"github.com/lumenshow/lumen-go/internal/protocol"
	"github.com/lumenshow/lumen-go/pkg/frame"
)

// ErrRejected reports a server that refused the handshake.
var ErrRejected = errors.New("rejected by server")

// Config holds client configuration
type Config struct {
	ServerAddr string
	Path       string
	NodeID     string
	Name       string
	DeviceInfo protocol.DeviceInfo
	Capacity   protocol.Capacity
	Logger     *slog.Logger
}

// Client is a connected LED node
type Client struct {
	config Config
	log    *slog.Logger
	conn   *websocket.Conn
	mu     sync.RWMutex

	// Message channels
	Frames   chan FrameMessage
	Geometry chan protocol.Geometry
	State    chan protocol.ShowState

	server protocol.ServerHello

	received atomic.Int64
	dropped  atomic.Int64

	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// FrameMessage is one decoded frame broadcast
type FrameMessage struct {
	Seq      uint32
	Geometry frame.Geometry
	Frame    frame.Frame
}

// NewClient creates a new node client
func NewClient(config Config) *Client {
	if config.Path == "" {
		config.Path = discovery.DefaultPath
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:   config,
		log:      config.Logger.With("component", "client"),
		Frames:   make(chan FrameMessage, 8),
		Geometry: make(chan protocol.Geometry, 1),
		State:    make(chan protocol.ShowState, 4),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and performs the handshake
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	c.log.Info("connecting", "url", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
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

// handshake sends node/hello and waits for server/hello
func (c *Client) handshake() error {
	hello := protocol.NodeHello{
		NodeID:     c.config.NodeID,
		Name:       c.config.Name,
		Version:    protocol.Version,
		DeviceInfo: &c.config.DeviceInfo,
		Capacity:   &c.config.Capacity,
	}
	if err := c.sendJSON(protocol.TypeNodeHello, hello); err != nil {
		return fmt.Errorf("failed to send node/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg protocol.Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	switch msg.Type {
	case protocol.TypeServerHello:
	case protocol.TypeServerError:
		var serverErr protocol.ServerError
		decodePayload(msg.Payload, &serverErr)
		return fmt.Errorf("%w: %s", ErrRejected, serverErr.Message)
	default:
		return fmt.Errorf("expected server/hello, got %s", msg.Type)
	}

	var server protocol.ServerHello
	if err := decodePayload(msg.Payload, &server); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}
	c.mu.Lock()
	c.server = server
	c.mu.Unlock()

	c.log.Info("handshake complete", "server", server.Name, "session", server.SessionID)
	return nil
}

// Server returns the server's hello.
func (c *Client) Server() protocol.ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer close(c.done)
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.Warn("read error", "error", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.handleBinaryMessage(data)
		case websocket.TextMessage:
			c.handleJSONMessage(data)
		}
	}
}

// handleBinaryMessage decodes a frame broadcast. A node that cannot keep
// up drops frames rather than stalling the connection.
func (c *Client) handleBinaryMessage(data []byte) {
	var msg FrameMessage
	seq, geom, err := protocol.DecodeFrame(data, &msg.Frame)
	if err != nil {
		c.log.Warn("invalid frame message", "error", err)
		return
	}
	msg.Seq = seq
	msg.Geometry = geom

	select {
	case c.Frames <- msg:
		c.received.Add(1)
	default:
		c.dropped.Add(1)
	}
}

// handleJSONMessage routes JSON messages
func (c *Client) handleJSONMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("failed to parse JSON message", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeGeometry:
		var geom protocol.Geometry
		if err := decodePayload(msg.Payload, &geom); err != nil {
			c.log.Warn("invalid geometry", "error", err)
			return
		}
		// Only the latest geometry matters.
		select {
		case <-c.Geometry:
		default:
		}
		c.Geometry <- geom

	case protocol.TypeShowState:
		var state protocol.ShowState
		if err := decodePayload(msg.Payload, &state); err != nil {
			c.log.Warn("invalid show state", "error", err)
			return
		}
		select {
		case c.State <- state:
		case <-c.ctx.Done():
		}

	default:
		c.log.Warn("unknown message type", "type", msg.Type)
	}
}

// SendState reports node health to the server
func (c *Client) SendState(state string) error {
	return c.sendJSON(protocol.TypeNodeState, protocol.NodeState{
		State:    state,
		Received: c.received.Load(),
		Dropped:  c.dropped.Load(),
	})
}

// Stats returns received and dropped frame counts
func (c *Client) Stats() (received, dropped int64) {
	return c.received.Load(), c.dropped.Load()
}

// sendJSON sends a JSON message
func (c *Client) sendJSON(msgType string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(protocol.Message{Type: msgType, Payload: payload})
}

// Done is closed once the connection has ended
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		c.log.Info("connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func decodePayload(payload interface{}, v interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
