// ABOUTME: Frame broadcast server for Lumen LED nodes
// ABOUTME: Manages WebSocket connections and fans decoded frames out to nodes
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lumenshow/lumen-go/internal/discovery"
	"github.com/lumenshow/lumen-go/internal/protocol"
	"github.com/lumenshow/lumen-go/pkg/frame"
)

const (
	// DefaultPort is the port show servers listen on.
	DefaultPort = 8927

	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
	helloTimeout  = 5 * time.Second
)

// ErrBufferFull reports a node whose send queue is full.
var ErrBufferFull = errors.New("node send buffer full")

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	Path       string
	EnableMDNS bool
	// SendBuffer is the per-node queue length; frames beyond it are dropped.
	SendBuffer int
	Logger     *slog.Logger
}

// Server accepts LED nodes and broadcasts show frames to them. It
// implements frame.Output.
type Server struct {
	config   Config
	log      *slog.Logger
	serverID string
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	nodesMu sync.RWMutex
	nodes   map[string]*Node
	// closed is set by closeNodes; later handshakes are refused.
	closed bool

	showMu    sync.RWMutex
	geom      frame.Geometry
	geomMsg   *protocol.Geometry
	stateMsg  *protocol.ShowState
	sessionID string
	seq       atomic.Uint32

	sent    atomic.Int64
	dropped atomic.Int64

	mdns *discovery.Manager
	wg   sync.WaitGroup
}

// Node is a connected LED node
type Node struct {
	ID         string
	Name       string
	RemoteAddr string
	Device     *protocol.DeviceInfo
	Connected  time.Time

	conn     *websocket.Conn
	sendChan chan interface{}

	mu       sync.RWMutex
	state    string
	received int64
	dropped  int64
}

// NodeInfo is a snapshot of a node for display
type NodeInfo struct {
	ID       string
	Name     string
	Addr     string
	State    string
	Received int64
	Dropped  int64
}

// Stats counts frames queued to and dropped for nodes
type Stats struct {
	Sent    int64
	Dropped int64
	Nodes   int
}

// New creates a new server instance
func New(config Config) *Server {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Path == "" {
		config.Path = discovery.DefaultPath
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = 64
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	log := config.Logger.With("component", "server")

	s := &Server{
		config:   config,
		log:      log,
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		nodes:    make(map[string]*Node),
		upgrader: websocket.Upgrader{
			// Nodes live on the show network and are not browsers.
			CheckOrigin: func(r *http.Request) bool {
				if origin := r.Header.Get("Origin"); origin != "" {
					log.Warn("accepting websocket from browser origin", "origin", origin)
				}
				return true
			},
		},
	}
	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler serving the node endpoint.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run listens on the configured port and serves nodes until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves nodes on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.config.EnableMDNS {
		s.mdns = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        s.config.Path,
			Logger:      s.config.Logger,
		})
		if err := s.mdns.Advertise(); err != nil {
			s.log.Warn("mdns advertisement failed", "error", err)
		}
		defer s.mdns.Stop()
	}

	httpServer := &http.Server{Handler: s.mux}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("websocket server listening", "addr", ln.Addr().String(), "path", s.config.Path)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	var serverErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errChan:
		if ok {
			serverErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http server shutdown", "error", err)
	}
	s.closeNodes()
	s.wg.Wait()
	s.log.Info("server stopped")

	if serverErr != nil {
		return fmt.Errorf("http server failed: %w", serverErr)
	}
	return nil
}

// SetShow announces a newly loaded show to every node and resets the
// frame sequence.
func (s *Server) SetShow(sessionID string, geom frame.Geometry, frameCount int, durationMs uint32) {
	msg := protocol.NewGeometry(geom, frameCount, durationMs)

	s.showMu.Lock()
	s.geom = geom.Clone()
	s.geomMsg = &msg
	s.sessionID = sessionID
	s.showMu.Unlock()
	s.seq.Store(0)

	s.broadcastJSON(protocol.TypeGeometry, msg)
}

// SetState broadcasts the show transport state.
func (s *Server) SetState(state protocol.ShowState) {
	s.showMu.Lock()
	s.stateMsg = &state
	s.showMu.Unlock()

	s.broadcastJSON(protocol.TypeShowState, state)
}

// WriteFrame queues f for every node. Nodes whose queue is full miss the
// frame; WriteFrame never blocks on a slow node.
func (s *Server) WriteFrame(ctx context.Context, f *frame.Frame) error {
	s.showMu.RLock()
	geom := s.geom
	ready := s.geomMsg != nil
	s.showMu.RUnlock()

	if !ready {
		return fmt.Errorf("%w: no show announced", frame.ErrInvalidState)
	}

	data, err := protocol.EncodeFrame(s.seq.Add(1)-1, f, geom)
	if err != nil {
		return err
	}

	s.nodesMu.RLock()
	defer s.nodesMu.RUnlock()

	for _, node := range s.nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := node.send(data); err != nil {
			s.dropped.Add(1)
			node.mu.Lock()
			node.dropped++
			node.mu.Unlock()
			continue
		}
		s.sent.Add(1)
	}
	return nil
}

// Nodes returns a snapshot of the connected nodes ordered by name.
func (s *Server) Nodes() []NodeInfo {
	s.nodesMu.RLock()
	out := make([]NodeInfo, 0, len(s.nodes))
	for _, n := range s.nodes {
		n.mu.RLock()
		out = append(out, NodeInfo{
			ID:       n.ID,
			Name:     n.Name,
			Addr:     n.RemoteAddr,
			State:    n.state,
			Received: n.received,
			Dropped:  n.dropped,
		})
		n.mu.RUnlock()
	}
	s.nodesMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stats returns broadcast counters
func (s *Server) Stats() Stats {
	s.nodesMu.RLock()
	n := len(s.nodes)
	s.nodesMu.RUnlock()
	return Stats{Sent: s.sent.Load(), Dropped: s.dropped.Load(), Nodes: n}
}

// handleWebSocket upgrades and serves one node
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.handleConnection(conn, r.RemoteAddr)
}

// handleConnection manages a node connection
func (s *Server) handleConnection(conn *websocket.Conn, remote string) {
	defer conn.Close()
	log := s.log.With("remote", remote)

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var msg protocol.Message
	if err := conn.ReadJSON(&msg); err != nil {
		log.Warn("reading node hello failed", "error", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	if msg.Type != protocol.TypeNodeHello {
		log.Warn("unexpected handshake message", "type", msg.Type)
		return
	}

	var hello protocol.NodeHello
	if err := decodePayload(msg.Payload, &hello); err != nil {
		log.Warn("invalid node hello", "error", err)
		return
	}
	if hello.NodeID == "" || hello.Name == "" {
		log.Warn("node hello missing id or name")
		return
	}

	node := &Node{
		ID:         hello.NodeID,
		Name:       hello.Name,
		RemoteAddr: remote,
		Device:     hello.DeviceInfo,
		Connected:  time.Now(),
		conn:       conn,
		sendChan:   make(chan interface{}, max(s.config.SendBuffer, 4)),
		state:      "connected",
	}

	// Queue the greeting and the current show before the node becomes
	// visible to broadcasts, so frames never precede the geometry.
	s.showMu.RLock()
	node.sendJSON(protocol.TypeServerHello, protocol.ServerHello{
		ServerID:  s.serverID,
		Name:      s.config.Name,
		Version:   protocol.Version,
		SessionID: s.sessionID,
	})
	if s.geomMsg != nil {
		node.sendJSON(protocol.TypeGeometry, *s.geomMsg)
	}
	if s.stateMsg != nil {
		node.sendJSON(protocol.TypeShowState, *s.stateMsg)
	}

	s.nodesMu.Lock()
	closed := s.closed
	existing, dup := s.nodes[node.ID]
	if !closed && !dup {
		s.nodes[node.ID] = node
		// Counted under nodesMu so closeNodes and Serve's Wait see it.
		s.wg.Add(1)
	}
	s.nodesMu.Unlock()
	s.showMu.RUnlock()

	if closed {
		log.Info("rejecting node during shutdown", "node_id", node.ID)
		conn.WriteJSON(protocol.Message{
			Type: protocol.TypeServerError,
			Payload: protocol.ServerError{
				Error:   "shutting_down",
				Message: "Server is shutting down",
			},
		})
		return
	}
	if dup {
		log.Warn("rejecting duplicate node id", "node_id", node.ID, "existing", existing.Name)
		conn.WriteJSON(protocol.Message{
			Type: protocol.TypeServerError,
			Payload: protocol.ServerError{
				Error:   "duplicate_node_id",
				Message: "Node ID already connected",
			},
		})
		return
	}

	log = log.With("node", node.Name)
	log.Info("node connected", "node_id", node.ID)

	defer func() {
		s.nodesMu.Lock()
		delete(s.nodes, node.ID)
		close(node.sendChan)
		s.nodesMu.Unlock()
		log.Info("node disconnected")
	}()

	go func() {
		defer s.wg.Done()
		s.nodeWriter(node, log)
	}()

	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read error", "error", err)
			}
			return
		}
		s.handleNodeMessage(node, msg, log)
	}
}

// nodeWriter drains the node's queue onto the connection
func (s *Server) nodeWriter(node *Node, log *slog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-node.sendChan:
			if !ok {
				return
			}

			node.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			var err error
			switch v := msg.(type) {
			case []byte:
				err = node.conn.WriteMessage(websocket.BinaryMessage, v)
			default:
				err = node.conn.WriteJSON(v)
			}
			if err != nil {
				log.Warn("write to node failed", "error", err)
				node.conn.Close()
				return
			}

		case <-ticker.C:
			if err := node.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// handleNodeMessage processes messages from nodes
func (s *Server) handleNodeMessage(node *Node, msg protocol.Message, log *slog.Logger) {
	switch msg.Type {
	case protocol.TypeNodeState:
		var state protocol.NodeState
		if err := decodePayload(msg.Payload, &state); err != nil {
			log.Warn("invalid node state", "error", err)
			return
		}
		node.mu.Lock()
		node.state = state.State
		node.received = state.Received
		node.mu.Unlock()
		log.Debug("node state", "state", state.State, "received", state.Received, "dropped", state.Dropped)
	default:
		log.Warn("unknown message type", "type", msg.Type)
	}
}

func (s *Server) broadcastJSON(msgType string, payload interface{}) {
	s.nodesMu.RLock()
	defer s.nodesMu.RUnlock()
	for _, node := range s.nodes {
		if err := node.sendJSON(msgType, payload); err != nil {
			s.log.Warn("dropping control message", "node", node.Name, "type", msgType, "error", err)
		}
	}
}

// closeNodes refuses further nodes and drops every node connection;
// handlers clean up on read error.
func (s *Server) closeNodes() {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()
	s.closed = true
	for _, node := range s.nodes {
		node.conn.Close()
	}
}

// send queues a binary message without blocking. Callers hold nodesMu so
// the channel cannot be closed underneath them.
func (n *Node) send(data []byte) error {
	select {
	case n.sendChan <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (n *Node) sendJSON(msgType string, payload interface{}) error {
	select {
	case n.sendChan <- protocol.Message{Type: msgType, Payload: payload}:
		return nil
	default:
		return ErrBufferFull
	}
}

// decodePayload converts a generic JSON payload into a typed struct.
func decodePayload(payload interface{}, v interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
