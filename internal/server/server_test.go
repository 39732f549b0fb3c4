// ABOUTME: Tests for the frame broadcast server
// ABOUTME: Drives real websocket nodes against an httptest server
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lumenshow/lumen-go/internal/protocol"
	"github.com/lumenshow/lumen-go/pkg/frame"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := New(Config{Name: "Test Stage", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.closeNodes()
		ts.Close()
	})
	return s, "ws" + strings.TrimPrefix(ts.URL, "http") + s.config.Path
}

func dialNode(t *testing.T, url, id string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	hello := protocol.Message{
		Type:    protocol.TypeNodeHello,
		Payload: protocol.NodeHello{NodeID: id, Name: "node-" + id, Version: protocol.Version},
	}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("send hello: %v", err)
	}
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg protocol.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestHandshakeAndBroadcast(t *testing.T) {
	s, url := newTestServer(t)
	conn := dialNode(t, url, "a")

	if msg := readJSON(t, conn); msg.Type != protocol.TypeServerHello {
		t.Fatalf("expected %s, got %s", protocol.TypeServerHello, msg.Type)
	}

	geom := frame.Geometry{ChannelCount: 1, PixelsPerStrip: []int{2}}
	s.SetShow("session-1", geom, 3, 250)

	msg := readJSON(t, conn)
	if msg.Type != protocol.TypeGeometry {
		t.Fatalf("expected %s, got %s", protocol.TypeGeometry, msg.Type)
	}

	f := &frame.Frame{Timestamp: 100, Fade: true}
	f.Strips[0][1] = frame.GRB{G: 1, R: 2, B: 3}
	if err := s.WriteFrame(context.Background(), f); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("expected binary message, got %d", mt)
	}

	var got frame.Frame
	seq, gotGeom, err := protocol.DecodeFrame(data, &got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if seq != 0 {
		t.Errorf("expected seq 0, got %d", seq)
	}
	if !gotGeom.Equal(geom) {
		t.Errorf("expected geometry %+v, got %+v", geom, gotGeom)
	}
	if got != *f {
		t.Error("frame content mismatch")
	}

	stats := s.Stats()
	if stats.Sent != 1 || stats.Nodes != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestLateNodeReceivesShow(t *testing.T) {
	s, url := newTestServer(t)
	s.SetShow("session-1", frame.Geometry{ChannelCount: 2}, 10, 1000)
	s.SetState(protocol.ShowState{State: "playing", Position: 500, Frame: 5})

	conn := dialNode(t, url, "late")

	want := []string{protocol.TypeServerHello, protocol.TypeGeometry, protocol.TypeShowState}
	for _, typ := range want {
		if msg := readJSON(t, conn); msg.Type != typ {
			t.Errorf("expected %s, got %s", typ, msg.Type)
		}
	}
}

func TestDuplicateNodeRejected(t *testing.T) {
	_, url := newTestServer(t)

	first := dialNode(t, url, "dup")
	readJSON(t, first)

	second := dialNode(t, url, "dup")
	msg := readJSON(t, second)
	if msg.Type != protocol.TypeServerError {
		t.Errorf("expected %s, got %s", protocol.TypeServerError, msg.Type)
	}
}

func TestWriteFrameBeforeShow(t *testing.T) {
	s, _ := newTestServer(t)
	err := s.WriteFrame(context.Background(), &frame.Frame{})
	if !errors.Is(err, frame.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestNodeState(t *testing.T) {
	s, url := newTestServer(t)
	conn := dialNode(t, url, "b")
	readJSON(t, conn)

	state := protocol.Message{
		Type:    protocol.TypeNodeState,
		Payload: protocol.NodeState{State: "synchronized", Received: 12},
	}
	if err := conn.WriteJSON(state); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		nodes := s.Nodes()
		if len(nodes) == 1 && nodes[0].State == "synchronized" && nodes[0].Received == 12 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("node state not recorded: %+v", s.Nodes())
}

func TestSlowNodeDropsFrames(t *testing.T) {
	s := New(Config{SendBuffer: 4, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	s.SetShow("s", frame.Geometry{}, 1, 0)

	// A registered node with no writer never drains its queue.
	node := &Node{ID: "slow", Name: "slow", sendChan: make(chan interface{}, 4)}
	s.nodes[node.ID] = node

	for i := 0; i < 10; i++ {
		if err := s.WriteFrame(context.Background(), &frame.Frame{}); err != nil {
			t.Fatal(err)
		}
	}

	stats := s.Stats()
	if stats.Sent != 4 || stats.Dropped != 6 {
		t.Errorf("expected 4 sent and 6 dropped, got %+v", stats)
	}
	if s.Nodes()[0].Dropped != 6 {
		t.Errorf("expected node drop count 6, got %d", s.Nodes()[0].Dropped)
	}
}

func TestNodesRefusedAfterClose(t *testing.T) {
	s, url := newTestServer(t)
	conn := dialNode(t, url, "early")
	if msg := readJSON(t, conn); msg.Type != protocol.TypeServerHello {
		t.Fatalf("expected %s, got %s", protocol.TypeServerHello, msg.Type)
	}

	s.closeNodes()

	// Writers for registered nodes finish once their connections drop.
	waited := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("node writers did not stop after close")
	}

	late := dialNode(t, url, "late")
	msg := readJSON(t, late)
	if msg.Type != protocol.TypeServerError {
		t.Fatalf("expected %s, got %s", protocol.TypeServerError, msg.Type)
	}
	if len(s.Nodes()) != 0 {
		t.Errorf("expected no nodes after close, got %d", len(s.Nodes()))
	}
}
