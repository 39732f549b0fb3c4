// ABOUTME: Tests for the LED node client
// ABOUTME: Connects to a real frame server over httptest
package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lumenshow/lumen-go/internal/server"
	"github.com/lumenshow/lumen-go/pkg/frame"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T) (*server.Server, string) {
	t.Helper()
	srv := server.New(server.Config{Name: "Test Stage", Logger: quietLogger()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, strings.TrimPrefix(ts.URL, "http://")
}

func TestNewClient(t *testing.T) {
	c := NewClient(Config{ServerAddr: "localhost:8927", NodeID: "n1", Name: "Truss Left"})
	if c.config.Path != "/lumen" {
		t.Errorf("expected default path /lumen, got %s", c.config.Path)
	}
	if c.IsConnected() {
		t.Error("new client should not be connected")
	}
}

func TestReceiveFrames(t *testing.T) {
	srv, addr := startServer(t)

	c := NewClient(Config{ServerAddr: addr, NodeID: "n1", Name: "Truss Left", Logger: quietLogger()})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Close()

	if c.Server().Name != "Test Stage" {
		t.Errorf("expected server name Test Stage, got %q", c.Server().Name)
	}

	// The node is registered once its hello has been answered, but the
	// server writes asynchronously; wait for it to show up.
	deadline := time.Now().Add(2 * time.Second)
	for srv.Stats().Nodes == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	geom := frame.Geometry{ChannelCount: 1, PixelsPerStrip: []int{2}}
	srv.SetShow("s1", geom, 3, 250)

	select {
	case g := <-c.Geometry:
		if g.FrameCount != 3 || g.PixelCounts[0] != 2 {
			t.Errorf("unexpected geometry %+v", g)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for geometry")
	}

	f := &frame.Frame{Timestamp: 250}
	f.Channels[0] = frame.GRB{G: 9, R: 8, B: 7}
	if err := srv.WriteFrame(context.Background(), f); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	select {
	case msg := <-c.Frames:
		if msg.Frame != *f {
			t.Error("frame content mismatch")
		}
		if !msg.Geometry.Equal(geom) {
			t.Errorf("unexpected geometry %+v", msg.Geometry)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}

	if received, _ := c.Stats(); received != 1 {
		t.Errorf("expected 1 received frame, got %d", received)
	}
	if err := c.SendState("synchronized"); err != nil {
		t.Errorf("send state: %v", err)
	}
}

func TestDuplicateNodeRejected(t *testing.T) {
	_, addr := startServer(t)

	first := NewClient(Config{ServerAddr: addr, NodeID: "same", Name: "a", Logger: quietLogger()})
	if err := first.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	second := NewClient(Config{ServerAddr: addr, NodeID: "same", Name: "b", Logger: quietLogger()})
	err := second.Connect(context.Background())
	if !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected, got %v", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	c := NewClient(Config{ServerAddr: "127.0.0.1:1", NodeID: "n", Name: "n", Logger: quietLogger()})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := c.Connect(ctx); err == nil {
		c.Close()
		t.Fatal("expected dial failure")
	}
}
