// ABOUTME: Entry point for a Lumen LED node
// ABOUTME: Connects to a show server and drives a logging frame output
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lumenshow/lumen-go/internal/app"
	"github.com/lumenshow/lumen-go/internal/client"
	"github.com/lumenshow/lumen-go/internal/discovery"
	"github.com/lumenshow/lumen-go/internal/protocol"
	"github.com/lumenshow/lumen-go/internal/version"
	"github.com/lumenshow/lumen-go/pkg/frame"
)

var (
	serverAddr = flag.String("server", "", "Manual server address (skip mDNS)")
	path       = flag.String("path", discovery.DefaultPath, "WebSocket path on the server")
	name       = flag.String("name", "", "Node friendly name (default: hostname-lumen-node)")
	every      = flag.Int("every", 30, "Log one of every N frames")
	logFile    = flag.String("log-file", "lumen-node.log", "Log file path")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

const stateInterval = 5 * time.Second

func main() {
	flag.Parse()

	// Set up logging (both file and console)
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, f), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	nodeName := *name
	if nodeName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		nodeName = fmt.Sprintf("%s-lumen-node", hostname)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, nodeName, logger); err != nil {
		logger.Error("node failed", "error", err)
		os.Exit(1)
	}
	logger.Info("node stopped")
}

func run(ctx context.Context, nodeName string, logger *slog.Logger) error {
	addr, wsPath := *serverAddr, *path
	if addr == "" {
		found, err := discover(ctx, nodeName, logger)
		if err != nil {
			return err
		}
		addr, wsPath = found.Addr(), found.Path
	}

	cl := client.NewClient(client.Config{
		ServerAddr: addr,
		Path:       wsPath,
		NodeID:     uuid.New().String(),
		Name:       nodeName,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.NodeProduct,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		Capacity: protocol.Capacity{
			Strips:         frame.MaxStrips,
			PixelsPerStrip: frame.MaxPixels,
			Channels:       frame.MaxChannels,
		},
		Logger: logger,
	})

	if err := cl.Connect(ctx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer cl.Close()

	hello := cl.Server()
	logger.Info("connected to server", "addr", addr, "server", hello.Name, "session", hello.SessionID)

	out := app.NewLogOutput(logger, *every)
	if err := cl.SendState("ready"); err != nil {
		logger.Warn("failed to send state", "error", err)
	}

	ticker := time.NewTicker(stateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-cl.Done():
			return fmt.Errorf("connection to %s lost", addr)

		case fm := <-cl.Frames:
			if err := out.WriteFrame(ctx, &fm.Frame); err != nil {
				logger.Warn("output failed", "seq", fm.Seq, "error", err)
			}

		case geom := <-cl.Geometry:
			logger.Info("show geometry",
				"channels", geom.ChannelCount,
				"strips", len(geom.PixelsPerStrip),
				"frames", geom.FrameCount,
				"duration_ms", geom.DurationMs)

		case st := <-cl.State:
			logger.Info("show state", "state", st.State, "position_ms", st.Position, "frame", st.Frame)

		case <-ticker.C:
			received, dropped := cl.Stats()
			logger.Debug("node stats", "received", received, "dropped", dropped)
			if err := cl.SendState("playing"); err != nil {
				logger.Warn("failed to send state", "error", err)
			}
		}
	}
}

// discover waits for the first show server advertised over mDNS
func discover(ctx context.Context, nodeName string, logger *slog.Logger) (*discovery.ServerInfo, error) {
	logger.Info("starting server discovery")
	disc := discovery.NewManager(discovery.Config{
		ServiceName: nodeName,
		Logger:      logger,
	})
	disc.Browse()
	defer disc.Stop()

	select {
	case server := <-disc.Servers():
		logger.Info("discovered server", "name", server.Name, "addr", server.Addr())
		return server, nil
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("no server found after 10 seconds")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
