// ABOUTME: Entry point for the Lumen show player
// ABOUTME: Parses CLI flags over the show config and runs playback
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lumenshow/lumen-go/internal/app"
	"github.com/lumenshow/lumen-go/internal/config"
	"github.com/lumenshow/lumen-go/internal/server"
	"github.com/lumenshow/lumen-go/internal/showclock"
	"github.com/lumenshow/lumen-go/internal/soundtrack"
	"github.com/lumenshow/lumen-go/internal/storage"
	"github.com/lumenshow/lumen-go/internal/ui"
	"github.com/lumenshow/lumen-go/internal/version"
	"github.com/lumenshow/lumen-go/pkg/frame"
	"golang.org/x/term"
)

var (
	configPath = flag.String("config", "", "Show config file (YAML)")
	dir        = flag.String("dir", "", "Show directory")
	controlArg = flag.String("control", "", "Control file name")
	framesArg  = flag.String("frames", "", "Frame file name")
	checksum   = flag.String("checksum", "", "Checksum scope: full or colors")
	fps        = flag.Int("fps", 0, "Playback tick rate")
	loop       = flag.Bool("loop", true, "Loop the show")
	track      = flag.String("soundtrack", "", "Soundtrack to play as the show clock (MP3, FLAC)")
	serve      = flag.Bool("serve", false, "Broadcast frames to LED nodes")
	port       = flag.Int("port", server.DefaultPort, "WebSocket server port")
	name       = flag.String("name", "", "Server friendly name (default: hostname-lumen)")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	logFile    = flag.String("log-file", "", "Log file path")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	useTUI := cfg.UI.TUI && term.IsTerminal(int(os.Stdout.Fd()))

	// Set up logging
	f, err := os.OpenFile(cfg.Log.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	var out io.Writer = f
	if !useTUI {
		// Streaming logs mode: log to both stdout and file
		out = io.MultiWriter(os.Stdout, f)
	}
	level := slog.LevelInfo
	if cfg.Log.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, useTUI, logger); err != nil {
		logger.Error("player failed", "error", err)
		os.Exit(1)
	}
	logger.Info("player stopped")
}

func run(cfg config.Config, useTUI bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting "+version.Product,
		"version", version.Version,
		"show", cfg.Show.Dir,
		"fps", cfg.Show.FPS,
		"checksum", cfg.Show.Checksum)

	title := showTitle(cfg)

	var clock showclock.Clock
	if cfg.Soundtrack != "" {
		t, err := soundtrack.Open(cfg.Soundtrack)
		if err != nil {
			return err
		}
		sp, err := soundtrack.NewPlayer(t, logger)
		if err != nil {
			_ = t.Close()
			return err
		}
		defer func() { _ = sp.Close() }()
		clock = sp
		if t.Title != "" {
			title = t.Title
		}
	}

	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(server.Config{
			Port:       cfg.Server.Port,
			Name:       cfg.Server.Name,
			EnableMDNS: cfg.Server.MDNS,
			Logger:     logger,
		})
	}

	var (
		prog     *tea.Program
		controls *ui.Controls
		outputs  []frame.Output
	)
	if useTUI {
		controls = ui.NewControls()
		prog = ui.Run(title, controls)
	} else {
		// Roughly one log line per second of show.
		outputs = append(outputs, app.NewLogOutput(logger, cfg.Show.FPS))
	}

	player := app.New(app.Config{
		FS:            storage.Dir(cfg.Show.Dir),
		ControlPath:   cfg.Show.Control,
		FramePath:     cfg.Show.Frames,
		ChecksumScope: cfg.ChecksumScope(),
		Title:         title,
		TickInterval:  cfg.TickInterval(),
		ResyncWindow:  cfg.ResyncWindow(),
		Loop:          cfg.Show.Loop,
		SkipCorrupt:   cfg.Show.SkipCorrupt,
		Clock:         clock,
		Outputs:       outputs,
		Server:        srv,
		UI:            prog,
		Controls:      controls,
		Logger:        logger,
	})

	return player.Run(ctx)
}

// applyFlags overrides config values with explicitly set flags
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dir":
			cfg.Show.Dir = *dir
		case "control":
			cfg.Show.Control = *controlArg
		case "frames":
			cfg.Show.Frames = *framesArg
		case "checksum":
			cfg.Show.Checksum = *checksum
		case "fps":
			cfg.Show.FPS = *fps
		case "loop":
			cfg.Show.Loop = *loop
		case "soundtrack":
			cfg.Soundtrack = *track
		case "serve":
			cfg.Server.Enabled = *serve
		case "port":
			cfg.Server.Port = *port
			cfg.Server.Enabled = true
		case "name":
			cfg.Server.Name = *name
		case "no-mdns":
			cfg.Server.MDNS = !*noMDNS
		case "no-tui":
			cfg.UI.TUI = !*noTUI
		case "log-file":
			cfg.Log.File = *logFile
		case "debug":
			cfg.Log.Debug = *debug
		}
	})

	if cfg.Server.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Server.Name = fmt.Sprintf("%s-lumen", hostname)
	}
}

func showTitle(cfg config.Config) string {
	if cfg.Show.Dir == "" {
		return "show"
	}
	return filepath.Base(cfg.Show.Dir)
}
