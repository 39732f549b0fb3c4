// ABOUTME: Main player application orchestration
// ABOUTME: Drives the show session from the clock and fans frames to outputs
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lumenshow/lumen-go/internal/framefile"
	"github.com/lumenshow/lumen-go/internal/playback"
	"github.com/lumenshow/lumen-go/internal/protocol"
	"github.com/lumenshow/lumen-go/internal/server"
	"github.com/lumenshow/lumen-go/internal/showclock"
	"github.com/lumenshow/lumen-go/internal/storage"
	"github.com/lumenshow/lumen-go/internal/ui"
	"github.com/lumenshow/lumen-go/pkg/frame"
	"golang.org/x/sync/errgroup"
)

const (
	stateStopped = "stopped"
	statePlaying = "playing"
	statePaused  = "paused"

	statusInterval = 250 * time.Millisecond
)

// errStopped ends Run without reporting a failure.
var errStopped = errors.New("player stopped")

// Config holds player configuration
type Config struct {
	FS            storage.FS
	ControlPath   string
	FramePath     string
	ChecksumScope framefile.ChecksumScope
	Title         string

	TickInterval time.Duration
	// ResyncWindow is how far the clock may lead the next frame before
	// playback seeks instead of reading sequentially.
	ResyncWindow time.Duration
	Loop         bool
	SkipCorrupt  bool

	// Clock defaults to a wall clock.
	Clock   showclock.Clock
	Outputs []frame.Output
	// Server, when set, is run alongside playback and receives every frame.
	Server *server.Server
	// UI and Controls are optional; without a UI the player exits when a
	// non-looping show ends.
	UI       *tea.Program
	Controls *ui.Controls
	Logger   *slog.Logger
}

// Stats counts playback events
type Stats struct {
	Delivered int64
	Corrupt   int64
	Resyncs   int64
	Loops     int64
}

// Player plays one show. Everything but Run's component goroutines runs on
// the playback loop, so player state needs no locking.
type Player struct {
	config  Config
	log     *slog.Logger
	session *playback.Session
	clock   showclock.Clock
	outputs []frame.Output

	frame   frame.Frame
	next    int
	resync  bool
	state   string
	stats   Stats
	lastErr string
}

// New creates a new player
func New(config Config) *Player {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second / 30
	}
	if config.ResyncWindow <= 0 {
		config.ResyncWindow = 200 * time.Millisecond
	}
	if config.Clock == nil {
		config.Clock = showclock.NewWall()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	outputs := append([]frame.Output(nil), config.Outputs...)
	if config.Server != nil {
		outputs = append(outputs, config.Server)
	}

	return &Player{
		config: config,
		log:    config.Logger.With("component", "player"),
		session: playback.NewSession(playback.Config{
			FS:            config.FS,
			ChecksumScope: config.ChecksumScope,
			Logger:        config.Logger,
		}),
		clock:   config.Clock,
		outputs: outputs,
		state:   stateStopped,
	}
}

// Open loads the show, announces it to nodes and starts the clock.
func (p *Player) Open() error {
	if err := p.session.Init(p.config.ControlPath, p.config.FramePath); err != nil {
		return fmt.Errorf("failed to open show: %w", err)
	}
	p.next = 0
	p.resync = false

	if p.config.Server != nil {
		p.config.Server.SetShow(p.session.ID().String(), p.session.Geometry(),
			p.session.FrameCount(), p.session.Duration())
	}

	p.log.Info("show loaded",
		"title", p.config.Title,
		"session", p.session.ID(),
		"frames", p.session.FrameCount(),
		"duration_ms", p.session.Duration())

	p.clock.Seek(0)
	p.clock.Resume()
	p.setState(statePlaying)
	return nil
}

// Close releases the show.
func (p *Player) Close() error {
	p.setState(stateStopped)
	return p.session.Close()
}

// Run opens the show and plays it until ctx is done, the user quits or a
// non-looping show ends without a UI.
func (p *Player) Run(ctx context.Context) error {
	if err := p.Open(); err != nil {
		return err
	}
	defer p.Close()

	g, ctx := errgroup.WithContext(ctx)

	if p.config.Server != nil {
		g.Go(func() error {
			return p.config.Server.Run(ctx)
		})
	}

	if p.config.UI != nil {
		g.Go(func() error {
			if _, err := p.config.UI.Run(); err != nil {
				return fmt.Errorf("tui failed: %w", err)
			}
			return errStopped
		})
		g.Go(func() error {
			<-ctx.Done()
			p.config.UI.Quit()
			return nil
		})
	}

	g.Go(func() error {
		return p.loop(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errStopped) {
		return err
	}
	return nil
}

// loop ticks playback and applies TUI commands
func (p *Player) loop(ctx context.Context) error {
	ticker := time.NewTicker(p.config.TickInterval)
	defer ticker.Stop()
	status := time.NewTicker(statusInterval)
	defer status.Stop()

	var commands <-chan ui.Command
	if p.config.Controls != nil {
		commands = p.config.Controls.Commands
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Step(ctx); err != nil {
				return err
			}
		case cmd := <-commands:
			if err := p.handleCommand(cmd); err != nil {
				return err
			}
			p.publishStatus()
		case <-status.C:
			p.publishStatus()
			p.broadcastState()
		}
	}
}

// Step delivers every frame due at the current clock position.
func (p *Player) Step(ctx context.Context) error {
	if p.state == stateStopped {
		return nil
	}

	pos := p.clock.Position()
	if p.resync {
		p.resync = false
		return p.seekTo(ctx, pos)
	}

	window := uint64(p.config.ResyncWindow.Milliseconds())
	progressed := false
	for ; ; progressed = true {
		ts, ok := p.session.Timestamp(p.next)
		if !ok {
			// The last frame gets at least one tick on stage.
			if progressed {
				return nil
			}
			return p.end()
		}
		if uint64(ts) > pos {
			return nil
		}
		if pos-uint64(ts) > window {
			return p.seekTo(ctx, pos)
		}

		err := p.session.ReadNext(&p.frame)
		switch {
		case err == nil:
			// The session cursor lags after a skipped record, so track the
			// stream position here.
			p.next++
			p.deliver(ctx)
		case errors.Is(err, frame.ErrChecksumMismatch):
			// The stream has moved past the bad record.
			if err := p.corrupt(p.next, err); err != nil {
				return err
			}
			p.next++
		case playback.IsEnd(err):
			return p.end()
		default:
			return fmt.Errorf("read frame %d: %w", p.next, err)
		}
	}
}

// seekTo jumps the stream to the frame showing at pos
func (p *Player) seekTo(ctx context.Context, pos uint64) error {
	idx := p.session.IndexAt(pos)
	if idx < 0 {
		return p.end()
	}
	p.stats.Resyncs++
	p.log.Debug("resync", "position_ms", pos, "from", p.next, "to", idx)

	err := p.session.ReadAtTimestamp(pos, &p.frame)
	switch {
	case err == nil:
		p.next = idx + 1
		p.deliver(ctx)
		return nil
	case errors.Is(err, frame.ErrChecksumMismatch):
		if err := p.corrupt(idx, err); err != nil {
			return err
		}
		p.next = idx + 1
		return nil
	case playback.IsEnd(err):
		return p.end()
	default:
		return fmt.Errorf("seek to %dms: %w", pos, err)
	}
}

func (p *Player) corrupt(idx int, err error) error {
	p.stats.Corrupt++
	p.lastErr = fmt.Sprintf("frame %d: %v", idx, err)
	if !p.config.SkipCorrupt {
		return fmt.Errorf("frame %d: %w", idx, err)
	}
	p.log.Warn("skipping corrupt frame", "index", idx, "error", err)
	return nil
}

func (p *Player) deliver(ctx context.Context) {
	for _, out := range p.outputs {
		if err := out.WriteFrame(ctx, &p.frame); err != nil {
			p.log.Warn("output failed", "timestamp", p.frame.Timestamp, "error", err)
		}
	}
	p.stats.Delivered++
}

// end loops the show or stops it
func (p *Player) end() error {
	if p.config.Loop && p.session.FrameCount() > 0 {
		if err := p.rewind(); err != nil {
			return err
		}
		p.stats.Loops++
		p.log.Info("show looped", "loops", p.stats.Loops)
		return nil
	}

	p.clock.Pause()
	p.setState(stateStopped)
	p.log.Info("show finished", "delivered", p.stats.Delivered)
	if p.config.UI == nil {
		return errStopped
	}
	return nil
}

func (p *Player) rewind() error {
	if err := p.session.Reset(); err != nil {
		return fmt.Errorf("failed to reset show: %w", err)
	}
	p.next = 0
	p.resync = false
	p.clock.Seek(0)
	return nil
}

// handleCommand applies a TUI command
func (p *Player) handleCommand(cmd ui.Command) error {
	switch cmd.Kind {
	case ui.CmdQuit:
		return errStopped

	case ui.CmdTogglePause:
		switch p.state {
		case statePlaying:
			p.clock.Pause()
			p.setState(statePaused)
		case statePaused:
			p.clock.Resume()
			p.setState(statePlaying)
		case stateStopped:
			if err := p.rewind(); err != nil {
				return err
			}
			p.clock.Resume()
			p.setState(statePlaying)
		}

	case ui.CmdReset:
		if err := p.rewind(); err != nil {
			return err
		}
		if p.state == stateStopped {
			p.clock.Resume()
			p.setState(statePlaying)
		}
		p.log.Info("show reset")

	case ui.CmdSeek:
		showclock.SeekBy(p.clock, cmd.DeltaMs)
		p.resync = true
		p.log.Debug("seek", "delta_ms", cmd.DeltaMs, "position_ms", p.clock.Position())
	}
	return nil
}

func (p *Player) setState(state string) {
	p.state = state
	p.broadcastState()
}

func (p *Player) broadcastState() {
	if p.config.Server == nil {
		return
	}
	p.config.Server.SetState(protocol.ShowState{
		State:    p.state,
		Position: p.clock.Position(),
		Frame:    p.next,
	})
}

// publishStatus pushes a status snapshot to the TUI
func (p *Player) publishStatus() {
	if p.config.UI == nil {
		return
	}
	p.config.UI.Send(p.status())
}

func (p *Player) status() ui.StatusMsg {
	pos := p.clock.Position()
	next := p.next
	msg := ui.StatusMsg{
		Session:    p.session.ID().String(),
		FrameCount: p.session.FrameCount(),
		Duration:   uint64(p.session.Duration()),
		FPS:        int(time.Second / p.config.TickInterval),
		State:      p.state,
		Position:   &pos,
		Frame:      &next,
		Delivered:  p.stats.Delivered,
		Corrupt:    p.stats.Corrupt,
		Resyncs:    p.stats.Resyncs,
		Loops:      p.stats.Loops,
		LastError:  p.lastErr,
		Nodes:      []ui.NodeStatus{},
	}

	if p.config.Server != nil {
		for _, n := range p.config.Server.Nodes() {
			msg.Nodes = append(msg.Nodes, ui.NodeStatus{
				Name:     n.Name,
				Addr:     n.Addr,
				State:    n.State,
				Received: n.Received,
				Dropped:  n.Dropped,
			})
		}
	}
	return msg
}

// Stats returns the playback counters. Call it from the playback loop's
// goroutine or after Run returns.
func (p *Player) Stats() Stats {
	return p.stats
}

// State returns the transport state.
func (p *Player) State() string {
	return p.state
}

// Session exposes the underlying playback session.
func (p *Player) Session() *playback.Session {
	return p.session
}
