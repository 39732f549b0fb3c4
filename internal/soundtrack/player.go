// ABOUTME: Soundtrack playback through oto
// ABOUTME: The playing position doubles as the show clock
package soundtrack

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
)

// Player plays a Track and reports how far playback has progressed. It
// implements showclock.Clock.
type Player struct {
	log     *slog.Logger
	track   *Track
	src     *countingReader
	otoCtx  *oto.Context
	player  *oto.Player
	playing atomic.Bool
}

// NewPlayer creates the audio device for track. Playback starts paused.
// Only one Player may exist per process.
func NewPlayer(track *Track, log *slog.Logger) (*Player, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "soundtrack")

	op := &oto.NewContextOptions{
		SampleRate:   track.SampleRate,
		ChannelCount: track.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	src := &countingReader{rs: track.src}
	p := &Player{
		log:    log,
		track:  track,
		src:    src,
		otoCtx: otoCtx,
		player: otoCtx.NewPlayer(src),
	}

	log.Info("soundtrack ready",
		"title", track.Title,
		"sample_rate", track.SampleRate,
		"channels", track.Channels,
		"duration", track.Duration())
	return p, nil
}

// Position returns the show position of the sample being heard.
func (p *Player) Position() uint64 {
	heard := p.src.pos.Load() - int64(p.player.BufferedSize())
	return bytesToMs(heard, p.track.SampleRate, p.track.Channels)
}

// Playing reports whether audio is playing.
func (p *Player) Playing() bool {
	return p.playing.Load()
}

// Pause stops audio output.
func (p *Player) Pause() {
	p.player.Pause()
	p.playing.Store(false)
}

// Resume starts or continues audio output.
func (p *Player) Resume() {
	p.player.Play()
	p.playing.Store(true)
}

// Seek jumps to ms. Seek failures are logged; the position stays put.
func (p *Player) Seek(ms uint64) {
	offset := msToBytes(ms, p.track.SampleRate, p.track.Channels)
	if _, err := p.player.Seek(offset, io.SeekStart); err != nil {
		p.log.Warn("soundtrack seek failed", "position_ms", ms, "error", err)
	}
}

// Err returns a playback error, such as a decode failure mid-track.
func (p *Player) Err() error {
	return p.player.Err()
}

// Close stops playback and releases the track.
func (p *Player) Close() error {
	p.playing.Store(false)
	if err := p.player.Close(); err != nil {
		p.log.Warn("closing audio player", "error", err)
	}
	if err := p.otoCtx.Suspend(); err != nil {
		p.log.Warn("suspending audio context", "error", err)
	}
	return p.track.Close()
}

// countingReader tracks the source position read by the audio device.
type countingReader struct {
	rs  io.ReadSeeker
	pos atomic.Int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.rs.Read(b)
	c.pos.Add(int64(n))
	return n, err
}

func (c *countingReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := c.rs.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	c.pos.Store(pos)
	return pos, nil
}
