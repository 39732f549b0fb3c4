// ABOUTME: Playback session tying the control index to the frame stream
// ABOUTME: Serves sequential and timestamp-seeked reads from a prefetching producer
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumenshow/lumen-go/internal/control"
	"github.com/lumenshow/lumen-go/internal/framefile"
	"github.com/lumenshow/lumen-go/internal/storage"
	"github.com/lumenshow/lumen-go/pkg/frame"
)

// DefaultGracePeriod bounds how long Close waits for the producer.
const DefaultGracePeriod = 100 * time.Millisecond

// Config holds session configuration
type Config struct {
	// FS opens the show files. Defaults to the working directory.
	FS            storage.FS
	ChecksumScope framefile.ChecksumScope
	GracePeriod   time.Duration
	Logger        *slog.Logger
}

// Session plays one show. Consumer calls are serialized; the session is
// safe to share, but frames are delivered to one logical consumer.
type Session struct {
	config Config
	log    *slog.Logger

	mu       sync.Mutex
	ready    bool
	id       uuid.UUID
	info     *control.Info
	geom     frame.Geometry
	channels frame.ChannelInfo
	size     int
	cursor   int
	h        *handoff
}

// NewSession creates an uninitialized session.
func NewSession(config Config) *Session {
	if config.FS == nil {
		config.FS = storage.Dir("")
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Session{
		config: config,
		log:    config.Logger.With("component", "playback"),
	}
}

// Init loads the control file, opens the frame file and starts the
// producer primed with frame 0. On failure everything acquired so far is
// released and the session stays uninitialized.
func (s *Session) Init(controlPath, framePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return fmt.Errorf("%w: session %s already initialized", frame.ErrInvalidState, s.id)
	}
	if controlPath == "" || framePath == "" {
		return fmt.Errorf("%w: control and frame paths are required", frame.ErrInvalidArgument)
	}

	info, err := control.Load(s.config.FS, controlPath, s.config.Logger)
	if err != nil {
		return fmt.Errorf("load control: %w", err)
	}

	geom := info.Geometry()
	reader, err := framefile.Open(s.config.FS, framePath, geom,
		framefile.WithChecksumScope(s.config.ChecksumScope))
	if err != nil {
		return fmt.Errorf("open frames: %w", err)
	}

	id := uuid.New()
	log := s.log.With("session", id.String())

	h := newHandoff()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.running.Store(true)

	p := &producer{
		h:          h,
		reader:     reader,
		frameCount: int(info.FrameCount),
		log:        log,
	}
	go p.run(ctx)
	h.request(command{op: opNext})

	s.id = id
	s.info = info
	s.geom = geom
	s.channels = frame.DeriveChannelInfo(geom)
	s.size = reader.RecordSize()
	s.cursor = 0
	s.h = h
	s.ready = true
	s.log = log

	log.Info("frame system ready",
		"frames", info.FrameCount,
		"record_size", s.size,
		"checksum", s.config.ChecksumScope)
	return nil
}

// ReadNext copies the next frame in stored order into dst. Once every
// frame has been delivered it reports frame.ErrNotFound.
//
// A corrupt record reports frame.ErrChecksumMismatch and is skipped by the
// stream, but the cursor only advances on delivery.
func (s *Session) ReadNext(dst *frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(dst); err != nil {
		return err
	}
	if s.cursor >= int(s.info.FrameCount) {
		return fmt.Errorf("%w: all %d frames delivered", frame.ErrNotFound, s.info.FrameCount)
	}

	if err := s.h.collect(); err != nil {
		return err
	}
	err := s.h.err
	if err == nil {
		*dst = s.h.slot
	}
	s.h.request(command{op: opNext})

	if err != nil {
		return err
	}
	s.cursor++
	return nil
}

// ReadAtTimestamp copies the frame showing at ts into dst and continues
// sequential playback after it. Times before the first frame resolve to
// frame 0.
func (s *Session) ReadAtTimestamp(ts uint64, dst *frame.Frame) error {
	return s.readAt(ts, dst, false)
}

// ReadAtTimestampStrict is ReadAtTimestamp but reports frame.ErrNotFound
// for times before the first frame.
func (s *Session) ReadAtTimestampStrict(ts uint64, dst *frame.Frame) error {
	return s.readAt(ts, dst, true)
}

func (s *Session) readAt(ts uint64, dst *frame.Frame, strict bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(dst); err != nil {
		return err
	}
	if s.info.FrameCount == 0 {
		return fmt.Errorf("%w: show has no frames", frame.ErrNotFound)
	}

	idx, ok := SearchStrict(s.info.Timestamps, ts)
	if !ok {
		if strict {
			return fmt.Errorf("%w: no frame at or before %d", frame.ErrNotFound, ts)
		}
		idx = 0
	}

	if err := s.h.collect(); err != nil {
		return err
	}
	s.h.request(command{op: opSeek, index: idx})
	if err := s.h.collect(); err != nil {
		return err
	}
	if s.h.cmdErr != nil {
		// Refill the slot so sequential reads resume at the cursor.
		s.h.request(command{op: opNext})
		return s.h.cmdErr
	}

	err := s.h.err
	if err == nil {
		*dst = s.h.slot
	}
	s.h.request(command{op: opNext})
	if err != nil {
		return err
	}

	if want := s.info.Timestamps[idx]; dst.Timestamp != uint64(want) {
		s.log.Warn("timestamp mismatch",
			"index", idx, "control", want, "frame", dst.Timestamp)
	}

	s.cursor = idx + 1
	return nil
}

// Reset rewinds the stream to the first frame.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return fmt.Errorf("%w: session not initialized", frame.ErrInvalidState)
	}

	if err := s.h.collect(); err != nil {
		return err
	}
	s.h.request(command{op: opReset})
	if err := s.h.collect(); err != nil {
		return err
	}
	if s.h.cmdErr != nil {
		// Refill the slot so sequential reads resume at the cursor.
		s.h.request(command{op: opNext})
		return s.h.cmdErr
	}

	// Frame 0 now sits in the slot for the next ReadNext.
	s.cursor = 0
	return nil
}

// Close stops the producer, releases the show files and returns the
// session to its uninitialized state. Closing an uninitialized session is
// a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}

	h := s.h
	h.stop()

	timer := time.NewTimer(s.config.GracePeriod)
	defer timer.Stop()

	select {
	case <-h.done:
	case <-timer.C:
		// The producer closes the reader itself once it unblocks.
		s.log.Warn("frame producer did not stop within grace period",
			"grace", s.config.GracePeriod)
	}

	s.log.Info("frame system deinit", "delivered_cursor", s.cursor)

	s.ready = false
	s.info = nil
	s.h = nil
	s.geom = frame.Geometry{}
	s.channels = frame.ChannelInfo{}
	s.size = 0
	s.cursor = 0
	s.id = uuid.Nil
	s.log = s.config.Logger.With("component", "playback")
	return nil
}

// ID returns the identifier of the current session, or uuid.Nil.
func (s *Session) ID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Ready reports whether Init has succeeded and Close has not been called.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// ChannelInfo returns the output slot layout of the loaded show. It is
// the zero value when no show is loaded.
func (s *Session) ChannelInfo() frame.ChannelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels
}

// Geometry returns the layout of the loaded show.
func (s *Session) Geometry() frame.Geometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geom.Clone()
}

// Cursor returns the index of the next frame ReadNext delivers.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// FrameCount returns the number of frames in the loaded show.
func (s *Session) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return 0
	}
	return int(s.info.FrameCount)
}

// Timestamp returns the index timestamp of frame i.
func (s *Session) Timestamp(i int) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil || i < 0 || i >= len(s.info.Timestamps) {
		return 0, false
	}
	return s.info.Timestamps[i], true
}

// IndexAt returns the frame ReadAtTimestamp resolves ts to, or -1 when
// no show is loaded or it has no frames.
func (s *Session) IndexAt(ts uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil || len(s.info.Timestamps) == 0 {
		return -1
	}
	return Search(s.info.Timestamps, ts)
}

// Duration returns the timestamp of the last frame.
func (s *Session) Duration() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return 0
	}
	return s.info.Duration()
}

func (s *Session) check(dst *frame.Frame) error {
	if !s.ready {
		return fmt.Errorf("%w: session not initialized", frame.ErrInvalidState)
	}
	if dst == nil {
		return fmt.Errorf("%w: nil frame", frame.ErrInvalidArgument)
	}
	return nil
}

// IsEnd reports whether err marks the end of the frame stream.
func IsEnd(err error) bool {
	return errors.Is(err, frame.ErrNotFound)
}
