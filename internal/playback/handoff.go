// ABOUTME: Single-slot handoff between the storage producer and the consumer
// ABOUTME: Commands travel with the permission to overwrite the slot
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/lumenshow/lumen-go/internal/framefile"
	"github.com/lumenshow/lumen-go/pkg/frame"
)

type op int

const (
	opNext op = iota
	opReset
	opSeek
	opStop
)

func (o op) String() string {
	switch o {
	case opNext:
		return "next"
	case opReset:
		return "reset"
	case opSeek:
		return "seek"
	case opStop:
		return "stop"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// command is what the consumer hands the producer along with the slot.
type command struct {
	op    op
	index int
}

// handoff owns the slot and the producer goroutine. The slot, err and
// cmdErr fields are written only by the producer between receiving on free
// and sending on ready, and read only by the consumer after receiving on
// ready.
type handoff struct {
	free  chan command
	ready chan struct{}
	done  chan struct{}

	cancel  context.CancelFunc
	running atomic.Bool

	slot   frame.Frame
	err    error
	cmdErr error

	// pending is consumer-only: a command is out and ready not yet taken.
	pending bool
}

func newHandoff() *handoff {
	return &handoff{
		free:  make(chan command, 1),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// collect waits for the outstanding result, if any.
func (h *handoff) collect() error {
	if !h.pending {
		return nil
	}
	select {
	case <-h.ready:
		h.pending = false
		return nil
	case <-h.done:
		return fmt.Errorf("%w: frame producer stopped", frame.ErrInvalidState)
	}
}

// request hands the slot back to the producer with cmd.
func (h *handoff) request(cmd command) {
	h.free <- cmd
	h.pending = true
}

// stop flips the running flag and nudges the producer so it observes it.
func (h *handoff) stop() {
	h.running.Store(false)
	h.cancel()
	select {
	case h.free <- command{op: opStop}:
	default:
	}
}

// producer reads records into the slot on behalf of the consumer. It owns
// the reader and closes it on exit.
type producer struct {
	h          *handoff
	reader     *framefile.Reader
	frameCount int
	log        *slog.Logger

	// next is the index the next opNext reads; pos is the index the file
	// is positioned at, or -1 when unknown.
	next int
	pos  int
	// filled is the index whose result sits in the slot.
	filled int
}

func (p *producer) run(ctx context.Context) {
	defer close(p.h.done)
	defer func() {
		if err := p.reader.Close(); err != nil {
			p.log.Warn("close frame reader failed", "error", err)
		}
	}()

	for {
		var cmd command
		select {
		case <-ctx.Done():
			return
		case cmd = <-p.h.free:
		}
		if cmd.op == opStop || !p.h.running.Load() {
			p.log.Debug("frame producer stopping")
			return
		}

		p.h.cmdErr = p.apply(cmd)
		if p.h.cmdErr != nil {
			// The consumer discards the slot on a failed command, so the
			// frame it held is read again by the next opNext.
			p.h.err = p.h.cmdErr
			p.next = p.filled
		} else {
			p.h.err = p.fill()
		}

		// End of stream publishes ErrNotFound like any other result, then
		// parks on free so reset and seek keep working.
		p.h.ready <- struct{}{}
	}
}

func (p *producer) apply(cmd command) error {
	switch cmd.op {
	case opReset:
		return p.seek(0)
	case opSeek:
		return p.seek(cmd.index)
	}
	return nil
}

func (p *producer) seek(index int) error {
	if err := p.reader.Seek(int64(index) * int64(p.reader.RecordSize())); err != nil {
		p.pos = -1
		return err
	}
	p.next = index
	p.pos = index
	return nil
}

func (p *producer) fill() error {
	p.filled = p.next
	if p.next >= p.frameCount {
		return fmt.Errorf("%w: frame %d beyond %d frames", frame.ErrNotFound, p.next, p.frameCount)
	}
	if p.pos != p.next {
		if err := p.seek(p.next); err != nil {
			return err
		}
	}

	err := p.reader.Read(&p.h.slot)
	switch {
	case err == nil, errors.Is(err, frame.ErrChecksumMismatch):
		// A corrupt record is still consumed.
		p.next++
		p.pos = p.next
	default:
		p.pos = -1
	}
	return err
}
