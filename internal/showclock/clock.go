// ABOUTME: Show clock with pause, resume and seek
// ABOUTME: Tracks show position in milliseconds against a monotonic time source
package showclock

import (
	"sync"
	"time"
)

// Clock reports the show position in milliseconds.
type Clock interface {
	Position() uint64
	Playing() bool
	Pause()
	Resume()
	Seek(ms uint64)
}

// Wall is a Clock driven by the local monotonic clock.
type Wall struct {
	mu      sync.RWMutex
	now     func() time.Time
	base    uint64    // position when started was taken
	started time.Time // zero while paused
}

// NewWall creates a paused clock at position 0.
func NewWall() *Wall {
	return newWall(time.Now)
}

func newWall(now func() time.Time) *Wall {
	return &Wall{now: now}
}

// Position returns the current show position.
func (w *Wall) Position() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.position()
}

func (w *Wall) position() uint64 {
	if w.started.IsZero() {
		return w.base
	}
	elapsed := w.now().Sub(w.started)
	if elapsed < 0 {
		elapsed = 0
	}
	return w.base + uint64(elapsed.Milliseconds())
}

// Playing reports whether the clock is running.
func (w *Wall) Playing() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return !w.started.IsZero()
}

// Pause freezes the position.
func (w *Wall) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started.IsZero() {
		return
	}
	w.base = w.position()
	w.started = time.Time{}
}

// Resume restarts the clock from the frozen position.
func (w *Wall) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started.IsZero() {
		return
	}
	w.started = w.now()
}

// Seek moves to ms, keeping the running state.
func (w *Wall) Seek(ms uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.base = ms
	if !w.started.IsZero() {
		w.started = w.now()
	}
}

// SeekBy moves the clock by delta milliseconds, stopping at zero.
func SeekBy(c Clock, delta int64) {
	pos := int64(c.Position()) + delta
	if pos < 0 {
		pos = 0
	}
	c.Seek(uint64(pos))
}
