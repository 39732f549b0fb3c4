// ABOUTME: Instrumented file system for tests
// ABOUTME: Counts open handles and injects seek failures
package showtest

import (
	"errors"
	"io"
	"sync"

	"github.com/lumenshow/lumen-go/internal/storage"
)

// ErrInjectedSeek is returned by seeks failed through FailSeeks.
var ErrInjectedSeek = errors.New("injected seek failure")

// TrackingFS wraps a storage.FS and tracks the files it hands out. It is
// safe for use from the playback producer goroutine.
type TrackingFS struct {
	fs storage.FS

	mu        sync.Mutex
	opens     int
	open      int
	failSeeks int
}

// NewTrackingFS wraps fsys.
func NewTrackingFS(fsys storage.FS) *TrackingFS {
	return &TrackingFS{fs: fsys}
}

// Open implements storage.FS.
func (t *TrackingFS) Open(path string) (storage.File, error) {
	f, err := t.fs.Open(path)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.opens++
	t.open++
	t.mu.Unlock()
	return &trackedFile{File: f, fs: t}, nil
}

// Opens returns how many files were opened successfully.
func (t *TrackingFS) Opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

// OpenFiles returns how many opened files have not been closed.
func (t *TrackingFS) OpenFiles() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// FailSeeks makes the next n seeks on any tracked file fail.
func (t *TrackingFS) FailSeeks(n int) {
	t.mu.Lock()
	t.failSeeks = n
	t.mu.Unlock()
}

func (t *TrackingFS) takeSeekFailure() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failSeeks == 0 {
		return false
	}
	t.failSeeks--
	return true
}

type trackedFile struct {
	storage.File
	fs     *TrackingFS
	closed bool
}

func (f *trackedFile) Seek(offset int64, whence int) (int64, error) {
	if f.fs.takeSeekFailure() {
		return 0, ErrInjectedSeek
	}
	return f.File.Seek(offset, whence)
}

func (f *trackedFile) Close() error {
	if !f.closed {
		f.closed = true
		f.fs.mu.Lock()
		f.fs.open--
		f.fs.mu.Unlock()
	}
	return f.File.Close()
}

var _ io.ReadSeekCloser = (*trackedFile)(nil)
