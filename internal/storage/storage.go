// ABOUTME: File-access capability used by the show engine
// ABOUTME: Maps storage failures onto engine error kinds
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/lumenshow/lumen-go/pkg/frame"
)

// File is an open, read-only show file.
type File interface {
	io.Reader
	io.Seeker
	io.Closer
}

// FS opens show files by path.
type FS interface {
	Open(path string) (File, error)
}

// Dir is an FS rooted at a directory on the host file system.
// An empty Dir resolves paths relative to the working directory.
type Dir string

// Open opens path below the directory.
func (d Dir) Open(path string) (File, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", frame.ErrInvalidArgument)
	}
	full := path
	if d != "" && !filepath.IsAbs(path) {
		full = filepath.Join(string(d), path)
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, classify(full, err)
	}
	return f, nil
}

// classify wraps an open failure with the matching engine error kind.
func classify(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: open %s: %v", frame.ErrNotFound, path, err)
	}
	return fmt.Errorf("%w: open %s: %v", frame.ErrIO, path, err)
}

// Mem is an in-memory FS. It is safe for concurrent use.
type Mem struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMem creates an empty in-memory FS.
func NewMem() *Mem {
	return &Mem{files: make(map[string][]byte)}
}

// Put stores a copy of data under path.
func (m *Mem) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), data...)
}

// Remove deletes path.
func (m *Mem) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

// Open returns a reader over a snapshot of the stored bytes.
func (m *Mem) Open(path string) (File, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", frame.ErrInvalidArgument)
	}

	m.mu.RLock()
	data, ok := m.files[path]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: open %s: no such file", frame.ErrNotFound, path)
	}
	return &memFile{Reader: bytes.NewReader(data)}, nil
}

type memFile struct {
	*bytes.Reader
	closed bool
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	return f.Reader.Read(p)
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	return f.Reader.Seek(offset, whence)
}

func (f *memFile) Close() error {
	if f.closed {
		return fs.ErrClosed
	}
	f.closed = true
	return nil
}
