// ABOUTME: Fixed-size frame record reader with additive checksum validation
// ABOUTME: Decodes records into caller-owned frames, never exposing corrupt data
package framefile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/lumenshow/lumen-go/internal/storage"
	"github.com/lumenshow/lumen-go/pkg/frame"
)

const (
	headerSize   = 4 + 1
	checksumSize = 4

	// MaxRecordSize is the size of a record at the hardware maxima.
	MaxRecordSize = headerSize + 3*frame.MaxChannels + 3*frame.MaxStrips*frame.MaxPixels + checksumSize
)

// ChecksumScope selects which record bytes the checksum covers.
type ChecksumScope int

const (
	// ScopeFull sums every byte preceding the checksum field.
	ScopeFull ChecksumScope = iota
	// ScopeColors sums only the channel and strip color bytes. Older show
	// exports were written this way.
	ScopeColors
)

func (s ChecksumScope) String() string {
	switch s {
	case ScopeFull:
		return "full"
	case ScopeColors:
		return "colors"
	default:
		return fmt.Sprintf("ChecksumScope(%d)", int(s))
	}
}

// ParseChecksumScope maps a config name onto a scope.
func ParseChecksumScope(name string) (ChecksumScope, error) {
	switch name {
	case "", "full":
		return ScopeFull, nil
	case "colors":
		return ScopeColors, nil
	default:
		return ScopeFull, fmt.Errorf("%w: unknown checksum scope %q", frame.ErrInvalidArgument, name)
	}
}

// Option configures a Reader.
type Option func(*Reader)

// WithChecksumScope selects the checksum variant used by the show files.
func WithChecksumScope(scope ChecksumScope) Option {
	return func(r *Reader) {
		r.scope = scope
	}
}

// RecordSize returns the encoded size of one record for geom.
func RecordSize(geom frame.Geometry) int {
	return headerSize + 3*geom.ChannelCount + 3*geom.PixelCount() + checksumSize
}

// Reader reads fixed-size records from a frame file. It is not safe for
// concurrent use.
type Reader struct {
	file       storage.File
	geom       frame.Geometry
	recordSize int
	scope      ChecksumScope
	buf        [MaxRecordSize]byte
}

// Open validates geom and opens the frame file at path. Geometry that does
// not fit the fixed frame storage is rejected with frame.ErrInvalidArgument
// before the file is touched.
func Open(fsys storage.FS, path string, geom frame.Geometry, opts ...Option) (*Reader, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if fsys == nil || path == "" {
		return nil, fmt.Errorf("%w: frame path and file system are required", frame.ErrInvalidArgument)
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		file:       f,
		geom:       geom.Clone(),
		recordSize: RecordSize(geom),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RecordSize returns the size of one record in bytes.
func (r *Reader) RecordSize() int {
	return r.recordSize
}

// Geometry returns the layout the reader decodes.
func (r *Reader) Geometry() frame.Geometry {
	return r.geom.Clone()
}

// Read decodes the next record into dst.
//
// End of file at or inside a record reports frame.ErrNotFound. A record
// that fails its checksum reports frame.ErrChecksumMismatch; the file
// position has already moved past it and dst is left untouched.
func (r *Reader) Read(dst *frame.Frame) error {
	if r.file == nil {
		return fmt.Errorf("%w: reader closed", frame.ErrInvalidState)
	}
	if dst == nil {
		return fmt.Errorf("%w: nil frame", frame.ErrInvalidArgument)
	}

	rec := r.buf[:r.recordSize]
	if _, err := io.ReadFull(r.file, rec); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: end of frame stream", frame.ErrNotFound)
		}
		return fmt.Errorf("%w: read record: %v", frame.ErrIO, err)
	}

	payload := rec[:r.recordSize-checksumSize]
	stored := binary.LittleEndian.Uint32(rec[r.recordSize-checksumSize:])
	computed := sum(payload, r.scope)
	if computed != stored {
		return fmt.Errorf("%w: computed %#08x, stored %#08x", frame.ErrChecksumMismatch, computed, stored)
	}

	r.decode(payload, dst)
	return nil
}

// Seek moves the file position to an absolute byte offset.
func (r *Reader) Seek(offset int64) error {
	if r.file == nil {
		return fmt.Errorf("%w: reader closed", frame.ErrInvalidState)
	}
	if offset < 0 {
		return fmt.Errorf("%w: negative offset %d", frame.ErrInvalidArgument, offset)
	}
	if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek to %d: %v", frame.ErrIO, offset, err)
	}
	return nil
}

// Close releases the file handle. Closing twice is a no-op.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	if err != nil {
		return fmt.Errorf("%w: close frame file: %v", frame.ErrIO, err)
	}
	return nil
}

func (r *Reader) decode(payload []byte, dst *frame.Frame) {
	dst.Reset()
	dst.Timestamp = uint64(binary.LittleEndian.Uint32(payload[0:4]))
	dst.Fade = payload[4] != 0

	off := headerSize
	for i := 0; i < r.geom.ChannelCount; i++ {
		dst.Channels[i] = frame.GRB{G: payload[off], R: payload[off+1], B: payload[off+2]}
		off += 3
	}
	for s, n := range r.geom.PixelsPerStrip {
		for p := 0; p < n; p++ {
			dst.Strips[s][p] = frame.GRB{G: payload[off], R: payload[off+1], B: payload[off+2]}
			off += 3
		}
	}
}

func sum(payload []byte, scope ChecksumScope) uint32 {
	if scope == ScopeColors {
		payload = payload[headerSize:]
	}
	var total uint32
	for _, b := range payload {
		total += uint32(b)
	}
	return total
}
