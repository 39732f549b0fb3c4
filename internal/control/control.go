// ABOUTME: Control metadata loader for show files
// ABOUTME: Parses version, geometry and the per-frame timestamp index
package control

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/lumenshow/lumen-go/internal/storage"
	"github.com/lumenshow/lumen-go/pkg/frame"
)

const (
	// MaxChannelCount is the documented bound of the channel count field.
	MaxChannelCount = 40
	// MaxStripCount is the documented bound of the strip count field.
	MaxStripCount = 8
	// MaxPixelsPerStrip is the documented bound of each pixel count.
	MaxPixelsPerStrip = 100

	// MaxFrames caps the timestamp index allocation (64 MiB of timestamps).
	MaxFrames = 1 << 24
)

// Info is the in-memory control descriptor. It is immutable once loaded.
type Info struct {
	Version        uint16
	ChannelCount   uint8
	StripCount     uint8
	PixelsPerStrip []uint8
	FrameCount     uint32
	Timestamps     []uint32
}

// Geometry returns the frame layout described by the control file.
func (c *Info) Geometry() frame.Geometry {
	geom := frame.Geometry{
		ChannelCount:   int(c.ChannelCount),
		PixelsPerStrip: make([]int, len(c.PixelsPerStrip)),
	}
	for i, n := range c.PixelsPerStrip {
		geom.PixelsPerStrip[i] = int(n)
	}
	return geom
}

// Duration returns the timestamp of the last frame, or 0 for an empty show.
func (c *Info) Duration() uint32 {
	if len(c.Timestamps) == 0 {
		return 0
	}
	return c.Timestamps[len(c.Timestamps)-1]
}

// Load reads and validates the control file at path. The file is closed
// before Load returns; on failure no descriptor is returned.
func Load(fsys storage.FS, path string, log *slog.Logger) (*Info, error) {
	if fsys == nil || path == "" {
		return nil, fmt.Errorf("%w: control path and file system are required", frame.ErrInvalidArgument)
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "control", "path", path)

	f, err := fsys.Open(path)
	if err != nil {
		log.Error("open control file failed", "error", err)
		return nil, err
	}
	defer f.Close()

	info, err := Parse(f)
	if err != nil {
		log.Error("control file rejected", "error", err)
		return nil, err
	}

	if i, ok := firstDescent(info.Timestamps); ok {
		log.Warn("timestamp index is not ascending",
			"index", i, "prev", info.Timestamps[i-1], "ts", info.Timestamps[i])
	}

	log.Info("control loaded",
		"version", info.Version,
		"channels", info.ChannelCount,
		"strips", info.StripCount,
		"frames", info.FrameCount)
	return info, nil
}

// Parse decodes a control stream. Fields are read in file order; a short
// read of any field is an I/O failure.
func Parse(r io.Reader) (*Info, error) {
	var hdr [4]byte
	if err := readField(r, hdr[:], "header"); err != nil {
		return nil, err
	}

	info := &Info{
		Version:      binary.LittleEndian.Uint16(hdr[0:2]),
		ChannelCount: hdr[2],
		StripCount:   hdr[3],
	}

	if info.ChannelCount > MaxChannelCount {
		return nil, fmt.Errorf("%w: channel count %d exceeds %d", frame.ErrFormatViolation, info.ChannelCount, MaxChannelCount)
	}
	if info.StripCount > MaxStripCount {
		return nil, fmt.Errorf("%w: strip count %d exceeds %d", frame.ErrFormatViolation, info.StripCount, MaxStripCount)
	}

	info.PixelsPerStrip = make([]uint8, info.StripCount)
	if err := readField(r, info.PixelsPerStrip, "pixel counts"); err != nil {
		return nil, err
	}
	for i, n := range info.PixelsPerStrip {
		if n > MaxPixelsPerStrip {
			return nil, fmt.Errorf("%w: strip %d has %d pixels, max %d", frame.ErrFormatViolation, i, n, MaxPixelsPerStrip)
		}
	}

	var count [4]byte
	if err := readField(r, count[:], "frame count"); err != nil {
		return nil, err
	}
	info.FrameCount = binary.LittleEndian.Uint32(count[:])

	if info.FrameCount > MaxFrames {
		return nil, fmt.Errorf("%w: %d frames exceeds index budget of %d", frame.ErrOutOfMemory, info.FrameCount, MaxFrames)
	}

	raw := make([]byte, int(info.FrameCount)*4)
	if err := readField(r, raw, "timestamps"); err != nil {
		return nil, err
	}
	info.Timestamps = make([]uint32, info.FrameCount)
	for i := range info.Timestamps {
		info.Timestamps[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}

	return info, nil
}

func readField(r io.Reader, buf []byte, name string) error {
	if len(buf) == 0 {
		return nil
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: short read of %s", frame.ErrIO, name)
		}
		return fmt.Errorf("%w: read %s: %v", frame.ErrIO, name, err)
	}
	return nil
}

// firstDescent returns the first index whose timestamp is below its predecessor.
func firstDescent(ts []uint32) (int, bool) {
	for i := 1; i < len(ts); i++ {
		if ts[i] < ts[i-1] {
			return i, true
		}
	}
	return 0, false
}
