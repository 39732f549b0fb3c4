// ABOUTME: Show file fixtures for tests
// ABOUTME: Builds control and frame files byte-for-byte in the on-disk layout
package showtest

import (
	"encoding/binary"

	"github.com/lumenshow/lumen-go/pkg/frame"
)

// Control describes a control file to encode. PixelsPerStrip and
// Timestamps are written verbatim, so out-of-bound values can be encoded
// to exercise validation.
type Control struct {
	Version        uint16
	ChannelCount   uint8
	StripCount     uint8
	PixelsPerStrip []uint8
	FrameCount     uint32
	Timestamps     []uint32
}

// Bytes encodes the control file.
func (c Control) Bytes() []byte {
	buf := make([]byte, 0, 8+len(c.PixelsPerStrip)+4*len(c.Timestamps))
	buf = binary.LittleEndian.AppendUint16(buf, c.Version)
	buf = append(buf, c.ChannelCount, c.StripCount)
	buf = append(buf, c.PixelsPerStrip...)
	buf = binary.LittleEndian.AppendUint32(buf, c.FrameCount)
	for _, ts := range c.Timestamps {
		buf = binary.LittleEndian.AppendUint32(buf, ts)
	}
	return buf
}

// Geometry returns the layout described by the control fixture.
func (c Control) Geometry() frame.Geometry {
	geom := frame.Geometry{ChannelCount: int(c.ChannelCount)}
	for _, n := range c.PixelsPerStrip {
		geom.PixelsPerStrip = append(geom.PixelsPerStrip, int(n))
	}
	return geom
}

// Record encodes one frame record for geom with a valid full-scope checksum.
func Record(geom frame.Geometry, f *frame.Frame) []byte {
	rec := Payload(geom, f)
	return binary.LittleEndian.AppendUint32(rec, Sum(rec))
}

// Payload encodes the record bytes that precede the checksum field.
func Payload(geom frame.Geometry, f *frame.Frame) []byte {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(f.Timestamp))
	if f.Fade {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	for i := 0; i < geom.ChannelCount; i++ {
		c := f.Channels[i]
		buf = append(buf, c.G, c.R, c.B)
	}
	for s, n := range geom.PixelsPerStrip {
		for p := 0; p < n; p++ {
			c := f.Strips[s][p]
			buf = append(buf, c.G, c.R, c.B)
		}
	}
	return buf
}

// Sum is the additive checksum over b.
func Sum(b []byte) uint32 {
	var sum uint32
	for _, v := range b {
		sum += uint32(v)
	}
	return sum
}

// Frames builds n distinct frames for geom. Frame i carries timestamps[i],
// fades on odd indexes, and colors derived from i.
func Frames(geom frame.Geometry, timestamps []uint32) []frame.Frame {
	out := make([]frame.Frame, len(timestamps))
	for i, ts := range timestamps {
		f := &out[i]
		f.Timestamp = uint64(ts)
		f.Fade = i%2 == 1
		for c := 0; c < geom.ChannelCount; c++ {
			f.Channels[c] = frame.GRB{G: uint8(i), R: uint8(c), B: uint8(i + c + 1)}
		}
		for s, n := range geom.PixelsPerStrip {
			for p := 0; p < n; p++ {
				f.Strips[s][p] = frame.GRB{G: uint8(i + 1), R: uint8(s), B: uint8(p + 7*i)}
			}
		}
	}
	return out
}

// FrameFile concatenates valid records for frames.
func FrameFile(geom frame.Geometry, frames []frame.Frame) []byte {
	var buf []byte
	for i := range frames {
		buf = append(buf, Record(geom, &frames[i])...)
	}
	return buf
}

// Show is a matched control and frame file pair.
type Show struct {
	Control Control
	Frames  []frame.Frame
}

// NewShow builds a show with the given layout and timestamps.
func NewShow(channels uint8, pixels []uint8, timestamps []uint32) Show {
	ctrl := Control{
		Version:        0x0001,
		ChannelCount:   channels,
		StripCount:     uint8(len(pixels)),
		PixelsPerStrip: pixels,
		FrameCount:     uint32(len(timestamps)),
		Timestamps:     timestamps,
	}
	return Show{
		Control: ctrl,
		Frames:  Frames(ctrl.Geometry(), timestamps),
	}
}

// ControlBytes encodes the control file.
func (s Show) ControlBytes() []byte {
	return s.Control.Bytes()
}

// FrameBytes encodes the frame file.
func (s Show) FrameBytes() []byte {
	return FrameFile(s.Control.Geometry(), s.Frames)
}

// RecordSize returns the encoded size of one record.
func (s Show) RecordSize() int {
	geom := s.Control.Geometry()
	return 4 + 1 + 3*geom.ChannelCount + 3*geom.PixelCount() + 4
}
