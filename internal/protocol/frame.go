// ABOUTME: Binary frame message codec
// ABOUTME: Packs a decoded frame and its geometry into one websocket message
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lumenshow/lumen-go/pkg/frame"
)

// FrameMessageType tags binary frame messages.
const FrameMessageType = 1

// frameHeaderSize covers type, seq, timestamp, fade, channel count and
// strip count.
const frameHeaderSize = 1 + 4 + 8 + 1 + 1 + 1

// ErrMalformedFrame reports a binary frame message that cannot be decoded.
var ErrMalformedFrame = errors.New("malformed frame message")

// EncodeFrame builds a binary frame message:
// [type:1][seq:4][timestamp:8][fade:1][channels:1][strips:1][pixels:strips][GRB payload]
// Integers are big-endian. seq numbers frames within one show broadcast.
// Only the configured part of f is sent.
func EncodeFrame(seq uint32, f *frame.Frame, geom frame.Geometry) ([]byte, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}

	strips := geom.StripCount()
	size := frameHeaderSize + strips + 3*(geom.ChannelCount+geom.PixelCount())
	buf := make([]byte, 0, size)

	buf = append(buf, FrameMessageType)
	buf = binary.BigEndian.AppendUint32(buf, seq)
	buf = binary.BigEndian.AppendUint64(buf, f.Timestamp)
	if f.Fade {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, uint8(geom.ChannelCount), uint8(strips))
	for _, n := range geom.PixelsPerStrip {
		buf = append(buf, uint8(n))
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
	return buf, nil
}

// DecodeFrame parses a binary frame message into dst and returns the
// sequence number and the geometry it was sent with. dst is untouched on error.
func DecodeFrame(data []byte, dst *frame.Frame) (uint32, frame.Geometry, error) {
	var geom frame.Geometry

	if len(data) < frameHeaderSize {
		return 0, geom, fmt.Errorf("%w: %d bytes, header needs %d", ErrMalformedFrame, len(data), frameHeaderSize)
	}
	if data[0] != FrameMessageType {
		return 0, geom, fmt.Errorf("%w: message type %d", ErrMalformedFrame, data[0])
	}

	seq := binary.BigEndian.Uint32(data[1:5])
	timestamp := binary.BigEndian.Uint64(data[5:13])
	fade := data[13] != 0
	geom.ChannelCount = int(data[14])
	strips := int(data[15])

	off := frameHeaderSize
	if len(data) < off+strips {
		return 0, geom, fmt.Errorf("%w: truncated strip table", ErrMalformedFrame)
	}
	geom.PixelsPerStrip = make([]int, strips)
	for i := range geom.PixelsPerStrip {
		geom.PixelsPerStrip[i] = int(data[off+i])
	}
	off += strips

	if err := geom.Validate(); err != nil {
		return 0, geom, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if want := off + 3*(geom.ChannelCount+geom.PixelCount()); len(data) != want {
		return 0, geom, fmt.Errorf("%w: %d bytes, expected %d", ErrMalformedFrame, len(data), want)
	}

	dst.Reset()
	dst.Timestamp = timestamp
	dst.Fade = fade
	for i := 0; i < geom.ChannelCount; i++ {
		dst.Channels[i] = frame.GRB{G: data[off], R: data[off+1], B: data[off+2]}
		off += 3
	}
	for s, n := range geom.PixelsPerStrip {
		for p := 0; p < n; p++ {
			dst.Strips[s][p] = frame.GRB{G: data[off], R: data[off+1], B: data[off+2]}
			off += 3
		}
	}
	return seq, geom, nil
}

// NewGeometry builds the show/geometry payload.
func NewGeometry(geom frame.Geometry, frameCount int, durationMs uint32) Geometry {
	info := frame.DeriveChannelInfo(geom)
	return Geometry{
		ChannelCount:   geom.ChannelCount,
		PixelsPerStrip: geom.Clone().PixelsPerStrip,
		PixelCounts:    info.PixelCounts[:],
		FrameCount:     frameCount,
		DurationMs:     durationMs,
	}
}
