// ABOUTME: Tests for the binary frame message codec
// ABOUTME: Covers encode/decode agreement and malformed message rejection
package protocol

import (
	"errors"
	"testing"

	"github.com/lumenshow/lumen-go/pkg/frame"
)

func testFrame() (*frame.Frame, frame.Geometry) {
	geom := frame.Geometry{ChannelCount: 2, PixelsPerStrip: []int{3, 0, 1}}
	f := &frame.Frame{Timestamp: 1 << 33, Fade: true}
	f.Channels[0] = frame.GRB{G: 1, R: 2, B: 3}
	f.Channels[1] = frame.GRB{G: 4, R: 5, B: 6}
	f.Strips[0][2] = frame.GRB{G: 7, R: 8, B: 9}
	f.Strips[2][0] = frame.GRB{G: 10, R: 11, B: 12}
	return f, geom
}

func TestEncodeFrameLayout(t *testing.T) {
	f, geom := testFrame()

	data, err := EncodeFrame(42, f, geom)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	wantLen := frameHeaderSize + 3 + 3*(2+4)
	if len(data) != wantLen {
		t.Fatalf("expected %d bytes, got %d", wantLen, len(data))
	}
	if data[0] != FrameMessageType {
		t.Errorf("expected type %d, got %d", FrameMessageType, data[0])
	}
	if data[4] != 42 {
		t.Errorf("expected big-endian seq, got % x", data[1:5])
	}
	if data[13] != 1 {
		t.Error("expected fade flag set")
	}
	if data[14] != 2 || data[15] != 3 {
		t.Errorf("expected 2 channels and 3 strips, got %d and %d", data[14], data[15])
	}
	if data[frameHeaderSize] != 3 || data[frameHeaderSize+2] != 1 {
		t.Errorf("unexpected strip table % x", data[frameHeaderSize:frameHeaderSize+3])
	}
}

func TestDecodeFrame(t *testing.T) {
	f, geom := testFrame()
	data, err := EncodeFrame(7, f, geom)
	if err != nil {
		t.Fatal(err)
	}

	var got frame.Frame
	idx, gotGeom, err := DecodeFrame(data, &got)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if idx != 7 {
		t.Errorf("expected seq 7, got %d", idx)
	}
	if !gotGeom.Equal(geom) {
		t.Errorf("expected geometry %+v, got %+v", geom, gotGeom)
	}
	if got != *f {
		t.Error("decoded frame differs")
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	f, geom := testFrame()
	good, err := EncodeFrame(1, f, geom)
	if err != nil {
		t.Fatal(err)
	}

	wrongType := append([]byte(nil), good...)
	wrongType[0] = 9

	tooManyStrips := append([]byte(nil), good[:frameHeaderSize]...)
	tooManyStrips[15] = 9
	tooManyStrips = append(tooManyStrips, make([]byte, 9)...)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "short header", data: good[:10]},
		{name: "wrong type", data: wrongType},
		{name: "truncated payload", data: good[:len(good)-1]},
		{name: "trailing bytes", data: append(append([]byte(nil), good...), 0)},
		{name: "too many strips", data: tooManyStrips},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sentinel := frame.Frame{Timestamp: 5}
			dst := sentinel
			_, _, err := DecodeFrame(tt.data, &dst)
			if !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("expected ErrMalformedFrame, got %v", err)
			}
			if dst != sentinel {
				t.Error("destination modified on error")
			}
		})
	}
}

func TestEncodeFrameRejectsGeometry(t *testing.T) {
	f, _ := testFrame()
	_, err := EncodeFrame(0, f, frame.Geometry{ChannelCount: 41})
	if !errors.Is(err, frame.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestNewGeometry(t *testing.T) {
	g := NewGeometry(frame.Geometry{ChannelCount: 1, PixelsPerStrip: []int{5}}, 10, 900)

	if len(g.PixelCounts) != frame.ChannelSlots {
		t.Fatalf("expected %d slots, got %d", frame.ChannelSlots, len(g.PixelCounts))
	}
	if g.PixelCounts[0] != 5 || g.PixelCounts[frame.MaxStrips] != 1 {
		t.Errorf("unexpected slots %v", g.PixelCounts)
	}
	if g.FrameCount != 10 || g.DurationMs != 900 {
		t.Errorf("unexpected counts %+v", g)
	}
}
