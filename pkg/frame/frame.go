// ABOUTME: Frame and geometry type definitions
// ABOUTME: Fixed-capacity frame storage sized to the LED hardware maxima
package frame

import "fmt"

const (
	// MaxStrips is the number of addressable pixel strip outputs.
	MaxStrips = 8
	// MaxPixels is the pixel capacity of a single strip.
	MaxPixels = 100
	// MaxChannels is the number of bus-addressed output channels.
	MaxChannels = 40
)

// GRB is one color triple in wire order.
type GRB struct {
	G uint8
	R uint8
	B uint8
}

// Frame is one decoded show record.
//
// Only the first ChannelCount channels and the first PixelsPerStrip[i]
// pixels of strip i carry data; everything else is zero.
type Frame struct {
	Timestamp uint64
	Fade      bool
	Channels  [MaxChannels]GRB
	Strips    [MaxStrips][MaxPixels]GRB
}

// Reset zeroes the frame in place.
func (f *Frame) Reset() {
	*f = Frame{}
}

// Geometry is the hardware footprint of a show.
type Geometry struct {
	ChannelCount   int
	PixelsPerStrip []int
}

// StripCount returns the number of configured strips.
func (g Geometry) StripCount() int {
	return len(g.PixelsPerStrip)
}

// PixelCount returns the total number of strip pixels.
func (g Geometry) PixelCount() int {
	total := 0
	for _, n := range g.PixelsPerStrip {
		total += n
	}
	return total
}

// Validate reports whether the geometry fits the fixed frame storage.
func (g Geometry) Validate() error {
	if g.ChannelCount < 0 || g.ChannelCount > MaxChannels {
		return fmt.Errorf("%w: channel count %d exceeds %d", ErrInvalidArgument, g.ChannelCount, MaxChannels)
	}
	if g.StripCount() > MaxStrips {
		return fmt.Errorf("%w: strip count %d exceeds %d", ErrInvalidArgument, g.StripCount(), MaxStrips)
	}
	for i, n := range g.PixelsPerStrip {
		if n < 0 || n > MaxPixels {
			return fmt.Errorf("%w: strip %d has %d pixels, max %d", ErrInvalidArgument, i, n, MaxPixels)
		}
	}
	return nil
}

// Clone returns a deep copy of the geometry.
func (g Geometry) Clone() Geometry {
	out := Geometry{ChannelCount: g.ChannelCount}
	if g.PixelsPerStrip != nil {
		out.PixelsPerStrip = append([]int(nil), g.PixelsPerStrip...)
	}
	return out
}

// Equal reports whether two geometries describe the same layout.
func (g Geometry) Equal(o Geometry) bool {
	if g.ChannelCount != o.ChannelCount || len(g.PixelsPerStrip) != len(o.PixelsPerStrip) {
		return false
	}
	for i := range g.PixelsPerStrip {
		if g.PixelsPerStrip[i] != o.PixelsPerStrip[i] {
			return false
		}
	}
	return true
}
