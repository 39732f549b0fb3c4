// ABOUTME: Channel layout derivation for LED back ends
// ABOUTME: Maps a show geometry onto the fixed strip-then-bus slot order
package frame

// ChannelSlots is the number of hardware-addressable output slots.
const ChannelSlots = MaxStrips + MaxChannels

// ChannelInfo lists the logical pixel count of every output slot.
//
// Slots [0, MaxStrips) are pixel strips; slots [MaxStrips, ChannelSlots)
// are bus channels, each driving a single logical pixel.
type ChannelInfo struct {
	PixelCounts [ChannelSlots]uint16
}

// Strips returns the strip slots.
func (c ChannelInfo) Strips() []uint16 {
	return c.PixelCounts[:MaxStrips]
}

// BusChannels returns the bus channel slots.
func (c ChannelInfo) BusChannels() []uint16 {
	return c.PixelCounts[MaxStrips:]
}

// DeriveChannelInfo maps geom onto the fixed slot layout. Slots beyond the
// configured geometry are zero and strip counts are clamped to MaxPixels.
func DeriveChannelInfo(geom Geometry) ChannelInfo {
	var info ChannelInfo

	for i, n := range geom.PixelsPerStrip {
		if i >= MaxStrips {
			break
		}
		if n > MaxPixels {
			n = MaxPixels
		}
		if n < 0 {
			n = 0
		}
		info.PixelCounts[i] = uint16(n)
	}

	channels := geom.ChannelCount
	if channels > MaxChannels {
		channels = MaxChannels
	}
	for i := 0; i < channels; i++ {
		info.PixelCounts[MaxStrips+i] = 1
	}

	return info
}
