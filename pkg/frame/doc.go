// ABOUTME: Show frame fundamentals shared by the engine and LED back ends
// ABOUTME: Defines Frame, Geometry, ChannelInfo, the Output interface and error kinds
// Package frame provides the caller-visible types of the lumen show engine.
//
// A show is described by its Geometry: a count of bus-addressed output
// channels plus a set of addressable pixel strips. Every decoded record is
// delivered as a Frame whose storage is sized to the hardware maxima
// (MaxStrips × MaxPixels strip pixels, MaxChannels channels) regardless of
// the configured geometry, so a Frame can be copied and reused without
// allocation.
//
// LED back ends implement Output and receive one WriteFrame call per
// delivered frame. They query the channel layout once through ChannelInfo:
//
//	info := frame.DeriveChannelInfo(geom)
//	for i, n := range info.Strips() {
//	    log.Printf("strip %d: %d pixels", i, n)
//	}
//
// All engine failures wrap one of the Err* kinds declared here, so callers
// branch with errors.Is:
//
//	if err := session.ReadNext(&f); errors.Is(err, frame.ErrNotFound) {
//	    // end of show
//	}
package frame
