// ABOUTME: Output interface implemented by LED-driving back ends
// ABOUTME: Back ends receive one call per delivered frame
package frame

import "context"

// Output consumes decoded frames.
//
// Implementations must copy whatever they keep; the frame is reused by the
// caller after WriteFrame returns.
type Output interface {
	WriteFrame(ctx context.Context, f *Frame) error
}

// OutputFunc adapts a function to the Output interface.
type OutputFunc func(ctx context.Context, f *Frame) error

// WriteFrame calls fn(ctx, f).
func (fn OutputFunc) WriteFrame(ctx context.Context, f *Frame) error {
	return fn(ctx, f)
}
