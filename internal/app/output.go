// ABOUTME: Logging frame output for headless runs
// ABOUTME: Logs the first channel and pixel of sampled frames
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lumenshow/lumen-go/pkg/frame"
)

// LogOutput is a frame.Output that logs a summary of every Nth frame.
type LogOutput struct {
	log   *slog.Logger
	every int
	count int
}

// NewLogOutput logs one of every `every` frames; every < 1 logs them all.
func NewLogOutput(log *slog.Logger, every int) *LogOutput {
	if log == nil {
		log = slog.Default()
	}
	if every < 1 {
		every = 1
	}
	return &LogOutput{
		log:   log.With("component", "output"),
		every: every,
	}
}

// WriteFrame implements frame.Output.
func (o *LogOutput) WriteFrame(ctx context.Context, f *frame.Frame) error {
	o.count++
	if (o.count-1)%o.every != 0 {
		return nil
	}
	o.log.Info("frame",
		"timestamp", f.Timestamp,
		"fade", f.Fade,
		"channel0", hexGRB(f.Channels[0]),
		"pixel0", hexGRB(f.Strips[0][0]))
	return nil
}

// Count returns how many frames have been written.
func (o *LogOutput) Count() int {
	return o.count
}

func hexGRB(c frame.GRB) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
