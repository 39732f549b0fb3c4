// ABOUTME: Tests for the playback session
// ABOUTME: Exercises sequential reads, seeking, reset and lifecycle rules
package playback

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/lumenshow/lumen-go/internal/framefile"
	"github.com/lumenshow/lumen-go/internal/showtest"
	"github.com/lumenshow/lumen-go/internal/storage"
	"github.com/lumenshow/lumen-go/pkg/frame"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newSession stores show in memory and initializes a session over it.
func newSession(t *testing.T, show showtest.Show, frames []byte) *Session {
	t.Helper()

	fsys := storage.NewMem()
	fsys.Put("control.dat", show.ControlBytes())
	fsys.Put("frame.dat", frames)

	s := NewSession(Config{FS: fsys, Logger: quietLogger()})
	if err := s.Init("control.dat", "frame.dat"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func scenario() showtest.Show {
	return showtest.NewShow(1, []uint8{2}, []uint32{0, 100, 250})
}

func TestScenario(t *testing.T) {
	show := scenario()
	s := newSession(t, show, show.FrameBytes())

	fades := []bool{false, true, false}
	for i, want := range show.Frames {
		var got frame.Frame
		if err := s.ReadNext(&got); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got != want {
			t.Errorf("frame %d: content mismatch", i)
		}
		if got.Fade != fades[i] {
			t.Errorf("frame %d: expected fade %v, got %v", i, fades[i], got.Fade)
		}
		if got.Timestamp != uint64(show.Control.Timestamps[i]) {
			t.Errorf("frame %d: expected timestamp %d, got %d", i, show.Control.Timestamps[i], got.Timestamp)
		}
	}

	var f frame.Frame
	if err := s.ReadAtTimestamp(150, &f); err != nil {
		t.Fatalf("read at 150: %v", err)
	}
	if f.Timestamp != 100 {
		t.Errorf("read at 150: expected frame timestamp 100, got %d", f.Timestamp)
	}
	if s.Cursor() != 2 {
		t.Errorf("expected cursor 2 after seek, got %d", s.Cursor())
	}

	if err := s.ReadAtTimestamp(0, &f); err != nil {
		t.Fatalf("read at 0: %v", err)
	}
	if f != show.Frames[0] {
		t.Errorf("read at 0: expected frame 0, got timestamp %d", f.Timestamp)
	}
}

func TestSeekThenContinue(t *testing.T) {
	show := showtest.NewShow(2, []uint8{3}, []uint32{0, 10, 20, 30, 40})
	s := newSession(t, show, show.FrameBytes())

	var f frame.Frame
	if err := s.ReadAtTimestamp(25, &f); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if f != show.Frames[2] {
		t.Fatalf("expected frame 2, got timestamp %d", f.Timestamp)
	}

	for _, want := range []int{3, 4} {
		if err := s.ReadNext(&f); err != nil {
			t.Fatalf("read after seek: %v", err)
		}
		if f != show.Frames[want] {
			t.Errorf("expected frame %d, got timestamp %d", want, f.Timestamp)
		}
	}
	if err := s.ReadNext(&f); !errors.Is(err, frame.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Seeking backwards after exhaustion still works.
	if err := s.ReadAtTimestamp(10, &f); err != nil {
		t.Fatalf("seek after end: %v", err)
	}
	if f != show.Frames[1] {
		t.Errorf("expected frame 1, got timestamp %d", f.Timestamp)
	}
	if err := s.ReadNext(&f); err != nil || f != show.Frames[2] {
		t.Errorf("expected frame 2 after seek, got %d (%v)", f.Timestamp, err)
	}
}

func TestExhaustionAndReset(t *testing.T) {
	show := showtest.NewShow(3, []uint8{4, 2}, []uint32{0, 33, 66, 99})
	s := newSession(t, show, show.FrameBytes())

	readAll := func() []frame.Frame {
		t.Helper()
		var out []frame.Frame
		for i := 0; i < len(show.Frames); i++ {
			var f frame.Frame
			if err := s.ReadNext(&f); err != nil {
				t.Fatalf("frame %d: %v", i, err)
			}
			out = append(out, f)
		}
		var f frame.Frame
		if err := s.ReadNext(&f); !errors.Is(err, frame.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after %d frames, got %v", len(show.Frames), err)
		}
		// Still exhausted on a repeated call.
		if err := s.ReadNext(&f); !errors.Is(err, frame.ErrNotFound) {
			t.Fatalf("expected ErrNotFound again, got %v", err)
		}
		return out
	}

	first := readAll()
	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s.Cursor() != 0 {
		t.Errorf("expected cursor 0 after reset, got %d", s.Cursor())
	}
	second := readAll()

	for i := range first {
		if first[i] != second[i] {
			t.Errorf("frame %d differs after reset", i)
		}
		if first[i] != show.Frames[i] {
			t.Errorf("frame %d differs from fixture", i)
		}
	}
}

func TestResetMidStream(t *testing.T) {
	show := scenario()
	s := newSession(t, show, show.FrameBytes())

	var f frame.Frame
	if err := s.ReadNext(&f); err != nil {
		t.Fatal(err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	// Two resets in a row are fine.
	if err := s.Reset(); err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if err := s.ReadNext(&f); err != nil || f != show.Frames[0] {
		t.Errorf("expected frame 0 after reset, got %d (%v)", f.Timestamp, err)
	}
}

func TestChecksumMismatchSurfaces(t *testing.T) {
	show := scenario()
	data := show.FrameBytes()
	// Corrupt a pixel byte of record 1.
	data[show.RecordSize()+8] ^= 0x5A

	s := newSession(t, show, data)

	var f frame.Frame
	if err := s.ReadNext(&f); err != nil || f != show.Frames[0] {
		t.Fatalf("frame 0: %v", err)
	}

	before := f
	if err := s.ReadNext(&f); !errors.Is(err, frame.ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
	if f != before {
		t.Error("destination modified on checksum failure")
	}
	if s.Cursor() != 1 {
		t.Errorf("expected cursor to stay at 1, got %d", s.Cursor())
	}

	// The stream has moved past the bad record.
	if err := s.ReadNext(&f); err != nil || f != show.Frames[2] {
		t.Errorf("expected frame 2, got %d (%v)", f.Timestamp, err)
	}

	// Seeking onto the bad record reports it too.
	if err := s.ReadAtTimestamp(120, &f); !errors.Is(err, frame.ErrChecksumMismatch) {
		t.Errorf("seek onto corrupt record: expected ErrChecksumMismatch, got %v", err)
	}
}

func TestTruncatedFrameFile(t *testing.T) {
	show := scenario()
	data := show.FrameBytes()
	s := newSession(t, show, data[:2*show.RecordSize()+3])

	var f frame.Frame
	for i := 0; i < 2; i++ {
		if err := s.ReadNext(&f); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if err := s.ReadNext(&f); !errors.Is(err, frame.ErrNotFound) {
		t.Errorf("expected ErrNotFound for truncated record, got %v", err)
	}
}

func TestTimestampMismatchIsNotFatal(t *testing.T) {
	show := scenario()
	// Payload timestamps disagree with the index.
	show.Frames[1].Timestamp = 105
	s := newSession(t, show, show.FrameBytes())

	var f frame.Frame
	if err := s.ReadAtTimestamp(100, &f); err != nil {
		t.Fatalf("expected mismatch to be logged only, got %v", err)
	}
	if f.Timestamp != 105 {
		t.Errorf("expected payload timestamp 105, got %d", f.Timestamp)
	}
}

func TestReadAtTimestampStrict(t *testing.T) {
	show := showtest.NewShow(1, nil, []uint32{50, 60})
	s := newSession(t, show, show.FrameBytes())

	var f frame.Frame
	if err := s.ReadAtTimestampStrict(10, &f); !errors.Is(err, frame.ErrNotFound) {
		t.Errorf("expected ErrNotFound before first frame, got %v", err)
	}
	if err := s.ReadAtTimestamp(10, &f); err != nil || f.Timestamp != 50 {
		t.Errorf("expected floor to frame 0, got %d (%v)", f.Timestamp, err)
	}
	if err := s.ReadAtTimestampStrict(60, &f); err != nil || f.Timestamp != 60 {
		t.Errorf("expected frame 1, got %d (%v)", f.Timestamp, err)
	}
}

func TestEmptyShow(t *testing.T) {
	show := showtest.NewShow(0, nil, nil)
	s := newSession(t, show, nil)

	var f frame.Frame
	if err := s.ReadNext(&f); !errors.Is(err, frame.ErrNotFound) {
		t.Errorf("read next: expected ErrNotFound, got %v", err)
	}
	if err := s.ReadAtTimestamp(0, &f); !errors.Is(err, frame.ErrNotFound) {
		t.Errorf("read at: expected ErrNotFound, got %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Errorf("reset: %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	show := scenario()
	fsys := storage.NewMem()
	fsys.Put("control.dat", show.ControlBytes())
	fsys.Put("frame.dat", show.FrameBytes())

	s := NewSession(Config{FS: fsys, Logger: quietLogger()})

	var f frame.Frame
	if err := s.ReadNext(&f); !errors.Is(err, frame.ErrInvalidState) {
		t.Errorf("read before init: expected ErrInvalidState, got %v", err)
	}
	if err := s.Reset(); !errors.Is(err, frame.ErrInvalidState) {
		t.Errorf("reset before init: expected ErrInvalidState, got %v", err)
	}
	if s.ChannelInfo() != (frame.ChannelInfo{}) {
		t.Error("expected zero channel info before init")
	}

	if err := s.Init("control.dat", "frame.dat"); err != nil {
		t.Fatalf("init: %v", err)
	}
	first := s.ID()

	if err := s.Init("control.dat", "frame.dat"); !errors.Is(err, frame.ErrInvalidState) {
		t.Errorf("double init: expected ErrInvalidState, got %v", err)
	}
	if err := s.ReadNext(nil); !errors.Is(err, frame.ErrInvalidArgument) {
		t.Errorf("nil frame: expected ErrInvalidArgument, got %v", err)
	}

	info := s.ChannelInfo()
	if info.PixelCounts[0] != 2 || info.PixelCounts[frame.MaxStrips] != 1 {
		t.Errorf("unexpected channel info %v", info.PixelCounts)
	}

	if err := s.ReadNext(&f); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.Ready() {
		t.Error("expected session to be uninitialized after close")
	}
	if err := s.ReadNext(&f); !errors.Is(err, frame.ErrInvalidState) {
		t.Errorf("read after close: expected ErrInvalidState, got %v", err)
	}

	// A fresh session starts from frame 0 again.
	if err := s.Init("control.dat", "frame.dat"); err != nil {
		t.Fatalf("re-init: %v", err)
	}
	defer s.Close()

	if s.ID() == first {
		t.Error("expected a new session id after re-init")
	}
	if err := s.ReadNext(&f); err != nil || f != show.Frames[0] {
		t.Errorf("expected frame 0 in new session, got %d (%v)", f.Timestamp, err)
	}
}

func TestInitFailures(t *testing.T) {
	good := scenario()

	tests := []struct {
		name    string
		control []byte
		frames  []byte
		ctrlArg string
		want    error
	}{
		{
			name:    "missing control",
			frames:  good.FrameBytes(),
			ctrlArg: "control.dat",
			want:    frame.ErrNotFound,
		},
		{
			name:    "missing frames",
			control: good.ControlBytes(),
			ctrlArg: "control.dat",
			want:    frame.ErrNotFound,
		},
		{
			name: "nine strips",
			control: showtest.Control{
				StripCount: 9, PixelsPerStrip: make([]uint8, 9),
			}.Bytes(),
			frames:  good.FrameBytes(),
			ctrlArg: "control.dat",
			want:    frame.ErrFormatViolation,
		},
		{
			name:    "empty path",
			control: good.ControlBytes(),
			frames:  good.FrameBytes(),
			ctrlArg: "",
			want:    frame.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storage.NewMem()
			if tt.control != nil {
				mem.Put("control.dat", tt.control)
			}
			if tt.frames != nil {
				mem.Put("frame.dat", tt.frames)
			}
			fsys := showtest.NewTrackingFS(mem)

			s := NewSession(Config{FS: fsys, Logger: quietLogger()})
			err := s.Init(tt.ctrlArg, "frame.dat")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if s.Ready() {
				t.Error("session should stay uninitialized after a failed init")
			}
			if n := fsys.OpenFiles(); n != 0 {
				t.Errorf("failed init left %d files open", n)
			}

			// Recovery once the files are valid.
			mem.Put("control.dat", good.ControlBytes())
			mem.Put("frame.dat", good.FrameBytes())
			if err := s.Init("control.dat", "frame.dat"); err != nil {
				t.Fatalf("init after failure: %v", err)
			}
			s.Close()
			if n := fsys.OpenFiles(); n != 0 {
				t.Errorf("close left %d files open", n)
			}
		})
	}
}

func TestColorScopeSession(t *testing.T) {
	show := scenario()
	geom := show.Control.Geometry()

	var data []byte
	for i := range show.Frames {
		payload := showtest.Payload(geom, &show.Frames[i])
		sum := showtest.Sum(payload[5:])
		data = append(data, payload...)
		data = append(data, byte(sum), byte(sum>>8), byte(sum>>16), byte(sum>>24))
	}

	fsys := storage.NewMem()
	fsys.Put("control.dat", show.ControlBytes())
	fsys.Put("frame.dat", data)

	s := NewSession(Config{FS: fsys, Logger: quietLogger(), ChecksumScope: framefile.ScopeColors})
	if err := s.Init("control.dat", "frame.dat"); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var f frame.Frame
	if err := s.ReadAtTimestamp(250, &f); err != nil || f != show.Frames[2] {
		t.Errorf("expected frame 2, got %d (%v)", f.Timestamp, err)
	}
}

func TestIndexAt(t *testing.T) {
	s := NewSession(Config{FS: storage.NewMem(), Logger: quietLogger()})
	if got := s.IndexAt(10); got != -1 {
		t.Errorf("uninitialized session: expected -1, got %d", got)
	}

	show := scenario()
	s = newSession(t, show, show.FrameBytes())

	tests := []struct {
		ts   uint64
		want int
	}{
		{0, 0},
		{99, 0},
		{100, 1},
		{249, 1},
		{250, 2},
		{10000, 2},
	}
	for _, tt := range tests {
		if got := s.IndexAt(tt.ts); got != tt.want {
			t.Errorf("IndexAt(%d): expected %d, got %d", tt.ts, tt.want, got)
		}
	}
}

func TestFailedSeekKeepsStreamOrder(t *testing.T) {
	show := scenario()

	tests := []struct {
		name string
		op   func(s *Session) error
	}{
		{
			name: "reset",
			op:   func(s *Session) error { return s.Reset() },
		},
		{
			name: "read at timestamp",
			op: func(s *Session) error {
				var f frame.Frame
				return s.ReadAtTimestamp(250, &f)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storage.NewMem()
			mem.Put("control.dat", show.ControlBytes())
			mem.Put("frame.dat", show.FrameBytes())
			fsys := showtest.NewTrackingFS(mem)

			s := NewSession(Config{FS: fsys, Logger: quietLogger()})
			if err := s.Init("control.dat", "frame.dat"); err != nil {
				t.Fatalf("init failed: %v", err)
			}
			defer s.Close()

			var f frame.Frame
			if err := s.ReadNext(&f); err != nil || f != show.Frames[0] {
				t.Fatalf("frame 0: %v", err)
			}

			fsys.FailSeeks(1)
			if err := tt.op(s); !errors.Is(err, frame.ErrIO) {
				t.Fatalf("expected ErrIO, got %v", err)
			}
			if s.Cursor() != 1 {
				t.Errorf("expected cursor 1 after failed seek, got %d", s.Cursor())
			}

			// Sequential playback resumes where it was, without skipping.
			for _, want := range []int{1, 2} {
				if err := s.ReadNext(&f); err != nil {
					t.Fatalf("frame %d: %v", want, err)
				}
				if f != show.Frames[want] {
					t.Errorf("expected frame %d, got timestamp %d", want, f.Timestamp)
				}
			}
			if err := s.ReadNext(&f); !IsEnd(err) {
				t.Errorf("expected end of stream, got %v", err)
			}
		})
	}
}
