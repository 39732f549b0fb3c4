// ABOUTME: Soundtrack decoding for MP3 and FLAC files
// ABOUTME: Exposes decoded audio as a seekable 16-bit little-endian PCM stream
package soundtrack

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// ErrUnsupportedFormat reports a soundtrack file of an unknown type.
var ErrUnsupportedFormat = errors.New("unsupported soundtrack format")

// bytesPerSample is the size of one 16-bit PCM sample.
const bytesPerSample = 2

// Track is an opened soundtrack. Reads yield interleaved signed 16-bit
// little-endian PCM.
type Track struct {
	Title      string
	SampleRate int
	Channels   int
	// Length is the PCM size in bytes, or -1 when unknown.
	Length int64

	src    io.ReadSeeker
	closer io.Closer
}

// Open opens an MP3 or FLAC file, chosen by extension.
func Open(path string) (*Track, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".mp3" && ext != ".flac" {
		return nil, fmt.Errorf("%w: %s (supported: .mp3, .flac)", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open soundtrack: %w", err)
	}

	var t *Track
	switch ext {
	case ".mp3":
		t, err = openMP3(f)
	case ".flac":
		t, err = openFLAC(f)
	}
	if err != nil {
		f.Close()
		return nil, err
	}

	name := filepath.Base(path)
	t.Title = strings.TrimSuffix(name, filepath.Ext(name))
	return t, nil
}

func openMP3(f *os.File) (*Track, error) {
	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	// The MP3 decoder always produces 16-bit stereo.
	return &Track{
		SampleRate: decoder.SampleRate(),
		Channels:   2,
		Length:     decoder.Length(),
		src:        decoder,
		closer:     f,
	}, nil
}

func openFLAC(f *os.File) (*Track, error) {
	stream, err := flac.NewSeek(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	channels := int(info.NChannels)
	if channels > 2 {
		// Only the front pair is played.
		channels = 2
	}

	src := &flacSource{
		stream:   stream,
		channels: channels,
		bits:     int(info.BitsPerSample),
	}

	length := int64(-1)
	if info.NSamples > 0 {
		length = int64(info.NSamples) * int64(channels*bytesPerSample)
	}

	return &Track{
		SampleRate: int(info.SampleRate),
		Channels:   channels,
		Length:     length,
		src:        src,
		closer:     f,
	}, nil
}

// Duration returns the track length, or 0 when unknown.
func (t *Track) Duration() time.Duration {
	if t.Length < 0 {
		return 0
	}
	return time.Duration(bytesToMs(t.Length, t.SampleRate, t.Channels)) * time.Millisecond
}

// Close releases the underlying file.
func (t *Track) Close() error {
	return t.closer.Close()
}

// flacSource re-encodes FLAC frames as 16-bit PCM.
type flacSource struct {
	stream   *flac.Stream
	channels int
	bits     int
	pending  []byte
	pos      int64
	samples  [][]int32
}

func (s *flacSource) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		fr, err := s.stream.ParseNext()
		if err != nil {
			return 0, err
		}

		s.samples = s.samples[:0]
		for ch := 0; ch < s.channels; ch++ {
			s.samples = append(s.samples, fr.Subframes[ch].Samples)
		}
		s.pending = appendPCM16(s.pending[:0], s.samples, int(fr.BlockSize), s.bits)
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	s.pos += int64(n)
	return n, nil
}

func (s *flacSource) Seek(offset int64, whence int) (int64, error) {
	frameBytes := int64(s.channels * bytesPerSample)

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.pos + offset
	case io.SeekEnd:
		abs = int64(s.stream.Info.NSamples)*frameBytes + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative position %d", abs)
	}

	sample, err := s.stream.Seek(uint64(abs / frameBytes))
	if err != nil {
		return 0, fmt.Errorf("failed to seek FLAC: %w", err)
	}
	s.pending = s.pending[:0]
	s.pos = int64(sample) * frameBytes
	return s.pos, nil
}

// appendPCM16 interleaves n samples of each channel as 16-bit little
// endian, rescaling from bits per sample.
func appendPCM16(dst []byte, channels [][]int32, n, bits int) []byte {
	shift := bits - 16
	for i := 0; i < n; i++ {
		for _, samples := range channels {
			v := samples[i]
			if shift > 0 {
				v >>= shift
			} else if shift < 0 {
				v <<= -shift
			}
			dst = append(dst, byte(v), byte(v>>8))
		}
	}
	return dst
}

func bytesToMs(n int64, rate, channels int) uint64 {
	if n <= 0 || rate <= 0 || channels <= 0 {
		return 0
	}
	frames := n / int64(channels*bytesPerSample)
	return uint64(frames * 1000 / int64(rate))
}

func msToBytes(ms uint64, rate, channels int) int64 {
	frames := int64(ms) * int64(rate) / 1000
	return frames * int64(channels*bytesPerSample)
}
