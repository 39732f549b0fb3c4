// ABOUTME: Error kinds reported by the show engine
// ABOUTME: Every engine failure wraps exactly one of these sentinels
package frame

import "errors"

var (
	// ErrInvalidArgument reports a nil or malformed call parameter.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState reports an operation outside its lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound reports end of stream, an index beyond range, or a missing file.
	ErrNotFound = errors.New("not found")
	// ErrOutOfMemory reports a descriptor too large to allocate.
	ErrOutOfMemory = errors.New("out of memory")
	// ErrIO reports a storage open, read or seek failure.
	ErrIO = errors.New("i/o failure")
	// ErrFormatViolation reports a control field outside its documented bound.
	ErrFormatViolation = errors.New("format violation")
	// ErrChecksumMismatch reports a frame record that failed its integrity check.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)
