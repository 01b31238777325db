// ABOUTME: Error kinds reported by the playback engine
// ABOUTME: Distinguishes locally recovered errors from fatal session errors
package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamComplete is returned by Push once Stop has been called.
	ErrStreamComplete = errors.New("stream already complete")

	// ErrSampleRateLocked is returned when the sample rate is changed mid-playback.
	ErrSampleRateLocked = errors.New("sample rate cannot change while playing")
)

// ErrorKind classifies playback errors
type ErrorKind int

const (
	KindInvalidChunk ErrorKind = iota + 1
	KindBufferOverflow
	KindSinkUnavailable
	KindFrameCreationFailed
	KindScheduleFailed
	KindUnderrunTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidChunk:
		return "invalid_chunk"
	case KindBufferOverflow:
		return "buffer_overflow"
	case KindSinkUnavailable:
		return "sink_unavailable"
	case KindFrameCreationFailed:
		return "frame_creation_failed"
	case KindScheduleFailed:
		return "schedule_failed"
	case KindUnderrunTimeout:
		return "underrun_timeout"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Fatal reports whether errors of this kind end the session
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindSinkUnavailable, KindFrameCreationFailed, KindScheduleFailed:
		return true
	default:
		return false
	}
}

// Error is the error type produced by the Streamer
type Error struct {
	Kind    ErrorKind
	Details string
	Err     error
}

func newError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Details: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("playback %s: %s: %v", e.Kind, e.Details, e.Err)
	}
	return fmt.Sprintf("playback %s: %s", e.Kind, e.Details)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a playback Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}
