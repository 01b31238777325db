// ABOUTME: Audio output interface definition
// ABOUTME: Common interface and factory for playback backends
package output

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/playback"
)

// Backend names accepted by New
const (
	BackendOto       = "oto"
	BackendMalgo     = "malgo"
	BackendPortAudio = "portaudio"
	BackendNull      = "null"
)

// Output is an opened audio device. It serves as the playback engine's
// sink and clock.
type Output interface {
	playback.Sink
	playback.Clock

	// SetVolume sets the master volume (0-100)
	SetVolume(volume int)

	// SetMuted sets mute state
	SetMuted(muted bool)

	// Volume returns current volume
	Volume() int

	// Muted returns mute state
	Muted() bool

	// Close releases the device; Available reports false afterwards
	Close() error
}

// New opens the named backend at the given output format
func New(backend string, sampleRate, channels int) (Output, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("unsupported channel count: %d", channels)
	}

	switch backend {
	case BackendOto, "":
		return NewOto(sampleRate, channels)
	case BackendMalgo:
		return NewMalgo(sampleRate, channels)
	case BackendPortAudio:
		return NewPortAudio(sampleRate, channels)
	case BackendNull:
		return NewNull(sampleRate, channels), nil
	default:
		return nil, fmt.Errorf("unknown audio backend: %q", backend)
	}
}
