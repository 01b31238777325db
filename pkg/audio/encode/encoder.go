// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for relay payload encoders
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// Encoder encodes 16-bit PCM samples to a transport payload
type Encoder interface {
	// Encode converts interleaved samples to one payload
	Encode(samples []int16) ([]byte, error)

	// FrameSize is the required samples per channel per call (0 = any)
	FrameSize() int

	// Close releases encoder resources
	Close() error
}

// New creates the encoder for a stream format
func New(format audio.Format) (Encoder, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("cannot create encoder: %w", err)
	}

	switch format.Codec {
	case audio.CodecPCM:
		return NewPCM(format)
	case audio.CodecOpus:
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}
}
