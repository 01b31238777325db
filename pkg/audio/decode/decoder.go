// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for transport payload decoders
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// Decoder turns transport payloads into mono little-endian 16-bit PCM
type Decoder interface {
	// Decode converts one encoded payload to PCM bytes
	Decode(data []byte) ([]byte, error)

	// Close releases decoder resources
	Close() error
}

// New creates the decoder for a stream format
func New(format audio.Format) (Decoder, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("cannot create decoder: %w", err)
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
