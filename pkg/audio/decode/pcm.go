// ABOUTME: PCM audio decoder
// ABOUTME: Passes 16-bit PCM through, downmixing stereo to mono
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	channels int
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != audio.CodecPCM {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	if format.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16)", format.BitDepth)
	}

	channels := format.Channels
	if channels < 1 {
		channels = 1
	}

	return &PCMDecoder{
		channels: channels,
	}, nil
}

// Decode returns mono PCM. Mono input is returned unchanged so that malformed
// chunks still reach the playback engine's validation.
func (d *PCMDecoder) Decode(data []byte) ([]byte, error) {
	if d.channels == 1 {
		return data, nil
	}

	frameBytes := 2 * d.channels
	if len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("pcm payload of %d bytes is not whole %d-channel frames", len(data), d.channels)
	}

	return audio.Int16ToBytes(audio.DownmixInt16(audio.BytesToInt16(data), d.channels)), nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
