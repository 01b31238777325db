// ABOUTME: Opus audio decoder
// ABOUTME: Decodes Opus packets to mono 16-bit PCM
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrame is the largest Opus frame (120ms at 48kHz)
const maxOpusFrame = 5760

// OpusDecoder decodes Opus audio
type OpusDecoder struct {
	decoder *opus.Decoder
	format  audio.Format
	pcm     []int16
}

// NewOpus creates a new Opus decoder
func NewOpus(format audio.Format) (Decoder, error) {
	if format.Codec != audio.CodecOpus {
		return nil, fmt.Errorf("invalid codec for Opus decoder: %s", format.Codec)
	}

	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder: dec,
		format:  format,
		pcm:     make([]int16, maxOpusFrame*format.Channels),
	}, nil
}

// Decode converts one Opus packet to mono PCM bytes
func (d *OpusDecoder) Decode(data []byte) ([]byte, error) {
	n, err := d.decoder.Decode(data, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	samples := d.pcm[:n*d.format.Channels]
	return audio.Int16ToBytes(audio.DownmixInt16(samples, d.format.Channels)), nil
}

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	return nil
}
