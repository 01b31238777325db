// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats and 16-bit/float sample conversions
package audio

import "fmt"

const (
	// pcm16Scale maps int16 samples onto [-1, 1)
	pcm16Scale = 32768.0

	CodecPCM  = "pcm"
	CodecOpus = "opus"
)

// Format describes audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// Validate checks that the format is a stream payload the codecs handle
func (f Format) Validate() error {
	switch f.Codec {
	case CodecPCM, CodecOpus:
	default:
		return fmt.Errorf("unsupported codec: %q", f.Codec)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 2 {
		return fmt.Errorf("unsupported channel count: %d", f.Channels)
	}
	if f.Codec == CodecPCM && f.BitDepth != 16 {
		return fmt.Errorf("unsupported bit depth: %d (supported: 16)", f.BitDepth)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch %dbit", f.Codec, f.SampleRate, f.Channels, f.BitDepth)
}

// Int16ToFloat32 converts a 16-bit sample to a float in [-1, 1)
func Int16ToFloat32(sample int16) float32 {
	return float32(sample) / pcm16Scale
}

// Float32ToInt16 converts a float sample to 16-bit with clipping
func Float32ToInt16(sample float32) int16 {
	scaled := sample * pcm16Scale
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32768 {
		return -32768
	}
	return int16(scaled)
}
