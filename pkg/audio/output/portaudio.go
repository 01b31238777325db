//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Cross-platform audio output rendering from the mixer in the stream callback
package output

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog/log"
)

// PortAudio output implementation
type PortAudio struct {
	*Mixer
	stream *portaudio.Stream
}

// NewPortAudio opens the default output stream
func NewPortAudio(sampleRate, channels int) (Output, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	p := &PortAudio{Mixer: NewMixer(sampleRate, channels)}

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), 0, func(out []int16) {
		_ = p.Mixer.Render(out)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}
	p.stream = stream

	log.Info().Int("rate", sampleRate).Int("channels", channels).Msg("audio output initialized (portaudio)")

	return p, nil
}

// Close releases resources
func (p *PortAudio) Close() error {
	p.Mixer.shutdown()
	if p.stream != nil {
		if err := p.stream.Stop(); err != nil {
			return err
		}
		if err := p.stream.Close(); err != nil {
			return err
		}
		p.stream = nil
	}
	return portaudio.Terminate()
}
