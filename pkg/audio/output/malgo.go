// ABOUTME: Malgo-based audio output implementation
// ABOUTME: The miniaudio data callback renders directly from the mixer
package output

import (
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	*Mixer
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
}

// NewMalgo opens the default playback device through miniaudio
func NewMalgo(sampleRate, channels int) (Output, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	m := &Malgo{
		Mixer:    NewMixer(sampleRate, channels),
		malgoCtx: ctx,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		// A closed mixer renders silence
		_, _ = m.Mixer.Read(pOutputSample)
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		m.freeContext()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		m.freeContext()
		return nil, fmt.Errorf("failed to start device: %w", err)
	}
	m.device = device

	log.Info().Int("rate", sampleRate).Int("channels", channels).Msg("audio output initialized (malgo/S16)")

	return m, nil
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.Mixer.shutdown()

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.Warn().Err(err).Msg("malgo device stop error")
		}
		m.device.Uninit()
		m.device = nil
	}

	m.freeContext()
	return nil
}

func (m *Malgo) freeContext() {
	if m.malgoCtx == nil {
		return
	}
	if err := m.malgoCtx.Uninit(); err != nil {
		log.Warn().Err(err).Msg("malgo context uninit error")
	}
	m.malgoCtx.Free()
	m.malgoCtx = nil
}
