// ABOUTME: Oto-based audio output implementation
// ABOUTME: A persistent oto player pulls rendered PCM from the mixer
package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog/log"
)

// otoBuffer bounds how far oto reads ahead of the speaker
const otoBuffer = 40 * time.Millisecond

var (
	// oto allows one context per process
	otoOnce    sync.Once
	otoCtx     *oto.Context
	otoErr     error
	otoRate    int
	otoChannel int
)

// Oto output implementation using oto library
type Oto struct {
	*Mixer
	player *oto.Player
}

// NewOto opens the default device through oto
func NewOto(sampleRate, channels int) (Output, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   otoBuffer,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-readyChan

		otoCtx = ctx
		otoRate = sampleRate
		otoChannel = channels
	})
	if otoErr != nil {
		return nil, otoErr
	}

	if otoRate != sampleRate || otoChannel != channels {
		log.Warn().
			Int("rate", otoRate).Int("channels", otoChannel).
			Int("requested_rate", sampleRate).Int("requested_channels", channels).
			Msg("oto doesn't support reinitialization, reusing existing context format")
	}

	mixer := NewMixer(otoRate, otoChannel)
	player := otoCtx.NewPlayer(mixer)
	player.Play()

	log.Info().Int("rate", otoRate).Int("channels", otoChannel).Msg("audio output initialized (oto)")

	return &Oto{Mixer: mixer, player: player}, nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.Mixer.shutdown()
	if o.player != nil {
		if err := o.player.Close(); err != nil {
			return fmt.Errorf("failed to close oto player: %w", err)
		}
		o.player = nil
	}
	return nil
}
