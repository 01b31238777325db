// ABOUTME: Main player application orchestration
// ABOUTME: Connects to a relay, decodes stream payloads and drives the streamer
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/client"
	"github.com/Resonate-Protocol/resonate-voice/internal/discovery"
	"github.com/Resonate-Protocol/resonate-voice/internal/protocol"
	"github.com/Resonate-Protocol/resonate-voice/internal/ui"
	"github.com/Resonate-Protocol/resonate-voice/internal/version"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-voice/pkg/playback"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrConnectionLost is returned by Run when the relay goes away
var ErrConnectionLost = errors.New("connection to relay lost")

const statusInterval = 500 * time.Millisecond

// Config holds player configuration
type Config struct {
	ServerAddr      string // empty: discover via mDNS
	Path            string
	Name            string
	Port            int
	DiscoverTimeout time.Duration
	Playback        playback.Config

	// OnStatus receives TUI updates (optional)
	OnStatus func(ui.StatusMsg)
}

// Player represents the main player application
type Player struct {
	config   Config
	out      output.Output
	streamer *playback.Streamer
	logger   zerolog.Logger

	// latest holds the newest scheduler state; stateChanged wakes the
	// event loop, coalescing bursts so the final transition is never lost
	latest       atomic.Int32
	stateChanged chan struct{}

	mu     sync.RWMutex
	client *client.Client
	format audio.Format

	// Owned by the event loop
	decoder  decode.Decoder
	ending   bool
	reported playback.State
}

// New creates a player bound to an opened output device
func New(config Config, out output.Output) *Player {
	p := &Player{
		config:       config,
		out:          out,
		logger:       log.With().Str("component", "player").Logger(),
		stateChanged: make(chan struct{}, 1),
	}

	pc := config.Playback
	pc.OnStateChange = p.onStateChange
	pc.OnPlaybackComplete = func() {
		p.logger.Info().Msg("Utterance finished playing")
	}
	pc.OnError = func(err error) {
		p.logger.Error().Err(err).Msg("Playback error")
		p.status(ui.StatusMsg{Error: err.Error()})
	}
	pc.OnWarning = func(err error) {
		p.logger.Debug().Err(err).Msg("Playback warning")
	}

	p.streamer = playback.NewStreamer(out, out, pc)
	return p
}

// Streamer exposes the playback engine
func (p *Player) Streamer() *playback.Streamer {
	return p.streamer
}

// Run connects and plays until ctx is cancelled or the connection drops
func (p *Player) Run(ctx context.Context) error {
	addr, err := p.resolve(ctx)
	if err != nil {
		return err
	}

	c := client.NewClient(client.Config{
		ServerAddr: addr,
		Path:       p.config.Path,
		Name:       p.config.Name,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		PlayerSupport: protocol.PlayerSupport{
			SupportFormats: []protocol.AudioFormat{
				{Codec: audio.CodecOpus, Channels: 1, SampleRate: 48000, BitDepth: 16},
				{Codec: audio.CodecPCM, Channels: 1, SampleRate: 24000, BitDepth: 16},
			},
			BufferCapacity:    1048576,
			SupportedCommands: []string{protocol.CommandVolume, protocol.CommandMute, protocol.CommandStop},
		},
	})

	if err := c.Connect(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	p.mu.Lock()
	p.client = c
	p.mu.Unlock()

	p.logger.Info().Str("server", addr).Str("name", c.Server().Name).Msg("Connected to relay")
	connected := true
	p.status(ui.StatusMsg{Connected: &connected, ServerName: addr})
	p.reported = p.streamer.State()
	p.reportState(c, p.reported)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.eventLoop(gctx, c)
	})
	g.Go(func() error {
		p.statusLoop(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		c.Close()
		return nil
	})

	err = g.Wait()

	p.streamer.Stop(true)
	if p.decoder != nil {
		p.decoder.Close()
		p.decoder = nil
	}

	p.mu.Lock()
	p.client = nil
	p.mu.Unlock()

	disconnected := false
	p.status(ui.StatusMsg{Connected: &disconnected})

	return err
}

// resolve returns the relay address, discovering it when none is configured
func (p *Player) resolve(ctx context.Context) (string, error) {
	if p.config.ServerAddr != "" {
		return p.config.ServerAddr, nil
	}

	mgr := discovery.NewManager(discovery.Config{
		ServiceName: p.config.Name,
		Port:        p.config.Port,
	})
	defer mgr.Stop()

	if err := mgr.Advertise(); err != nil {
		p.logger.Warn().Err(err).Msg("mDNS advertisement failed")
	}

	timeout := p.config.DiscoverTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p.logger.Info().Dur("timeout", timeout).Msg("Discovering relay")
	server, err := mgr.WaitForServer(dctx)
	if err != nil {
		return "", err
	}

	p.logger.Info().Str("name", server.Name).Str("addr", server.Addr()).Msg("Discovered relay")
	return server.Addr(), nil
}

// eventLoop handles relay messages in arrival order
func (p *Player) eventLoop(ctx context.Context, c *client.Client) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-c.Done():
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn().Msg("Relay closed the connection")
			return ErrConnectionLost

		case start := <-c.StreamStarts:
			p.handleStreamStart(start)

		case chunk := <-c.AudioChunks:
			p.handleAudioChunk(chunk)

		case end := <-c.StreamEnds:
			p.handleStreamEnd(end)

		case sc := <-c.StreamClears:
			p.handleStreamClear(sc)

		case cmd := <-c.Commands:
			p.handleCommand(cmd)

		case <-p.stateChanged:
			p.handleState(c)
		}
	}
}

// handleStreamStart sets up the decoder and a playback session
func (p *Player) handleStreamStart(start protocol.StreamStart) {
	format := audio.Format{
		Codec:      start.Codec,
		SampleRate: start.SampleRate,
		Channels:   start.Channels,
		BitDepth:   start.BitDepth,
	}
	p.logger.Info().Str("stream_id", start.StreamID).Str("format", format.String()).Msg("Stream starting")

	if p.decoder != nil {
		p.decoder.Close()
		p.decoder = nil
	}

	decoder, err := decode.New(format)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to create decoder")
		p.status(ui.StatusMsg{Error: err.Error()})
		return
	}
	p.decoder = decoder
	p.ending = false

	// An unterminated previous stream drains ahead of the new one
	if p.streamer.IsPlaying() {
		p.streamer.Stop(false)
	}

	if err := p.streamer.InitializeSession(start.SampleRate); err != nil {
		p.logger.Error().Err(err).Msg("Failed to initialize playback session")
		p.status(ui.StatusMsg{Error: err.Error()})
		return
	}

	p.mu.Lock()
	p.format = format
	p.mu.Unlock()

	p.status(ui.StatusMsg{Codec: format.Codec, SampleRate: format.SampleRate, Channels: format.Channels})
}

// handleAudioChunk decodes one payload and pushes it into the streamer
func (p *Player) handleAudioChunk(chunk protocol.AudioChunk) {
	if p.decoder == nil {
		return
	}

	pcm, err := p.decoder.Decode(chunk.Data)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Decode error")
		return
	}

	if err := p.streamer.Push(pcm); err != nil && !errors.Is(err, playback.ErrStreamComplete) {
		p.logger.Debug().Err(err).Msg("Chunk rejected")
	}
}

// handleStreamEnd lets buffered audio play out before stopping
func (p *Player) handleStreamEnd(end protocol.StreamEnd) {
	p.logger.Info().Str("stream_id", end.StreamID).Msg("Stream ended")

	// Pad the partial last frame so the final samples are heard
	st := p.streamer.Stats()
	if st.PendingSamples > 0 && st.FrameSize > st.PendingSamples {
		p.streamer.Push(make([]byte, (st.FrameSize-st.PendingSamples)*2))
	}

	if p.streamer.Stats().QueueDepth == 0 {
		p.finish()
		return
	}
	p.ending = true
}

// finish soft-stops once every queued frame is on the output
func (p *Player) finish() {
	p.ending = false
	p.streamer.Stop(false)
}

// handleStreamClear cuts playback and opens a fresh session
func (p *Player) handleStreamClear(sc protocol.StreamClear) {
	p.logger.Info().Str("stream_id", sc.StreamID).Msg("Stream cleared")

	p.ending = false
	p.streamer.Stop(true)
	if err := p.streamer.InitializeSession(0); err != nil {
		p.logger.Error().Err(err).Msg("Failed to reinitialize playback session")
	}
}

// handleCommand applies a server command
func (p *Player) handleCommand(cmd protocol.ServerCommand) {
	p.logger.Info().Str("command", cmd.Command).Msg("Server command")

	switch cmd.Command {
	case protocol.CommandVolume:
		p.SetVolume(cmd.Volume)
	case protocol.CommandMute:
		p.SetMuted(cmd.Mute)
	case protocol.CommandStop:
		p.ending = false
		p.streamer.Stop(cmd.Hard)
	default:
		p.logger.Warn().Str("command", cmd.Command).Msg("Unknown server command")
	}
}

// handleState reports the latest scheduler state and completes a pending
// stream/end once the queue has run dry
func (p *Player) handleState(c *client.Client) {
	state := p.latestState()
	if c != nil && state != p.reported {
		p.reported = state
		p.reportState(c, state)
	}
	if state == playback.StateUnderrun && p.ending && p.streamer.Stats().QueueDepth == 0 {
		p.finish()
	}
}

// onStateChange runs outside the streamer lock, possibly on the audio thread
func (p *Player) onStateChange(state playback.State) {
	p.latest.Store(int32(state))
	select {
	case p.stateChanged <- struct{}{}:
	default:
	}
}

func (p *Player) latestState() playback.State {
	return playback.State(p.latest.Load())
}

// reportState sends player/update to the relay
func (p *Player) reportState(c *client.Client, state playback.State) {
	err := c.SendState(protocol.ClientState{
		State:  state.String(),
		Volume: p.out.Volume(),
		Muted:  p.out.Muted(),
	})
	if err != nil {
		p.logger.Debug().Err(err).Msg("Failed to send state")
	}
}

// statusLoop periodically pushes playback statistics to the TUI
func (p *Player) statusLoop(ctx context.Context) {
	if p.config.OnStatus == nil {
		return
	}

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := p.streamer.Stats()
			volume := p.out.Volume()
			muted := p.out.Muted()
			p.status(ui.StatusMsg{Stats: &stats, Volume: &volume, Muted: &muted})
		case <-ctx.Done():
			return
		}
	}
}

func (p *Player) status(msg ui.StatusMsg) {
	if p.config.OnStatus != nil {
		p.config.OnStatus(msg)
	}
}

// Stop stops playback; hard cuts buffered audio
func (p *Player) Stop(hard bool) {
	p.streamer.Stop(hard)
}

// Stats returns playback statistics
func (p *Player) Stats() playback.Stats {
	return p.streamer.Stats()
}

// Connected reports whether a relay connection is open
func (p *Player) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client != nil && p.client.IsConnected()
}

// Format returns the current stream format
func (p *Player) Format() audio.Format {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.format
}

// Volume returns the output volume
func (p *Player) Volume() int {
	return p.out.Volume()
}

// Muted returns the output mute state
func (p *Player) Muted() bool {
	return p.out.Muted()
}

// SetVolume sets the output volume and reports it to the relay
func (p *Player) SetVolume(volume int) {
	p.out.SetVolume(volume)
	p.sendVolume()
}

// SetMuted sets the output mute state and reports it to the relay
func (p *Player) SetMuted(muted bool) {
	p.out.SetMuted(muted)
	p.sendVolume()
}

func (p *Player) sendVolume() {
	p.mu.RLock()
	c := p.client
	p.mu.RUnlock()

	if c != nil {
		p.reported = p.streamer.State()
	p.reportState(c, p.reported)
	}
}
