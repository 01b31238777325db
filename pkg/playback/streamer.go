// ABOUTME: Streamer session lifecycle for the playback engine
// ABOUTME: Configuration, session setup, stop/drain and event delivery
package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate         = 24000
	DefaultFrameDuration      = 320 * time.Millisecond
	DefaultInitialBufferDelay = 50 * time.Millisecond
	DefaultScheduleAhead      = 200 * time.Millisecond
	DefaultTickLead           = 50 * time.Millisecond
	DefaultMinTickDelay       = 10 * time.Millisecond
	DefaultUnderrunPoll       = 50 * time.Millisecond
	DefaultUnderrunTimeout    = 30 * time.Second
	DefaultFadeDuration       = 50 * time.Millisecond
	DefaultOverflowFrames     = 10
)

// Config holds streamer configuration. Zero values take the defaults above.
type Config struct {
	// SampleRate is the initial PCM sample rate
	SampleRate int

	// FrameDuration is the length of one schedulable frame
	FrameDuration time.Duration

	// InitialBufferDelay is added before the first frame of a session plays
	InitialBufferDelay time.Duration

	// ScheduleAhead is how far ahead of the clock frames are handed to the sink
	ScheduleAhead time.Duration

	// TickLead is how long before the cursor the next scheduling tick fires
	TickLead time.Duration

	// MinTickDelay clamps the scheduling tick
	MinTickDelay time.Duration

	// UnderrunPoll is the polling interval while the queue is empty
	UnderrunPoll time.Duration

	// UnderrunTimeout soft-stops a session starved this long. Negative disables.
	UnderrunTimeout time.Duration

	// FadeDuration is the gain ramp applied before a hard stop
	FadeDuration time.Duration

	// OverflowFrames caps pending samples at OverflowFrames*frameSize
	OverflowFrames int

	// Timers arms scheduler callbacks (default: SystemTimers)
	Timers Timers

	// Logger is the base logger (default: zerolog global logger)
	Logger *zerolog.Logger

	// OnPlaybackComplete fires once the last in-flight frame finishes after Stop
	OnPlaybackComplete func()

	// OnError fires on fatal errors and underrun timeouts
	OnError func(error)

	// OnWarning fires on locally recovered errors (invalid chunk, overflow)
	OnWarning func(error)

	// OnStateChange fires on every scheduler state transition
	OnStateChange func(State)
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = DefaultFrameDuration
	}
	if c.InitialBufferDelay <= 0 {
		c.InitialBufferDelay = DefaultInitialBufferDelay
	}
	if c.ScheduleAhead <= 0 {
		c.ScheduleAhead = DefaultScheduleAhead
	}
	if c.TickLead <= 0 {
		c.TickLead = DefaultTickLead
	}
	if c.MinTickDelay <= 0 {
		c.MinTickDelay = DefaultMinTickDelay
	}
	if c.UnderrunPoll <= 0 {
		c.UnderrunPoll = DefaultUnderrunPoll
	}
	if c.UnderrunTimeout == 0 {
		c.UnderrunTimeout = DefaultUnderrunTimeout
	}
	if c.FadeDuration <= 0 {
		c.FadeDuration = DefaultFadeDuration
	}
	if c.OverflowFrames <= 0 {
		c.OverflowFrames = DefaultOverflowFrames
	}
	if c.Timers == nil {
		c.Timers = SystemTimers{}
	}
}

// fade is a hard stop waiting for its gain ramp to finish
type fade struct {
	handles []Playable
	timer   Stopper
}

// Streamer buffers pushed PCM and schedules it on a Sink.
// All methods are safe for concurrent use.
type Streamer struct {
	cfg    Config
	sink   Sink
	clock  Clock
	timers Timers
	logger zerolog.Logger

	mu     sync.Mutex
	events []func()

	initialized    bool
	session        uint64
	state          State
	sampleRate     int
	frameSize      int
	frameDuration  float64
	reframer       *reframer
	queue          [][]float32
	inFlight       map[Playable]struct{}
	retired        map[uint64]map[Playable]struct{}
	isPlaying      bool
	streamComplete bool

	nextPlaybackTime float64
	tail             float64
	underrunSince    float64
	tickTimer        Stopper
	pollTimer        Stopper
	tickSeq          uint64
	pollSeq          uint64
	fading           *fade

	stats Stats
}

// NewStreamer creates a streamer bound to an output sink and its clock
func NewStreamer(sink Sink, clock Clock, cfg Config) *Streamer {
	cfg.applyDefaults()

	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}

	s := &Streamer{
		cfg:      cfg,
		sink:     sink,
		clock:    clock,
		timers:   cfg.Timers,
		logger:   base.With().Str("component", "playback").Logger(),
		inFlight: make(map[Playable]struct{}),
		retired:  make(map[uint64]map[Playable]struct{}),
		state:    StateIdle,
	}
	s.reframer = newReframer(1, cfg.OverflowFrames)
	s.setSampleRateLocked(cfg.SampleRate)

	return s
}

// InitializeSession prepares a new playback session.
//
// It is idempotent: while a session is idle or playing the call is a no-op.
// A stopped or draining session is replaced by a fresh one. Frames of a
// replaced draining session keep playing and OnPlaybackComplete fires when
// the last of them finishes. sampleRate <= 0 keeps the current rate.
func (s *Streamer) InitializeSession(sampleRate int) error {
	s.mu.Lock()
	defer s.unlock()

	if !s.sink.Available() {
		err := newError(KindSinkUnavailable, nil, "cannot initialize session")
		s.logger.Error().Err(err).Msg("Session init failed")
		return err
	}

	if s.initialized && !s.streamComplete {
		if sampleRate > 0 && sampleRate != s.sampleRate {
			if s.isPlaying {
				s.logger.Warn().Int("current", s.sampleRate).Int("requested", sampleRate).
					Msg("Ignoring sample rate change during playback")
				return ErrSampleRateLocked
			}
			s.setSampleRateLocked(sampleRate)
		}
		return nil
	}

	if s.state == StateDraining && len(s.inFlight) > 0 {
		s.logger.Debug().Int("in_flight", len(s.inFlight)).Msg("New session replaces draining session")
		s.retired[s.session] = s.inFlight
	}
	s.flushFadeLocked()

	if sampleRate > 0 {
		s.setSampleRateLocked(sampleRate)
	}

	s.session++
	s.initialized = true
	s.streamComplete = false
	s.isPlaying = false
	s.queue = nil
	s.inFlight = make(map[Playable]struct{})
	s.reframer.clear()
	s.nextPlaybackTime = 0
	s.cancelTimersLocked()

	if err := s.sink.SetGain(1, 0); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to restore output gain")
	}

	s.setStateLocked(StateIdle)
	s.logger.Info().
		Uint64("session", s.session).
		Int("sample_rate", s.sampleRate).
		Int("frame_size", s.frameSize).
		Msg("Playback session initialized")

	return nil
}

// SetSampleRate changes the PCM sample rate. It is rejected while playing.
func (s *Streamer) SetSampleRate(rate int) error {
	if rate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", rate)
	}

	s.mu.Lock()
	defer s.unlock()

	if s.isPlaying || s.state == StateDraining {
		s.logger.Warn().Int("current", s.sampleRate).Int("requested", rate).
			Msg("Ignoring sample rate change during playback")
		return ErrSampleRateLocked
	}

	s.setSampleRateLocked(rate)
	return nil
}

// Stop ends the stream. Frames already handed to the sink drain naturally
// unless hard is set, in which case output fades out and is cut.
// Stop is idempotent and safe to call before InitializeSession.
func (s *Streamer) Stop(hard bool) {
	s.mu.Lock()
	defer s.unlock()

	s.stopLocked(hard)
}

func (s *Streamer) stopLocked(hard bool) {
	if !s.initialized {
		s.streamComplete = true
		return
	}

	wasComplete := s.streamComplete
	s.streamComplete = true
	s.isPlaying = false
	s.cancelTimersLocked()
	s.queue = nil
	s.reframer.clear()

	if hard {
		if s.state == StateStopped && len(s.inFlight) == 0 && len(s.retired) == 0 {
			return
		}
		s.hardStopLocked()
		s.setStateLocked(StateStopped)
		s.logger.Info().Uint64("session", s.session).Msg("Playback stopped (hard)")
		return
	}

	if wasComplete {
		return
	}

	if len(s.inFlight) == 0 {
		s.setStateLocked(StateStopped)
		s.logger.Info().Uint64("session", s.session).Msg("Playback stopped")
		return
	}

	s.setStateLocked(StateDraining)
	s.logger.Info().
		Uint64("session", s.session).
		Int("in_flight", len(s.inFlight)).
		Msg("Draining in-flight frames")
}

// hardStopLocked fades the output and cancels every in-flight frame once the
// ramp has run.
func (s *Streamer) hardStopLocked() {
	s.flushFadeLocked()

	if err := s.sink.SetGain(0, s.cfg.FadeDuration); err != nil {
		s.logger.Warn().Err(err).Msg("Gain ramp failed, muting immediately")
		if err := s.sink.SetGain(0, 0); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to mute output")
		}
	}

	handles := make([]Playable, 0, len(s.inFlight))
	for p := range s.inFlight {
		handles = append(handles, p)
	}
	// A hard stop also cuts the tail of a replaced session
	for session, frames := range s.retired {
		for p := range frames {
			handles = append(handles, p)
		}
		delete(s.retired, session)
	}
	s.inFlight = make(map[Playable]struct{})
	s.tail = 0

	if len(handles) == 0 {
		return
	}

	f := &fade{handles: handles}
	f.timer = s.timers.AfterFunc(s.cfg.FadeDuration, func() {
		s.mu.Lock()
		defer s.unlock()
		if s.fading == f {
			s.flushFadeLocked()
		}
	})
	s.fading = f
}

// flushFadeLocked cancels the handles of a pending hard stop right away
func (s *Streamer) flushFadeLocked() {
	f := s.fading
	if f == nil {
		return
	}
	s.fading = nil
	if f.timer != nil {
		f.timer.Stop()
	}
	for _, p := range f.handles {
		s.sink.Cancel(p)
	}
	s.stats.FramesCancelled += int64(len(f.handles))
}

func (s *Streamer) setSampleRateLocked(rate int) {
	frameSize := rate * int(s.cfg.FrameDuration/time.Millisecond) / 1000
	if frameSize < 1 {
		frameSize = 1
	}

	s.sampleRate = rate
	s.frameSize = frameSize
	s.frameDuration = float64(frameSize) / float64(rate)
	s.reframer.reset(frameSize, s.cfg.OverflowFrames)
}

func (s *Streamer) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.logger.Debug().Str("from", s.state.String()).Str("to", state.String()).Msg("State change")
	s.state = state

	if cb := s.cfg.OnStateChange; cb != nil {
		s.emit(func() { cb(state) })
	}
}

func (s *Streamer) warnLocked(err error) {
	if cb := s.cfg.OnWarning; cb != nil {
		s.emit(func() { cb(err) })
	}
}

func (s *Streamer) errorLocked(err error) {
	if cb := s.cfg.OnError; cb != nil {
		s.emit(func() { cb(err) })
	}
}

// emit queues a callback to run after the lock is released
func (s *Streamer) emit(f func()) {
	s.events = append(s.events, f)
}

// unlock releases the lock and runs queued callbacks
func (s *Streamer) unlock() {
	events := s.events
	s.events = nil
	s.mu.Unlock()

	for _, f := range events {
		f()
	}
}

// State returns the scheduler state
func (s *Streamer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SampleRate returns the PCM sample rate
func (s *Streamer) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate
}

// FrameSize returns the number of samples per frame
func (s *Streamer) FrameSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameSize
}

// IsPlaying reports whether the scheduler owns an active session
func (s *Streamer) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPlaying
}

// IsStreamComplete reports whether Stop has been called for this session
func (s *Streamer) IsStreamComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamComplete
}

// NextPlaybackTime returns the scheduling cursor on the output clock
func (s *Streamer) NextPlaybackTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextPlaybackTime
}
