// ABOUTME: Timeline mixer that turns scheduled buffers into a PCM stream
// ABOUTME: Implements the playback sink and clock for pull-based audio backends
package output

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/resample"
	"github.com/Resonate-Protocol/resonate-voice/pkg/playback"
)

// ErrClosed is returned once the mixer has been closed
var ErrClosed = errors.New("audio output closed")

// buffer is a playable prepared at the mixer's output rate
type buffer struct {
	samples  []float32
	duration float64
}

// Duration returns the playback length in seconds
func (b *buffer) Duration() float64 {
	return b.duration
}

type voice struct {
	buf        *buffer
	start      int64
	onFinished func(playback.Playable)
}

type finished struct {
	buf *buffer
	fn  func(playback.Playable)
}

// Mixer sums scheduled buffers onto a sample timeline. Its clock is the
// number of frames the backend has pulled, so Now advances only while the
// device consumes audio.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	rendered   int64
	voices     []*voice
	scratch    []float32

	gain       float64
	gainTarget float64
	gainStep   float64
	gainFrames int64

	volume int
	muted  bool
	closed bool
}

// NewMixer creates a mixer rendering interleaved 16-bit output
func NewMixer(sampleRate, channels int) *Mixer {
	if channels < 1 {
		channels = 1
	}
	return &Mixer{
		sampleRate: sampleRate,
		channels:   channels,
		gain:       1,
		gainTarget: 1,
		volume:     100,
	}
}

// SampleRate returns the output rate
func (m *Mixer) SampleRate() int {
	return m.sampleRate
}

// Channels returns the output channel count
func (m *Mixer) Channels() int {
	return m.channels
}

// Now returns seconds of audio rendered so far
func (m *Mixer) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.rendered) / float64(m.sampleRate)
}

// CreatePlayable copies mono samples, resampling to the output rate
func (m *Mixer) CreatePlayable(samples []float32, sampleRate int) (playback.Playable, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty buffer")
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	return &buffer{
		samples:  resample.Buffer(samples, sampleRate, m.sampleRate),
		duration: float64(len(samples)) / float64(sampleRate),
	}, nil
}

// Schedule places p on the timeline at startTime. A start in the past
// plays immediately.
func (m *Mixer) Schedule(p playback.Playable, startTime float64, onFinished func(playback.Playable)) error {
	buf, ok := p.(*buffer)
	if !ok {
		return fmt.Errorf("playable %T was not created by this mixer", p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	start := int64(math.Round(startTime * float64(m.sampleRate)))
	if start < m.rendered {
		start = m.rendered
	}

	m.voices = append(m.voices, &voice{buf: buf, start: start, onFinished: onFinished})
	return nil
}

// Cancel removes p from the timeline without calling its finish callback
func (m *Mixer) Cancel(p playback.Playable) {
	buf, ok := p.(*buffer)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, v := range m.voices {
		if v.buf == buf {
			m.voices = append(m.voices[:i], m.voices[i+1:]...)
			return
		}
	}
}

// SetGain ramps the output gain linearly to value
func (m *Mixer) SetGain(value float64, ramp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	frames := int64(ramp.Seconds() * float64(m.sampleRate))
	if frames <= 0 {
		m.gain = value
		m.gainTarget = value
		m.gainFrames = 0
		return nil
	}

	m.gainTarget = value
	m.gainFrames = frames
	m.gainStep = (value - m.gain) / float64(frames)
	return nil
}

// Available reports whether the mixer still accepts buffers
func (m *Mixer) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Pending returns the number of buffers on the timeline
func (m *Mixer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Read renders little-endian 16-bit interleaved PCM into p. It always fills
// whole frames, writing silence where nothing is scheduled.
func (m *Mixer) Read(p []byte) (int, error) {
	frameBytes := 2 * m.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}

	out := make([]int16, frames*m.channels)
	if err := m.Render(out); err != nil {
		return 0, err
	}
	for i, s := range out {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(s))
	}
	return frames * frameBytes, nil
}

// Render mixes the next len(out)/channels frames into out
func (m *Mixer) Render(out []int16) error {
	frames := len(out) / m.channels

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		for i := range out {
			out[i] = 0
		}
		return io.EOF
	}

	if cap(m.scratch) < frames {
		m.scratch = make([]float32, frames)
	}
	mix := m.scratch[:frames]
	for i := range mix {
		mix[i] = 0
	}

	from := m.rendered
	to := from + int64(frames)
	var done []finished
	kept := m.voices[:0]

	for _, v := range m.voices {
		end := v.start + int64(len(v.buf.samples))
		lo := max(v.start, from)
		hi := min(end, to)
		for f := lo; f < hi; f++ {
			mix[f-from] += v.buf.samples[f-v.start]
		}
		if end <= to {
			done = append(done, finished{buf: v.buf, fn: v.onFinished})
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(m.voices); i++ {
		m.voices[i] = nil
	}
	m.voices = kept

	volume := getVolumeMultiplier(m.volume, m.muted)
	for f := 0; f < frames; f++ {
		if m.gainFrames > 0 {
			m.gain += m.gainStep
			m.gainFrames--
			if m.gainFrames == 0 {
				m.gain = m.gainTarget
			}
		}
		s := audio.Float32ToInt16(mix[f] * float32(m.gain*volume))
		for ch := 0; ch < m.channels; ch++ {
			out[f*m.channels+ch] = s
		}
	}

	m.rendered = to
	m.mu.Unlock()

	for _, d := range done {
		if d.fn != nil {
			d.fn(d.buf)
		}
	}
	return nil
}

// SetVolume sets the master volume (0-100)
func (m *Mixer) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	m.mu.Lock()
	m.volume = volume
	m.mu.Unlock()
}

// SetMuted sets mute state
func (m *Mixer) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

// Volume returns current volume
func (m *Mixer) Volume() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Muted returns mute state
func (m *Mixer) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// shutdown marks the mixer unavailable and drops scheduled buffers
func (m *Mixer) shutdown() {
	m.mu.Lock()
	m.closed = true
	m.voices = nil
	m.mu.Unlock()
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
