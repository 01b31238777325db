// ABOUTME: Deterministic clock, timer and sink fakes for playback tests
// ABOUTME: A single virtual timeline drives timers and frame completion
package playback

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

type fakeTimer struct {
	at      float64
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakePlayable struct {
	id       int
	samples  []float32
	duration float64
}

func (p *fakePlayable) Duration() float64 {
	return p.duration
}

type scheduled struct {
	p          *fakePlayable
	start      float64
	clockAt    float64
	onFinished func(Playable)
	done       bool
}

type gainCall struct {
	value float64
	ramp  time.Duration
}

// env wires a Streamer to a fake clock, timers and sink sharing one timeline
type env struct {
	t   *testing.T
	now float64

	timers []*fakeTimer

	scheduled []*scheduled
	cancelled []Playable
	gains     []gainCall
	nextID    int

	available bool
	createErr error
	schedErr  error
	gainErr   error

	completions int
	errors      []error
	warnings    []error
	states      []State

	s *Streamer
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	e := &env{t: t, available: true}

	cfg.Timers = e
	cfg.OnPlaybackComplete = func() { e.completions++ }
	cfg.OnError = func(err error) { e.errors = append(e.errors, err) }
	cfg.OnWarning = func(err error) { e.warnings = append(e.warnings, err) }
	cfg.OnStateChange = func(st State) { e.states = append(e.states, st) }

	e.s = NewStreamer(e, e, cfg)
	return e
}

// Clock

func (e *env) Now() float64 {
	return e.now
}

// Timers

func (e *env) AfterFunc(d time.Duration, f func()) Stopper {
	t := &fakeTimer{at: e.now + d.Seconds(), f: f}
	e.timers = append(e.timers, t)
	return t
}

// Sink

func (e *env) CreatePlayable(samples []float32, sampleRate int) (Playable, error) {
	if e.createErr != nil {
		return nil, e.createErr
	}
	e.nextID++
	cp := make([]float32, len(samples))
	copy(cp, samples)
	return &fakePlayable{
		id:       e.nextID,
		samples:  cp,
		duration: float64(len(samples)) / float64(sampleRate),
	}, nil
}

func (e *env) Schedule(p Playable, startTime float64, onFinished func(Playable)) error {
	if e.schedErr != nil {
		return e.schedErr
	}
	e.scheduled = append(e.scheduled, &scheduled{
		p:          p.(*fakePlayable),
		start:      startTime,
		clockAt:    e.now,
		onFinished: onFinished,
	})
	return nil
}

func (e *env) Cancel(p Playable) {
	e.cancelled = append(e.cancelled, p)
	for _, sc := range e.scheduled {
		if sc.p == p {
			sc.done = true
		}
	}
}

func (e *env) SetGain(value float64, ramp time.Duration) error {
	if e.gainErr != nil && ramp > 0 {
		return e.gainErr
	}
	e.gains = append(e.gains, gainCall{value: value, ramp: ramp})
	return nil
}

func (e *env) Available() bool {
	return e.available
}

// advance moves the clock forward, firing timers and frame completions in
// timeline order.
func (e *env) advance(d time.Duration) {
	target := e.now + d.Seconds()
	for {
		next := math.Inf(1)
		var fire func()

		for _, t := range e.timers {
			if !t.stopped && t.at <= target && t.at < next {
				next = t.at
				tt := t
				fire = func() {
					tt.stopped = true
					tt.f()
				}
			}
		}
		for _, sc := range e.scheduled {
			end := sc.start + sc.p.duration
			if !sc.done && end <= target && end < next {
				next = end
				s := sc
				fire = func() {
					s.done = true
					s.onFinished(s.p)
				}
			}
		}

		if fire == nil {
			break
		}
		if next > e.now {
			e.now = next
		}
		fire()
		e.compactTimers()
	}
	e.now = target
}

func (e *env) compactTimers() {
	live := e.timers[:0]
	for _, t := range e.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	e.timers = live
}

// pending returns live timers
func (e *env) pending() int {
	n := 0
	for _, t := range e.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func pcm(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func ramp(n int, from int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = from + int16(i)
	}
	return out
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
