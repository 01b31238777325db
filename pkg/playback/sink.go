// ABOUTME: Collaborator interfaces consumed by the Streamer
// ABOUTME: Output clock, output sink and timer abstractions
package playback

import "time"

// Clock is the output device's time base, in seconds
type Clock interface {
	Now() float64
}

// Playable is a buffer prepared by a Sink for scheduling
type Playable interface {
	// Duration returns the playback length in seconds
	Duration() float64
}

// Sink is the platform audio output
type Sink interface {
	// CreatePlayable prepares mono float samples for scheduling
	CreatePlayable(samples []float32, sampleRate int) (Playable, error)

	// Schedule starts p at startTime on the sink clock. onFinished is called
	// exactly once when p has played out. Cancelled buffers never finish.
	Schedule(p Playable, startTime float64, onFinished func(Playable)) error

	// Cancel stops a scheduled or playing buffer immediately
	Cancel(p Playable)

	// SetGain moves the output gain to value over a linear ramp
	SetGain(value float64, ramp time.Duration) error

	// Available is false once the device or context is unusable
	Available() bool
}

// Stopper cancels a pending timer
type Stopper interface {
	Stop() bool
}

// Timers arms one-shot callbacks
type Timers interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

// SystemTimers arms timers on the runtime clock
type SystemTimers struct{}

// AfterFunc wraps time.AfterFunc
func (SystemTimers) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}
