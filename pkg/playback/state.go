// ABOUTME: Scheduler state machine states
// ABOUTME: Idle, Scheduling, Underrun, Draining and Stopped
package playback

// State is the scheduler state
type State int

const (
	StateIdle State = iota
	StateScheduling
	StateUnderrun
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduling:
		return "scheduling"
	case StateUnderrun:
		return "underrun"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// active reports whether the scheduler loop owns the session
func (s State) active() bool {
	return s == StateScheduling || s == StateUnderrun
}
