// ABOUTME: Device-less output that renders in real time and discards audio
// ABOUTME: Used by headless runs and tests that need a live clock
package output

import (
	"sync"
	"time"
)

// nullPeriod is how often the null device pulls from the mixer
const nullPeriod = 10 * time.Millisecond

// Null renders the mixer on a ticker without a sound device
type Null struct {
	*Mixer
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewNull starts a null output
func NewNull(sampleRate, channels int) *Null {
	n := &Null{
		Mixer: NewMixer(sampleRate, channels),
		done:  make(chan struct{}),
	}

	n.wg.Add(1)
	go n.run()
	return n
}

func (n *Null) run() {
	defer n.wg.Done()

	ticker := time.NewTicker(nullPeriod)
	defer ticker.Stop()

	started := time.Now()
	var pulled int64
	for {
		select {
		case <-n.done:
			return
		case now := <-ticker.C:
			// Track wall time so ticker jitter does not drift the clock
			due := int64(now.Sub(started).Seconds() * float64(n.sampleRate))
			if frames := due - pulled; frames > 0 {
				buf := make([]int16, int(frames)*n.channels)
				if err := n.Mixer.Render(buf); err != nil {
					return
				}
				pulled = due
			}
		}
	}
}

// Close stops rendering
func (n *Null) Close() error {
	n.once.Do(func() {
		n.Mixer.shutdown()
		close(n.done)
	})
	n.wg.Wait()
	return nil
}
