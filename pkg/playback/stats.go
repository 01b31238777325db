// ABOUTME: Streamer statistics snapshot
// ABOUTME: Counters and gauges consumed by the TUI and metrics
package playback

// Stats is a point-in-time snapshot of streamer activity
type Stats struct {
	State      State
	Session    uint64
	SampleRate int
	FrameSize  int

	ChunksReceived  int64
	InvalidChunks   int64
	Overflows       int64
	FramesQueued    int64
	FramesScheduled int64
	FramesPlayed    int64
	FramesCancelled int64
	Underruns       int64
	FatalErrors     int64

	QueueDepth       int
	PendingSamples   int
	InFlight         int
	NextPlaybackTime float64

	// BufferedSeconds is audio queued or scheduled ahead of the clock
	BufferedSeconds float64
}

// Stats returns current statistics
func (s *Streamer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.State = s.state
	st.Session = s.session
	st.SampleRate = s.sampleRate
	st.FrameSize = s.frameSize
	st.QueueDepth = len(s.queue)
	st.PendingSamples = s.reframer.pendingLen()
	st.InFlight = len(s.inFlight)
	st.NextPlaybackTime = s.nextPlaybackTime

	buffered := float64(len(s.queue)) * s.frameDuration
	if s.isPlaying {
		if ahead := s.nextPlaybackTime - s.clock.Now(); ahead > 0 {
			buffered += ahead
		}
	}
	st.BufferedSeconds = buffered

	return st
}
