// ABOUTME: Streaming PCM playback engine package
// ABOUTME: Reframes network PCM chunks and schedules them against an output clock
// Package playback turns a continuous stream of small PCM chunks into gapless,
// low-latency output.
//
// A Streamer owns two cooperating parts:
//   - the reframer, which converts 16-bit little-endian PCM into float samples
//     and cuts them into fixed-size frames (320ms of audio each)
//   - the scheduler, which hands frames to an output Sink ahead of time,
//     keeping a monotonically advancing playback cursor on the sink's Clock
//
// The Sink, Clock and Timers are injected, so the whole engine can be driven
// deterministically in tests.
//
// Example:
//
//	out, _ := output.NewOto(24000, 1)
//	s := playback.NewStreamer(out, out, playback.Config{
//	    OnPlaybackComplete: func() { log.Print("done") },
//	})
//	_ = s.InitializeSession(24000)
//	_ = s.Push(chunk)
//	s.Stop(false)
package playback
