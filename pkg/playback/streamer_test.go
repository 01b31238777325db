// ABOUTME: Tests for the playback Streamer on a virtual timeline
// ABOUTME: Sessions, scheduling, underrun, drain, hard stop and fatal errors
package playback

import (
	"errors"
	"testing"
	"time"
)

// testRate gives a frame size of 4 samples (13 * 320 / 1000)
const testRate = 13

const testFrame = 4.0 / testRate

func startedEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	e := newEnv(t, cfg)
	if err := e.s.InitializeSession(testRate); err != nil {
		t.Fatalf("InitializeSession() error = %v", err)
	}
	if e.s.FrameSize() != 4 {
		t.Fatalf("FrameSize() = %d, want 4", e.s.FrameSize())
	}
	return e
}

func TestFrameSizeFromSampleRate(t *testing.T) {
	tests := []struct {
		rate int
		want int
	}{
		{24000, 7680},
		{48000, 15360},
		{16000, 5120},
		{44100, 14112},
		{13, 4},
		{1, 1},
	}

	for _, tt := range tests {
		e := newEnv(t, Config{})
		if err := e.s.SetSampleRate(tt.rate); err != nil {
			t.Fatalf("SetSampleRate(%d) error = %v", tt.rate, err)
		}
		if got := e.s.FrameSize(); got != tt.want {
			t.Errorf("rate %d: FrameSize() = %d, want %d", tt.rate, got, tt.want)
		}
	}
}

func TestPushQueuesFramesAndKeepsRemainder(t *testing.T) {
	e := startedEnv(t, Config{})

	if err := e.s.Push(pcm(0, 100, 200, 300, 400, 500, 600, 700, 800, 900)); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	st := e.s.Stats()
	if st.FramesQueued != 2 {
		t.Errorf("FramesQueued = %d, want 2", st.FramesQueued)
	}
	if st.PendingSamples != 2 {
		t.Errorf("PendingSamples = %d, want 2", st.PendingSamples)
	}
	if len(e.scheduled) != 1 || st.QueueDepth != 1 {
		t.Fatalf("scheduled %d, queued %d; want 1 and 1", len(e.scheduled), st.QueueDepth)
	}

	want := []float32{0, 100.0 / 32768, 200.0 / 32768, 300.0 / 32768}
	for i, v := range want {
		if e.scheduled[0].p.samples[i] != v {
			t.Errorf("sample %d = %v, want %v", i, e.scheduled[0].p.samples[i], v)
		}
	}
}

func TestPushJoinsChunksIntoOneFrame(t *testing.T) {
	e := startedEnv(t, Config{})

	e.s.Push(pcm(1, 2))
	if len(e.scheduled) != 0 {
		t.Fatal("half a frame should not schedule")
	}
	e.s.Push(pcm(3, 4))

	if len(e.scheduled) != 1 {
		t.Fatalf("scheduled %d frames, want 1", len(e.scheduled))
	}
	for i, s := range []int16{1, 2, 3, 4} {
		if got := e.scheduled[0].p.samples[i]; got != float32(s)/32768.0 {
			t.Errorf("sample %d = %v, want %v", i, got, float32(s)/32768.0)
		}
	}
	if st := e.s.Stats(); st.PendingSamples != 0 {
		t.Errorf("PendingSamples = %d, want 0", st.PendingSamples)
	}
}

func TestPushBeforeInitializeIsIgnored(t *testing.T) {
	e := newEnv(t, Config{SampleRate: testRate})

	if err := e.s.Push(pcm(1, 2, 3, 4, 5, 6, 7, 8)); err != nil {
		t.Fatalf("Push() error = %v, want nil", err)
	}

	st := e.s.Stats()
	if st.ChunksReceived != 0 || st.FramesQueued != 0 || st.PendingSamples != 0 {
		t.Errorf("stats mutated before init: %+v", st)
	}
	if len(e.scheduled) != 0 || e.s.State() != StateIdle || e.s.IsPlaying() {
		t.Error("push before init started playback")
	}
}

func TestFirstFrameStartsAfterInitialDelay(t *testing.T) {
	e := startedEnv(t, Config{})
	e.now = 10

	e.s.Push(pcm(ramp(4, 0)...))

	if len(e.scheduled) != 1 {
		t.Fatalf("scheduled %d frames, want 1", len(e.scheduled))
	}
	if !near(e.scheduled[0].start, 10.05) {
		t.Errorf("first frame at %v, want 10.05", e.scheduled[0].start)
	}
	if !near(e.s.NextPlaybackTime(), 10.05+testFrame) {
		t.Errorf("NextPlaybackTime() = %v, want %v", e.s.NextPlaybackTime(), 10.05+testFrame)
	}
	if !e.s.IsPlaying() {
		t.Error("IsPlaying() = false after first frame")
	}
}

func TestFramesScheduleGaplessAndNeverInPast(t *testing.T) {
	e := startedEnv(t, Config{})

	for i := 0; i < 5; i++ {
		if err := e.s.Push(pcm(ramp(8, int16(i*8))...)); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}
	e.advance(5 * time.Second)

	if len(e.scheduled) != 10 {
		t.Fatalf("scheduled %d frames, want 10", len(e.scheduled))
	}
	for i, sc := range e.scheduled {
		if sc.start < sc.clockAt {
			t.Errorf("frame %d scheduled in the past: start %v, clock %v", i, sc.start, sc.clockAt)
		}
		if sc.start >= sc.clockAt+0.2+testFrame {
			t.Errorf("frame %d scheduled beyond the window: start %v, clock %v", i, sc.start, sc.clockAt)
		}
		if i > 0 && !near(sc.start, e.scheduled[i-1].start+testFrame) {
			t.Errorf("frame %d at %v, want %v", i, sc.start, e.scheduled[i-1].start+testFrame)
		}
		if sc.p.samples[0] != float32(i*4)/32768.0 {
			t.Errorf("frame %d out of order", i)
		}
	}

	if st := e.s.Stats(); st.FramesPlayed != 10 || st.InFlight != 0 {
		t.Errorf("FramesPlayed = %d, InFlight = %d; want 10 and 0", st.FramesPlayed, st.InFlight)
	}
}

func TestLateCursorPlaysImmediately(t *testing.T) {
	e := startedEnv(t, Config{})

	e.s.Push(pcm(ramp(4, 0)...))
	e.advance(2 * time.Second)

	e.s.Push(pcm(ramp(4, 0)...))
	if len(e.scheduled) != 2 {
		t.Fatalf("scheduled %d frames, want 2", len(e.scheduled))
	}
	if !near(e.scheduled[1].start, 2) {
		t.Errorf("late frame at %v, want clock time 2", e.scheduled[1].start)
	}
	if !near(e.s.NextPlaybackTime(), 2+testFrame) {
		t.Errorf("NextPlaybackTime() = %v, want %v", e.s.NextPlaybackTime(), 2+testFrame)
	}
}

func TestUnderrunResumesOnPush(t *testing.T) {
	e := startedEnv(t, Config{})

	e.s.Push(pcm(ramp(4, 0)...))
	e.advance(500 * time.Millisecond)
	if e.s.State() != StateUnderrun {
		t.Fatalf("State() = %v, want underrun", e.s.State())
	}

	e.advance(120 * time.Millisecond)
	e.s.Push(pcm(ramp(8, 0)...))

	if len(e.scheduled) != 2 {
		t.Fatalf("scheduled %d frames, want 2 without waiting for a poll", len(e.scheduled))
	}
	if !near(e.scheduled[1].start, 0.62) {
		t.Errorf("resumed frame at %v, want 0.62", e.scheduled[1].start)
	}
	if e.s.State() != StateScheduling {
		t.Errorf("State() = %v, want scheduling", e.s.State())
	}
	if st := e.s.Stats(); st.Underruns != 1 {
		t.Errorf("Underruns = %d, want 1", st.Underruns)
	}
}

func TestUnderrunPollRearms(t *testing.T) {
	e := startedEnv(t, Config{})

	e.s.Push(pcm(ramp(4, 0)...))
	e.advance(time.Second)

	if e.s.State() != StateUnderrun {
		t.Fatalf("State() = %v, want underrun", e.s.State())
	}
	if e.pending() != 1 {
		t.Errorf("pending timers = %d, want the underrun poll only", e.pending())
	}
	if !e.s.IsPlaying() {
		t.Error("IsPlaying() = false during underrun")
	}
}

func TestStopDrainsBeforeComplete(t *testing.T) {
	e := startedEnv(t, Config{})

	e.s.Push(pcm(ramp(4, 0)...))
	e.s.Stop(false)

	if e.s.State() != StateDraining {
		t.Fatalf("State() = %v, want draining", e.s.State())
	}
	if e.completions != 0 {
		t.Fatal("playback complete fired before the frame finished")
	}

	e.advance(300 * time.Millisecond)
	if e.completions != 0 {
		t.Fatal("playback complete fired while the frame was still playing")
	}

	e.advance(100 * time.Millisecond)
	if e.completions != 1 {
		t.Fatalf("completions = %d, want 1", e.completions)
	}
	if e.s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", e.s.State())
	}
	if e.pending() != 0 {
		t.Errorf("pending timers = %d after drain, want 0", e.pending())
	}
}

func TestStopDiscardsQueuedFrames(t *testing.T) {
	e := startedEnv(t, Config{})

	e.s.Push(pcm(ramp(14, 0)...))
	e.s.Stop(false)

	st := e.s.Stats()
	if st.QueueDepth != 0 || st.PendingSamples != 0 {
		t.Errorf("QueueDepth = %d, PendingSamples = %d after stop; want 0", st.QueueDepth, st.PendingSamples)
	}

	e.advance(2 * time.Second)
	if len(e.scheduled) != 1 {
		t.Errorf("scheduled %d frames, want only the in-flight one", len(e.scheduled))
	}
	if e.completions != 1 {
		t.Errorf("completions = %d, want 1", e.completions)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	e := startedEnv(t, Config{})

	e.s.Push(pcm(ramp(4, 0)...))
	e.s.Stop(false)
	e.s.Stop(false)
	e.advance(time.Second)
	e.s.Stop(false)

	if e.completions != 1 {
		t.Errorf("completions = %d, want 1", e.completions)
	}
	if e.s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", e.s.State())
	}
}

func TestStopWithNothingInFlight(t *testing.T) {
	e := startedEnv(t, Config{})

	e.s.Stop(false)

	if e.s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", e.s.State())
	}
	if !e.s.IsStreamComplete() {
		t.Error("IsStreamComplete() = false after stop")
	}
}

func TestStopBeforeInitialize(t *testing.T) {
	e := newEnv(t, Config{})
	e.s.Stop(false)
	e.s.Stop(true)

	if len(e.gains) != 0 {
		t.Errorf("gain changed before init: %v", e.gains)
	}
	if err := e.s.InitializeSession(testRate); err != nil {
		t.Fatalf("InitializeSession() error = %v", err)
	}
	if err := e.s.Push(pcm(ramp(4, 0)...)); err != nil {
		t.Errorf("Push() after init error = %v", err)
	}
}

func TestPushAfterStop(t *testing.T) {
	e := startedEnv(t, Config{})
	e.s.Stop(false)

	if err := e.s.Push(pcm(1, 2)); !errors.Is(err, ErrStreamComplete) {
		t.Errorf("Push() error = %v, want ErrStreamComplete", err)
	}
}

func TestHardStopFadesThenCancels(t *testing.T) {
	e := startedEnv(t, Config{})

	e.s.Push(pcm(ramp(4, 0)...))
	e.advance(100 * time.Millisecond)
	e.s.Stop(true)

	if e.s.State() != StateStopped {
		t.Fatalf("State() = %v, want stopped", e.s.State())
	}
	last := e.gains[len(e.gains)-1]
	if last.value != 0 || last.ramp != DefaultFadeDuration {
		t.Errorf("last gain = %+v, want fade to 0 over %v", last, DefaultFadeDuration)
	}
	if len(e.cancelled) != 0 {
		t.Fatal("frames cancelled before the fade finished")
	}

	e.advance(50 * time.Millisecond)
	if len(e.cancelled) != 1 || e.cancelled[0] != e.scheduled[0].p {
		t.Fatalf("cancelled = %v, want the in-flight frame", e.cancelled)
	}

	e.advance(time.Second)
	if e.completions != 0 {
		t.Error("hard stop fired playback complete")
	}
	if st := e.s.Stats(); st.FramesCancelled != 1 || st.FramesPlayed != 0 {
		t.Errorf("FramesCancelled = %d, FramesPlayed = %d; want 1 and 0", st.FramesCancelled, st.FramesPlayed)
	}
}

func TestHardStopMutesWhenRampFails(t *testing.T) {
	e := startedEnv(t, Config{})
	e.s.Push(pcm(ramp(4, 0)...))

	e.gainErr = errors.New("no ramp")
	e.s.Stop(true)

	last := e.gains[len(e.gains)-1]
	if last.value != 0 || last.ramp != 0 {
		t.Errorf("last gain = %+v, want immediate mute", last)
	}
}

func TestHardStopDuringDrain(t *testing.T) {
	e := startedEnv(t, Config{})
	e.s.Push(pcm(ramp(4, 0)...))

	e.s.Stop(false)
	e.s.Stop(true)
	e.advance(time.Second)

	if e.completions != 0 {
		t.Error("playback complete fired after hard stop")
	}
	if len(e.cancelled) != 1 {
		t.Errorf("cancelled %d frames, want 1", len(e.cancelled))
	}

	gains := len(e.gains)
	e.s.Stop(true)
	if len(e.gains) != gains {
		t.Error("repeated hard stop touched the gain again")
	}
}

func TestNewSessionRestoresGainAndFlushesFade(t *testing.T) {
	e := startedEnv(t, Config{})
	e.s.Push(pcm(ramp(4, 0)...))
	e.s.Stop(true)

	if err := e.s.InitializeSession(testRate); err != nil {
		t.Fatalf("InitializeSession() error = %v", err)
	}

	if len(e.cancelled) != 1 {
		t.Errorf("cancelled %d frames, want the faded one immediately", len(e.cancelled))
	}
	last := e.gains[len(e.gains)-1]
	if last.value != 1 || last.ramp != 0 {
		t.Errorf("last gain = %+v, want immediate 1", last)
	}
	if e.s.State() != StateIdle || e.s.IsStreamComplete() {
		t.Errorf("State() = %v, complete = %v; want idle and false", e.s.State(), e.s.IsStreamComplete())
	}
	if st := e.s.Stats(); st.Session != 2 {
		t.Errorf("Session = %d, want 2", st.Session)
	}
}

func TestNewSessionQueuesAfterDrainingTail(t *testing.T) {
	e := startedEnv(t, Config{})
	e.s.Push(pcm(ramp(4, 0)...))
	e.s.Stop(false)

	if err := e.s.InitializeSession(0); err != nil {
		t.Fatalf("InitializeSession() error = %v", err)
	}
	e.s.Push(pcm(ramp(4, 0)...))
	e.advance(320 * time.Millisecond)

	if len(e.scheduled) != 2 {
		t.Fatalf("scheduled %d frames, want 2", len(e.scheduled))
	}
	if !near(e.scheduled[1].start, 0.05+testFrame) {
		t.Errorf("new session frame at %v, want after the old tail %v", e.scheduled[1].start, 0.05+testFrame)
	}

	e.advance(2 * time.Second)
	if e.completions != 1 {
		t.Errorf("completions = %d, want 1 for the replaced session's tail", e.completions)
	}
}

func TestReplacedSessionStillCompletes(t *testing.T) {
	e := startedEnv(t, Config{})
	e.s.Push(pcm(ramp(4, 0)...))
	e.s.Stop(false)

	if err := e.s.InitializeSession(testRate); err != nil {
		t.Fatalf("InitializeSession() error = %v", err)
	}
	if e.completions != 0 {
		t.Fatal("playback complete fired before the tail finished")
	}

	e.advance(2 * time.Second)

	if e.completions != 1 {
		t.Errorf("completions = %d, want 1", e.completions)
	}
	if st := e.s.Stats(); st.FramesPlayed != 1 || st.Session != 2 {
		t.Errorf("FramesPlayed = %d, Session = %d; want 1 and 2", st.FramesPlayed, st.Session)
	}
	if e.s.State() != StateIdle {
		t.Errorf("State() = %v, want the new session idle", e.s.State())
	}
}

func TestHardStopCutsReplacedSessionTail(t *testing.T) {
	e := startedEnv(t, Config{})
	e.s.Push(pcm(ramp(4, 0)...))
	old := e.scheduled[0]
	e.s.Stop(false)
	e.s.InitializeSession(testRate)

	e.s.Stop(true)
	e.advance(2 * time.Second)

	if len(e.cancelled) != 1 || e.cancelled[0] != old.p {
		t.Fatalf("cancelled = %v, want the replaced session's frame", e.cancelled)
	}
	if e.completions != 0 {
		t.Errorf("completions = %d, want 0 after a hard stop", e.completions)
	}
}

func TestInitializeSessionIsIdempotent(t *testing.T) {
	e := startedEnv(t, Config{})
	e.s.Push(pcm(ramp(6, 0)...))

	if err := e.s.InitializeSession(testRate); err != nil {
		t.Fatalf("InitializeSession() error = %v", err)
	}

	st := e.s.Stats()
	if st.Session != 1 || st.PendingSamples != 2 || !e.s.IsPlaying() {
		t.Errorf("second init reset the session: %+v", st)
	}
}

func TestSampleRateLockedWhilePlaying(t *testing.T) {
	e := startedEnv(t, Config{})

	if err := e.s.SetSampleRate(0); err == nil {
		t.Error("SetSampleRate(0) should fail")
	}
	if err := e.s.SetSampleRate(26); err != nil {
		t.Fatalf("SetSampleRate() before playback error = %v", err)
	}
	if e.s.FrameSize() != 8 {
		t.Errorf("FrameSize() = %d, want 8", e.s.FrameSize())
	}
	e.s.SetSampleRate(testRate)

	e.s.Push(pcm(ramp(4, 0)...))

	if err := e.s.SetSampleRate(24000); !errors.Is(err, ErrSampleRateLocked) {
		t.Errorf("SetSampleRate() while playing error = %v, want ErrSampleRateLocked", err)
	}
	if err := e.s.InitializeSession(24000); !errors.Is(err, ErrSampleRateLocked) {
		t.Errorf("InitializeSession() with new rate error = %v, want ErrSampleRateLocked", err)
	}
	if e.s.SampleRate() != testRate {
		t.Errorf("SampleRate() = %d, want %d", e.s.SampleRate(), testRate)
	}

	e.s.Stop(false)
	if err := e.s.SetSampleRate(24000); !errors.Is(err, ErrSampleRateLocked) {
		t.Errorf("SetSampleRate() while draining error = %v, want ErrSampleRateLocked", err)
	}

	e.advance(time.Second)
	if err := e.s.SetSampleRate(24000); err != nil {
		t.Errorf("SetSampleRate() after stop error = %v", err)
	}
}

func TestInvalidChunk(t *testing.T) {
	e := startedEnv(t, Config{})

	err := e.s.Push([]byte{1, 2, 3})
	if !IsKind(err, KindInvalidChunk) {
		t.Fatalf("Push() error = %v, want invalid chunk", err)
	}
	if len(e.warnings) != 1 || !IsKind(e.warnings[0], KindInvalidChunk) {
		t.Errorf("warnings = %v, want one invalid chunk", e.warnings)
	}
	st := e.s.Stats()
	if st.InvalidChunks != 1 || st.PendingSamples != 0 {
		t.Errorf("InvalidChunks = %d, PendingSamples = %d; want 1 and 0", st.InvalidChunks, st.PendingSamples)
	}
	if st.ChunksReceived != 0 || st.FramesQueued != 0 || st.QueueDepth != 0 {
		t.Errorf("invalid chunk mutated session: %+v", st)
	}

	if err := e.s.Push(pcm(ramp(4, 0)...)); err != nil {
		t.Errorf("Push() after invalid chunk error = %v", err)
	}
}

func TestOverflowDropsPendingAndContinues(t *testing.T) {
	e := startedEnv(t, Config{})

	e.s.Push(pcm(1, 2, 3))
	if err := e.s.Push(pcm(ramp(38, 0)...)); err != nil {
		t.Fatalf("Push() error = %v, want nil on overflow", err)
	}

	if len(e.warnings) != 1 || !IsKind(e.warnings[0], KindBufferOverflow) {
		t.Errorf("warnings = %v, want one overflow", e.warnings)
	}
	st := e.s.Stats()
	if st.Overflows != 1 || st.PendingSamples != 0 || st.FramesQueued != 0 {
		t.Errorf("stats after overflow: %+v", st)
	}
	if len(e.errors) != 0 {
		t.Errorf("overflow reported as fatal: %v", e.errors)
	}

	e.s.Push(pcm(ramp(4, 0)...))
	if len(e.scheduled) != 1 {
		t.Errorf("scheduled %d frames after overflow, want 1", len(e.scheduled))
	}
}

func TestFatalSinkErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *env)
		kind  ErrorKind
	}{
		{"create fails", func(e *env) { e.createErr = errors.New("no memory") }, KindFrameCreationFailed},
		{"schedule fails", func(e *env) { e.schedErr = errors.New("context closed") }, KindScheduleFailed},
		{"sink gone", func(e *env) { e.available = false }, KindSinkUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := startedEnv(t, Config{})
			tt.setup(e)

			if err := e.s.Push(pcm(ramp(4, 0)...)); err != nil {
				t.Fatalf("Push() error = %v, want fatal error via callback", err)
			}

			if len(e.errors) != 1 || !IsKind(e.errors[0], tt.kind) {
				t.Fatalf("errors = %v, want one %v", e.errors, tt.kind)
			}
			var pe *Error
			if !errors.As(e.errors[0], &pe) || !pe.Kind.Fatal() {
				t.Errorf("error %v is not fatal", e.errors[0])
			}
			if e.s.State() != StateStopped || !e.s.IsStreamComplete() || e.s.IsPlaying() {
				t.Errorf("State() = %v after fatal error, want stopped", e.s.State())
			}
			if err := e.s.Push(pcm(ramp(4, 0)...)); !errors.Is(err, ErrStreamComplete) {
				t.Errorf("Push() after fatal error = %v, want ErrStreamComplete", err)
			}
			if st := e.s.Stats(); st.FatalErrors != 1 {
				t.Errorf("FatalErrors = %d, want 1", st.FatalErrors)
			}
		})
	}
}

func TestSinkLostMidStream(t *testing.T) {
	e := startedEnv(t, Config{})
	e.s.Push(pcm(ramp(8, 0)...))

	e.available = false
	e.advance(time.Second)

	if len(e.errors) != 1 || !IsKind(e.errors[0], KindSinkUnavailable) {
		t.Fatalf("errors = %v, want sink unavailable", e.errors)
	}
	if e.s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", e.s.State())
	}
}

func TestInitializeWithUnavailableSink(t *testing.T) {
	e := newEnv(t, Config{})
	e.available = false

	if err := e.s.InitializeSession(testRate); !IsKind(err, KindSinkUnavailable) {
		t.Errorf("InitializeSession() error = %v, want sink unavailable", err)
	}
}

func TestUnderrunTimeoutStopsSession(t *testing.T) {
	e := startedEnv(t, Config{UnderrunTimeout: 200 * time.Millisecond})

	e.s.Push(pcm(ramp(4, 0)...))
	e.advance(300 * time.Millisecond)

	if len(e.errors) != 1 || !IsKind(e.errors[0], KindUnderrunTimeout) {
		t.Fatalf("errors = %v, want underrun timeout", e.errors)
	}
	if e.s.State() != StateDraining {
		t.Fatalf("State() = %v, want draining", e.s.State())
	}

	e.advance(time.Second)
	if e.completions != 1 || e.s.State() != StateStopped {
		t.Errorf("completions = %d, state = %v; want 1 and stopped", e.completions, e.s.State())
	}
}

func TestRealtimeStreamOutlivesUnderrunTimeout(t *testing.T) {
	e := startedEnv(t, Config{})
	frame := testFrame
	period := time.Duration(frame * float64(time.Second))

	// One frame per frame duration for longer than the 30s timeout
	const frames = 120
	for i := 0; i < frames; i++ {
		if err := e.s.Push(pcm(ramp(4, int16(i))...)); err != nil {
			t.Fatalf("push %d at t=%.2f: %v", i, e.now, err)
		}
		e.advance(period)
	}

	if len(e.errors) != 0 {
		t.Fatalf("errors = %v, want none", e.errors)
	}
	if !e.s.State().active() || e.s.IsStreamComplete() {
		t.Fatalf("State() = %v, complete = %v; want a live session", e.s.State(), e.s.IsStreamComplete())
	}
	if len(e.scheduled) != frames {
		t.Fatalf("scheduled %d frames, want %d", len(e.scheduled), frames)
	}
	for i := 1; i < frames; i++ {
		if !near(e.scheduled[i].start, e.scheduled[i-1].start+testFrame) {
			t.Fatalf("frame %d at %v, want gapless after %v", i, e.scheduled[i].start, e.scheduled[i-1].start)
		}
	}
}

func TestUnderrunEndsWhenFrameScheduled(t *testing.T) {
	// A wide window schedules the second frame as soon as it is pushed
	e := startedEnv(t, Config{ScheduleAhead: time.Second})

	e.s.Push(pcm(ramp(4, 0)...))
	e.s.Push(pcm(ramp(4, 0)...))

	want := []State{StateScheduling, StateUnderrun, StateScheduling, StateUnderrun}
	if len(e.states) != len(want) {
		t.Fatalf("states = %v, want %v", e.states, want)
	}
	for i := range want {
		if e.states[i] != want[i] {
			t.Errorf("state %d = %v, want %v", i, e.states[i], want[i])
		}
	}
	if st := e.s.Stats(); st.Underruns != 2 {
		t.Errorf("Underruns = %d, want 2", st.Underruns)
	}
}

func TestUnderrunTimeoutDisabled(t *testing.T) {
	e := startedEnv(t, Config{UnderrunTimeout: -1})

	e.s.Push(pcm(ramp(4, 0)...))
	e.advance(time.Minute)

	if len(e.errors) != 0 || e.s.State() != StateUnderrun {
		t.Errorf("errors = %v, state = %v; want none and underrun", e.errors, e.s.State())
	}
}

func TestStaleCompletionIgnored(t *testing.T) {
	e := startedEnv(t, Config{})
	e.s.Push(pcm(ramp(4, 0)...))
	old := e.scheduled[0]

	e.s.Stop(true)
	e.s.InitializeSession(testRate)
	e.s.Push(pcm(ramp(4, 0)...))
	e.s.Stop(false)

	old.onFinished(old.p)

	if e.completions != 0 {
		t.Error("stale frame completed the new session")
	}
	if st := e.s.Stats(); st.FramesPlayed != 0 || st.InFlight != 1 {
		t.Errorf("FramesPlayed = %d, InFlight = %d; want 0 and 1", st.FramesPlayed, st.InFlight)
	}
}

func TestStateChangeSequence(t *testing.T) {
	e := startedEnv(t, Config{})

	e.s.Push(pcm(ramp(4, 0)...))
	e.s.Stop(false)
	e.advance(time.Second)

	want := []State{StateScheduling, StateUnderrun, StateDraining, StateStopped}
	if len(e.states) != len(want) {
		t.Fatalf("states = %v, want %v", e.states, want)
	}
	for i := range want {
		if e.states[i] != want[i] {
			t.Errorf("state %d = %v, want %v", i, e.states[i], want[i])
		}
	}
}

func TestCallbacksRunOutsideLock(t *testing.T) {
	e := newEnv(t, Config{})
	e.s.cfg.OnStateChange = func(State) {
		// Re-entering the streamer would deadlock if callbacks ran under the lock
		_ = e.s.Stats()
	}

	e.s.InitializeSession(testRate)
	e.s.Push(pcm(ramp(4, 0)...))
	e.s.Stop(false)
	e.advance(time.Second)
}

func TestStatsBufferedSeconds(t *testing.T) {
	e := startedEnv(t, Config{})
	e.s.Push(pcm(ramp(12, 0)...))

	st := e.s.Stats()
	want := 2*testFrame + 0.05 + testFrame
	if !near(st.BufferedSeconds, want) {
		t.Errorf("BufferedSeconds = %v, want %v", st.BufferedSeconds, want)
	}
	if st.InFlight != 1 || st.QueueDepth != 2 {
		t.Errorf("InFlight = %d, QueueDepth = %d; want 1 and 2", st.InFlight, st.QueueDepth)
	}
}

func TestErrorKindStrings(t *testing.T) {
	tests := []struct {
		kind  ErrorKind
		name  string
		fatal bool
	}{
		{KindInvalidChunk, "invalid_chunk", false},
		{KindBufferOverflow, "buffer_overflow", false},
		{KindSinkUnavailable, "sink_unavailable", true},
		{KindFrameCreationFailed, "frame_creation_failed", true},
		{KindScheduleFailed, "schedule_failed", true},
		{KindUnderrunTimeout, "underrun_timeout", false},
	}

	for _, tt := range tests {
		if tt.kind.String() != tt.name || tt.kind.Fatal() != tt.fatal {
			t.Errorf("%d: got %q/%v, want %q/%v", tt.kind, tt.kind.String(), tt.kind.Fatal(), tt.name, tt.fatal)
		}
	}

	cause := errors.New("boom")
	err := newError(KindScheduleFailed, cause, "frame at %.1fs", 1.5)
	if !errors.Is(err, cause) {
		t.Error("Error does not unwrap to its cause")
	}
	if err.Error() != "playback schedule_failed: frame at 1.5s: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}
