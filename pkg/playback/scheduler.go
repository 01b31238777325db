// ABOUTME: Frame scheduler for the playback engine
// ABOUTME: Pre-schedules frames against the sink clock and handles underrun
package playback

import (
	"time"
)

// startLocked seeds the cursor and runs the first scheduling pass
func (s *Streamer) startLocked() {
	now := s.clock.Now()

	next := now + s.cfg.InitialBufferDelay.Seconds()
	if s.tail > next {
		// Frames of a replaced session are still playing
		next = s.tail
	}
	if next > s.nextPlaybackTime {
		s.nextPlaybackTime = next
	}

	s.isPlaying = true
	s.setStateLocked(StateScheduling)

	s.logger.Debug().
		Float64("now", now).
		Float64("first_frame_at", s.nextPlaybackTime).
		Msg("Scheduler started")

	s.scheduleLocked()
}

// scheduleLocked hands every frame inside the schedule-ahead window to the
// sink, then re-arms either the tick timer or the underrun poll.
func (s *Streamer) scheduleLocked() {
	if !s.state.active() {
		return
	}

	if !s.sink.Available() {
		s.fatalLocked(newError(KindSinkUnavailable, nil, "output sink is no longer available"))
		return
	}

	now := s.clock.Now()
	horizon := now + s.cfg.ScheduleAhead.Seconds()
	scheduled := 0

	for len(s.queue) > 0 && s.nextPlaybackTime < horizon {
		frame := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]

		p, err := s.sink.CreatePlayable(frame, s.sampleRate)
		if err != nil {
			s.fatalLocked(newError(KindFrameCreationFailed, err, "frame of %d samples", len(frame)))
			return
		}

		start := s.nextPlaybackTime
		if start < now {
			s.logger.Debug().Float64("late_by", now-start).Msg("Cursor behind clock, playing frame immediately")
			start = now
		}

		session := s.session
		onFinished := func(done Playable) {
			s.frameFinished(session, done)
		}
		if err := s.sink.Schedule(p, start, onFinished); err != nil {
			s.fatalLocked(newError(KindScheduleFailed, err, "frame at %.3fs", start))
			return
		}

		s.inFlight[p] = struct{}{}
		s.nextPlaybackTime = start + s.frameDuration
		s.tail = s.nextPlaybackTime
		s.stats.FramesScheduled++
		scheduled++
	}

	// New audio ends an underrun even when it empties the queue again
	if scheduled > 0 && s.state == StateUnderrun {
		s.setStateLocked(StateScheduling)
	}

	if len(s.queue) == 0 {
		if s.streamComplete {
			return
		}
		s.underrunLocked(now)
		return
	}

	s.setStateLocked(StateScheduling)

	delay := secondsToDuration(s.nextPlaybackTime-now) - s.cfg.TickLead
	if delay < s.cfg.MinTickDelay {
		delay = s.cfg.MinTickDelay
	}
	s.armTickLocked(delay)
}

// underrunLocked enters or stays in Underrun and re-arms the poll
func (s *Streamer) underrunLocked(now float64) {
	if s.state != StateUnderrun {
		s.stats.Underruns++
		s.underrunSince = now
		s.setStateLocked(StateUnderrun)
	}

	if s.cfg.UnderrunTimeout > 0 && now-s.underrunSince >= s.cfg.UnderrunTimeout.Seconds() {
		err := newError(KindUnderrunTimeout, nil, "no audio for %s", s.cfg.UnderrunTimeout)
		s.logger.Warn().Err(err).Msg("Stopping starved session")
		s.errorLocked(err)
		s.stopLocked(false)
		return
	}

	s.armPollLocked()
}

func (s *Streamer) armTickLocked(delay time.Duration) {
	if s.tickTimer != nil {
		s.tickTimer.Stop()
	}
	s.tickSeq++
	session, seq := s.session, s.tickSeq
	s.tickTimer = s.timers.AfterFunc(delay, func() {
		s.onTick(session, seq)
	})
}

func (s *Streamer) armPollLocked() {
	s.stopPollLocked()
	s.pollSeq++
	session, seq := s.session, s.pollSeq
	s.pollTimer = s.timers.AfterFunc(s.cfg.UnderrunPoll, func() {
		s.onPoll(session, seq)
	})
}

func (s *Streamer) stopPollLocked() {
	if s.pollTimer != nil {
		s.pollTimer.Stop()
		s.pollTimer = nil
	}
	s.pollSeq++
}

func (s *Streamer) cancelTimersLocked() {
	if s.tickTimer != nil {
		s.tickTimer.Stop()
		s.tickTimer = nil
	}
	s.tickSeq++
	s.stopPollLocked()
}

// onTick and onPoll drop callbacks from timers that were re-armed or
// cancelled after they fired.
func (s *Streamer) onTick(session, seq uint64) {
	s.mu.Lock()
	defer s.unlock()

	if session != s.session || seq != s.tickSeq || s.state != StateScheduling {
		return
	}
	s.tickTimer = nil
	s.scheduleLocked()
}

func (s *Streamer) onPoll(session, seq uint64) {
	s.mu.Lock()
	defer s.unlock()

	if session != s.session || seq != s.pollSeq || s.state != StateUnderrun {
		return
	}
	s.pollTimer = nil
	s.scheduleLocked()
}

// frameFinished is the sink's completion callback for one frame
func (s *Streamer) frameFinished(session uint64, p Playable) {
	s.mu.Lock()
	defer s.unlock()

	if session != s.session {
		s.retiredFinishedLocked(session, p)
		return
	}
	if _, ok := s.inFlight[p]; !ok {
		return
	}
	delete(s.inFlight, p)
	s.stats.FramesPlayed++

	if s.state == StateDraining && len(s.inFlight) == 0 && len(s.queue) == 0 {
		s.setStateLocked(StateStopped)
		s.logger.Info().Uint64("session", s.session).Msg("Playback drained")
		if cb := s.cfg.OnPlaybackComplete; cb != nil {
			s.emit(cb)
		}
	}
}

// retiredFinishedLocked completes the drain of a session that was replaced
// while its last frames were still playing.
func (s *Streamer) retiredFinishedLocked(session uint64, p Playable) {
	frames, ok := s.retired[session]
	if !ok {
		return
	}
	if _, ok := frames[p]; !ok {
		return
	}
	delete(frames, p)
	s.stats.FramesPlayed++

	if len(frames) == 0 {
		delete(s.retired, session)
		s.logger.Info().Uint64("session", session).Msg("Replaced session drained")
		if cb := s.cfg.OnPlaybackComplete; cb != nil {
			s.emit(cb)
		}
	}
}

// fatalLocked ends the session and reports err
func (s *Streamer) fatalLocked(err *Error) {
	s.stats.FatalErrors++
	s.logger.Error().Err(err).Uint64("session", s.session).Msg("Fatal playback error")

	s.stopLocked(true)
	s.errorLocked(err)
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
