// ABOUTME: PCM ingest and reframing for the playback engine
// ABOUTME: Converts 16-bit PCM chunks into fixed-size float frames
package playback

import (
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// reframer accumulates samples and cuts them into frames of frameSize.
// Not safe for concurrent use; the Streamer's lock guards it.
type reframer struct {
	frameSize  int
	maxPending int
	pending    []float32
}

func newReframer(frameSize, overflowFrames int) *reframer {
	r := &reframer{}
	r.reset(frameSize, overflowFrames)
	return r
}

// reset drops pending samples and applies a new frame size
func (r *reframer) reset(frameSize, overflowFrames int) {
	r.frameSize = frameSize
	r.maxPending = frameSize * overflowFrames
	r.pending = make([]float32, 0, frameSize*2)
}

// write decodes data (whole 16-bit samples) and returns every complete frame.
// overflow is true when the accumulator passed its cap and was emptied.
func (r *reframer) write(data []byte) (frames [][]float32, overflow bool) {
	r.pending = audio.AppendPCM16(r.pending, data)

	if len(r.pending) > r.maxPending {
		r.pending = r.pending[:0]
		return nil, true
	}

	off := 0
	for len(r.pending)-off >= r.frameSize {
		frame := make([]float32, r.frameSize)
		copy(frame, r.pending[off:off+r.frameSize])
		frames = append(frames, frame)
		off += r.frameSize
	}

	if off > 0 {
		r.pending = append(r.pending[:0], r.pending[off:]...)
	}

	return frames, false
}

func (r *reframer) clear() {
	r.pending = r.pending[:0]
}

func (r *reframer) pendingLen() int {
	return len(r.pending)
}

// Push feeds raw little-endian 16-bit PCM into the session.
//
// Chunks pushed before InitializeSession are ignored. Complete frames are
// queued immediately; the first frame of a session starts the scheduler and a
// frame arriving during an underrun resumes it without waiting for the poll.
func (s *Streamer) Push(chunk []byte) error {
	s.mu.Lock()
	defer s.unlock()

	if !s.initialized {
		s.logger.Debug().Int("bytes", len(chunk)).Msg("Ignoring chunk pushed before session init")
		return nil
	}
	if s.streamComplete {
		return ErrStreamComplete
	}

	if len(chunk)%2 != 0 {
		s.stats.InvalidChunks++
		err := newError(KindInvalidChunk, nil, "chunk of %d bytes is not whole 16-bit samples", len(chunk))
		s.logger.Warn().Err(err).Msg("Dropping chunk")
		s.warnLocked(err)
		return err
	}

	s.stats.ChunksReceived++

	frames, overflow := s.reframer.write(chunk)
	if overflow {
		s.stats.Overflows++
		err := newError(KindBufferOverflow, nil, "pending samples exceeded %d", s.reframer.maxPending)
		s.logger.Warn().Err(err).Msg("Discarding pending samples")
		s.warnLocked(err)
		return nil
	}
	if len(frames) == 0 {
		return nil
	}

	s.queue = append(s.queue, frames...)
	s.stats.FramesQueued += int64(len(frames))

	switch s.state {
	case StateIdle:
		s.startLocked()
	case StateUnderrun:
		s.stopPollLocked()
		s.scheduleLocked()
	}

	return nil
}
