// ABOUTME: Utterance sources for the relay
// ABOUTME: Test tone and MP3 (file or HTTP) decoded to mono 16-bit PCM at the stream rate
package relay

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/resample"
	"github.com/hajimehoshi/go-mp3"
)

// Source provides one utterance of mono PCM samples. Read returns io.EOF
// with the final samples once the utterance is over.
type Source interface {
	Read(samples []int16) (int, error)
	SampleRate() int
	Close() error
}

// NewSource opens an MP3 file or URL, or a test tone when path is empty
func NewSource(path string, sampleRate int, toneDuration time.Duration) (Source, error) {
	if path == "" {
		return NewToneSource(sampleRate, 440, toneDuration), nil
	}

	var body io.ReadCloser
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		resp, err := http.Get(path)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to fetch %s: %s", path, resp.Status)
		}
		body = resp.Body
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open MP3 file: %w", err)
		}
		body = f
	}

	src, err := NewMP3Source(body, sampleRate)
	if err != nil {
		body.Close()
		return nil, err
	}
	return src, nil
}

// ToneSource generates a sine tone of fixed length
type ToneSource struct {
	sampleRate  int
	frequency   float64
	sampleIndex int
	total       int
}

// NewToneSource creates a tone generator
func NewToneSource(sampleRate int, frequency float64, duration time.Duration) *ToneSource {
	return &ToneSource{
		sampleRate: sampleRate,
		frequency:  frequency,
		total:      int(duration.Seconds() * float64(sampleRate)),
	}
}

func (s *ToneSource) Read(samples []int16) (int, error) {
	n := len(samples)
	if remaining := s.total - s.sampleIndex; n >= remaining {
		n = remaining
	}

	for i := 0; i < n; i++ {
		t := float64(s.sampleIndex+i) / float64(s.sampleRate)
		samples[i] = int16(math.Sin(2*math.Pi*s.frequency*t) * 32767.0 * 0.5) // 50% volume
	}
	s.sampleIndex += n

	if s.sampleIndex >= s.total {
		return n, io.EOF
	}
	return n, nil
}

func (s *ToneSource) SampleRate() int { return s.sampleRate }
func (s *ToneSource) Close() error    { return nil }

// mp3ReadSize is the number of decoded bytes pulled per refill
const mp3ReadSize = 4096

// MP3Source decodes MP3 to mono and resamples it to the stream rate
type MP3Source struct {
	body      io.ReadCloser
	decoder   *mp3.Decoder
	resampler *resample.Resampler
	rate      int
	backlog   []int16
	buf       []byte
	eof       bool
}

// NewMP3Source wraps an MP3 byte stream
func NewMP3Source(body io.ReadCloser, sampleRate int) (*MP3Source, error) {
	decoder, err := mp3.NewDecoder(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	return &MP3Source{
		body:      body,
		decoder:   decoder,
		resampler: resample.New(decoder.SampleRate(), sampleRate, 1),
		rate:      sampleRate,
		buf:       make([]byte, mp3ReadSize),
	}, nil
}

func (s *MP3Source) Read(samples []int16) (int, error) {
	for len(s.backlog) < len(samples) && !s.eof {
		if err := s.refill(); err != nil {
			return 0, err
		}
	}

	n := copy(samples, s.backlog)
	s.backlog = s.backlog[n:]

	if s.eof && len(s.backlog) == 0 {
		return n, io.EOF
	}
	return n, nil
}

// refill decodes one block: the decoder emits interleaved stereo int16
func (s *MP3Source) refill() error {
	n, err := io.ReadFull(s.decoder, s.buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		s.eof = true
	} else if err != nil {
		return fmt.Errorf("mp3 decode error: %w", err)
	}

	mono := audio.DownmixInt16(audio.BytesToInt16(s.buf[:n-n%4]), 2)
	floats := make([]float32, len(mono))
	for i, v := range mono {
		floats[i] = audio.Int16ToFloat32(v)
	}

	for _, v := range s.resampler.Process(floats) {
		s.backlog = append(s.backlog, audio.Float32ToInt16(v))
	}
	return nil
}

func (s *MP3Source) SampleRate() int { return s.rate }
func (s *MP3Source) Close() error    { return s.body.Close() }
