// ABOUTME: Tests for relay utterance sources
// ABOUTME: Tone length, EOF behaviour and source construction errors
package relay

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

func TestToneSourceLength(t *testing.T) {
	src := NewToneSource(24000, 440, 100*time.Millisecond)

	buf := make([]int16, 1000)
	total := 0
	for {
		n, err := src.Read(buf)
		total += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if n != len(buf) {
			t.Fatalf("short read %d before EOF", n)
		}
	}

	if total != 2400 {
		t.Errorf("tone produced %d samples, want 2400", total)
	}

	if n, err := src.Read(buf); n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("Read() after end = %d, %v; want 0, EOF", n, err)
	}
}

func TestToneSourceIsAudible(t *testing.T) {
	src := NewToneSource(8000, 440, time.Second)
	buf := make([]int16, 100)
	src.Read(buf)

	var peak int16
	for _, s := range buf {
		if s > peak {
			peak = s
		}
	}
	if peak < 10000 || peak > 16384 {
		t.Errorf("peak = %d, want a half-scale sine", peak)
	}
}

func TestNewSourceErrors(t *testing.T) {
	if _, err := NewSource("/nonexistent/file.mp3", 24000, time.Second); err == nil {
		t.Error("NewSource() with missing file expected error")
	}

	body := io.NopCloser(bytes.NewReader([]byte("definitely not mpeg audio")))
	if _, err := NewMP3Source(body, 24000); err == nil {
		t.Error("NewMP3Source() with garbage expected error")
	}
}

func TestNewSourceDefaultsToTone(t *testing.T) {
	src, err := NewSource("", 16000, time.Second)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	defer src.Close()

	if _, ok := src.(*ToneSource); !ok {
		t.Errorf("NewSource(\"\") = %T, want *ToneSource", src)
	}
	if src.SampleRate() != 16000 {
		t.Errorf("SampleRate() = %d, want 16000", src.SampleRate())
	}
}
