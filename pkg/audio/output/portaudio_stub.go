//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"fmt"
)

// NewPortAudio reports that PortAudio support was not compiled in
func NewPortAudio(sampleRate, channels int) (Output, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}
