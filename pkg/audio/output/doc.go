// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the timeline mixer and oto, malgo, PortAudio and null backends
// Package output provides audio playback devices.
//
// Every backend wraps a Mixer, which places scheduled buffers on a sample
// timeline and renders them when the device pulls audio. The mixer's
// rendered-frame count is the device clock, so an Output can be handed to
// playback.NewStreamer as both sink and clock.
//
// Example:
//
//	out, err := output.New(output.BackendOto, 48000, 2)
//	streamer := playback.NewStreamer(out, out, playback.Config{})
package output
