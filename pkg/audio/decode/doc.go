// ABOUTME: Audio decoder package for streamed speech payloads
// ABOUTME: Provides Decoder interface and implementations for PCM and Opus
// Package decode converts transport payloads into the mono 16-bit PCM the
// playback engine consumes.
//
// Supports: PCM (16-bit, mono or stereo), Opus
//
// Example:
//
//	decoder, err := decode.New(format)
//	pcm, err := decoder.Decode(payload)
//	err = streamer.Push(pcm)
package decode
