// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and 16-bit PCM / float sample conversions
// Package audio provides the sample formats shared by the playback engine,
// decoders and output backends.
//
// Streamed speech arrives as little-endian 16-bit PCM. The playback engine
// works on float32 samples in [-1, 1), obtained by dividing by 32768.
//
// Example:
//
//	samples := audio.AppendPCM16(nil, chunk)
//	pcm := audio.Int16ToBytes(audio.DownmixInt16(stereo, 2))
package audio
