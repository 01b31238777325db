// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates.
// Handles both upsampling and downsampling, either streaming across
// chunks (Resampler) or over one complete buffer (Buffer).
//
// Example:
//
//	r := resample.New(44100, 24000, 1)
//	out := r.Process(chunk)
package resample
