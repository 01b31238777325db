// ABOUTME: Audio encoder package for relay payloads
// ABOUTME: Provides Encoder interface and implementations for PCM, Opus
// Package encode turns 16-bit PCM into transport payloads for the relay.
//
// Supports: PCM (16-bit), Opus (20ms frames)
//
// Example:
//
//	encoder, err := encode.New(format)
//	payload, err := encoder.Encode(samples)
package encode
