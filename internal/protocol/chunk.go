// ABOUTME: Binary audio chunk framing
// ABOUTME: type byte, big-endian microsecond timestamp, encoded payload
package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// AudioChunkType is the leading byte of an audio chunk frame
	AudioChunkType byte = 0

	// ChunkHeaderSize is the type byte plus the 8-byte timestamp
	ChunkHeaderSize = 9
)

// AudioChunk is a timestamped encoded audio payload
type AudioChunk struct {
	Timestamp int64  // Microseconds, server clock
	Data      []byte // Encoded audio
}

// EncodeChunk frames an audio payload for a binary websocket message
func EncodeChunk(timestamp int64, payload []byte) []byte {
	out := make([]byte, ChunkHeaderSize+len(payload))
	out[0] = AudioChunkType
	binary.BigEndian.PutUint64(out[1:9], uint64(timestamp))
	copy(out[ChunkHeaderSize:], payload)
	return out
}

// ParseChunk decodes a binary frame. The returned Data aliases data.
func ParseChunk(data []byte) (AudioChunk, error) {
	if len(data) < ChunkHeaderSize {
		return AudioChunk{}, fmt.Errorf("binary message too short: %d bytes", len(data))
	}
	if data[0] != AudioChunkType {
		return AudioChunk{}, fmt.Errorf("unknown binary message type: %d", data[0])
	}

	return AudioChunk{
		Timestamp: int64(binary.BigEndian.Uint64(data[1:9])),
		Data:      data[ChunkHeaderSize:],
	}, nil
}
