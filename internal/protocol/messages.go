// ABOUTME: Voice stream protocol message type definitions
// ABOUTME: JSON control messages exchanged between relay and player
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message types
const (
	TypeClientHello   = "client/hello"
	TypeServerHello   = "server/hello"
	TypePlayerUpdate  = "player/update"
	TypeStreamStart   = "stream/start"
	TypeStreamEnd     = "stream/end"
	TypeStreamClear   = "stream/clear"
	TypeServerCommand = "server/command"
)

// Server commands
const (
	CommandVolume = "volume"
	CommandMute   = "mute"
	CommandStop   = "stop"
)

// ProtocolVersion is the version sent in hello messages
const ProtocolVersion = 1

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Envelope is a received message with its payload left undecoded
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseEnvelope reads the message type from a JSON frame
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to parse message: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("message has no type")
	}
	return env, nil
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", e.Type, err)
	}
	return nil
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID       string         `json:"client_id"`
	Name           string         `json:"name"`
	Version        int            `json:"version"`
	SupportedRoles []string       `json:"supported_roles"`
	DeviceInfo     *DeviceInfo    `json:"device_info,omitempty"`
	PlayerSupport  *PlayerSupport `json:"player_support,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// PlayerSupport describes player capabilities
type PlayerSupport struct {
	SupportFormats    []AudioFormat `json:"support_formats,omitempty"`
	BufferCapacity    int           `json:"buffer_capacity,omitempty"`
	SupportedCommands []string      `json:"supported_commands,omitempty"`
}

// AudioFormat describes a supported audio format
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ClientState reports the player's current state (sent as player/update message)
type ClientState struct {
	State  string `json:"state"`  // playback state name
	Volume int    `json:"volume"` // 0-100
	Muted  bool   `json:"muted"`
}

// ServerCommand is a control message from the server
type ServerCommand struct {
	Command string `json:"command"`
	Volume  int    `json:"volume,omitempty"`
	Mute    bool   `json:"mute,omitempty"`
	Hard    bool   `json:"hard,omitempty"` // for stop
}

// StreamStart opens a stream and announces its format
type StreamStart struct {
	StreamID   string `json:"stream_id"`
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
}

// StreamEnd marks the last chunk of a stream; playback drains
type StreamEnd struct {
	StreamID string `json:"stream_id"`
}

// StreamClear interrupts a stream; buffered audio is cut
type StreamClear struct {
	StreamID string `json:"stream_id"`
}
