// ABOUTME: WebSocket client for the voice stream protocol
// ABOUTME: Handles connection, handshake, and message routing
package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultPath is the websocket endpoint served by the relay
const DefaultPath = "/resonate"

// handshakeTimeout bounds the wait for server/hello
const handshakeTimeout = 5 * time.Second

// Config holds client configuration
type Config struct {
	ServerAddr    string
	Path          string
	ClientID      string
	Name          string
	DeviceInfo    protocol.DeviceInfo
	PlayerSupport protocol.PlayerSupport
}

// Client represents a WebSocket client
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex
	wmu    sync.Mutex
	logger zerolog.Logger

	// Message channels. They are unbuffered so a consumer selecting over
	// all of them receives messages in arrival order.
	AudioChunks  chan protocol.AudioChunk
	StreamStarts chan protocol.StreamStart
	StreamEnds   chan protocol.StreamEnd
	StreamClears chan protocol.StreamClear
	Commands     chan protocol.ServerCommand

	// State
	connected bool
	server    protocol.ServerHello
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	if config.ClientID == "" {
		config.ClientID = uuid.New().String()
	}
	if config.Path == "" {
		config.Path = DefaultPath
	}

	return &Client{
		config:       config,
		logger:       log.With().Str("component", "client").Str("client_id", config.ClientID).Logger(),
		AudioChunks:  make(chan protocol.AudioChunk),
		StreamStarts: make(chan protocol.StreamStart),
		StreamEnds:   make(chan protocol.StreamEnd),
		StreamClears: make(chan protocol.StreamClear),
		Commands:     make(chan protocol.ServerCommand),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Connect establishes WebSocket connection and performs handshake
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	c.logger.Info().Str("url", u.String()).Msg("Connecting")

	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake performs the protocol handshake
func (c *Client) handshake() error {
	hello := protocol.ClientHello{
		ClientID:       c.config.ClientID,
		Name:           c.config.Name,
		Version:        protocol.ProtocolVersion,
		SupportedRoles: []string{"player"},
		DeviceInfo:     &c.config.DeviceInfo,
		PlayerSupport:  &c.config.PlayerSupport,
	}

	if err := c.send(protocol.TypeClientHello, hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}
	if env.Type != protocol.TypeServerHello {
		return fmt.Errorf("expected server/hello, got %s", env.Type)
	}

	var server protocol.ServerHello
	if err := env.Decode(&server); err != nil {
		return err
	}

	c.mu.Lock()
	c.server = server
	c.mu.Unlock()

	c.logger.Info().Str("server", server.Name).Str("server_id", server.ServerID).Msg("Handshake complete")

	return c.SendState(protocol.ClientState{State: "idle", Volume: 100})
}

// send writes one JSON message
func (c *Client) send(msgType string, payload interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteJSON(protocol.Message{Type: msgType, Payload: payload})
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("Read error")
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.handleBinaryMessage(data)
		case websocket.TextMessage:
			c.handleJSONMessage(data)
		}
	}
}

// handleBinaryMessage handles audio chunks
func (c *Client) handleBinaryMessage(data []byte) {
	chunk, err := protocol.ParseChunk(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Dropping binary message")
		return
	}

	select {
	case c.AudioChunks <- chunk:
	case <-c.ctx.Done():
	}
}

// handleJSONMessage routes JSON messages
func (c *Client) handleJSONMessage(data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to parse JSON message")
		return
	}

	switch env.Type {
	case protocol.TypeStreamStart:
		var start protocol.StreamStart
		if c.decode(env, &start) {
			deliver(c.ctx, c.StreamStarts, start)
		}

	case protocol.TypeStreamEnd:
		var end protocol.StreamEnd
		if c.decode(env, &end) {
			deliver(c.ctx, c.StreamEnds, end)
		}

	case protocol.TypeStreamClear:
		var clear protocol.StreamClear
		if c.decode(env, &clear) {
			deliver(c.ctx, c.StreamClears, clear)
		}

	case protocol.TypeServerCommand:
		var cmd protocol.ServerCommand
		if c.decode(env, &cmd) {
			deliver(c.ctx, c.Commands, cmd)
		}

	default:
		c.logger.Debug().Str("type", env.Type).Msg("Unknown message type")
	}
}

func (c *Client) decode(env protocol.Envelope, v interface{}) bool {
	if err := env.Decode(v); err != nil {
		c.logger.Warn().Err(err).Msg("Dropping message")
		return false
	}
	return true
}

func deliver[T any](ctx context.Context, ch chan T, v T) {
	select {
	case ch <- v:
	case <-ctx.Done():
	}
}

// SendState sends a player/update message
func (c *Client) SendState(state protocol.ClientState) error {
	return c.send(protocol.TypePlayerUpdate, state)
}

// Server returns the server/hello received during the handshake
func (c *Client) Server() protocol.ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancel()
	if c.connected {
		c.connected = false
		c.conn.Close()
		c.logger.Info().Msg("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
