// ABOUTME: Relay server that streams synthetic assistant speech to players
// ABOUTME: Manages WebSocket connections, utterance pacing, interrupts and commands
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/discovery"
	"github.com/Resonate-Protocol/resonate-voice/internal/protocol"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/encode"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPort          = 8927
	DefaultSampleRate    = 24000
	DefaultChunkDuration = 20 * time.Millisecond
	DefaultToneDuration  = 2 * time.Second
	DefaultPause         = time.Second

	// leadChunks are sent ahead of real time at the start of each utterance
	leadChunks = 5

	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Config holds relay configuration
type Config struct {
	Port          int
	Name          string
	Codec         string
	SampleRate    int
	ChunkDuration time.Duration
	Source        string        // MP3 path or URL. Empty = test tone
	ToneDuration  time.Duration // length of each tone utterance
	Pause         time.Duration // silence between utterances
	Utterances    int           // per connection; 0 = unlimited
	EnableMDNS    bool

	// OpenSource overrides Source with a custom generator, called once per utterance
	OpenSource func() (Source, error)
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Name == "" {
		c.Name = "Resonate Relay"
	}
	if c.Codec == "" {
		c.Codec = audio.CodecPCM
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.ChunkDuration <= 0 {
		c.ChunkDuration = DefaultChunkDuration
	}
	if c.Codec == audio.CodecOpus {
		// Opus packets carry exactly one 20ms frame
		c.ChunkDuration = 20 * time.Millisecond
	}
	if c.ToneDuration <= 0 {
		c.ToneDuration = DefaultToneDuration
	}
	if c.Pause < 0 {
		c.Pause = 0
	}
}

// Server is the relay
type Server struct {
	config   Config
	serverID string
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	httpServer *http.Server

	clients   map[string]*Client
	clientsMu sync.RWMutex

	// Server clock (monotonic microseconds)
	clockStart time.Time

	mdnsManager *discovery.Manager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Client is a connected player
type Client struct {
	ID    string
	Name  string
	Conn  *websocket.Conn
	State protocol.ClientState

	sendChan chan interface{}
	clear    chan struct{}
	mu       sync.RWMutex
}

// New creates a relay
func New(config Config) *Server {
	config.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:     config,
		serverID:   uuid.New().String(),
		logger:     log.With().Str("component", "relay").Logger(),
		mux:        http.NewServeMux(),
		clients:    make(map[string]*Client),
		clockStart: time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}

	s.mux.HandleFunc("/resonate", s.handleWebSocket)
	s.mux.HandleFunc("/clear", s.handleClear)
	s.mux.HandleFunc("/command", s.handleCommand)

	return s
}

// Handler returns the relay's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Stop is called or the listener fails
func (s *Server) Start() error {
	s.logger.Info().
		Str("name", s.config.Name).
		Str("id", s.serverID).
		Str("codec", s.config.Codec).
		Int("sample_rate", s.config.SampleRate).
		Msg("Relay starting")

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			ServerMode:  true,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to start mDNS advertisement")
		}
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("WebSocket server listening")

	var serverErr error
	select {
	case <-s.ctx.Done():
	case serverErr = <-errChan:
		s.logger.Error().Err(serverErr).Msg("HTTP server error")
	}

	s.Stop()
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	s.wg.Wait()
	s.logger.Info().Msg("Relay stopped")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop ends all streams and connections
func (s *Server) Stop() {
	s.cancel()

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		c.Conn.Close()
	}
}

// Clear interrupts the current utterance on every client
func (s *Server) Clear() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, c := range s.clients {
		select {
		case c.clear <- struct{}{}:
		default:
		}
	}
	return len(s.clients)
}

// Broadcast sends a server/command to every client
func (s *Server) Broadcast(cmd protocol.ServerCommand) int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	sent := 0
	for _, c := range s.clients {
		if err := s.sendMessage(c, protocol.TypeServerCommand, cmd); err != nil {
			s.logger.Warn().Err(err).Str("client", c.Name).Msg("Dropping command")
			continue
		}
		sent++
	}
	return sent
}

// Clients returns the number of connected players
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n := s.Clear()
	s.logger.Info().Int("clients", n).Msg("Interrupt requested")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd protocol.ServerCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || cmd.Command == "" {
		http.Error(w, "invalid command", http.StatusBadRequest)
		return
	}

	s.Broadcast(cmd)
	w.WriteHeader(http.StatusNoContent)
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	s.logger.Info().Str("remote", r.RemoteAddr).Msg("New WebSocket connection")
	s.handleConnection(conn)
}

// handleConnection manages a client connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Error reading hello")
		return
	}

	env, err := protocol.ParseEnvelope(data)
	if err != nil || env.Type != protocol.TypeClientHello {
		s.logger.Warn().Err(err).Str("type", env.Type).Msg("Expected client/hello")
		return
	}

	var hello protocol.ClientHello
	if err := env.Decode(&hello); err != nil || hello.ClientID == "" {
		s.logger.Warn().Err(err).Msg("Invalid client hello")
		return
	}

	client := &Client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		State:    protocol.ClientState{State: "idle", Volume: 100},
		sendChan: make(chan interface{}, 256),
		clear:    make(chan struct{}, 1),
	}

	s.clientsMu.Lock()
	if _, exists := s.clients[client.ID]; exists {
		s.clientsMu.Unlock()
		s.logger.Warn().Str("client_id", client.ID).Msg("Client ID already connected, rejecting duplicate")
		return
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	ctx, cancel := context.WithCancel(s.ctx)

	defer func() {
		cancel()
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()
		s.logger.Info().Str("client", client.Name).Msg("Client disconnected")
	}()

	s.logger.Info().Str("client", client.Name).Str("client_id", client.ID).Msg("Client hello")

	if err := s.sendMessage(client, protocol.TypeServerHello, protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  protocol.ProtocolVersion,
	}); err != nil {
		return
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.clientWriter(ctx, client)
	}()
	go func() {
		defer s.wg.Done()
		s.streamLoop(ctx, client)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				s.logger.Debug().Err(err).Msg("WebSocket read ended")
			}
			return
		}
		s.handleClientMessage(client, data)
	}
}

// clientWriter sends messages to the client
func (s *Server) clientWriter(ctx context.Context, client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-client.sendChan:
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))

			var err error
			switch v := msg.(type) {
			case []byte:
				err = client.Conn.WriteMessage(websocket.BinaryMessage, v)
			default:
				err = client.Conn.WriteJSON(v)
			}
			if err != nil {
				s.logger.Debug().Err(err).Str("client", client.Name).Msg("Write failed")
				client.Conn.Close()
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// handleClientMessage processes messages from clients
func (s *Server) handleClientMessage(client *Client, data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Invalid client message")
		return
	}

	switch env.Type {
	case protocol.TypePlayerUpdate:
		var state protocol.ClientState
		if err := env.Decode(&state); err != nil {
			s.logger.Warn().Err(err).Msg("Invalid player/update")
			return
		}
		client.mu.Lock()
		client.State = state
		client.mu.Unlock()
		s.logger.Debug().
			Str("client", client.Name).
			Str("state", state.State).
			Int("volume", state.Volume).
			Bool("muted", state.Muted).
			Msg("Client state")
	default:
		s.logger.Debug().Str("type", env.Type).Msg("Unknown message type")
	}
}

// sendMessage queues a JSON message for a client
func (s *Server) sendMessage(client *Client, msgType string, payload interface{}) error {
	select {
	case client.sendChan <- protocol.Message{Type: msgType, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// sendBinary queues binary data for a client
func (s *Server) sendBinary(client *Client, data []byte) error {
	select {
	case client.sendChan <- data:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// getClockMicros returns the server clock in microseconds
func (s *Server) getClockMicros() int64 {
	return time.Since(s.clockStart).Microseconds()
}

// streamLoop sends utterances separated by pauses until the client leaves
func (s *Server) streamLoop(ctx context.Context, client *Client) {
	for n := 0; s.config.Utterances == 0 || n < s.config.Utterances; n++ {
		src, err := s.openSource()
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to open source")
			return
		}

		err = s.streamUtterance(ctx, client, src)
		src.Close()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn().Err(err).Str("client", client.Name).Msg("Utterance failed")
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.Pause):
		}
	}
}

func (s *Server) openSource() (Source, error) {
	if s.config.OpenSource != nil {
		return s.config.OpenSource()
	}
	return NewSource(s.config.Source, s.config.SampleRate, s.config.ToneDuration)
}

// streamUtterance paces one source to the client in real time
func (s *Server) streamUtterance(ctx context.Context, client *Client, src Source) error {
	format := audio.Format{
		Codec:      s.config.Codec,
		SampleRate: s.config.SampleRate,
		Channels:   1,
		BitDepth:   16,
	}
	encoder, err := encode.New(format)
	if err != nil {
		return err
	}
	defer encoder.Close()

	streamID := uuid.New().String()
	if err := s.sendMessage(client, protocol.TypeStreamStart, protocol.StreamStart{
		StreamID:   streamID,
		Codec:      format.Codec,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		BitDepth:   format.BitDepth,
	}); err != nil {
		return err
	}

	// Drop a clear requested between utterances
	select {
	case <-client.clear:
	default:
	}

	chunkSamples := int(s.config.ChunkDuration.Seconds() * float64(s.config.SampleRate))
	if fs := encoder.FrameSize(); fs > 0 {
		chunkSamples = fs
	}
	buf := make([]int16, chunkSamples)

	ticker := time.NewTicker(s.config.ChunkDuration)
	defer ticker.Stop()

	sent := 0
	for {
		if sent >= leadChunks {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-client.clear:
				s.logger.Info().Str("stream_id", streamID).Str("client", client.Name).Msg("Stream cleared")
				return s.sendMessage(client, protocol.TypeStreamClear, protocol.StreamClear{StreamID: streamID})
			case <-ticker.C:
			}
		}

		n, readErr := src.Read(buf)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return readErr
		}

		if n > 0 {
			samples := buf[:n]
			if encoder.FrameSize() > 0 && n < chunkSamples {
				// Pad the final opus frame with silence
				for i := n; i < chunkSamples; i++ {
					buf[i] = 0
				}
				samples = buf
			}

			payload, err := encoder.Encode(samples)
			if err != nil {
				return err
			}
			if err := s.sendBinary(client, protocol.EncodeChunk(s.getClockMicros(), payload)); err != nil {
				return err
			}
			sent++
		}

		if errors.Is(readErr, io.EOF) {
			s.logger.Debug().Str("stream_id", streamID).Int("chunks", sent).Msg("Utterance complete")
			return s.sendMessage(client, protocol.TypeStreamEnd, protocol.StreamEnd{StreamID: streamID})
		}
	}
}
