// ABOUTME: YAML configuration for the voice player
// ABOUTME: Sections for server, playback, output, HTTP API and logging
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-voice/pkg/playback"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config represents the complete player configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Playback PlaybackConfig `yaml:"playback"`
	Output   OutputConfig   `yaml:"output"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig describes how the player finds its relay
type ServerConfig struct {
	Address         string `yaml:"address"` // empty: discover via mDNS
	Path            string `yaml:"path"`
	Name            string `yaml:"name"`
	Port            int    `yaml:"port"`              // advertised mDNS port
	DiscoverTimeout int    `yaml:"discover_timeout"` // seconds
}

// PlaybackConfig contains streamer tuning, all durations in milliseconds
type PlaybackConfig struct {
	SampleRate         int `yaml:"sample_rate"`
	FrameDuration      int `yaml:"frame_duration_ms"`
	InitialBufferDelay int `yaml:"initial_buffer_delay_ms"`
	ScheduleAhead      int `yaml:"schedule_ahead_ms"`
	UnderrunTimeout    int `yaml:"underrun_timeout_ms"` // negative disables
	FadeDuration       int `yaml:"fade_duration_ms"`
	OverflowFrames     int `yaml:"overflow_frames"`
}

// OutputConfig selects the audio device backend
type OutputConfig struct {
	Backend    string `yaml:"backend"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	Volume     int    `yaml:"volume"`
}

// HTTPConfig contains the control/status API configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Path:            "/resonate",
			Port:            8927,
			DiscoverTimeout: 10,
		},
		Playback: PlaybackConfig{
			SampleRate:         playback.DefaultSampleRate,
			FrameDuration:      int(playback.DefaultFrameDuration / time.Millisecond),
			InitialBufferDelay: int(playback.DefaultInitialBufferDelay / time.Millisecond),
			ScheduleAhead:      int(playback.DefaultScheduleAhead / time.Millisecond),
			UnderrunTimeout:    int(playback.DefaultUnderrunTimeout / time.Millisecond),
			FadeDuration:       int(playback.DefaultFadeDuration / time.Millisecond),
			OverflowFrames:     playback.DefaultOverflowFrames,
		},
		Output: OutputConfig{
			Backend:    output.BackendOto,
			SampleRate: 48000,
			Channels:   2,
			Volume:     100,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    8928,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "resonate-voice.log",
		},
	}
}

// Load reads a configuration file on top of Default
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" && s.DiscoverTimeout < 1 {
		return fmt.Errorf("discover_timeout must be at least 1 second when no address is set, got %d", s.DiscoverTimeout)
	}

	return nil
}

// DiscoverTimeoutDuration returns the mDNS wait as a duration
func (s *ServerConfig) DiscoverTimeoutDuration() time.Duration {
	return time.Duration(s.DiscoverTimeout) * time.Second
}

// Validate validates playback configuration
func (p *PlaybackConfig) Validate() error {
	if p.SampleRate < 8000 || p.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", p.SampleRate)
	}

	if p.FrameDuration < 10 {
		return fmt.Errorf("frame_duration_ms must be at least 10, got %d", p.FrameDuration)
	}

	if p.InitialBufferDelay < 0 {
		return fmt.Errorf("initial_buffer_delay_ms cannot be negative, got %d", p.InitialBufferDelay)
	}

	if p.ScheduleAhead < 1 {
		return fmt.Errorf("schedule_ahead_ms must be positive, got %d", p.ScheduleAhead)
	}

	if p.FadeDuration < 0 {
		return fmt.Errorf("fade_duration_ms cannot be negative, got %d", p.FadeDuration)
	}

	if p.OverflowFrames < 1 {
		return fmt.Errorf("overflow_frames must be at least 1, got %d", p.OverflowFrames)
	}

	return nil
}

// StreamerConfig converts the section into playback.Config
func (p *PlaybackConfig) StreamerConfig() playback.Config {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }

	return playback.Config{
		SampleRate:         p.SampleRate,
		FrameDuration:      ms(p.FrameDuration),
		InitialBufferDelay: ms(p.InitialBufferDelay),
		ScheduleAhead:      ms(p.ScheduleAhead),
		UnderrunTimeout:    ms(p.UnderrunTimeout),
		FadeDuration:       ms(p.FadeDuration),
		OverflowFrames:     p.OverflowFrames,
	}
}

// Validate validates output configuration
func (o *OutputConfig) Validate() error {
	switch o.Backend {
	case output.BackendOto, output.BackendMalgo, output.BackendPortAudio, output.BackendNull:
	default:
		return fmt.Errorf("unknown backend %q", o.Backend)
	}

	if o.SampleRate < 8000 || o.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", o.SampleRate)
	}

	if o.Channels != 1 && o.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", o.Channels)
	}

	if o.Volume < 0 || o.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", o.Volume)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Addr returns the listen address
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	if _, err := l.ParseLevel(); err != nil {
		return err
	}

	if l.File == "" {
		return fmt.Errorf("log file cannot be empty")
	}

	return nil
}

// ParseLevel maps the level name onto zerolog
func (l *LoggingConfig) ParseLevel() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil || l.Level == "" {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q", l.Level)
	}
	return level, nil
}
