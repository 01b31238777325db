// ABOUTME: Entry point for the Resonate voice player
// ABOUTME: Parses CLI flags, loads config and starts the player application
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/app"
	"github.com/Resonate-Protocol/resonate-voice/internal/config"
	"github.com/Resonate-Protocol/resonate-voice/internal/httpapi"
	"github.com/Resonate-Protocol/resonate-voice/internal/metrics"
	"github.com/Resonate-Protocol/resonate-voice/internal/ui"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const reconnectDelay = 2 * time.Second

var (
	configPath = flag.String("config", "", "YAML config file")
	serverAddr = flag.String("server", "", "Manual relay address (skip mDNS)")
	port       = flag.Int("port", 0, "Port for mDNS advertisement")
	name       = flag.String("name", "", "Player friendly name (default: hostname-voice-player)")
	backend    = flag.String("backend", "", "Audio backend: oto, malgo, portaudio or null")
	volume     = flag.Int("volume", -1, "Initial volume 0-100")
	httpAddr   = flag.String("http", "", "Enable the HTTP API on host:port")
	logFile    = flag.String("log-file", "", "Log file path")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	useTUI := !*noTUI

	f, err := os.OpenFile(cfg.Logging.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	level, _ := cfg.Logging.ParseLevel()
	zerolog.SetGlobalLevel(level)

	var w io.Writer = f
	if !useTUI {
		// Streaming logs mode: log to both stdout and file
		w = zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}, f)
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()

	if err := run(cfg, useTUI); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Player failed")
		fmt.Fprintf(os.Stderr, "player failed: %v\n", err)
		os.Exit(1)
	}

	log.Info().Msg("Player stopped")
}

// loadConfig reads the config file and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if *serverAddr != "" {
		cfg.Server.Address = *serverAddr
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *name != "" {
		cfg.Server.Name = *name
	}
	if cfg.Server.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Server.Name = fmt.Sprintf("%s-voice-player", hostname)
	}
	if *backend != "" {
		cfg.Output.Backend = *backend
	}
	if *volume >= 0 {
		cfg.Output.Volume = *volume
	}
	if *httpAddr != "" {
		host, p, err := splitHostPort(*httpAddr)
		if err != nil {
			return nil, err
		}
		cfg.HTTP.Enabled = true
		cfg.HTTP.Address = host
		cfg.HTTP.Port = p
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	return cfg, cfg.Validate()
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid http address %q: %w", addr, err)
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid http port %q", portStr)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return host, p, nil
}

func run(cfg *config.Config, useTUI bool) error {
	log.Info().
		Str("name", cfg.Server.Name).
		Str("backend", cfg.Output.Backend).
		Bool("tui", useTUI).
		Msg("Starting Resonate voice player")

	out, err := output.New(cfg.Output.Backend, cfg.Output.SampleRate, cfg.Output.Channels)
	if err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}
	defer out.Close()
	out.SetVolume(cfg.Output.Volume)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tuiProg *tea.Program
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		tuiProg = ui.Run(controls, cfg.Output.Volume)
	}

	player := app.New(app.Config{
		ServerAddr:      cfg.Server.Address,
		Path:            cfg.Server.Path,
		Name:            cfg.Server.Name,
		Port:            cfg.Server.Port,
		DiscoverTimeout: cfg.Server.DiscoverTimeoutDuration(),
		Playback:        cfg.Playback.StreamerConfig(),
		OnStatus: func(msg ui.StatusMsg) {
			if tuiProg != nil {
				tuiProg.Send(msg)
			}
		},
	}, out)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runPlayer(gctx, player)
	})

	if cfg.HTTP.Enabled {
		api := httpapi.New(cfg.HTTP.Addr(), player, metrics.New(player).Handler())
		g.Go(func() error {
			return api.Start(gctx)
		})
	}

	if tuiProg != nil {
		g.Go(func() error {
			return handleControls(gctx, player, controls)
		})
		g.Go(func() error {
			go func() {
				<-gctx.Done()
				tuiProg.Quit()
			}()
			if _, err := tuiProg.Run(); err != nil {
				return fmt.Errorf("TUI failed: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// runPlayer keeps the player connected, reconnecting after a lost relay
func runPlayer(ctx context.Context, player *app.Player) error {
	for {
		err := player.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if !errors.Is(err, app.ErrConnectionLost) {
			return err
		}

		log.Warn().Dur("delay", reconnectDelay).Msg("Reconnecting to relay")
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// handleControls applies TUI key presses to the player
func handleControls(ctx context.Context, player *app.Player, controls *ui.Controls) error {
	for {
		select {
		case change := <-controls.Changes:
			log.Info().Int("volume", change.Volume).Bool("muted", change.Muted).Msg("Volume change")
			player.SetVolume(change.Volume)
			player.SetMuted(change.Muted)
		case hard := <-controls.Stops:
			player.Stop(hard)
		case <-controls.Quit:
			log.Info().Msg("Received quit signal from TUI")
			return context.Canceled
		case <-ctx.Done():
			return nil
		}
	}
}
