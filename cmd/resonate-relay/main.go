// ABOUTME: Entry point for the Resonate voice relay
// ABOUTME: Streams a test tone or MP3 as chunked speech to connected players
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/relay"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	port       = flag.Int("port", relay.DefaultPort, "WebSocket server port")
	name       = flag.String("name", "", "Relay friendly name (default: hostname-voice-relay)")
	codec      = flag.String("codec", "pcm", "Transport codec: pcm or opus")
	sampleRate = flag.Int("rate", relay.DefaultSampleRate, "Stream sample rate")
	chunkMs    = flag.Int("chunk-ms", int(relay.DefaultChunkDuration/time.Millisecond), "Chunk duration in milliseconds (pcm only)")
	source     = flag.String("audio", "", "MP3 file or URL to stream. If not specified, plays test tone")
	toneMs     = flag.Int("tone-ms", int(relay.DefaultToneDuration/time.Millisecond), "Test tone utterance length in milliseconds")
	pauseMs    = flag.Int("pause-ms", int(relay.DefaultPause/time.Millisecond), "Silence between utterances in milliseconds")
	utterances = flag.Int("utterances", 0, "Utterances per connection (0 = unlimited)")
	logFile    = flag.String("log-file", "resonate-relay.log", "Log file path")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	// Log to both file and console
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}, f,
	)).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	relayName := *name
	if relayName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		relayName = fmt.Sprintf("%s-voice-relay", hostname)
	}

	log.Info().
		Str("name", relayName).
		Int("port", *port).
		Str("codec", *codec).
		Str("log_file", *logFile).
		Msg("Starting Resonate relay, press Ctrl-C to stop")

	srv := relay.New(relay.Config{
		Port:          *port,
		Name:          relayName,
		Codec:         *codec,
		SampleRate:    *sampleRate,
		ChunkDuration: time.Duration(*chunkMs) * time.Millisecond,
		Source:        *source,
		ToneDuration:  time.Duration(*toneMs) * time.Millisecond,
		Pause:         time.Duration(*pauseMs) * time.Millisecond,
		Utterances:    *utterances,
		EnableMDNS:    !*noMDNS,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Error().Err(err).Msg("Relay error")
		os.Exit(1)
	}

	log.Info().Msg("Relay stopped")
}
