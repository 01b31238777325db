// ABOUTME: Headless playback probe against a running relay
// ABOUTME: Plays into the null device and prints scheduler stats for a fixed time
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/app"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	serverAddr = flag.String("server", "localhost:8927", "Relay address")
	name       = flag.String("name", "test-playback", "Player name")
	duration   = flag.Duration("duration", 10*time.Second, "How long to listen")
	verbose    = flag.Bool("v", false, "Log scheduler activity")
)

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	fmt.Println("=== Playback Probe ===")
	fmt.Printf("Relay: %s, listening for %s on the null device\n\n", *serverAddr, *duration)

	out := output.NewNull(48000, 2)
	defer out.Close()

	player := app.New(app.Config{ServerAddr: *serverAddr, Name: *name}, out)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				st := player.Stats()
				fmt.Printf("%-10s session=%d rx=%d played=%d queued=%d in-flight=%d buffered=%.0fms underruns=%d\n",
					st.State, st.Session, st.ChunksReceived, st.FramesPlayed,
					st.QueueDepth, st.InFlight, st.BufferedSeconds*1000, st.Underruns)
			case <-ctx.Done():
				return
			}
		}
	}()

	err := player.Run(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(1)
	}

	st := player.Stats()
	fmt.Println()
	fmt.Printf("Sessions:   %d\n", st.Session)
	fmt.Printf("Chunks:     %d received, %d invalid, %d overflows\n", st.ChunksReceived, st.InvalidChunks, st.Overflows)
	fmt.Printf("Frames:     %d scheduled, %d played, %d cancelled\n", st.FramesScheduled, st.FramesPlayed, st.FramesCancelled)
	fmt.Printf("Underruns:  %d\n", st.Underruns)
	fmt.Printf("Fatal:      %d\n", st.FatalErrors)

	if st.FatalErrors > 0 {
		os.Exit(1)
	}
}
