// ABOUTME: Prometheus collectors for the playback engine
// ABOUTME: Counters and gauges read from Streamer.Stats on each scrape
package metrics

import (
	"net/http"

	"github.com/Resonate-Protocol/resonate-voice/pkg/playback"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resonate_voice"

// StatsSource provides playback statistics
type StatsSource interface {
	Stats() playback.Stats
}

// Metrics holds the registry all playback collectors live on
type Metrics struct {
	registry *prometheus.Registry
	source   StatsSource
}

// New registers playback collectors on a dedicated registry
func New(source StatsSource) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		source:   source,
	}
	factory := promauto.With(m.registry)

	counter := func(name, help string, read func(playback.Stats) int64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(m.source.Stats())) })
	}
	gauge := func(name, help string, read func(playback.Stats) float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return read(m.source.Stats()) })
	}

	counter("chunks_received_total", "Total number of PCM chunks pushed",
		func(s playback.Stats) int64 { return s.ChunksReceived })
	counter("invalid_chunks_total", "Total number of chunks dropped as malformed",
		func(s playback.Stats) int64 { return s.InvalidChunks })
	counter("buffer_overflows_total", "Total number of accumulator overflow resets",
		func(s playback.Stats) int64 { return s.Overflows })
	counter("frames_queued_total", "Total number of frames produced by the reframer",
		func(s playback.Stats) int64 { return s.FramesQueued })
	counter("frames_scheduled_total", "Total number of frames handed to the output",
		func(s playback.Stats) int64 { return s.FramesScheduled })
	counter("frames_played_total", "Total number of frames that finished playing",
		func(s playback.Stats) int64 { return s.FramesPlayed })
	counter("frames_cancelled_total", "Total number of frames cut by a hard stop",
		func(s playback.Stats) int64 { return s.FramesCancelled })
	counter("underruns_total", "Total number of scheduler underruns",
		func(s playback.Stats) int64 { return s.Underruns })
	counter("fatal_errors_total", "Total number of session-ending errors",
		func(s playback.Stats) int64 { return s.FatalErrors })

	gauge("queue_depth", "Frames waiting to be scheduled",
		func(s playback.Stats) float64 { return float64(s.QueueDepth) })
	gauge("in_flight_frames", "Frames scheduled on the output and not yet finished",
		func(s playback.Stats) float64 { return float64(s.InFlight) })
	gauge("buffered_seconds", "Audio buffered ahead of the output clock",
		func(s playback.Stats) float64 { return s.BufferedSeconds })
	gauge("sample_rate_hz", "Current session sample rate",
		func(s playback.Stats) float64 { return float64(s.SampleRate) })
	gauge("session", "Current playback session number",
		func(s playback.Stats) float64 { return float64(s.Session) })
	gauge("state", "Scheduler state (0 idle, 1 scheduling, 2 underrun, 3 draining, 4 stopped)",
		func(s playback.Stats) float64 { return float64(s.State) })

	return m
}

// Registry returns the registry holding the playback collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
