// ABOUTME: HTTP control and status API for the player
// ABOUTME: Health, playback status, stop/volume control and Prometheus metrics
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/playback"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Controller is the player surface exposed over HTTP
type Controller interface {
	Stats() playback.Stats
	Stop(hard bool)
	Connected() bool
	Volume() int
	Muted() bool
	SetVolume(volume int)
	SetMuted(muted bool)
}

// Server wraps an echo instance bound to a Controller
type Server struct {
	echo       *echo.Echo
	controller Controller
	addr       string
	startTime  time.Time
	logger     zerolog.Logger
}

// Status is the /status response body
type Status struct {
	Connected        bool    `json:"connected"`
	State            string  `json:"state"`
	Session          uint64  `json:"session"`
	SampleRate       int     `json:"sample_rate"`
	FrameSize        int     `json:"frame_size"`
	Volume           int     `json:"volume"`
	Muted            bool    `json:"muted"`
	ChunksReceived   int64   `json:"chunks_received"`
	InvalidChunks    int64   `json:"invalid_chunks"`
	Overflows        int64   `json:"overflows"`
	FramesScheduled  int64   `json:"frames_scheduled"`
	FramesPlayed     int64   `json:"frames_played"`
	FramesCancelled  int64   `json:"frames_cancelled"`
	Underruns        int64   `json:"underruns"`
	FatalErrors      int64   `json:"fatal_errors"`
	QueueDepth       int     `json:"queue_depth"`
	InFlight         int     `json:"in_flight"`
	BufferedSeconds  float64 `json:"buffered_seconds"`
	NextPlaybackTime float64 `json:"next_playback_time"`
	Uptime           string  `json:"uptime"`
}

// VolumeRequest is the /volume request body
type VolumeRequest struct {
	Volume *int  `json:"volume"`
	Muted  *bool `json:"muted"`
}

// New creates the API server. metrics may be nil to omit /metrics.
func New(addr string, controller Controller, metrics http.Handler) *Server {
	s := &Server{
		echo:       echo.New(),
		controller: controller,
		addr:       addr,
		startTime:  time.Now(),
		logger:     log.With().Str("component", "httpapi").Logger(),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug().Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Msg("HTTP request")
			return nil
		},
	}))

	s.echo.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/stop", s.handleStop)
	s.echo.POST("/volume", s.handleVolume)
	if metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics))
	}

	return s
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info().Str("address", s.addr).Msg("Starting HTTP API server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info().Msg("Stopping HTTP API server")
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) handleStatus(c echo.Context) error {
	st := s.controller.Stats()

	return c.JSON(http.StatusOK, Status{
		Connected:        s.controller.Connected(),
		State:            st.State.String(),
		Session:          st.Session,
		SampleRate:       st.SampleRate,
		FrameSize:        st.FrameSize,
		Volume:           s.controller.Volume(),
		Muted:            s.controller.Muted(),
		ChunksReceived:   st.ChunksReceived,
		InvalidChunks:    st.InvalidChunks,
		Overflows:        st.Overflows,
		FramesScheduled:  st.FramesScheduled,
		FramesPlayed:     st.FramesPlayed,
		FramesCancelled:  st.FramesCancelled,
		Underruns:        st.Underruns,
		FatalErrors:      st.FatalErrors,
		QueueDepth:       st.QueueDepth,
		InFlight:         st.InFlight,
		BufferedSeconds:  st.BufferedSeconds,
		NextPlaybackTime: st.NextPlaybackTime,
		Uptime:           time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleStop(c echo.Context) error {
	hard := false
	if v := c.QueryParam("hard"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "hard must be a boolean")
		}
		hard = parsed
	}

	s.logger.Info().Bool("hard", hard).Msg("Stop requested over HTTP")
	s.controller.Stop(hard)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"stopped": true,
		"hard":    hard,
		"state":   s.controller.Stats().State.String(),
	})
}

func (s *Server) handleVolume(c echo.Context) error {
	var req VolumeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Volume == nil && req.Muted == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "volume or muted required")
	}

	if req.Volume != nil {
		if *req.Volume < 0 || *req.Volume > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, "volume must be between 0 and 100")
		}
		s.controller.SetVolume(*req.Volume)
	}
	if req.Muted != nil {
		s.controller.SetMuted(*req.Muted)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"volume": s.controller.Volume(),
		"muted":  s.controller.Muted(),
	})
}
