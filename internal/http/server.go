// Package http exposes the playback API, health endpoints, and Prometheus
// metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"songbird/internal/core"
	"songbird/internal/flood"
	"songbird/internal/lyrics"
	"songbird/internal/player"
)

// Player is the slice of the playback controller the API drives.
type Player interface {
	PlayTrack(track core.Track, queue []core.Track)
	TogglePause()
	Pause()
	Stop()
	Next()
	Previous()
	SeekTo(pos time.Duration)
	SetLyrics(trackID, text string)
	CurrentState() player.State
}

// PlaylistGenerator builds a playlist from a mood prompt.
type PlaylistGenerator interface {
	FromMood(ctx context.Context, mood string) ([]core.Track, error)
}

type Server struct {
	config    *core.ServerConfig
	logger    *zap.Logger
	server    *http.Server
	metrics   *Metrics
	player    Player
	catalog   core.CatalogClient
	lyrics    core.LyricsClient
	generator PlaylistGenerator
	floodgate *flood.Floodgate
}

type Metrics struct {
	registry         *prometheus.Registry
	ResolutionsTotal *prometheus.CounterVec
	FallbacksTotal   prometheus.Counter
	SkipsTotal       prometheus.Counter
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songbird_resolutions_total",
				Help: "Total number of stream resolution attempts by outcome",
			},
			[]string{"outcome"},
		),
		FallbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "songbird_preview_fallbacks_total",
				Help: "Total number of downgrades to preview playback",
			},
		),
		SkipsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "songbird_failure_skips_total",
				Help: "Total number of automatic skips after playback failure",
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songbird_http_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "songbird_http_request_duration_seconds",
				Help:    "Time spent serving API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}

	m.registry.MustRegister(
		m.ResolutionsTotal,
		m.FallbacksTotal,
		m.SkipsTotal,
		m.RequestsTotal,
		m.RequestDuration,
	)
	return m
}

func NewServer(
	config *core.ServerConfig,
	playerAPI Player,
	catalog core.CatalogClient,
	lyricsClient core.LyricsClient,
	generator PlaylistGenerator,
	logger *zap.Logger,
) *Server {
	s := &Server{
		config:    config,
		logger:    logger,
		metrics:   newMetrics(),
		player:    playerAPI,
		catalog:   catalog,
		lyrics:    lyricsClient,
		generator: generator,
		floodgate: flood.New(config.RequestsPerMin),
	}
	s.server = createHTTPServer(config, s.routes())
	return s
}

// BindPlayer attaches the playback controller. The server is constructed
// first because the controller reports its metrics through it.
func (s *Server) BindPlayer(playerAPI Player) {
	s.player = playerAPI
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"songbird"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"songbird"}`))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/api/search", s.limited("search", http.MethodGet, s.handleSearch))
	mux.HandleFunc("/api/trending", s.limited("trending", http.MethodGet, s.handleTrending))
	mux.HandleFunc("/api/state", s.limited("state", http.MethodGet, s.handleState))
	mux.HandleFunc("/api/queue", s.limited("queue", http.MethodGet, s.handleQueue))
	mux.HandleFunc("/api/lyrics", s.limited("lyrics", http.MethodGet, s.handleLyrics))
	mux.HandleFunc("/api/mood", s.limited("mood", http.MethodPost, s.handleMood))
	mux.HandleFunc("/api/play", s.limited("play", http.MethodPost, s.handlePlay))
	mux.HandleFunc("/api/toggle", s.limited("toggle", http.MethodPost, s.handleToggle))
	mux.HandleFunc("/api/stop", s.limited("stop", http.MethodPost, s.handleStop))
	mux.HandleFunc("/api/next", s.limited("next", http.MethodPost, s.handleNext))
	mux.HandleFunc("/api/previous", s.limited("previous", http.MethodPost, s.handlePrevious))
	mux.HandleFunc("/api/seek", s.limited("seek", http.MethodPost, s.handleSeek))

	return mux
}

// limited wraps an API handler with method dispatch, per-client rate
// limiting, and request metrics.
func (s *Server) limited(endpoint, method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if r.Method != method {
			s.writeError(w, endpoint, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !s.floodgate.CheckRequest(clientAddr(r)) {
			s.writeError(w, endpoint, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next(w, r)
		s.metrics.RequestsTotal.WithLabelValues(endpoint, "ok").Inc()
		s.metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// --- Handlers ----------------------------------------------------------

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeError(w, "search", http.StatusBadRequest, "missing query parameter q")
		return
	}

	tracks, err := s.catalog.Search(r.Context(), query)
	if err != nil {
		s.logger.Warn("Search failed", zap.String("query", query), zap.Error(err))
		s.writeError(w, "search", http.StatusBadGateway, "catalog unavailable")
		return
	}

	s.writeJSON(w, map[string]any{"tracks": toTrackJSONList(tracks)})
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.catalog.Trending(r.Context())
	if err != nil {
		s.logger.Warn("Trending failed", zap.Error(err))
		s.writeError(w, "trending", http.StatusBadGateway, "catalog unavailable")
		return
	}

	s.writeJSON(w, map[string]any{"tracks": toTrackJSONList(tracks)})
}

type playRequest struct {
	Track trackJSON   `json:"track"`
	Queue []trackJSON `json:"queue,omitempty"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "play", http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Track.ID == "" {
		s.writeError(w, "play", http.StatusBadRequest, "track id is required")
		return
	}

	// Selecting the current track again toggles pause instead of
	// restarting; a different track starts fresh playback.
	state := s.player.CurrentState()
	if state.Current != nil && state.Current.ID == req.Track.ID {
		s.player.TogglePause()
	} else {
		var queue []core.Track
		for _, t := range req.Queue {
			queue = append(queue, t.toTrack())
		}
		s.player.PlayTrack(req.Track.toTrack(), queue)
	}

	s.writeJSON(w, stateJSONFrom(s.player.CurrentState()))
}

func (s *Server) handleToggle(w http.ResponseWriter, _ *http.Request) {
	s.player.TogglePause()
	s.writeJSON(w, stateJSONFrom(s.player.CurrentState()))
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.player.Stop()
	s.writeJSON(w, stateJSONFrom(s.player.CurrentState()))
}

func (s *Server) handleNext(w http.ResponseWriter, _ *http.Request) {
	s.player.Next()
	s.writeJSON(w, stateJSONFrom(s.player.CurrentState()))
}

func (s *Server) handlePrevious(w http.ResponseWriter, _ *http.Request) {
	s.player.Previous()
	s.writeJSON(w, stateJSONFrom(s.player.CurrentState()))
}

type seekRequest struct {
	PositionMs int64 `json:"positionMs"`
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "seek", http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PositionMs < 0 {
		s.writeError(w, "seek", http.StatusBadRequest, "position must not be negative")
		return
	}

	s.player.SeekTo(time.Duration(req.PositionMs) * time.Millisecond)
	s.writeJSON(w, stateJSONFrom(s.player.CurrentState()))
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, stateJSONFrom(s.player.CurrentState()))
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	state := s.player.CurrentState()
	s.writeJSON(w, map[string]any{"queue": toTrackJSONList(state.Queue)})
}

func (s *Server) handleLyrics(w http.ResponseWriter, r *http.Request) {
	state := s.player.CurrentState()
	if state.Current == nil {
		s.writeError(w, "lyrics", http.StatusNotFound, "nothing playing")
		return
	}

	text, err := s.lyrics.Fetch(r.Context(), state.Current.Artist, state.Current.Title)
	if err != nil {
		if errors.Is(err, lyrics.ErrNoLyrics) {
			s.writeError(w, "lyrics", http.StatusNotFound, "no lyrics found")
			return
		}
		s.logger.Warn("Lyrics fetch failed", zap.Error(err))
		s.writeError(w, "lyrics", http.StatusBadGateway, "lyrics service unavailable")
		return
	}

	s.player.SetLyrics(state.Current.ID, text)
	s.writeJSON(w, map[string]any{"trackId": state.Current.ID, "lyrics": text})
}

type moodRequest struct {
	Mood string `json:"mood"`
}

func (s *Server) handleMood(w http.ResponseWriter, r *http.Request) {
	var req moodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "mood", http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Mood) == "" {
		s.writeError(w, "mood", http.StatusBadRequest, "mood is required")
		return
	}

	tracks, err := s.generator.FromMood(r.Context(), req.Mood)
	if err != nil {
		s.logger.Warn("Mood playlist generation failed", zap.String("mood", req.Mood), zap.Error(err))
		s.writeError(w, "mood", http.StatusBadGateway, "playlist generation failed")
		return
	}

	s.writeJSON(w, map[string]any{"tracks": toTrackJSONList(tracks)})
}

// --- Wire types --------------------------------------------------------

type trackJSON struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	CoverURL   string `json:"coverUrl,omitempty"`
	PreviewURL string `json:"previewUrl,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	IsLocal    bool   `json:"isLocal,omitempty"`
	Resolved   bool   `json:"resolved"`
}

func toTrackJSON(t core.Track) trackJSON {
	return trackJSON{
		ID:         t.ID,
		Title:      t.Title,
		Artist:     t.DisplayArtist(),
		Album:      t.Album,
		CoverURL:   t.Cover(),
		PreviewURL: t.PreviewURL,
		DurationMs: t.Duration.Milliseconds(),
		IsLocal:    t.IsLocal,
		Resolved:   t.ResolvedURL != "",
	}
}

// toTrack rebuilds the catalog identity from the wire form. Stream URLs are
// never accepted from clients; resolution always happens server side.
func (t trackJSON) toTrack() core.Track {
	return core.Track{
		ID:         t.ID,
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		CoverURL:   t.CoverURL,
		PreviewURL: t.PreviewURL,
		Duration:   time.Duration(t.DurationMs) * time.Millisecond,
		IsLocal:    t.IsLocal,
	}
}

func toTrackJSONList(tracks []core.Track) []trackJSON {
	out := make([]trackJSON, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, toTrackJSON(t))
	}
	return out
}

type stateJSON struct {
	Current      *trackJSON  `json:"current,omitempty"`
	Queue        []trackJSON `json:"queue"`
	Playing      bool        `json:"playing"`
	Resolving    bool        `json:"resolving"`
	UsingPreview bool        `json:"usingPreview"`
	PositionMs   int64       `json:"positionMs"`
	DurationMs   int64       `json:"durationMs"`
	Lyrics       string      `json:"lyrics,omitempty"`
	Notice       string      `json:"notice,omitempty"`
}

func stateJSONFrom(s player.State) stateJSON {
	out := stateJSON{
		Queue:        toTrackJSONList(s.Queue),
		Playing:      s.Playing,
		Resolving:    s.Resolving,
		UsingPreview: s.UsingPreview,
		PositionMs:   s.Position.Milliseconds(),
		DurationMs:   s.Duration.Milliseconds(),
		Lyrics:       s.Lyrics,
		Notice:       s.Notice,
	}
	if s.Current != nil {
		current := toTrackJSON(*s.Current)
		out.Current = &current
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, status int, message string) {
	s.metrics.RequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// --- Lifecycle ---------------------------------------------------------

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")
		s.floodgate.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// --- Playback metrics --------------------------------------------------

// RecordResolution implements player.Metrics.
func (s *Server) RecordResolution(outcome string) {
	s.metrics.ResolutionsTotal.WithLabelValues(outcome).Inc()
}

// RecordFallback implements player.Metrics.
func (s *Server) RecordFallback() {
	s.metrics.FallbacksTotal.Inc()
}

// RecordSkip implements player.Metrics.
func (s *Server) RecordSkip() {
	s.metrics.SkipsTotal.Inc()
}
