// Package sink drives the MPD audio backend. MPD's own queue is used as a
// single-slot source holder; queue semantics live in the player package.
package sink

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"go.uber.org/zap"

	"songbird/internal/core"
)

const (
	// DefaultProgressPeriod is how often position snapshots are emitted.
	DefaultProgressPeriod = time.Second
	eventBuffer           = 16
)

// Sink implements core.AudioSink over an MPD server, with reconnection on
// dropped control connections.
type Sink struct {
	mu       sync.Mutex
	client   *mpd.Client
	config   *core.SinkConfig
	logger   *zap.Logger
	events   chan core.SinkEvent
	done     chan struct{}
	closeOne sync.Once

	// Guarded by mu. wantPlaying distinguishes commanded stops from the
	// current source playing out.
	wantPlaying bool
	lastState   string
}

// NewSink connects to MPD and starts the event watcher. The progress period
// controls how often position events are emitted while playing.
func NewSink(config *core.SinkConfig, progressPeriod time.Duration, logger *zap.Logger) (*Sink, error) {
	if progressPeriod <= 0 {
		progressPeriod = DefaultProgressPeriod
	}

	s := &Sink{
		config: config,
		logger: logger,
		events: make(chan core.SinkEvent, eventBuffer),
		done:   make(chan struct{}),
	}

	if err := s.connect(); err != nil {
		return nil, err
	}

	watcher, err := mpd.NewWatcher("tcp", s.addr(), config.Password, "player")
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create MPD watcher: %w", err)
	}

	go s.watch(watcher)
	go s.progressLoop(progressPeriod)

	return s, nil
}

func (s *Sink) addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

func (s *Sink) connect() error {
	s.logger.Info("Connecting to MPD", zap.String("addr", s.addr()))

	client, err := mpd.Dial("tcp", s.addr())
	if err != nil {
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}

	if s.config.Password != "" {
		if err := client.Command("password %s", s.config.Password).OK(); err != nil {
			_ = client.Close()
			return fmt.Errorf("MPD authentication failed: %w", err)
		}
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	return nil
}

// ensureConnected pings the control connection and reconnects when it has
// gone away. Must be called without holding mu.
func (s *Sink) ensureConnected() error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client != nil && client.Ping() == nil {
		return nil
	}
	if client != nil {
		s.logger.Warn("MPD connection lost, reconnecting")
		_ = client.Close()
	}
	return s.connect()
}

// SetSource replaces MPD's queue with the single given URL, paused.
func (s *Sink) SetSource(url string) error {
	if err := s.ensureConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.Stop(); err != nil {
		return fmt.Errorf("failed to stop current source: %w", err)
	}
	if err := s.client.Clear(); err != nil {
		return fmt.Errorf("failed to clear source: %w", err)
	}
	if err := s.client.Add(url); err != nil {
		return fmt.Errorf("failed to load source: %w", err)
	}
	s.wantPlaying = false
	return nil
}

// ClearSource stops playback and unloads the current source.
func (s *Sink) ClearSource() error {
	if err := s.ensureConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.wantPlaying = false
	if err := s.client.Stop(); err != nil {
		return err
	}
	return s.client.Clear()
}

// Play starts or resumes the loaded source.
func (s *Sink) Play() error {
	if err := s.ensureConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status, err := s.client.Status()
	if err != nil {
		return err
	}

	s.wantPlaying = true
	if status["state"] == "pause" {
		return s.client.Pause(false)
	}
	return s.client.Play(0)
}

// Pause suspends playback, keeping the source and position.
func (s *Sink) Pause() error {
	if err := s.ensureConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.wantPlaying = false

	status, err := s.client.Status()
	if err != nil {
		return err
	}
	if status["state"] != "play" {
		return nil
	}
	return s.client.Pause(true)
}

// SeekTo seeks within the loaded source.
func (s *Sink) SeekTo(pos time.Duration) error {
	if err := s.ensureConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status, err := s.client.Status()
	if err != nil {
		return err
	}
	songPos, err := strconv.Atoi(status["song"])
	if err != nil {
		return fmt.Errorf("no source loaded")
	}
	return s.client.Seek(songPos, int(pos/time.Second))
}

// Position returns the playback position within the loaded source.
func (s *Sink) Position() (time.Duration, error) {
	status, err := s.status()
	if err != nil {
		return 0, err
	}
	return attrSeconds(status, "elapsed"), nil
}

// Duration returns the duration of the loaded source.
func (s *Sink) Duration() (time.Duration, error) {
	status, err := s.status()
	if err != nil {
		return 0, err
	}
	return attrSeconds(status, "duration"), nil
}

// Events returns the sink's event stream.
func (s *Sink) Events() <-chan core.SinkEvent {
	return s.events
}

// Close tears down the watcher and the control connection.
func (s *Sink) Close() error {
	s.closeOne.Do(func() { close(s.done) })

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		err := s.client.Close()
		s.client = nil
		return err
	}
	return nil
}

func (s *Sink) status() (mpd.Attrs, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Status()
}

// watch consumes MPD player subsystem changes and translates state
// transitions into sink events.
func (s *Sink) watch(watcher *mpd.Watcher) {
	defer func() {
		_ = watcher.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case err, ok := <-watcher.Error:
			if !ok {
				return
			}
			s.logger.Warn("MPD watcher error", zap.Error(err))
		case _, ok := <-watcher.Event:
			if !ok {
				return
			}
			s.handlePlayerChange()
		}
	}
}

func (s *Sink) handlePlayerChange() {
	status, err := s.status()
	if err != nil {
		s.logger.Warn("Failed to read MPD status", zap.Error(err))
		return
	}

	s.mu.Lock()
	prevState := s.lastState
	state := status["state"]
	s.lastState = state
	wantPlaying := s.wantPlaying
	if state == "stop" {
		s.wantPlaying = false
	}
	s.mu.Unlock()

	if errText := status["error"]; errText != "" {
		s.clearError()
		s.emit(core.SinkEvent{Kind: core.SinkFailed, Err: fmt.Errorf("mpd: %s", errText)})
		return
	}

	switch {
	case state == "play" && prevState != "play":
		s.emit(core.SinkEvent{Kind: core.SinkStarted})
		if d := attrSeconds(status, "duration"); d > 0 {
			s.emit(core.SinkEvent{Kind: core.SinkMetadata, Duration: d})
		}
	case state == "stop" && wantPlaying:
		// MPD stopped on its own while we wanted playback: the source
		// played out. Commanded stops reset wantPlaying first and never
		// get here.
		s.emit(core.SinkEvent{Kind: core.SinkEnded})
	}
}

func (s *Sink) clearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		if err := s.client.Command("clearerror").OK(); err != nil {
			s.logger.Debug("Failed to clear MPD error state", zap.Error(err))
		}
	}
}

func (s *Sink) progressLoop(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			active := s.wantPlaying
			s.mu.Unlock()
			if !active {
				continue
			}

			status, err := s.status()
			if err != nil {
				continue
			}
			if status["state"] != "play" {
				continue
			}
			s.emit(core.SinkEvent{
				Kind:     core.SinkProgress,
				Position: attrSeconds(status, "elapsed"),
				Duration: attrSeconds(status, "duration"),
			})
		}
	}
}

// emit delivers an event without ever blocking MPD handling. The consumer
// keeps up in practice; under backpressure stale progress is the first to go.
func (s *Sink) emit(ev core.SinkEvent) {
	select {
	case s.events <- ev:
	default:
		s.logger.Debug("Dropping sink event", zap.Int("kind", int(ev.Kind)))
	}
}

// attrSeconds parses a fractional seconds attribute from an MPD status map.
func attrSeconds(attrs mpd.Attrs, key string) time.Duration {
	value, ok := attrs[key]
	if !ok {
		return 0
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
