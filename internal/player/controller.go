// Package player owns playback state: the current track, the queue, and the
// playing intent. It mediates between asynchronous stream resolution and the
// single underlying audio sink.
package player

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"songbird/internal/core"
)

// NoticeUnavailable is surfaced on the state when a track cannot be played
// at any quality.
const NoticeUnavailable = "track unavailable"

// State is an immutable snapshot of the controller's playback state.
type State struct {
	Current      *core.Track
	Queue        []core.Track
	Playing      bool
	Resolving    bool
	UsingPreview bool
	Position     time.Duration
	Duration     time.Duration
	Lyrics       string
	Notice       string
}

// Metrics receives playback counters. The HTTP server implements this; the
// controller never depends on the metrics backend directly.
type Metrics interface {
	RecordResolution(outcome string)
	RecordFallback()
	RecordSkip()
}

// NopMetrics discards all playback counters.
type NopMetrics struct{}

func (NopMetrics) RecordResolution(string) {}
func (NopMetrics) RecordFallback()         {}
func (NopMetrics) RecordSkip()             {}

type commandKind int

const (
	cmdPlayTrack commandKind = iota
	cmdTogglePause
	cmdResume
	cmdPause
	cmdStop
	cmdNext
	cmdPrevious
	cmdSeek
	cmdSetLyrics
	cmdSkipAfterFailure
	cmdGetState
)

type command struct {
	kind   commandKind
	track  core.Track
	queue  []core.Track
	pos    time.Duration
	text   string
	id     string // track identity guard for deferred commands
	replyC chan State
}

// resolution is the outcome of one asynchronous resolve call, tagged with
// the identity of the track it was resolving for.
type resolution struct {
	trackID string
	url     string
	err     error
}

// Controller reconciles playback intent with the audio sink. All state
// transitions flow through the single Run loop; public methods only enqueue
// commands, so the controller needs no locks around its state.
type Controller struct {
	config   *core.AppConfig
	logger   *zap.Logger
	sink     core.AudioSink
	resolver core.StreamResolver
	cache    core.ResolvedCache
	metrics  Metrics

	commands    chan command
	resolutions chan resolution

	// Run-loop-owned state. Never touched outside the loop.
	runCtx       context.Context
	current      *core.Track
	queue        []core.Track
	playing      bool
	resolving    bool
	usingPreview bool
	position     time.Duration
	duration     time.Duration
	lyrics       string
	notice       string

	// Sink bookkeeping so reconciliation only issues real changes.
	sinkSource  string
	sinkPlaying bool

	subsMu      sync.Mutex
	subscribers []chan State
}

// NewController creates a playback controller over the given sink and
// resolver. The resolved-URL cache may be nil to disable session caching.
func NewController(
	config *core.AppConfig,
	sink core.AudioSink,
	resolver core.StreamResolver,
	cache core.ResolvedCache,
	metrics Metrics,
	logger *zap.Logger,
) *Controller {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Controller{
		config:      config,
		logger:      logger,
		sink:        sink,
		resolver:    resolver,
		cache:       cache,
		metrics:     metrics,
		commands:    make(chan command, 16),
		resolutions: make(chan resolution, 4),
	}
}

// Run drives the controller until the context is canceled. All commands,
// sink events, and resolution results are dispatched from here.
func (c *Controller) Run(ctx context.Context) error {
	c.runCtx = ctx
	c.logger.Info("Playback controller started")

	for {
		select {
		case <-ctx.Done():
			_ = c.sink.Pause()
			c.logger.Info("Playback controller stopped")
			return nil

		case cmd := <-c.commands:
			c.handleCommand(cmd)

		case res := <-c.resolutions:
			c.handleResolution(res)

		case ev, ok := <-c.sink.Events():
			if !ok {
				c.logger.Warn("Sink event channel closed")
				return nil
			}
			c.handleSinkEvent(ev)
		}

		c.reconcile()
		c.publish()
	}
}

// --- Public operations -------------------------------------------------

// PlayTrack makes the track current with playing intent. A non-nil queue
// that differs from the current one replaces it, so playback started from a
// different listing carries its context along.
func (c *Controller) PlayTrack(track core.Track, queue []core.Track) {
	c.commands <- command{kind: cmdPlayTrack, track: track, queue: queue}
}

// TogglePause flips the playing intent without touching the current track.
func (c *Controller) TogglePause() {
	c.commands <- command{kind: cmdTogglePause}
}

// Resume sets the playing intent without flipping it; resuming an already
// playing track is a no-op.
func (c *Controller) Resume() {
	c.commands <- command{kind: cmdResume}
}

// Pause sets the playing intent to paused.
func (c *Controller) Pause() {
	c.commands <- command{kind: cmdPause}
}

// Stop pauses and rewinds the current track.
func (c *Controller) Stop() {
	c.commands <- command{kind: cmdStop}
}

// Next advances to the following queue entry, wrapping around.
func (c *Controller) Next() {
	c.commands <- command{kind: cmdNext}
}

// Previous goes back to the preceding queue entry, wrapping around.
func (c *Controller) Previous() {
	c.commands <- command{kind: cmdPrevious}
}

// SeekTo seeks within the current track.
func (c *Controller) SeekTo(pos time.Duration) {
	c.commands <- command{kind: cmdSeek, pos: pos}
}

// SetLyrics attaches fetched lyrics to the current track's display state.
// They are cleared automatically when the current track changes.
func (c *Controller) SetLyrics(trackID, text string) {
	c.commands <- command{kind: cmdSetLyrics, id: trackID, text: text}
}

// CurrentState returns a snapshot of the playback state.
func (c *Controller) CurrentState() State {
	replyC := make(chan State, 1)
	c.commands <- command{kind: cmdGetState, replyC: replyC}
	return <-replyC
}

// Subscribe registers a state observer. Snapshots are delivered best-effort;
// slow consumers miss intermediate states, never block playback.
func (c *Controller) Subscribe() <-chan State {
	ch := make(chan State, 8)
	c.subsMu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.subsMu.Unlock()
	return ch
}

// --- Command handling --------------------------------------------------

func (c *Controller) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdPlayTrack:
		c.startTrack(cmd.track, cmd.queue)
	case cmdTogglePause:
		if c.current != nil {
			c.playing = !c.playing
		}
	case cmdResume:
		if c.current != nil {
			c.playing = true
		}
	case cmdPause:
		c.playing = false
	case cmdStop:
		c.playing = false
		c.position = 0
		if c.sinkSource != "" {
			_ = c.sink.SeekTo(0)
		}
	case cmdNext:
		c.advance()
	case cmdPrevious:
		if prev, ok := PreviousTrack(c.queue, c.current); ok {
			c.startTrack(prev, nil)
		}
	case cmdSeek:
		if c.sinkSource != "" {
			if err := c.sink.SeekTo(cmd.pos); err != nil {
				c.logger.Warn("Seek failed", zap.Error(err))
			} else {
				c.position = cmd.pos
			}
		}
	case cmdSetLyrics:
		if c.current != nil && c.current.ID == cmd.id {
			c.lyrics = cmd.text
		}
	case cmdSkipAfterFailure:
		// The debounced skip only applies if the failing track is still
		// current; the user may have moved on meanwhile.
		if c.current != nil && c.current.ID == cmd.id {
			c.metrics.RecordSkip()
			c.advance()
		}
	case cmdGetState:
		cmd.replyC <- c.snapshot()
	}
}

// startTrack makes the given track current and kicks off resolution when it
// has no playable source yet.
func (c *Controller) startTrack(track core.Track, newQueue []core.Track) {
	if newQueue != nil && !sameQueue(c.queue, newQueue) {
		c.queue = append([]core.Track(nil), newQueue...)
	}

	if c.current != nil && c.current.ID == track.ID {
		// Reselecting the current track only asserts playing intent; it
		// never re-resolves.
		c.playing = true
		return
	}

	c.current = &track
	c.playing = true
	c.usingPreview = false
	c.resolving = false
	c.position = 0
	c.duration = track.Duration
	c.lyrics = ""
	c.notice = ""

	if track.Playable() {
		return
	}

	if c.cache != nil {
		if url, ok := c.cache.Get(track.ID); ok {
			c.adoptResolvedURL(track.ID, url)
			return
		}
	}

	c.resolving = true
	go c.resolve(c.runCtx, track)
}

// resolve runs off the loop goroutine; its result is fed back through the
// resolutions channel so the loop applies it with the stale-result guard.
func (c *Controller) resolve(ctx context.Context, track core.Track) {
	url, err := c.resolver.Resolve(ctx, track)
	select {
	case c.resolutions <- resolution{trackID: track.ID, url: url, err: err}:
	case <-ctx.Done():
	}
}

func (c *Controller) handleResolution(res resolution) {
	if c.current == nil || c.current.ID != res.trackID {
		// Stale: the user navigated away before resolution completed. The
		// result must not touch the new current track or the sink.
		c.logger.Debug("Discarding stale resolution", zap.String("trackID", res.trackID))
		c.metrics.RecordResolution("stale")
		return
	}

	c.resolving = false

	if res.err == nil {
		c.adoptResolvedURL(res.trackID, res.url)
		c.metrics.RecordResolution("resolved")
		return
	}

	if c.current.PreviewURL != "" {
		c.usingPreview = true
		c.metrics.RecordResolution("preview")
		c.metrics.RecordFallback()
		c.logger.Info("Falling back to preview stream",
			zap.String("trackID", res.trackID),
			zap.Error(res.err))
		return
	}

	c.playing = false
	c.notice = NoticeUnavailable
	c.metrics.RecordResolution("unavailable")
	c.logger.Warn("Track unavailable at any quality",
		zap.String("trackID", res.trackID),
		zap.Error(res.err))
}

// adoptResolvedURL replaces the current track and its queue entry with a
// value carrying the stream URL, so future replays skip resolution.
func (c *Controller) adoptResolvedURL(trackID, url string) {
	updated := c.current.WithResolvedURL(url)
	c.current = &updated
	replaceInQueue(c.queue, updated)
	if c.cache != nil {
		c.cache.Put(trackID, url)
	}
}

// --- Sink events -------------------------------------------------------

func (c *Controller) handleSinkEvent(ev core.SinkEvent) {
	switch ev.Kind {
	case core.SinkStarted:
		// Intent already reflects this; nothing to latch.
	case core.SinkMetadata:
		// The sink's duration is authoritative over catalog metadata.
		if ev.Duration > 0 {
			c.duration = ev.Duration
		}
	case core.SinkProgress:
		c.position = ev.Position
		if ev.Duration > 0 {
			c.duration = ev.Duration
		}
	case core.SinkEnded:
		// The sink stopped itself when the source ran out; the cached play
		// state must reflect that or a wrap onto the same track would never
		// re-issue Play.
		c.sinkPlaying = false
		// Natural end always advances, fallback state or not.
		c.advance()
	case core.SinkFailed:
		c.sinkPlaying = false
		c.handleSinkFailure(ev)
	}
}

// handleSinkFailure implements the one-shot downgrade: first failure on the
// full stream switches to the preview at position zero; a failure while
// already on the preview, or with no preview, schedules a debounced skip.
func (c *Controller) handleSinkFailure(ev core.SinkEvent) {
	if !c.playing || c.current == nil {
		return
	}

	c.logger.Warn("Sink reported playback failure",
		zap.String("trackID", c.current.ID),
		zap.Error(ev.Err))

	if !c.usingPreview && c.current.PreviewURL != "" {
		c.usingPreview = true
		c.position = 0
		c.metrics.RecordFallback()
		// Drop the dead full-quality URL everywhere so reconciliation
		// rebinds the sink to the preview from the start, and so a replay
		// doesn't readopt it from the session cache.
		downgraded := c.current.WithResolvedURL("")
		c.current = &downgraded
		replaceInQueue(c.queue, downgraded)
		if c.cache != nil {
			c.cache.Remove(downgraded.ID)
		}
		return
	}

	trackID := c.current.ID
	time.AfterFunc(c.skipDebounce(), func() {
		select {
		case c.commands <- command{kind: cmdSkipAfterFailure, id: trackID}:
		default:
		}
	})
}

func (c *Controller) skipDebounce() time.Duration {
	if c.config != nil && c.config.SkipDebounce > 0 {
		return c.config.SkipDebounce
	}
	return time.Second
}

// advance moves to the next queue entry, wrapping around. With an empty
// queue there is nowhere to go; playback simply stops.
func (c *Controller) advance() {
	if next, ok := NextTrack(c.queue, c.current); ok {
		// A one-track queue wraps onto the current track; startTrack's
		// reselect branch keeps position, so restart it here.
		c.position = 0
		c.startTrack(next, nil)
		return
	}
	c.playing = false
	c.position = 0
}

// --- Sink reconciliation -----------------------------------------------

// desiredSource computes the sink source implied by the current state:
// resolved URL if present, preview when in fallback, otherwise none.
func (c *Controller) desiredSource() string {
	if c.current == nil {
		return ""
	}
	if c.current.ResolvedURL != "" {
		return c.current.ResolvedURL
	}
	if c.usingPreview && c.current.PreviewURL != "" {
		return c.current.PreviewURL
	}
	return ""
}

// reconcile pushes the controller's state onto the sink. It is called after
// every transition, and only issues commands the sink has not already seen.
// Playing with no source is a no-op, not an error: intent stays latched
// until resolution supplies a source.
func (c *Controller) reconcile() {
	source := c.desiredSource()

	if source != c.sinkSource {
		if source == "" {
			if err := c.sink.ClearSource(); err != nil {
				c.logger.Warn("Failed to clear sink source", zap.Error(err))
			}
		} else {
			if err := c.sink.SetSource(source); err != nil {
				c.logger.Warn("Failed to set sink source", zap.Error(err))
				return
			}
		}
		c.sinkSource = source
		c.sinkPlaying = false
	}

	shouldPlay := c.playing && !c.resolving && source != ""
	if shouldPlay == c.sinkPlaying {
		return
	}

	if shouldPlay {
		if err := c.sink.Play(); err != nil {
			c.logger.Warn("Sink play failed", zap.Error(err))
			return
		}
	} else {
		if err := c.sink.Pause(); err != nil {
			c.logger.Warn("Sink pause failed", zap.Error(err))
			return
		}
	}
	c.sinkPlaying = shouldPlay
}

// --- State publication -------------------------------------------------

func (c *Controller) snapshot() State {
	s := State{
		Queue:        append([]core.Track(nil), c.queue...),
		Playing:      c.playing,
		Resolving:    c.resolving,
		UsingPreview: c.usingPreview,
		Position:     c.position,
		Duration:     c.duration,
		Lyrics:       c.lyrics,
		Notice:       c.notice,
	}
	if c.current != nil {
		track := *c.current
		s.Current = &track
	}
	return s
}

func (c *Controller) publish() {
	s := c.snapshot()
	c.subsMu.Lock()
	for _, ch := range c.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
	c.subsMu.Unlock()
}
