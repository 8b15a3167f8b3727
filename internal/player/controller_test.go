package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"songbird/internal/core"
)

// fakeSink records the commands a controller issues and lets tests inject
// sink events.
type fakeSink struct {
	mu        sync.Mutex
	source    string
	playing   bool
	playCalls int
	seeks     []time.Duration
	events    chan core.SinkEvent
}

func newFakeSink() *fakeSink {
	return &fakeSink{events: make(chan core.SinkEvent, 8)}
}

func (s *fakeSink) SetSource(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = url
	s.playing = false
	return nil
}

func (s *fakeSink) ClearSource() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = ""
	s.playing = false
	return nil
}

func (s *fakeSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = true
	s.playCalls++
	return nil
}

func (s *fakeSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	return nil
}

func (s *fakeSink) SeekTo(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeks = append(s.seeks, pos)
	return nil
}

func (s *fakeSink) Position() (time.Duration, error) { return 0, nil }
func (s *fakeSink) Duration() (time.Duration, error) { return 0, nil }
func (s *fakeSink) Events() <-chan core.SinkEvent    { return s.events }
func (s *fakeSink) Close() error                     { return nil }

func (s *fakeSink) currentSource() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

func (s *fakeSink) isPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *fakeSink) playCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playCalls
}

// endPlayback mimics the source running out: the sink stops on its own and
// then reports the end.
func (s *fakeSink) endPlayback() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
	s.events <- core.SinkEvent{Kind: core.SinkEnded}
}

// fakeResolver serves scripted results per track id. A gate channel, when
// present, holds the resolution open until the test releases it.
type fakeResolver struct {
	mu    sync.Mutex
	urls  map[string]string
	errs  map[string]error
	gates map[string]chan struct{}
	calls []string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		urls:  make(map[string]string),
		errs:  make(map[string]error),
		gates: make(map[string]chan struct{}),
	}
}

func (r *fakeResolver) Resolve(ctx context.Context, track core.Track) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, track.ID)
	gate := r.gates[track.ID]
	url := r.urls[track.ID]
	err := r.errs[track.ID]
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return url, nil
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	removed []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) Get(trackID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	url, ok := c.entries[trackID]
	return url, ok
}

func (c *fakeCache) Put(trackID, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[trackID] = url
}

func (c *fakeCache) Remove(trackID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, trackID)
	c.removed = append(c.removed, trackID)
}

func (c *fakeCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *fakeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]string)
}

func startController(t *testing.T, sink core.AudioSink, res core.StreamResolver, cache core.ResolvedCache) *Controller {
	t.Helper()
	cfg := &core.AppConfig{SkipDebounce: 20 * time.Millisecond}
	c := NewController(cfg, sink, res, cache, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

func waitForState(t *testing.T, c *Controller, desc string, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := c.CurrentState()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, last state: current=%v playing=%v resolving=%v preview=%v notice=%q",
				desc, s.Current, s.Playing, s.Resolving, s.UsingPreview, s.Notice)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPlayTrackResolvesAndStartsSink(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()
	res.urls["a"] = "https://cdn.example/a.m4a"

	c := startController(t, sink, res, nil)
	c.PlayTrack(core.Track{ID: "a", Title: "Alpha"}, testQueue("a", "b"))

	s := waitForState(t, c, "resolved playback", func(s State) bool {
		return s.Current != nil && s.Current.ResolvedURL != "" && !s.Resolving
	})

	if s.Current.ResolvedURL != "https://cdn.example/a.m4a" {
		t.Errorf("ResolvedURL = %q", s.Current.ResolvedURL)
	}
	if !s.Playing {
		t.Error("expected playing intent after resolution")
	}
	if got := sink.currentSource(); got != "https://cdn.example/a.m4a" {
		t.Errorf("sink source = %q", got)
	}
	if !sink.isPlaying() {
		t.Error("sink not playing")
	}
	// The resolved URL is written back into the queue for future replays.
	if s.Queue[0].ResolvedURL != "https://cdn.example/a.m4a" {
		t.Errorf("queue entry ResolvedURL = %q", s.Queue[0].ResolvedURL)
	}
}

func TestPlayableTrackNeverResolves(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()

	c := startController(t, sink, res, nil)
	c.PlayTrack(core.Track{ID: "local", IsLocal: true, ResolvedURL: "file:///music/x.flac"}, nil)

	waitForState(t, c, "local playback", func(s State) bool {
		return s.Playing && !s.Resolving && s.Current != nil
	})

	if got := sink.currentSource(); got != "file:///music/x.flac" {
		t.Errorf("sink source = %q", got)
	}
	if n := res.callCount(); n != 0 {
		t.Errorf("resolver called %d times for a playable track", n)
	}
}

func TestReselectingCurrentTrackDoesNotReresolve(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()
	res.urls["a"] = "https://cdn.example/a.m4a"

	c := startController(t, sink, res, nil)
	c.PlayTrack(core.Track{ID: "a"}, nil)
	waitForState(t, c, "first resolution", func(s State) bool { return !s.Resolving && s.Current != nil })

	c.Pause()
	c.PlayTrack(core.Track{ID: "a"}, nil)

	s := waitForState(t, c, "reselect", func(s State) bool { return s.Playing })
	if s.Current.ID != "a" {
		t.Fatalf("current = %q", s.Current.ID)
	}
	if n := res.callCount(); n != 1 {
		t.Errorf("resolver called %d times, want 1", n)
	}
}

func TestStaleResolutionIsDiscarded(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()
	gateA := make(chan struct{})
	res.gates["a"] = gateA
	res.urls["a"] = "https://cdn.example/a.m4a"
	res.urls["b"] = "https://cdn.example/b.m4a"

	c := startController(t, sink, res, nil)
	c.PlayTrack(core.Track{ID: "a"}, nil)
	waitForState(t, c, "a resolving", func(s State) bool { return s.Resolving })

	// Navigate away before a's resolution completes.
	c.PlayTrack(core.Track{ID: "b"}, nil)
	waitForState(t, c, "b resolved", func(s State) bool {
		return s.Current != nil && s.Current.ID == "b" && !s.Resolving
	})

	close(gateA)

	// The late result for a must not disturb b. Every CurrentState round
	// trip passes through the dispatch loop, so ten of them are more than
	// enough for the stale result to have been processed and dropped.
	for i := 0; i < 10; i++ {
		s := c.CurrentState()
		if s.Current.ID != "b" || s.Current.ResolvedURL != "https://cdn.example/b.m4a" {
			t.Fatalf("stale resolution leaked: current=%q url=%q", s.Current.ID, s.Current.ResolvedURL)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if got := sink.currentSource(); got != "https://cdn.example/b.m4a" {
		t.Errorf("sink source = %q", got)
	}
}

func TestResolutionFailureFallsBackToPreview(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()
	res.errs["a"] = errors.New("no stream found")

	c := startController(t, sink, res, nil)
	c.PlayTrack(core.Track{ID: "a", PreviewURL: "https://preview.example/a.mp3"}, nil)

	s := waitForState(t, c, "preview fallback", func(s State) bool { return s.UsingPreview })

	if !s.Playing {
		t.Error("playing intent lost during preview fallback")
	}
	if s.Notice != "" {
		t.Errorf("unexpected notice %q", s.Notice)
	}
	if got := sink.currentSource(); got != "https://preview.example/a.mp3" {
		t.Errorf("sink source = %q", got)
	}
}

func TestResolutionFailureWithoutPreviewStops(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()
	res.errs["a"] = errors.New("no stream found")

	c := startController(t, sink, res, nil)
	c.PlayTrack(core.Track{ID: "a"}, nil)

	s := waitForState(t, c, "unavailable notice", func(s State) bool { return s.Notice != "" })

	if s.Playing {
		t.Error("still playing with no source at any quality")
	}
	if s.Notice != NoticeUnavailable {
		t.Errorf("notice = %q, want %q", s.Notice, NoticeUnavailable)
	}
	if got := sink.currentSource(); got != "" {
		t.Errorf("sink source = %q, want empty", got)
	}
}

func TestSinkFailureDowngradesToPreviewAtStart(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()
	res.urls["a"] = "https://cdn.example/a.m4a"
	cache := newFakeCache()

	c := startController(t, sink, res, cache)
	c.PlayTrack(core.Track{ID: "a", PreviewURL: "https://preview.example/a.mp3"}, nil)
	waitForState(t, c, "full stream", func(s State) bool {
		return s.Current != nil && s.Current.ResolvedURL != ""
	})

	sink.events <- core.SinkEvent{Kind: core.SinkFailed, Err: errors.New("decode error")}

	s := waitForState(t, c, "downgrade", func(s State) bool { return s.UsingPreview })

	if s.Position != 0 {
		t.Errorf("position = %v after downgrade, want 0", s.Position)
	}
	if !s.Playing {
		t.Error("playing intent lost during downgrade")
	}
	if got := sink.currentSource(); got != "https://preview.example/a.mp3" {
		t.Errorf("sink source = %q", got)
	}
	// The dead full-quality URL must not survive in the session cache.
	if _, ok := cache.Get("a"); ok {
		t.Error("stale resolved URL still cached after sink failure")
	}
}

func TestSinkFailureOnPreviewSkipsToNext(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()
	res.errs["a"] = errors.New("no stream found")
	res.urls["b"] = "https://cdn.example/b.m4a"

	c := startController(t, sink, res, nil)
	c.PlayTrack(core.Track{ID: "a", PreviewURL: "https://preview.example/a.mp3"}, testQueue("a", "b"))
	waitForState(t, c, "preview fallback", func(s State) bool { return s.UsingPreview })

	// The preview itself fails; after the debounce the controller moves on.
	sink.events <- core.SinkEvent{Kind: core.SinkFailed, Err: errors.New("decode error")}

	s := waitForState(t, c, "skip to next", func(s State) bool {
		return s.Current != nil && s.Current.ID == "b"
	})
	if !s.Playing {
		t.Error("playing intent lost across the skip")
	}
}

func TestSinkEndedAdvancesAndWrapsAround(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()
	res.urls["a"] = "https://cdn.example/a.m4a"
	res.urls["b"] = "https://cdn.example/b.m4a"

	c := startController(t, sink, res, nil)
	c.PlayTrack(core.Track{ID: "b"}, testQueue("a", "b"))
	waitForState(t, c, "b playing", func(s State) bool {
		return s.Current != nil && s.Current.ResolvedURL != ""
	})

	sink.events <- core.SinkEvent{Kind: core.SinkEnded}

	s := waitForState(t, c, "wraparound", func(s State) bool {
		return s.Current != nil && s.Current.ID == "a"
	})
	if !s.Playing {
		t.Error("playing intent lost across track end")
	}
}

func TestSinkEndedOnSingleTrackQueueRestarts(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()
	res.urls["a"] = "https://cdn.example/a.m4a"

	c := startController(t, sink, res, nil)
	c.PlayTrack(core.Track{ID: "a"}, testQueue("a"))
	waitForState(t, c, "a playing", func(s State) bool {
		return s.Current != nil && s.Current.ResolvedURL != "" && s.Playing
	})
	firstPlays := sink.playCount()

	sink.endPlayback()

	// Wrapping onto the same track keeps the source, so the sink must be
	// commanded to play again rather than assumed still running.
	waitForState(t, c, "restart after wrap", func(State) bool {
		return sink.playCount() > firstPlays
	})

	s := c.CurrentState()
	if !s.Playing {
		t.Error("playing intent lost across track end")
	}
	if s.Position != 0 {
		t.Errorf("Position = %v, want restart from zero", s.Position)
	}
	if !sink.isPlaying() {
		t.Error("sink left stopped after wrapping onto the same track")
	}
}

func TestNavigationWithEmptyQueueIsNoop(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()

	c := startController(t, sink, res, nil)
	c.Next()
	c.Previous()

	s := c.CurrentState()
	if s.Current != nil || s.Playing {
		t.Errorf("navigation on empty queue changed state: current=%v playing=%v", s.Current, s.Playing)
	}
}

func TestTogglePause(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()
	res.urls["a"] = "https://cdn.example/a.m4a"

	c := startController(t, sink, res, nil)

	// Toggling with no current track is a no-op.
	c.TogglePause()
	if s := c.CurrentState(); s.Playing {
		t.Error("toggle with no track set playing")
	}

	c.PlayTrack(core.Track{ID: "a"}, nil)
	waitForState(t, c, "playing", func(s State) bool { return s.Playing && !s.Resolving })

	c.TogglePause()
	waitForState(t, c, "paused", func(s State) bool { return !s.Playing })
	if sink.isPlaying() {
		t.Error("sink still playing after pause")
	}

	c.TogglePause()
	waitForState(t, c, "resumed", func(s State) bool { return s.Playing })
	if !sink.isPlaying() {
		t.Error("sink not playing after resume")
	}
}

func TestResumeIsIdempotent(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()
	res.urls["a"] = "https://cdn.example/a.m4a"

	c := startController(t, sink, res, nil)

	// Resuming with no current track is a no-op.
	c.Resume()
	if s := c.CurrentState(); s.Playing {
		t.Error("resume with no track set playing")
	}

	c.PlayTrack(core.Track{ID: "a"}, nil)
	waitForState(t, c, "playing", func(s State) bool { return s.Playing && !s.Resolving })

	// A media-key Play while already playing must not pause.
	c.Resume()
	if s := c.CurrentState(); !s.Playing {
		t.Error("resume while playing paused playback")
	}

	c.Pause()
	waitForState(t, c, "paused", func(s State) bool { return !s.Playing })

	c.Resume()
	waitForState(t, c, "resumed", func(s State) bool { return s.Playing })
	if !sink.isPlaying() {
		t.Error("sink not playing after resume")
	}
}

func TestCachedResolutionSkipsResolver(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()
	cache := newFakeCache()
	cache.Put("a", "https://cdn.example/cached.m4a")

	c := startController(t, sink, res, cache)
	c.PlayTrack(core.Track{ID: "a"}, nil)

	waitForState(t, c, "cached playback", func(s State) bool {
		return s.Current != nil && s.Current.ResolvedURL != ""
	})

	if got := sink.currentSource(); got != "https://cdn.example/cached.m4a" {
		t.Errorf("sink source = %q", got)
	}
	if n := res.callCount(); n != 0 {
		t.Errorf("resolver called %d times despite cache hit", n)
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	sink := newFakeSink()
	res := newFakeResolver()
	res.urls["a"] = "https://cdn.example/a.m4a"

	c := startController(t, sink, res, nil)
	sub := c.Subscribe()

	c.PlayTrack(core.Track{ID: "a", Title: "Alpha"}, nil)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-sub:
			if s.Current != nil && s.Current.ID == "a" && s.Playing {
				return
			}
		case <-deadline:
			t.Fatal("no snapshot with the playing track arrived")
		}
	}
}
