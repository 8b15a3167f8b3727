package core

import (
	"context"
	"time"
)

const (
	// UnknownArtist is the sentinel artist name used when a provider supplies none.
	UnknownArtist = "Unknown Artist"
	// PlaceholderCoverURL is used when a track has no artwork.
	PlaceholderCoverURL = "/static/cover-placeholder.png"
)

// Track is a playable unit. Tracks are immutable values: filling in a stream
// URL produces a new Track that replaces the old one in the queue and as the
// current track, never a mutation of a shared copy.
type Track struct {
	ID          string
	Title       string
	Artist      string
	Album       string
	CoverURL    string
	ResolvedURL string
	PreviewURL  string
	Duration    time.Duration
	IsLocal     bool
}

// WithResolvedURL returns a copy of the track with the stream URL filled in.
func (t Track) WithResolvedURL(url string) Track {
	t.ResolvedURL = url
	return t
}

// Playable reports whether the track already carries a directly playable
// source and therefore never needs resolution.
func (t Track) Playable() bool {
	return t.IsLocal || t.ResolvedURL != ""
}

// DisplayArtist returns the artist name, defaulting to the unknown sentinel.
func (t Track) DisplayArtist() string {
	if t.Artist == "" {
		return UnknownArtist
	}
	return t.Artist
}

// Cover returns the artwork URL, defaulting to the placeholder.
func (t Track) Cover() string {
	if t.CoverURL == "" {
		return PlaceholderCoverURL
	}
	return t.CoverURL
}

// CatalogClient searches the external track catalog. Implementations must
// tolerate provider failure by returning an empty or static fallback list.
type CatalogClient interface {
	Search(ctx context.Context, query string) ([]Track, error)
	Trending(ctx context.Context) ([]Track, error)
}

// StreamResolver turns track identity into a playable stream URL.
// It returns ErrNotFound only after every candidate provider failed.
type StreamResolver interface {
	Resolve(ctx context.Context, track Track) (string, error)
}

// LyricsClient fetches lyrics for a track.
type LyricsClient interface {
	Fetch(ctx context.Context, artist, title string) (string, error)
}

// Recommender suggests song titles for a mood prompt, at most five.
type Recommender interface {
	SuggestTitles(ctx context.Context, mood string) ([]string, error)
}

// SinkEventKind enumerates events emitted by an audio sink.
type SinkEventKind int

const (
	// SinkStarted is emitted when the sink begins playing its current source.
	SinkStarted SinkEventKind = iota
	// SinkMetadata is emitted once the source's authoritative duration is known.
	SinkMetadata
	// SinkProgress is emitted periodically with the playback position.
	SinkProgress
	// SinkEnded is emitted when the current source plays to completion.
	SinkEnded
	// SinkFailed is emitted when the sink cannot play its current source.
	SinkFailed
)

// SinkEvent is a single event from the audio sink.
type SinkEvent struct {
	Kind     SinkEventKind
	Position time.Duration
	Duration time.Duration
	Err      error
}

// AudioSink is the single underlying playable media primitive. Only the
// playback controller may drive it.
type AudioSink interface {
	SetSource(url string) error
	ClearSource() error
	Play() error
	Pause() error
	SeekTo(pos time.Duration) error
	Position() (time.Duration, error)
	Duration() (time.Duration, error)
	Events() <-chan SinkEvent
	Close() error
}

// ResolvedCache remembers stream URLs resolved during this session.
type ResolvedCache interface {
	Get(trackID string) (string, bool)
	Put(trackID, url string)
	Remove(trackID string)
	Size() int
	Clear()
}
