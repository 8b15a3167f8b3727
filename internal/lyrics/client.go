// Package lyrics fetches song lyrics from an LRCLIB-compatible service.
package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"songbird/internal/core"
	"songbird/pkg/fuzzy"
)

const (
	// DefaultTimeout bounds a single lyrics lookup.
	DefaultTimeout = 5 * time.Second
	// DefaultCacheSize is the number of lyric texts kept in memory.
	DefaultCacheSize = 256
)

// ErrNoLyrics is returned when the service has no lyrics for the track.
var ErrNoLyrics = errors.New("no lyrics found")

type lyricsResponse struct {
	PlainLyrics  string `json:"plainLyrics"`
	SyncedLyrics string `json:"syncedLyrics"`
	Instrumental bool   `json:"instrumental"`
}

// Client fetches lyrics over HTTP and caches them per artist and title.
// Lookups are best-effort; playback never waits on them.
type Client struct {
	config     *core.LyricsConfig
	logger     *zap.Logger
	client     *http.Client
	cache      *lru.Cache[string, string]
	normalizer *fuzzy.Normalizer
}

// NewClient creates a lyrics client against the configured base URL.
func NewClient(config *core.LyricsConfig, logger *zap.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	size := config.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, string](size)

	return &Client{
		config:     config,
		logger:     logger,
		client:     &http.Client{Timeout: timeout},
		cache:      cache,
		normalizer: fuzzy.NewNormalizer(),
	}
}

// Fetch returns the plain lyrics text for a track. The lookup key is the
// cleaned title and primary artist, since provider titles carry decorations
// the lyrics service does not know about.
func (c *Client) Fetch(ctx context.Context, artist, title string) (string, error) {
	cleanTitle := c.normalizer.CleanTitle(title)
	primaryArtist := c.normalizer.FirstArtist(artist)

	key := c.normalizer.Normalize(primaryArtist) + "|" + c.normalizer.Normalize(cleanTitle)
	if text, ok := c.cache.Get(key); ok {
		return text, nil
	}

	text, err := c.lookup(ctx, primaryArtist, cleanTitle)
	if err != nil {
		return "", err
	}

	c.cache.Add(key, text)
	return text, nil
}

func (c *Client) lookup(ctx context.Context, artist, title string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/get?artist_name=%s&track_name=%s",
		strings.TrimSuffix(c.config.BaseURL, "/"),
		url.QueryEscape(artist),
		url.QueryEscape(title))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("lyrics request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNoLyrics
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lyrics service returned status %d", resp.StatusCode)
	}

	var body lyricsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode lyrics response: %w", err)
	}

	if body.Instrumental {
		return "", ErrNoLyrics
	}
	if body.PlainLyrics == "" {
		return "", ErrNoLyrics
	}

	return body.PlainLyrics, nil
}
