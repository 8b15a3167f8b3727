// Package catalog provides the track catalog backed by the Spotify Web API.
// Catalog metadata carries preview URLs; full-quality streams are resolved
// separately against the provider pool.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"songbird/internal/core"
	"songbird/pkg/fuzzy"
)

const (
	// DefaultMaxResults limits search results shown to the user.
	DefaultMaxResults = 20
	// DefaultTrendingQuery is used when no trending playlist is configured.
	DefaultTrendingQuery = "top hits"
	// TrendingLimit is the number of tracks a trending listing carries.
	TrendingLimit = 30
)

// Client searches the Spotify catalog using the client credentials flow.
// No user login is involved; the catalog is metadata-only.
type Client struct {
	config     *core.CatalogConfig
	logger     *zap.Logger
	client     *spotify.Client
	normalizer *fuzzy.Normalizer
}

// NewClient creates a catalog client. Without credentials the client runs in
// offline mode and serves only the static fallback listings.
func NewClient(ctx context.Context, config *core.CatalogConfig, logger *zap.Logger) *Client {
	c := &Client{
		config:     config,
		logger:     logger,
		normalizer: fuzzy.NewNormalizer(),
	}

	if config.ClientID == "" || config.ClientSecret == "" {
		logger.Warn("No catalog credentials configured, serving static listings only")
		return c
	}

	creds := &clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	c.client = spotify.New(creds.Client(ctx), spotify.WithRetry(true))
	return c
}

// Search returns catalog tracks matching the query, most relevant first.
// Provider failure degrades to an empty result, never an error surfaced to
// the browsing user.
func (c *Client) Search(ctx context.Context, query string) ([]core.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" || c.client == nil {
		return nil, nil
	}

	results, err := c.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(c.maxResults()))
	if err != nil {
		c.logger.Warn("Catalog search failed", zap.String("query", query), zap.Error(err))
		return nil, nil
	}
	if results.Tracks == nil {
		return nil, nil
	}

	var tracks []core.Track
	for i := range results.Tracks.Tracks {
		tracks = append(tracks, convertTrack(&results.Tracks.Tracks[i]))
	}

	return c.rankTracks(tracks, query), nil
}

// Trending returns the current trending listing. It prefers the configured
// playlist, falls back to a generic search, and finally to a static list so
// the home screen never comes up empty.
func (c *Client) Trending(ctx context.Context) ([]core.Track, error) {
	if c.client == nil {
		return StaticTrending(), nil
	}

	if c.config.TrendingPlaylist != "" {
		tracks, err := c.playlistTracks(ctx, c.config.TrendingPlaylist)
		if err == nil && len(tracks) > 0 {
			return tracks, nil
		}
		c.logger.Warn("Trending playlist unavailable",
			zap.String("playlist", c.config.TrendingPlaylist),
			zap.Error(err))
	}

	results, err := c.client.Search(ctx, DefaultTrendingQuery, spotify.SearchTypeTrack, spotify.Limit(TrendingLimit))
	if err != nil || results.Tracks == nil || len(results.Tracks.Tracks) == 0 {
		c.logger.Warn("Trending search failed, serving static listing", zap.Error(err))
		return StaticTrending(), nil
	}

	var tracks []core.Track
	for i := range results.Tracks.Tracks {
		tracks = append(tracks, convertTrack(&results.Tracks.Tracks[i]))
	}
	return tracks, nil
}

func (c *Client) playlistTracks(ctx context.Context, playlistID string) ([]core.Track, error) {
	items, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(TrendingLimit))
	if err != nil {
		return nil, err
	}

	var tracks []core.Track
	for i := range items.Items {
		full := items.Items[i].Track.Track
		if full == nil {
			continue
		}
		tracks = append(tracks, convertTrack(full))
	}
	return tracks, nil
}

func (c *Client) maxResults() int {
	if c.config.MaxResults > 0 {
		return c.config.MaxResults
	}
	return DefaultMaxResults
}

func convertTrack(track *spotify.FullTrack) core.Track {
	var artists []string
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	var coverURL string
	if len(track.Album.Images) > 0 {
		coverURL = track.Album.Images[0].URL
	}

	return core.Track{
		ID:         string(track.ID),
		Title:      track.Name,
		Artist:     strings.Join(artists, ", "),
		Album:      track.Album.Name,
		CoverURL:   coverURL,
		PreviewURL: track.PreviewURL,
		Duration:   time.Duration(track.Duration) * time.Millisecond,
	}
}

// rankTracks orders results by fuzzy relevance against the original query.
// The provider's own order breaks ties.
func (c *Client) rankTracks(tracks []core.Track, query string) []core.Track {
	normalizedQuery := c.normalizer.Normalize(query)

	type scoredTrack struct {
		track core.Track
		score float64
	}

	scored := make([]scoredTrack, 0, len(tracks))
	for _, track := range tracks {
		scored = append(scored, scoredTrack{
			track: track,
			score: c.relevanceScore(track, normalizedQuery),
		})
	}

	for i := 0; i < len(scored)-1; i++ {
		for j := i + 1; j < len(scored); j++ {
			if scored[i].score < scored[j].score {
				scored[i], scored[j] = scored[j], scored[i]
			}
		}
	}

	ranked := make([]core.Track, 0, len(scored))
	for _, item := range scored {
		ranked = append(ranked, item.track)
	}
	return ranked
}

func (c *Client) relevanceScore(track core.Track, normalizedQuery string) float64 {
	title := c.normalizer.Normalize(c.normalizer.CleanTitle(track.Title))
	artist := c.normalizer.Normalize(track.Artist)

	var score float64
	switch {
	case title == normalizedQuery:
		score += 3
	case strings.Contains(normalizedQuery, title) || strings.Contains(title, normalizedQuery):
		score += 2
	}
	if artist != "" && strings.Contains(normalizedQuery, artist) {
		score += 1
	}
	// Tracks with previews degrade more gracefully when resolution fails.
	if track.PreviewURL != "" {
		score += 0.5
	}
	return score
}
