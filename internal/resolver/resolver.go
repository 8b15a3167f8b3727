// Package resolver turns track identity into a playable stream URL by
// iterating an unreliable pool of proxy provider endpoints.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"songbird/internal/core"
	"songbird/pkg/fuzzy"
)

var (
	// ErrNotFound is returned when every candidate endpoint has been tried
	// and none yielded a usable stream URL.
	ErrNotFound = errors.New("no provider could resolve a stream")

	errNoDirectoryEntries = errors.New("directory returned no usable entries")
	errNoStreamResult     = errors.New("no stream-bearing search result")
	errNoAudioStreams     = errors.New("descriptor contains no audio streams")
)

func statusError(service string, code int) error {
	return fmt.Errorf("%s returned status %d", service, code)
}

// searchResponse is the provider's search payload. Only the fields the
// resolver extracts are declared; providers are free to send more.
type searchResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	URL   string `json:"url"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

// streamDescriptor is the provider's stream payload for a single video id.
type streamDescriptor struct {
	AudioStreams []audioStream `json:"audioStreams"`
}

type audioStream struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Bitrate  int    `json:"bitrate"`
}

// Resolver resolves tracks to stream URLs against a pool of provider
// endpoints. Every sub-step failure advances to the next candidate; the
// caller only ever observes success or ErrNotFound.
type Resolver struct {
	config     *core.ResolverConfig
	logger     *zap.Logger
	pool       *Pool
	client     *http.Client
	normalizer *fuzzy.Normalizer
}

// New creates a resolver over the given provider pool.
func New(config *core.ResolverConfig, pool *Pool, logger *zap.Logger) *Resolver {
	return &Resolver{
		config:     config,
		logger:     logger,
		pool:       pool,
		client:     &http.Client{Timeout: config.AttemptTimeout},
		normalizer: fuzzy.NewNormalizer(),
	}
}

// Resolve attempts each candidate endpoint in turn and returns the first
// playable stream URL. A single pass is made over the pool; there is no
// retry with backoff.
func (r *Resolver) Resolve(ctx context.Context, track core.Track) (string, error) {
	query := r.normalizer.SearchQuery(track.Title, track.Artist)

	candidates := r.pool.Candidates(ctx)
	for _, base := range candidates {
		streamURL, err := r.resolveAgainst(ctx, base, query)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			r.logger.Debug("Candidate endpoint failed, trying next",
				zap.String("endpoint", base),
				zap.String("query", query),
				zap.Error(err))
			continue
		}

		r.logger.Debug("Stream resolved",
			zap.String("endpoint", base),
			zap.String("trackID", track.ID))
		return streamURL, nil
	}

	r.logger.Info("Resolution exhausted all candidates",
		zap.String("trackID", track.ID),
		zap.String("query", query),
		zap.Int("candidates", len(candidates)))
	return "", ErrNotFound
}

// resolveAgainst runs the full multi-step lookup against one endpoint:
// search, pick a stream-bearing result, fetch its descriptor, pick the best
// audio variant.
func (r *Resolver) resolveAgainst(ctx context.Context, base, query string) (string, error) {
	videoID, err := r.searchStreamID(ctx, base, query)
	if err != nil {
		return "", err
	}

	descriptor, err := r.fetchStreamDescriptor(ctx, base, videoID)
	if err != nil {
		return "", err
	}

	variant, ok := pickAudioStream(descriptor.AudioStreams)
	if !ok {
		return "", errNoAudioStreams
	}
	return variant.URL, nil
}

// searchStreamID queries the endpoint's search API and extracts the video id
// of the first stream-bearing result.
func (r *Resolver) searchStreamID(ctx context.Context, base, query string) (string, error) {
	searchURL := fmt.Sprintf("%s/search?q=%s&filter=music_songs", base, url.QueryEscape(query))

	var response searchResponse
	if err := r.getJSON(ctx, searchURL, &response); err != nil {
		return "", err
	}

	for _, item := range response.Items {
		if id := extractVideoID(item.URL); id != "" {
			return id, nil
		}
	}
	return "", errNoStreamResult
}

// fetchStreamDescriptor fetches the stream descriptor for a video id.
func (r *Resolver) fetchStreamDescriptor(ctx context.Context, base, videoID string) (*streamDescriptor, error) {
	descriptorURL := fmt.Sprintf("%s/streams/%s", base, url.PathEscape(videoID))

	var descriptor streamDescriptor
	if err := r.getJSON(ctx, descriptorURL, &descriptor); err != nil {
		return nil, err
	}
	return &descriptor, nil
}

// getJSON performs one bounded HTTP GET and decodes the JSON body.
func (r *Resolver) getJSON(ctx context.Context, reqURL string, dest interface{}) error {
	reqCtx, cancel := context.WithTimeout(ctx, r.config.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return statusError("provider", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}

// extractVideoID pulls the watch id out of a result URL like "/watch?v=abc".
func extractVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if !strings.HasSuffix(u.Path, "/watch") && u.Path != "watch" {
		return ""
	}
	return u.Query().Get("v")
}

// pickAudioStream selects the variant to play. mp4/m4a containers are
// preferred, then webm, then whatever the provider listed first; within the
// chosen container the highest bitrate wins. The container ordering is a
// compatibility tradeoff and must not change.
func pickAudioStream(streams []audioStream) (audioStream, bool) {
	if len(streams) == 0 {
		return audioStream{}, false
	}

	best := func(containers ...string) (audioStream, bool) {
		var found audioStream
		var ok bool
		for _, s := range streams {
			mime := strings.ToLower(s.MimeType)
			matched := false
			for _, container := range containers {
				if strings.Contains(mime, container) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
			if !ok || s.Bitrate > found.Bitrate {
				found = s
				ok = true
			}
		}
		return found, ok
	}

	// Providers label the mp4 family as audio/mp4 or audio/x-m4a.
	if s, ok := best("mp4", "m4a"); ok {
		return s, true
	}
	if s, ok := best("webm"); ok {
		return s, true
	}
	return streams[0], true
}
