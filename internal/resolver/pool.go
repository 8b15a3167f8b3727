package resolver

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"songbird/internal/core"
)

// directoryEntry is one instance in the provider directory listing.
type directoryEntry struct {
	Name   string `json:"name"`
	APIURL string `json:"api_url"`
}

// Pool supplies candidate provider endpoints for stream resolution.
// Endpoints are shuffled on every call so load spreads across instances and a
// single dead endpoint does not starve all requests. Failures are discovered
// per attempt; the pool never marks an endpoint as dead across calls.
type Pool struct {
	config *core.ResolverConfig
	logger *zap.Logger
	client *http.Client
	hosts  *HostCache
}

// NewPool creates a provider pool over the configured static endpoints and
// instance directory.
func NewPool(config *core.ResolverConfig, logger *zap.Logger) *Pool {
	return &Pool{
		config: config,
		logger: logger,
		client: &http.Client{Timeout: config.AttemptTimeout},
		hosts:  NewHostCache(config.HostCacheTTL),
	}
}

// Candidates returns the endpoint base URLs to try, in randomized order.
// A fresh preferred host from the directory is placed first; the static
// endpoints always remain as fallback. An empty result is valid input for
// the caller's own failure policy, never an error.
func (p *Pool) Candidates(ctx context.Context) []string {
	shuffled := make([]string, len(p.config.Endpoints))
	copy(shuffled, p.config.Endpoints)
	// The top-level shuffle is safe for concurrent resolutions; a stale
	// resolution may still be in flight when a new one starts.
	rand.Shuffle(len(shuffled), func(i, j int) { //nolint:gosec // Load spreading doesn't require crypto-secure randomness
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	preferred := p.preferredHost(ctx)
	if preferred == "" {
		return shuffled
	}

	candidates := make([]string, 0, len(shuffled)+1)
	candidates = append(candidates, preferred)
	for _, endpoint := range shuffled {
		if endpoint != preferred {
			candidates = append(candidates, endpoint)
		}
	}
	return candidates
}

// preferredHost returns the cached directory host, refreshing it when stale.
// Directory failure is non-fatal: resolution proceeds on static endpoints.
func (p *Pool) preferredHost(ctx context.Context) string {
	if host, ok := p.hosts.Get(); ok {
		return host
	}

	if p.config.DirectoryURL == "" {
		return ""
	}

	host, err := p.lookupDirectory(ctx)
	if err != nil {
		p.logger.Debug("Provider directory lookup failed, using static endpoints",
			zap.String("directory", p.config.DirectoryURL),
			zap.Error(err))
		return ""
	}

	p.hosts.Set(host)
	p.logger.Debug("Discovered preferred provider host", zap.String("host", host))
	return host
}

// lookupDirectory fetches the instance directory and picks the first entry.
func (p *Pool) lookupDirectory(ctx context.Context) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.config.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.config.DirectoryURL, http.NoBody)
	if err != nil {
		return "", err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("directory", resp.StatusCode)
	}

	var entries []directoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return "", err
	}

	for _, entry := range entries {
		if entry.APIURL != "" {
			return strings.TrimSuffix(entry.APIURL, "/"), nil
		}
	}
	return "", errNoDirectoryEntries
}
