// Package llm turns free-form mood prompts into song title suggestions
// using a configurable language model provider.
package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"songbird/internal/core"
)

// DefaultMaxTitles caps a single suggestion round.
const DefaultMaxTitles = 5

// suggestionPrompt is shared by all providers. The model answers with JSON
// only, which every backend here can be coerced into.
const suggestionPrompt = `You are a music curator. Given a mood or vibe description, suggest real, well-known songs that fit it.

Return JSON in this exact format:
{
  "songs": [
    {"title": "Song Title", "artist": "Artist Name"}
  ]
}

Rules:
- Only include real songs that exist
- Prefer widely known recordings over obscure ones
- Maximum %d songs
- Respond with valid JSON only`

type suggestionResponse struct {
	Songs []struct {
		Title  string `json:"title"`
		Artist string `json:"artist,omitempty"`
	} `json:"songs"`
}

// SuggestClient is implemented by each model backend.
type SuggestClient interface {
	Suggest(ctx context.Context, mood string, maxTitles int) ([]string, error)
}

// Provider implements core.Recommender over a configured backend. Backend
// failure degrades to a mood-neutral static list so playlist generation
// always has something to work with.
type Provider struct {
	config *core.LLMConfig
	logger *zap.Logger
	client SuggestClient
}

func NewProvider(config *core.LLMConfig, logger *zap.Logger) (*Provider, error) {
	var client SuggestClient
	var err error

	switch config.Provider {
	case "openai":
		client, err = NewOpenAIClient(config, logger)
	case "anthropic":
		client, err = NewAnthropicClient(config, logger)
	case "ollama":
		client, err = NewOllamaClient(config, logger)
	case "none", "":
		client = &NoOpClient{}
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", config.Provider, err)
	}

	return &Provider{
		config: config,
		logger: logger,
		client: client,
	}, nil
}

// SuggestTitles returns up to the configured number of search strings, one
// per suggested song.
func (p *Provider) SuggestTitles(ctx context.Context, mood string) ([]string, error) {
	maxTitles := p.maxTitles()

	titles, err := p.client.Suggest(ctx, mood, maxTitles)
	if err != nil || len(titles) == 0 {
		p.logger.Warn("Suggestion backend unavailable, using fallback titles",
			zap.String("provider", p.config.Provider),
			zap.Error(err))
		titles = fallbackTitles()
	}

	if len(titles) > maxTitles {
		titles = titles[:maxTitles]
	}
	return titles, nil
}

func (p *Provider) maxTitles() int {
	if p.config.MaxTitles > 0 {
		return p.config.MaxTitles
	}
	return DefaultMaxTitles
}

// titlesFromResponse flattens a parsed suggestion response into catalog
// search strings, dropping entries with no title.
func titlesFromResponse(response suggestionResponse) []string {
	var titles []string
	for _, song := range response.Songs {
		title := strings.TrimSpace(song.Title)
		if title == "" {
			continue
		}
		if artist := strings.TrimSpace(song.Artist); artist != "" {
			title = title + " " + artist
		}
		titles = append(titles, title)
	}
	return titles
}

// fallbackTitles is the mood-neutral list served when no backend answers.
func fallbackTitles() []string {
	return []string{
		"Here Comes the Sun The Beatles",
		"Dreams Fleetwood Mac",
		"September Earth Wind and Fire",
		"Feeling Good Nina Simone",
		"Mr. Blue Sky Electric Light Orchestra",
	}
}

// NoOpClient is used when no provider is configured.
type NoOpClient struct{}

func (n *NoOpClient) Suggest(ctx context.Context, mood string, maxTitles int) ([]string, error) {
	return nil, fmt.Errorf("LLM provider not configured")
}
