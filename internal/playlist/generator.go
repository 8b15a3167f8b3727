// Package playlist builds ad-hoc playlists from mood prompts by combining
// song suggestions with catalog search.
package playlist

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"songbird/internal/core"
)

// Generator turns a mood prompt into a playable track list. Suggested songs
// that the catalog cannot find are silently dropped; a fully unmatchable
// suggestion round falls back to the trending listing.
type Generator struct {
	catalog     core.CatalogClient
	recommender core.Recommender
	logger      *zap.Logger
}

func NewGenerator(catalog core.CatalogClient, recommender core.Recommender, logger *zap.Logger) *Generator {
	return &Generator{
		catalog:     catalog,
		recommender: recommender,
		logger:      logger,
	}
}

// FromMood generates a playlist for the given mood prompt. Track order
// follows suggestion order, one catalog match per suggestion.
func (g *Generator) FromMood(ctx context.Context, mood string) ([]core.Track, error) {
	titles, err := g.recommender.SuggestTitles(ctx, mood)
	if err != nil {
		return nil, fmt.Errorf("suggestion failed: %w", err)
	}

	tracks := g.matchTitles(ctx, titles)
	if len(tracks) > 0 {
		return tracks, nil
	}

	g.logger.Info("No suggestions matched the catalog, serving trending",
		zap.String("mood", mood),
		zap.Int("suggested", len(titles)))

	trending, err := g.catalog.Trending(ctx)
	if err != nil {
		return nil, fmt.Errorf("trending fallback failed: %w", err)
	}
	return trending, nil
}

func (g *Generator) matchTitles(ctx context.Context, titles []string) []core.Track {
	seen := make(map[string]struct{})
	var tracks []core.Track

	for _, title := range titles {
		results, err := g.catalog.Search(ctx, title)
		if err != nil {
			g.logger.Warn("Catalog lookup failed for suggestion",
				zap.String("title", title),
				zap.Error(err))
			continue
		}
		if len(results) == 0 {
			g.logger.Debug("Suggestion not found in catalog", zap.String("title", title))
			continue
		}

		best := results[0]
		if _, dup := seen[best.ID]; dup {
			continue
		}
		seen[best.ID] = struct{}{}
		tracks = append(tracks, best)
	}

	return tracks
}
