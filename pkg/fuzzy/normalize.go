// Package fuzzy provides text normalization for building search queries from
// track metadata.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	parenRegex      = regexp.MustCompile(`\s*[\(\[][^\)\]]*[\)\]]\s*`)
	featRegex       = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.?|featuring)\s+.*$`)
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// CleanTitle strips parenthetical and bracketed annotations and trailing
// feat./ft. credits from a track title. Search providers match much better
// against the bare title.
func (n *Normalizer) CleanTitle(title string) string {
	title = parenRegex.ReplaceAllString(title, " ")
	title = featRegex.ReplaceAllString(title, "")
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(title, " "))
}

// FirstArtist returns only the first credited artist from a comma-joined
// artist string, with any feat. suffix removed.
func (n *Normalizer) FirstArtist(artist string) string {
	if idx := strings.Index(artist, ","); idx >= 0 {
		artist = artist[:idx]
	}
	artist = featRegex.ReplaceAllString(artist, "")
	return strings.TrimSpace(artist)
}

// SearchQuery builds the query string used against stream search providers.
func (n *Normalizer) SearchQuery(title, artist string) string {
	title = n.CleanTitle(title)
	artist = n.FirstArtist(artist)
	if artist == "" {
		return title
	}
	return title + " " + artist
}

// Normalize lowercases, strips accents and punctuation, and collapses
// whitespace. Used for comparing provider results against the query.
func (n *Normalizer) Normalize(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	text = punctRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	text = strings.ToLower(text)
	text = strings.TrimSpace(text)

	return text
}
