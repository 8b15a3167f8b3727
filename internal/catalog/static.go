package catalog

import (
	"time"

	"songbird/internal/core"
)

// staticTrending is served when the catalog provider is unreachable or no
// credentials are configured. The entries carry full identity metadata so
// stream resolution works for them like for any catalog track.
var staticTrending = []core.Track{
	{ID: "static-0001", Title: "Bohemian Rhapsody", Artist: "Queen", Album: "A Night at the Opera", Duration: 5*time.Minute + 55*time.Second},
	{ID: "static-0002", Title: "Billie Jean", Artist: "Michael Jackson", Album: "Thriller", Duration: 4*time.Minute + 54*time.Second},
	{ID: "static-0003", Title: "Hotel California", Artist: "Eagles", Album: "Hotel California", Duration: 6*time.Minute + 30*time.Second},
	{ID: "static-0004", Title: "Smells Like Teen Spirit", Artist: "Nirvana", Album: "Nevermind", Duration: 5*time.Minute + 1*time.Second},
	{ID: "static-0005", Title: "Rolling in the Deep", Artist: "Adele", Album: "21", Duration: 3*time.Minute + 48*time.Second},
	{ID: "static-0006", Title: "Superstition", Artist: "Stevie Wonder", Album: "Talking Book", Duration: 4*time.Minute + 26*time.Second},
	{ID: "static-0007", Title: "Take Five", Artist: "The Dave Brubeck Quartet", Album: "Time Out", Duration: 5*time.Minute + 24*time.Second},
	{ID: "static-0008", Title: "No Woman No Cry", Artist: "Bob Marley & The Wailers", Album: "Live!", Duration: 7*time.Minute + 8*time.Second},
	{ID: "static-0009", Title: "Clair de Lune", Artist: "Claude Debussy", Album: "Suite bergamasque", Duration: 5 * time.Minute},
	{ID: "static-0010", Title: "Get Lucky", Artist: "Daft Punk, Pharrell Williams", Album: "Random Access Memories", Duration: 6*time.Minute + 9*time.Second},
}

// StaticTrending returns a copy of the built-in trending listing.
func StaticTrending() []core.Track {
	return append([]core.Track(nil), staticTrending...)
}
