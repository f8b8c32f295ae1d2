// Package source is the facade consumed by the embedding host: it
// validates URLs, resolves them to playable loopback HTTP URLs, and
// answers metadata queries.
package source

import (
	"context"

	"github.com/psprofi/audiocache/internal/progress"
)

// Track is the metadata pair resolved for a source URL.
type Track struct {
	URL    string
	Artist string
	Title  string
}

// Source is the sound-source contract exposed to the host. The
// embedding layer adapts it to the host's own plugin surface.
type Source interface {
	// ResolveURL acquires the audio behind url and returns a playable
	// loopback HTTP URL.
	ResolveURL(ctx context.Context, url string, listener progress.Listener) (string, error)

	// ResolveTracks returns the track metadata behind url.
	ResolveTracks(ctx context.Context, url string) ([]Track, error)

	// ResolveAlbumCover returns the cover art URL for url, or "" when
	// the source has none.
	ResolveAlbumCover(ctx context.Context, url string) (string, error)

	// IsValidURL reports whether url points at a supported host.
	IsValidURL(url string) bool

	// APIName identifies this source implementation.
	APIName() string

	// BrandText is the display name for the platform behind url.
	BrandText(url string) string
}
