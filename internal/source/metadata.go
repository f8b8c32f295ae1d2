package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/psprofi/audiocache/internal/logctx"
	"github.com/psprofi/audiocache/internal/storage"
)

const (
	defaultTitle  = "Unknown Title"
	defaultArtist = "Unknown Artist"
)

// trackInfo is the slice of the extractor's JSON dump we care about.
type trackInfo struct {
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Uploader  string `json:"uploader"`
	Channel   string `json:"channel"`
	Creator   string `json:"creator"`
	Thumbnail string `json:"thumbnail"`
}

func (i *trackInfo) title() string {
	if i.Title != "" {
		return i.Title
	}

	return defaultTitle
}

// artist picks the first populated author-ish field; extractors are
// wildly inconsistent about which one they fill.
func (i *trackInfo) artist() string {
	for _, candidate := range []string{i.Artist, i.Uploader, i.Channel, i.Creator} {
		if candidate != "" {
			return candidate
		}
	}

	return defaultArtist
}

// ResolveTracks returns the track metadata behind url, consulting the
// metadata store before shelling out to the extractor.
func (s *YtDlpSource) ResolveTracks(ctx context.Context, rawURL string) ([]Track, error) {
	if !s.IsValidURL(rawURL) {
		return nil, ErrInvalidURL
	}

	if s.tracks != nil {
		if record, err := s.tracks.GetTrack(rawURL); err == nil && record.Title != "" {
			return []Track{{URL: rawURL, Artist: record.Artist, Title: record.Title}}, nil
		}
	}

	info, err := s.fetchInfo(ctx, rawURL)
	if err != nil {
		return nil, &ResolveError{URL: rawURL, Stage: "metadata", Err: err}
	}

	s.rememberTrack(ctx, rawURL, info)

	return []Track{{URL: rawURL, Artist: info.artist(), Title: info.title()}}, nil
}

// ResolveAlbumCover returns the cover art URL reported by the source,
// or "" when there is none. Lookup failures are soft.
func (s *YtDlpSource) ResolveAlbumCover(ctx context.Context, rawURL string) (string, error) {
	if !s.IsValidURL(rawURL) {
		return "", ErrInvalidURL
	}

	if s.tracks != nil {
		if record, err := s.tracks.GetTrack(rawURL); err == nil && record.Thumbnail != "" {
			return record.Thumbnail, nil
		}
	}

	info, err := s.fetchInfo(ctx, rawURL)
	if err != nil {
		logctx.LoggerFromContext(ctx).Warn("album cover lookup failed", "error", err)

		return "", nil
	}

	s.rememberTrack(ctx, rawURL, info)

	if info.Thumbnail != "" {
		return info.Thumbnail, nil
	}

	return s.localAlbumCover(ctx, rawURL), nil
}

// localAlbumCover fetches the cover art into the cache and serves it
// from the local endpoint, for sources that never report a remote URL.
func (s *YtDlpSource) localAlbumCover(ctx context.Context, rawURL string) string {
	if s.orch == nil || s.server == nil {
		return ""
	}

	path, err := s.orch.DownloadThumbnail(ctx, rawURL, s.thumbnailTimeout)
	if err != nil {
		logctx.LoggerFromContext(ctx).Warn("local cover fetch failed", "error", err)

		return ""
	}

	local, err := s.server.Register(path)
	if err != nil {
		return ""
	}

	return local
}

// GetTracks lists everything the metadata store knows about.
func (s *YtDlpSource) GetTracks() ([]storage.TrackRecord, error) {
	if s.tracks == nil {
		return nil, nil
	}

	return s.tracks.GetTracks()
}

// ForgetTrack drops the stored metadata for url.
func (s *YtDlpSource) ForgetTrack(url string) error {
	if s.tracks == nil {
		return nil
	}

	return s.tracks.DeleteTrack(url)
}

// ForgetAllTracks empties the metadata store.
func (s *YtDlpSource) ForgetAllTracks() error {
	if s.tracks == nil {
		return nil
	}

	return s.tracks.DeleteAll()
}

func (s *YtDlpSource) fetchInfo(ctx context.Context, rawURL string) (*trackInfo, error) {
	args := []string{
		"--dump-json",
		"--no-playlist",
		"--no-warnings",
		rawURL,
	}

	out, err := s.runner.ExecuteExtractor(ctx, args, s.metadataTimeout)
	if err != nil {
		return nil, err
	}

	var info trackInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return nil, fmt.Errorf("cannot parse extractor metadata: %w", err)
	}

	return &info, nil
}
