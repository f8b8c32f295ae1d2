package source

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/psprofi/audiocache/internal/cache"
	"github.com/psprofi/audiocache/internal/logctx"
	"github.com/psprofi/audiocache/internal/pipeline"
	"github.com/psprofi/audiocache/internal/progress"
	"github.com/psprofi/audiocache/internal/runner"
	"github.com/psprofi/audiocache/internal/server"
	"github.com/psprofi/audiocache/internal/storage"
	"github.com/psprofi/audiocache/internal/tracker"
)

// allowedHosts is the supported platform allowlist. Subdomains of an
// entry are accepted.
var allowedHosts = []string{
	"youtube.com",
	"youtu.be",
	"soundcloud.com",
	"spotify.com",
	"bandcamp.com",
	"vimeo.com",
	"twitch.tv",
	"dailymotion.com",
	"twitter.com",
	"x.com",
	"tiktok.com",
	"reddit.com",
	"instagram.com",
}

var _ Source = (*YtDlpSource)(nil)

// YtDlpSource implements Source on top of the acquisition pipeline.
// One acquisition per URL at a time; a second resolve for a URL that is
// still in flight fails fast instead of queueing.
type YtDlpSource struct {
	orch    *pipeline.Orchestrator
	runner  *runner.Runner
	tracker *tracker.Tracker
	server  *server.Server
	tracks  storage.TrackRepository

	metadataTimeout  time.Duration
	thumbnailTimeout time.Duration

	active     sync.Map // url string -> uuid.UUID
	validCache sync.Map // url string -> bool
}

func NewYtDlpSource(
	orch *pipeline.Orchestrator,
	run *runner.Runner,
	trk *tracker.Tracker,
	srv *server.Server,
	tracks storage.TrackRepository,
	metadataTimeout, thumbnailTimeout time.Duration,
) *YtDlpSource {
	return &YtDlpSource{
		orch:             orch,
		runner:           run,
		tracker:          trk,
		server:           srv,
		tracks:           tracks,
		metadataTimeout:  metadataTimeout,
		thumbnailTimeout: thumbnailTimeout,
	}
}

func (s *YtDlpSource) APIName() string {
	return "ytdlp"
}

// BrandText names the platform behind url for display purposes.
func (s *YtDlpSource) BrandText(rawURL string) string {
	host := hostOf(rawURL)

	switch {
	case strings.Contains(host, "youtube.com"), strings.Contains(host, "youtu.be"):
		return "YouTube"
	case strings.Contains(host, "soundcloud.com"):
		return "SoundCloud"
	case strings.Contains(host, "spotify.com"):
		return "Spotify"
	case strings.Contains(host, "bandcamp.com"):
		return "Bandcamp"
	case strings.Contains(host, "twitch.tv"):
		return "Twitch"
	default:
		return "YT-DLP"
	}
}

// IsValidURL checks the host allowlist. Verdicts are memoized per URL;
// the host set never changes at runtime.
func (s *YtDlpSource) IsValidURL(rawURL string) bool {
	if v, ok := s.validCache.Load(rawURL); ok {
		return v.(bool)
	}

	valid := hostAllowed(hostOf(rawURL))
	s.validCache.Store(rawURL, valid)

	return valid
}

// ResolveURL runs the full acquisition for url and returns the playback
// URL for the cached file.
func (s *YtDlpSource) ResolveURL(ctx context.Context, rawURL string, listener progress.Listener) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	if !s.IsValidURL(rawURL) {
		return "", ErrInvalidURL
	}

	// claim the per-URL slot before creating any tracker state, so a
	// losing duplicate leaves no trace behind
	id := uuid.New()

	if _, loaded := s.active.LoadOrStore(rawURL, id); loaded {
		return "", ErrAlreadyDownloading
	}

	defer s.active.CompareAndDelete(rawURL, id)

	s.tracker.Register(ctx, id, rawURL)

	if s.tracker.IsCancelled(id) {
		s.tracker.Complete(ctx, id)

		return "", pipeline.ErrCancelled
	}

	path, err := s.orch.DownloadAudio(ctx, rawURL, id, listener)
	if err != nil {
		s.tracker.Complete(ctx, id)

		return "", &ResolveError{URL: rawURL, Stage: "download", Err: err}
	}

	// Complete returning false means a cancel landed while we were
	// finishing up; the pipeline already removed the file.
	if !s.tracker.Complete(ctx, id) {
		return "", pipeline.ErrCancelled
	}

	playbackURL, err := s.server.Register(path)
	if err != nil {
		return "", &ResolveError{URL: rawURL, Stage: "register", Err: err}
	}

	s.rememberTrack(ctx, rawURL, nil)

	logger.Info("url resolved", "brand", s.BrandText(rawURL), "playback_url", playbackURL)

	return playbackURL, nil
}

// CancelDownload flags the acquisition currently running for url, if
// any. No-op otherwise.
func (s *YtDlpSource) CancelDownload(ctx context.Context, rawURL string) {
	if v, ok := s.active.Load(rawURL); ok {
		s.tracker.Cancel(ctx, v.(uuid.UUID))
	}
}

// HasActiveDownload reports whether an acquisition for url is running.
func (s *YtDlpSource) HasActiveDownload(rawURL string) bool {
	_, ok := s.active.Load(rawURL)

	return ok
}

// rememberTrack upserts what we know about url into the metadata store.
// Best effort; a failed write never fails a resolve.
func (s *YtDlpSource) rememberTrack(ctx context.Context, rawURL string, info *trackInfo) {
	if s.tracks == nil {
		return
	}

	if info == nil {
		// don't clobber metadata that a previous lookup already stored
		if _, err := s.tracks.GetTrack(rawURL); err == nil {
			return
		}
	}

	record := &storage.TrackRecord{
		URL:      rawURL,
		CacheKey: cache.Key(rawURL),
	}

	if info != nil {
		record.Artist = info.artist()
		record.Title = info.title()
		record.Thumbnail = info.Thumbnail
	}

	if err := s.tracks.SaveTrack(record); err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to persist track metadata", "error", err)
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	host := strings.ToLower(u.Hostname())

	return strings.TrimPrefix(host, "www.")
}

func hostAllowed(host string) bool {
	if host == "" {
		return false
	}

	for _, allowed := range allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}

	return false
}
