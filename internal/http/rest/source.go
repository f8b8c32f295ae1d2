package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/psprofi/audiocache/internal/cache"
	"github.com/psprofi/audiocache/internal/logctx"
	"github.com/psprofi/audiocache/internal/pipeline"
	"github.com/psprofi/audiocache/internal/progress"
	"github.com/psprofi/audiocache/internal/source"
)

// SourceHandler exposes the facade and the cache over a small local
// management API.
type SourceHandler struct {
	source      *source.YtDlpSource
	store       *cache.Store
	clearOldAge time.Duration
}

func NewSourceHandler(src *source.YtDlpSource, store *cache.Store, clearOldAge time.Duration) *SourceHandler {
	return &SourceHandler{
		source:      src,
		store:       store,
		clearOldAge: clearOldAge,
	}
}

func (h *SourceHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/resolve", h.handleResolve)
	r.Delete("/resolve", h.handleCancel)
	r.Get("/tracks", h.handleTracks)
	r.Get("/cache", h.handleCacheInfo)
	r.Delete("/cache", h.handleCacheClear)
	r.Delete("/cache/old", h.handleCacheClearOld)
	r.Get("/healthz", h.handleHealth)

	return r
}

type resolveRequest struct {
	URL string `json:"url"`
}

type resolveResponse struct {
	PlaybackURL string `json:"playback_url"`
	Brand       string `json:"brand"`
}

func (h *SourceHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	playbackURL, err := h.source.ResolveURL(ctx, req.URL, progress.Nop{})

	switch {
	case errors.Is(err, source.ErrInvalidURL):
		http.Error(w, "unsupported source url", http.StatusBadRequest)

		return
	case errors.Is(err, source.ErrAlreadyDownloading):
		http.Error(w, "download already in progress", http.StatusConflict)

		return
	case errors.Is(err, pipeline.ErrCancelled):
		http.Error(w, "download cancelled", http.StatusConflict)

		return
	case err != nil:
		logger.Error("resolve failed", "url", req.URL, "err", err)
		http.Error(w, "resolve failed", http.StatusBadGateway)

		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		PlaybackURL: playbackURL,
		Brand:       h.source.BrandText(req.URL),
	})
}

func (h *SourceHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)

		return
	}

	if !h.source.HasActiveDownload(url) {
		http.Error(w, "no active download for url", http.StatusNotFound)

		return
	}

	h.source.CancelDownload(r.Context(), url)
	w.WriteHeader(http.StatusAccepted)
}

type trackResponse struct {
	URL       string `json:"url"`
	Artist    string `json:"artist"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

func (h *SourceHandler) handleTracks(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	records, err := h.source.GetTracks()
	if err != nil {
		logger.Error("failed to list tracks", "err", err)
		http.Error(w, "failed to list tracks", http.StatusInternalServerError)

		return
	}

	tracks := make([]trackResponse, 0, len(records))
	for _, record := range records {
		tracks = append(tracks, trackResponse{
			URL:       record.URL,
			Artist:    record.Artist,
			Title:     record.Title,
			Thumbnail: record.Thumbnail,
		})
	}

	writeJSON(w, http.StatusOK, tracks)
}

type cacheInfoResponse struct {
	AudioFiles int    `json:"audio_files"`
	TotalBytes int64  `json:"total_bytes"`
	TotalSize  string `json:"total_size"`
}

func (h *SourceHandler) handleCacheInfo(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	stats, err := h.store.Stat()
	if err != nil {
		logger.Error("failed to stat cache", "err", err)
		http.Error(w, "failed to stat cache", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, cacheInfoResponse{
		AudioFiles: stats.AudioFiles,
		TotalBytes: stats.TotalBytes,
		TotalSize:  humanize.Bytes(uint64(stats.TotalBytes)),
	})
}

// handleCacheClear wipes the whole cache, or just the entries for one
// source url when ?url= is given.
func (h *SourceHandler) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	if url := r.URL.Query().Get("url"); url != "" {
		if err := h.store.ClearForURL(ctx, url); err != nil {
			logger.Error("failed to clear cache entry", "url", url, "err", err)
			http.Error(w, "failed to clear cache entry", http.StatusInternalServerError)

			return
		}

		// metadata is a cache too; a failed purge is not fatal
		if err := h.source.ForgetTrack(url); err != nil {
			logger.Warn("failed to purge track metadata", "url", url, "err", err)
		}

		w.WriteHeader(http.StatusNoContent)

		return
	}

	if err := h.store.ClearAll(ctx); err != nil {
		logger.Error("failed to clear cache", "err", err)
		http.Error(w, "failed to clear cache", http.StatusInternalServerError)

		return
	}

	if err := h.source.ForgetAllTracks(); err != nil {
		logger.Warn("failed to purge track metadata", "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

type cacheClearOldResponse struct {
	RemovedFiles int    `json:"removed_files"`
	FreedBytes   int64  `json:"freed_bytes"`
	FreedSize    string `json:"freed_size"`
}

func (h *SourceHandler) handleCacheClearOld(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	cutoff := time.Now().Add(-h.clearOldAge)

	result, err := h.store.ClearOlderThan(ctx, cutoff)
	if err != nil {
		logger.Error("failed to clear old cache entries", "err", err)
		http.Error(w, "failed to clear old cache entries", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, cacheClearOldResponse{
		RemovedFiles: result.Count,
		FreedBytes:   result.BytesFreed,
		FreedSize:    humanize.Bytes(uint64(result.BytesFreed)),
	})
}

func (h *SourceHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(payload)
}
