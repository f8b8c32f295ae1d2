// Package server exposes cached audio files over loopback HTTP with
// range support, so local media players can seek.
package server

import (
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/psprofi/audiocache/internal/logctx"
	"github.com/psprofi/audiocache/internal/telemetry"
)

// Server maps opaque file ids to on-disk audio paths and serves them.
// Registration is idempotent: the same path always yields the same URL.
type Server struct {
	base     string
	tel      *telemetry.Telemetry
	registry sync.Map // id string -> absolute path string
}

func New(bindAddress string, tel *telemetry.Telemetry) *Server {
	return &Server{
		base: "http://" + bindAddress,
		tel:  tel,
	}
}

// Register makes path servable and returns its playback URL.
func (s *Server) Register(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	id := fileID(abs)
	s.registry.Store(id, abs)

	return s.base + "/audio/" + id, nil
}

// Unregister removes a path from the registry. Serving requests in
// flight finish; new requests 404.
func (s *Server) Unregister(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		s.registry.Delete(fileID(abs))
	}
}

// Close drops all registrations.
func (s *Server) Close() {
	s.registry.Range(func(key, _ any) bool {
		s.registry.Delete(key)

		return true
	})
}

// Routes returns the audio serving router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/audio/{id}", s.handleAudio)

	return r
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	v, ok := s.registry.Load(id)
	if !ok {
		http.Error(w, "unknown file id", http.StatusNotFound)

		return
	}

	path := v.(string)

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("registered file is gone", "id", id, "path", path)
		http.Error(w, "file not available", http.StatusNotFound)

		return
	}

	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "file not available", http.StatusNotFound)

		return
	}

	size := info.Size()

	w.Header().Set("Content-Type", contentTypeFor(path))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		s.copyPayload(w, r, f, size)

		return
	}

	start, end, ok := parseRange(rangeHeader, size)
	if !ok {
		// unparseable ranges degrade to a full response
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		s.copyPayload(w, r, f, size)

		return
	}

	if start >= size || start > end || end >= size {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)

		return
	}

	length := end - start + 1

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		http.Error(w, "seek failed", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	s.copyPayload(w, r, io.LimitReader(f, length), length)
}

func (s *Server) copyPayload(w http.ResponseWriter, r *http.Request, src io.Reader, expected int64) {
	if r.Method == http.MethodHead {
		return
	}

	n, err := io.Copy(w, src)
	s.tel.RecordBytesServed(n)

	if err != nil {
		// client hangups mid-stream are routine for seeking players
		logctx.LoggerFromContext(r.Context()).Debug("audio stream interrupted",
			"written", n, "expected", expected, "error", err)
	}
}

// parseRange understands single byte ranges: "bytes=a-b" and
// "bytes=a-". Suffix, multi-range, and malformed forms are unparseable
// and degrade to a full response upstream.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false
	}

	first, last, found := strings.Cut(spec, "-")
	if !found || first == "" {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}

	if last == "" {
		return start, size - 1, true
	}

	end, err = strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, 0, false
	}

	return start, end, true
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "audio/mpeg"
	}
}

// fileID derives the stable id used in playback URLs from the absolute
// file path.
func fileID(abs string) string {
	h := fnv.New32a()
	h.Write([]byte(abs))

	return fmt.Sprintf("%08x", h.Sum32())
}
