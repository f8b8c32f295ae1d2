package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/psprofi/audiocache/internal/logctx"
)

const dirPerm = 0755

// ErrAmbiguousArtifacts is returned by FindDownloaded when more than one
// non-partial file shares the same key prefix. The extractor writes a
// single output per invocation, so this indicates a broken pipeline run.
var ErrAmbiguousArtifacts = errors.New("multiple artifacts found for cache key")

// ClearResult reports what a bulk eviction removed.
type ClearResult struct {
	Count      int
	BytesFreed int64
}

// Store is a content-addressed cache of transcoded audio keyed by the
// MD5 of the source URL. The canonical entry for a URL is
// <dir>/<Key(url)>.mp3; every other file sharing the key prefix belongs
// to an in-flight pipeline.
type Store struct {
	dir string
}

// NewStore creates the cache directory if needed and returns a Store
// rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Store{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Resolve returns the canonical path for a URL's cache entry. Pure; the
// file may or may not exist.
func (s *Store) Resolve(url string) string {
	return filepath.Join(s.dir, Key(url)+".mp3")
}

// IsCached reports whether a ready entry exists for the URL.
func (s *Store) IsCached(url string) bool {
	info, err := os.Stat(s.Resolve(url))

	return err == nil && info.Mode().IsRegular()
}

// FindDownloaded returns the single settled artifact for a key: a
// regular file whose name starts with key and is not a .part, .ytdl or
// _debug.txt marker. Returns "" when nothing has settled yet.
func (s *Store) FindDownloaded(key string) (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("failed to list cache directory: %w", err)
	}

	var found string

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, key) || !entry.Type().IsRegular() {
			continue
		}

		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") || strings.HasSuffix(name, "_debug.txt") {
			continue
		}

		if found != "" {
			return "", ErrAmbiguousArtifacts
		}

		found = filepath.Join(s.dir, name)
	}

	return found, nil
}

// HasPartials reports whether any in-flight .part file remains for key.
func (s *Store) HasPartials(key string) (bool, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return false, fmt.Errorf("failed to list cache directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, key) && strings.HasSuffix(name, ".part") {
			return true, nil
		}
	}

	return false, nil
}

// CleanupPartials removes every file beginning with key regardless of
// extension. Called on cancellation or failure so a retry starts clean.
func (s *Store) CleanupPartials(ctx context.Context, key string) {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		logger.Error("failed to list cache directory for cleanup", "key", key, "err", err)

		return
	}

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), key) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Error("failed to remove partial file", "file", path, "err", err)

			continue
		}

		logger.Debug("removed partial file", "file", path)
	}
}

// ClearAll deletes every regular file in the cache directory. Symlinks
// and subdirectories (the extractor's scratch dir) are left alone.
func (s *Store) ClearAll(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list cache directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Error("failed to remove cache entry", "file", path, "err", err)
		}
	}

	return nil
}

// ClearForURL deletes every regular file whose name starts with the
// URL's key, ready entries and leftovers alike.
func (s *Store) ClearForURL(ctx context.Context, url string) error {
	key := Key(url)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list cache directory: %w", err)
	}

	logger := logctx.LoggerFromContext(ctx)

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), key) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Error("failed to remove cache entry", "file", path, "err", err)
		}
	}

	return nil
}

// ClearOlderThan deletes every regular file whose mtime is strictly
// before cutoff and reports how much was reclaimed.
func (s *Store) ClearOlderThan(ctx context.Context, cutoff time.Time) (ClearResult, error) {
	logger := logctx.LoggerFromContext(ctx)

	var res ClearResult

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return res, fmt.Errorf("failed to list cache directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				logger.Error("failed to remove expired cache entry", "file", path, "err", err)
			}

			continue
		}

		res.Count++
		res.BytesFreed += info.Size()
	}

	return res, nil
}

// Stats describes the cache contents.
type Stats struct {
	TotalBytes int64
	AudioFiles int
}

// Stat walks the cache directory and totals regular files; AudioFiles
// counts only ready playable entries.
func (s *Store) Stat() (Stats, error) {
	var stats Stats

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return stats, fmt.Errorf("failed to list cache directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		stats.TotalBytes += info.Size()

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".mp3", ".ogg", ".wav":
			stats.AudioFiles++
		}
	}

	return stats, nil
}
