package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/psprofi/audiocache/internal/cache"
	"github.com/psprofi/audiocache/internal/logctx"
)

const thumbnailSettleAttempts = 3

// DownloadThumbnail fetches the source's cover art as a JPEG into the
// cache dir and returns its path. Failures are soft; callers treat an
// error as "no artwork".
func (o *Orchestrator) DownloadThumbnail(ctx context.Context, url string, timeout time.Duration) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	key := cache.Key(url)
	target := filepath.Join(o.store.Dir(), key+"_thumb.jpg")

	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	args := []string{
		"--write-thumbnail",
		"--skip-download",
		"--convert-thumbnails", "jpg",
		"--no-warnings",
		"-o", filepath.Join(o.store.Dir(), key+"_thumb"),
		url,
	}

	if _, err := o.runner.ExecuteExtractor(ctx, args, timeout); err != nil {
		return "", err
	}

	// the thumbnail converter finishes its rename after process exit,
	// same as the audio postprocessor
	for attempt := 0; attempt < thumbnailSettleAttempts; attempt++ {
		if _, err := os.Stat(target); err == nil {
			logger.Debug("thumbnail downloaded", "path", target)

			return target, nil
		}

		time.Sleep(settleDelay)
	}

	return "", &ValidationError{Path: target, Reason: "thumbnail not produced"}
}
