// Package pipeline orchestrates a full audio acquisition: tool
// provisioning, extraction, transcoding, validation, and promotion of
// the finished file into the cache.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/psprofi/audiocache/internal/cache"
	"github.com/psprofi/audiocache/internal/logctx"
	"github.com/psprofi/audiocache/internal/progress"
	"github.com/psprofi/audiocache/internal/runner"
	"github.com/psprofi/audiocache/internal/telemetry"
	"github.com/psprofi/audiocache/internal/tools"
	"github.com/psprofi/audiocache/internal/tracker"
)

const (
	// after the extractor exits, give the filesystem a moment for the
	// postprocessor's final rename to land
	settleAttempts = 5
	settleDelay    = 500 * time.Millisecond
)

// Orchestrator runs acquisitions end to end. Safe for concurrent use;
// callers are expected to serialize per URL above this layer.
type Orchestrator struct {
	store   *cache.Store
	tools   *tools.Provisioner
	tracker *tracker.Tracker
	runner  *runner.Runner
	tel     *telemetry.Telemetry

	extractorTimeout time.Duration
	transcodeTimeout time.Duration
}

func NewOrchestrator(
	store *cache.Store,
	provisioner *tools.Provisioner,
	trk *tracker.Tracker,
	run *runner.Runner,
	tel *telemetry.Telemetry,
	extractorTimeout, transcodeTimeout time.Duration,
) *Orchestrator {
	return &Orchestrator{
		store:            store,
		tools:            provisioner,
		tracker:          trk,
		runner:           run,
		tel:              tel,
		extractorTimeout: extractorTimeout,
		transcodeTimeout: transcodeTimeout,
	}
}

// DownloadAudio acquires the audio for url and returns the path of the
// cached MP3. The id identifies the tracked download; cancellation is
// polled on every subprocess output line and again before promotion,
// so a cancelled acquisition never leaves a file in the cache.
func (o *Orchestrator) DownloadAudio(ctx context.Context, url string, id uuid.UUID, listener progress.Listener) (string, error) {
	var path string

	err := o.tel.InstrumentDownload(ctx, func(ctx context.Context) error {
		var err error
		path, err = o.downloadAudio(ctx, url, id, listener)

		return err
	})

	return path, err
}

func (o *Orchestrator) downloadAudio(ctx context.Context, url string, id uuid.UUID, listener progress.Listener) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	if o.tracker.IsCancelled(id) {
		return "", ErrCancelled
	}

	if err := o.tools.EnsureInstalled(ctx, listener); err != nil {
		listener.OnFail()

		return "", err
	}

	finalPath := o.store.Resolve(url)
	key := cache.Key(url)

	if o.store.IsCached(url) {
		logger.Info("cache hit", "key", key)
		o.tel.RecordCacheEvent("hit")

		listener.OnStage("cached")
		listener.OnProgress(100)

		return finalPath, nil
	}

	o.tel.RecordCacheEvent("miss")

	// leftovers from an earlier interrupted run would confuse artifact
	// discovery below
	o.store.CleanupPartials(ctx, key)

	listener.OnStage("downloading")

	if err := o.runExtractor(ctx, url, key, id, listener); err != nil {
		listener.OnFail()
		o.store.CleanupPartials(ctx, key)

		return "", err
	}

	produced, err := o.awaitArtifact(key, id)
	if err != nil {
		listener.OnFail()
		o.store.CleanupPartials(ctx, key)

		return "", err
	}

	if filepath.Ext(produced) != ".mp3" {
		listener.OnStage("converting")

		produced, err = o.convertToMP3(ctx, produced, id)
		if err != nil {
			listener.OnFail()
			o.store.CleanupPartials(ctx, key)

			return "", err
		}
	}

	if produced != finalPath {
		if err := os.Rename(produced, finalPath); err != nil {
			listener.OnFail()
			o.store.CleanupPartials(ctx, key)

			return "", err
		}
	}

	// a cancel that raced the final rename must still win
	if o.tracker.IsCancelled(id) {
		os.Remove(finalPath)
		o.store.CleanupPartials(ctx, key)
		listener.OnFail()

		return "", ErrCancelled
	}

	if err := validateAudio(ctx, finalPath); err != nil {
		os.Remove(finalPath)
		o.store.CleanupPartials(ctx, key)
		listener.OnFail()

		return "", err
	}

	logger.Info("acquisition complete", "key", key, "path", finalPath)
	listener.OnProgress(100)

	return finalPath, nil
}

func (o *Orchestrator) runExtractor(ctx context.Context, url, key string, id uuid.UUID, listener progress.Listener) error {
	outputTemplate := filepath.Join(o.store.Dir(), key+".%(ext)s")

	args := []string{
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--no-playlist",
		"--no-mtime",
		"--prefer-ffmpeg",
		"-f", "bestaudio/best",
		"--postprocessor-args", "ffmpeg:-acodec libmp3lame -b:a 320k -ar 44100",
		"--cache-dir", filepath.Join(o.store.Dir(), "metadata_cache"),
		"--no-check-certificates",
		"--no-warnings",
		"--quiet",
		"--ignore-errors",
		"--skip-unavailable-fragments",
		"-o", outputTemplate,
		url,
	}

	return o.runner.ExecuteExtractorStreaming(ctx, args, o.extractorTimeout, func(line string) error {
		if o.tracker.IsCancelled(id) {
			return ErrCancelled
		}

		if pct, ok := runner.ParseDownloadPercent(line); ok {
			listener.OnProgress(pct)
		}

		return nil
	})
}

// awaitArtifact polls the cache dir until the extractor's output file
// settles. The postprocessor renames its temp file after the process
// has already exited, so the first look can come up empty and a .part
// file may still be pending.
func (o *Orchestrator) awaitArtifact(key string, id uuid.UUID) (string, error) {
	for attempt := 0; attempt < settleAttempts; attempt++ {
		if o.tracker.IsCancelled(id) {
			return "", ErrCancelled
		}

		pending, err := o.store.HasPartials(key)
		if err != nil {
			return "", err
		}

		if !pending {
			path, err := o.store.FindDownloaded(key)
			if err != nil {
				return "", err
			}

			if path != "" {
				return path, nil
			}
		}

		time.Sleep(settleDelay)
	}

	// exhaustion falls through to one last lookup; a lingering .part at
	// this point belongs to a run that will never finish
	path, err := o.store.FindDownloaded(key)
	if err != nil {
		return "", err
	}

	if path == "" {
		return "", ErrNoAudioProduced
	}

	return path, nil
}

// mp3Path maps an artifact path to its target MP3 path.
func mp3Path(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".mp3"
}
