// Package tracker issues download identifiers and carries the
// cooperative cancellation flag for each in-flight pipeline run.
//
// The tracker is strictly a signal registry: it never owns processes or
// files. The orchestrator and runner poll IsCancelled at their stage
// boundaries and abort on their own.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/psprofi/audiocache/internal/logctx"
)

// StaleAfter is how long an entry may live before the reaper assumes
// Complete was never called for it.
const StaleAfter = 10 * time.Minute

// Download is the registry entry for one pipeline run.
type Download struct {
	URL       string
	StartedAt time.Time
	cancelled bool
}

// Tracker is a thread-safe registry of active downloads.
type Tracker struct {
	mu     sync.Mutex
	active map[uuid.UUID]*Download
}

func New() *Tracker {
	return &Tracker{active: make(map[uuid.UUID]*Download)}
}

// Start registers a new download for url and returns its identifier.
func (t *Tracker) Start(ctx context.Context, url string) uuid.UUID {
	id := uuid.New()
	t.Register(ctx, id, url)

	return id
}

// Register tracks a download under a caller-supplied identifier. Lets a
// caller claim the id in its own bookkeeping before the entry exists.
func (t *Tracker) Register(ctx context.Context, id uuid.UUID, url string) {
	t.mu.Lock()
	t.active[id] = &Download{URL: url, StartedAt: time.Now()}
	t.mu.Unlock()

	logctx.LoggerFromContext(ctx).Debug("tracking download", "download_id", id, "url", url)
}

// IsCancelled reports whether the download was cancelled. Unknown ids
// report false so that checks after Complete are benign.
func (t *Tracker) IsCancelled(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.active[id]

	return ok && d.cancelled
}

// Cancel marks the download cancelled. The flag is monotonic and the
// call is idempotent; cancelling an unknown id is a no-op.
func (t *Tracker) Cancel(ctx context.Context, id uuid.UUID) {
	t.mu.Lock()
	d, ok := t.active[id]
	if ok {
		d.cancelled = true
	}
	t.mu.Unlock()

	if ok {
		logctx.LoggerFromContext(ctx).Info("cancelled download",
			"download_id", id,
			"url", d.URL,
			"elapsed", time.Since(d.StartedAt).String())
	}
}

// Complete removes the entry and reports whether the download finished
// without being cancelled. Unknown ids return false, which callers read
// as "nothing to clean up".
func (t *Tracker) Complete(ctx context.Context, id uuid.UUID) bool {
	t.mu.Lock()
	d, ok := t.active[id]
	if ok {
		delete(t.active, id)
	}
	t.mu.Unlock()

	logger := logctx.LoggerFromContext(ctx)

	if !ok {
		logger.Debug("download completed but not tracked", "download_id", id)

		return false
	}

	logger.Debug("download finished",
		"download_id", id,
		"cancelled", d.cancelled,
		"elapsed", time.Since(d.StartedAt).String())

	return !d.cancelled
}

// CleanupStale drops entries older than StaleAfter and returns how many
// were removed. Covers pipelines that died without calling Complete.
func (t *Tracker) CleanupStale(ctx context.Context) int {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0

	for id, d := range t.active {
		if now.Sub(d.StartedAt) <= StaleAfter {
			continue
		}

		delete(t.active, id)
		removed++

		logger.Warn("removed stale download", "download_id", id, "url", d.URL)
	}

	return removed
}

// CancelAll flags every active download as cancelled.
func (t *Tracker) CancelAll(ctx context.Context) {
	t.mu.Lock()
	count := len(t.active)
	for _, d := range t.active {
		d.cancelled = true
	}
	t.mu.Unlock()

	if count > 0 {
		logctx.LoggerFromContext(ctx).Info("cancelled all downloads", "count", count)
	}
}

// Clear drops every entry without cancelling. For shutdown.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.active = make(map[uuid.UUID]*Download)
	t.mu.Unlock()
}

// ActiveCount returns the number of tracked downloads.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.active)
}

// ActiveIDs returns a snapshot of the tracked identifiers.
func (t *Tracker) ActiveIDs() []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}

	return ids
}

// Reap runs CleanupStale on every tick until ctx is cancelled. Meant to
// be launched once from the application bootstrap.
func (t *Tracker) Reap(ctx context.Context, interval time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("download reaper shutting down")

			return
		case <-ticker.C:
			if removed := t.CleanupStale(ctx); removed > 0 {
				logger.Info("reaped stale downloads", "count", removed)
			}
		}
	}
}
