package tools

import (
	"context"
	"os"

	"github.com/psprofi/audiocache/internal/logctx"
	"github.com/psprofi/audiocache/internal/progress"
)

// AgeDays reports how many whole days ago the extractor binary was
// written, or -1 when it is not installed.
func (p *Provisioner) AgeDays(now int64) int {
	info, err := os.Stat(p.ExtractorPath())
	if err != nil {
		return -1
	}

	age := now - info.ModTime().Unix()
	if age < 0 {
		return 0
	}

	return int(age / 86400)
}

// ForceRefresh deletes the installed extractor and downloads the pinned
// version again. The transcoder is left alone.
func (p *Provisioner) ForceRefresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Remove(p.ExtractorPath()); err != nil && !os.IsNotExist(err) {
		return &FilesystemError{Path: p.ExtractorPath(), Err: err}
	}

	p.installed = false

	return p.downloadExtractor(ctx)
}

// CheckAndRefreshIfStale re-downloads the extractor when its on-disk
// copy is older than maxAgeDays. A refresh failure is logged and
// swallowed; the stale binary keeps working until the next check.
func (p *Provisioner) CheckAndRefreshIfStale(ctx context.Context, now int64, maxAgeDays int, listener progress.Listener) {
	logger := logctx.LoggerFromContext(ctx)

	age := p.AgeDays(now)
	if age < 0 || age <= maxAgeDays {
		return
	}

	logger.Info("extractor is stale, refreshing", "age_days", age, "max_age_days", maxAgeDays)
	listener.OnStage("refreshing extractor")

	if err := p.ForceRefresh(ctx); err != nil {
		logger.Warn("extractor refresh failed, keeping current binary", "error", err)
	}
}
