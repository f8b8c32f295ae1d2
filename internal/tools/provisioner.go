// Package tools bootstraps the extractor and transcoder binaries: it
// downloads the release assets for the host platform, extracts the
// executables, and refreshes the extractor when it grows stale.
package tools

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/psprofi/audiocache/internal/logctx"
	"github.com/psprofi/audiocache/internal/progress"
	"golang.org/x/sync/errgroup"
)

const (
	dirPerm  = 0755
	execPerm = 0755

	// system tar invocation budget when unpacking the transcoder
	extractTimeout = 60 * time.Second
)

// Provisioner locates, downloads, and extracts the external tool
// binaries. Exactly one provisioning attempt runs at a time; concurrent
// callers rendezvous on the mutex and observe the finished state.
type Provisioner struct {
	dir     string
	version string
	client  *http.Client

	mu        sync.Mutex
	installed bool
}

func NewProvisioner(dir, extractorVersion string) *Provisioner {
	return &Provisioner{
		dir:     dir,
		version: extractorVersion,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// Dir returns the tools directory.
func (p *Provisioner) Dir() string {
	return p.dir
}

// ExtractorPath returns where the extractor binary lives once installed.
func (p *Provisioner) ExtractorPath() string {
	return filepath.Join(p.dir, executableName("yt-dlp"))
}

// TranscoderPath returns where the transcoder binary lives once installed.
func (p *Provisioner) TranscoderPath() string {
	return filepath.Join(p.dir, executableName("ffmpeg"))
}

// ProbePath returns where the probe binary lives once installed.
func (p *Provisioner) ProbePath() string {
	return filepath.Join(p.dir, executableName("ffprobe"))
}

// EnsureInstalled makes sure all three binaries exist and are
// executable, downloading whatever is missing. Idempotent; cheap once
// the installed flag is set and the files are still present.
func (p *Provisioner) EnsureInstalled(ctx context.Context, listener progress.Listener) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.installed && p.allPresent() {
		return nil
	}

	if err := os.MkdirAll(p.dir, dirPerm); err != nil {
		return &FilesystemError{Path: p.dir, Err: err}
	}

	g, gctx := errgroup.WithContext(ctx)

	if !exists(p.ExtractorPath()) {
		listener.OnStage("installing extractor")

		g.Go(func() error {
			return p.downloadExtractor(gctx)
		})
	}

	if !exists(p.TranscoderPath()) || !exists(p.ProbePath()) {
		listener.OnStage("installing transcoder")

		g.Go(func() error {
			return p.downloadTranscoder(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	p.installed = true

	return nil
}

func (p *Provisioner) allPresent() bool {
	return exists(p.ExtractorPath()) && exists(p.TranscoderPath()) && exists(p.ProbePath())
}

func (p *Provisioner) downloadExtractor(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)
	url := extractorAssetURL(p.version)

	logger.Info("downloading extractor", "url", url, "version", p.version)

	if err := p.fetchFile(ctx, "download_extractor", url, p.ExtractorPath()); err != nil {
		return err
	}

	return markExecutable(p.ExtractorPath())
}

func (p *Provisioner) downloadTranscoder(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	url, format, err := transcoderAssetURL()
	if err != nil {
		return err
	}

	logger.Info("downloading transcoder archive", "url", url)

	archive := filepath.Join(p.dir, "ffmpeg_tmp."+string(format))
	if err := p.fetchFile(ctx, "download_transcoder", url, archive); err != nil {
		return err
	}

	defer os.Remove(archive)

	switch format {
	case formatZip:
		err = p.extractFromZip(archive)
	case formatTarXz:
		err = p.extractFromTarXz(ctx, archive)
	}

	if err != nil {
		// partial extractions must not pass as installed
		os.Remove(p.TranscoderPath())
		os.Remove(p.ProbePath())

		return err
	}

	if err := markExecutable(p.TranscoderPath()); err != nil {
		return err
	}

	return markExecutable(p.ProbePath())
}

// fetchFile downloads url into dest atomically: temp file first, rename
// on success, nothing left behind on failure.
func (p *Provisioner) fetchFile(ctx context.Context, operation, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &NetworkError{Operation: operation, Err: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &NetworkError{Operation: operation, Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &NetworkError{Operation: operation, StatusCode: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(p.dir, ".download-*")
	if err != nil {
		return &FilesystemError{Path: p.dir, Err: err}
	}

	tmpPath := tmp.Name()

	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()

	if copyErr != nil {
		os.Remove(tmpPath)

		return &NetworkError{Operation: operation, Err: copyErr}
	}

	if closeErr != nil {
		os.Remove(tmpPath)

		return &FilesystemError{Path: tmpPath, Err: closeErr}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)

		return &FilesystemError{Path: dest, Err: err}
	}

	return nil
}

// extractFromZip pulls only the transcoder and probe executables out of
// the archive, matched by name suffix; every other member is skipped.
func (p *Provisioner) extractFromZip(archive string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return &ArchiveError{Archive: filepath.Base(archive), Reason: "cannot open zip", Err: err}
	}

	defer r.Close()

	wanted := map[string]string{
		executableName("ffmpeg"):  p.TranscoderPath(),
		executableName("ffprobe"): p.ProbePath(),
	}

	for _, f := range r.File {
		base := filepath.Base(f.Name)

		dest, ok := wanted[base]
		if !ok || f.FileInfo().IsDir() {
			continue
		}

		if err := copyZipMember(f, dest); err != nil {
			return &ArchiveError{Archive: filepath.Base(archive), Reason: "cannot extract " + base, Err: err}
		}

		delete(wanted, base)

		if len(wanted) == 0 {
			break
		}
	}

	if len(wanted) > 0 {
		var missing []string
		for name := range wanted {
			missing = append(missing, name)
		}

		return &ArchiveError{
			Archive: filepath.Base(archive),
			Reason:  fmt.Sprintf("missing executables: %s", strings.Join(missing, ", ")),
		}
	}

	return nil
}

// extractFromTarXz unpacks via the system tar, which handles xz
// everywhere we ship tar.xz archives.
func (p *Provisioner) extractFromTarXz(ctx context.Context, archive string) error {
	runCtx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "tar", "-xJf", archive,
		"-C", p.dir,
		"--strip-components=2",
		"--wildcards", "*/bin/ffmpeg", "*/bin/ffprobe")

	if out, err := cmd.CombinedOutput(); err != nil {
		return &ArchiveError{
			Archive: filepath.Base(archive),
			Reason:  strings.TrimSpace(string(out)),
			Err:     err,
		}
	}

	if !exists(p.TranscoderPath()) || !exists(p.ProbePath()) {
		return &ArchiveError{
			Archive: filepath.Base(archive),
			Reason:  "archive did not contain the expected executables",
		}
	}

	return nil
}

func copyZipMember(f *zip.File, dest string) error {
	in, err := f.Open()
	if err != nil {
		return err
	}

	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)

		return err
	}

	return out.Close()
}

func markExecutable(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}

	if err := os.Chmod(path, execPerm); err != nil {
		return &FilesystemError{Path: path, Err: err}
	}

	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}
