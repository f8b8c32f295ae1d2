// Package runner launches the extractor and transcoder subprocesses
// with timeouts and line-by-line output streaming.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/psprofi/audiocache/internal/logctx"
)

// Chrome on Windows; matches what the streaming sites expect from a
// desktop browser and avoids 403 responses.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// stderr tail kept for error reporting.
const maxStderrBytes = 16 * 1024

var progressRe = regexp.MustCompile(`\[download\]\s+([0-9]+(?:\.[0-9]+)?)%`)

// LineFunc is invoked for every stderr line of a streaming execution.
// Returning a non-nil error kills the subprocess and propagates the
// error to the caller; this is the forced-termination hook used for
// cooperative cancellation.
type LineFunc func(line string) error

// Runner executes the external tool binaries.
type Runner struct {
	extractor  string
	transcoder string
	toolsDir   string
}

func New(extractorPath, transcoderPath, toolsDir string) *Runner {
	return &Runner{
		extractor:  extractorPath,
		transcoder: transcoderPath,
		toolsDir:   toolsDir,
	}
}

// ExecuteExtractor runs the extractor with the anti-blocking preamble
// prepended and returns its full stdout.
func (r *Runner) ExecuteExtractor(ctx context.Context, args []string, timeout time.Duration) (string, error) {
	argv := append(r.antiBlockingArgs(), args...)

	return r.capture(ctx, r.extractor, argv, timeout)
}

// ExecuteExtractorStreaming runs the extractor, feeding each stderr
// line (where it reports progress) to onLine.
func (r *Runner) ExecuteExtractorStreaming(ctx context.Context, args []string, timeout time.Duration, onLine LineFunc) error {
	argv := append(r.antiBlockingArgs(), args...)

	return r.stream(ctx, r.extractor, argv, timeout, onLine)
}

// ExecuteTranscoder runs the transcoder, feeding each stderr line to
// onLine so callers can poll cancellation mid-conversion.
func (r *Runner) ExecuteTranscoder(ctx context.Context, args []string, timeout time.Duration, onLine LineFunc) error {
	return r.stream(ctx, r.transcoder, args, timeout, onLine)
}

// ParseDownloadPercent extracts the percentage from an extractor
// progress line such as "[download]  42.3% of 3.45MiB at ...".
func ParseDownloadPercent(line string) (float64, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}

	return pct, true
}

// antiBlockingArgs returns the preamble prepended to every extractor
// invocation: a desktop user-agent and headers, cookies when a
// tools/cookies.txt exists, and the bundled transcoder location so the
// extractor does not pick one up from PATH.
func (r *Runner) antiBlockingArgs() []string {
	args := []string{
		"--user-agent", userAgent,
		"--add-header", "Accept:text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"--add-header", "Accept-Language:en-us,en;q=0.5",
	}

	cookies := filepath.Join(r.toolsDir, "cookies.txt")
	if _, err := os.Stat(cookies); err == nil {
		args = append(args, "--cookies", cookies)
	}

	if _, err := os.Stat(r.transcoder); err == nil {
		args = append(args, "--ffmpeg-location", r.transcoder)
	}

	return args
}

func (r *Runner) capture(ctx context.Context, tool string, argv []string, timeout time.Duration) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, tool, argv...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("executing tool", "tool", filepath.Base(tool), "timeout", timeout.String())

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", &TimeoutError{Tool: filepath.Base(tool), Seconds: int(timeout.Seconds())}
	}

	if err != nil {
		return "", r.exitError(tool, err, stderr.String())
	}

	return stdout.String(), nil
}

func (r *Runner) stream(ctx context.Context, tool string, argv []string, timeout time.Duration, onLine LineFunc) error {
	logger := logctx.LoggerFromContext(ctx)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, tool, argv...)

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", filepath.Base(tool), err)
	}

	logger.Debug("executing tool", "tool", filepath.Base(tool), "timeout", timeout.String())

	var (
		tail    strings.Builder
		lineErr error
	)

	scanner := bufio.NewScanner(stderrPipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if tail.Len() < maxStderrBytes {
			tail.WriteString(line)
			tail.WriteByte('\n')
		}

		if lineErr != nil {
			continue // already killed, drain the pipe
		}

		if onLine != nil {
			if err := onLine(line); err != nil {
				lineErr = err

				if cmd.Process != nil {
					_ = cmd.Process.Kill()
				}
			}
		}
	}

	waitErr := cmd.Wait()

	if lineErr != nil {
		return lineErr
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return &TimeoutError{Tool: filepath.Base(tool), Seconds: int(timeout.Seconds())}
	}

	if waitErr != nil {
		return r.exitError(tool, waitErr, tail.String())
	}

	return nil
}

func (r *Runner) exitError(tool string, err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if len(stderr) > maxStderrBytes {
		stderr = stderr[len(stderr)-maxStderrBytes:]
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{
			Tool:   filepath.Base(tool),
			Code:   exitErr.ExitCode(),
			Stderr: stderr,
			Err:    err,
		}
	}

	return fmt.Errorf("failed to run %s: %w", filepath.Base(tool), err)
}
