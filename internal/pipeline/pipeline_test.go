package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psprofi/audiocache/internal/cache"
	"github.com/psprofi/audiocache/internal/runner"
	"github.com/psprofi/audiocache/internal/telemetry"
	"github.com/psprofi/audiocache/internal/tools"
	"github.com/psprofi/audiocache/internal/tracker"
)

// recordingListener captures progress callbacks for assertions.
type recordingListener struct {
	mu       sync.Mutex
	stages   []string
	progress []float64
	failed   bool
}

func (l *recordingListener) OnStage(stage string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stages = append(l.stages, stage)
}

func (l *recordingListener) OnProgress(pct float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress = append(l.progress, pct)
}

func (l *recordingListener) OnFail() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = true
}

func (l *recordingListener) Stages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.stages...)
}

func (l *recordingListener) Failed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.failed
}

type fixture struct {
	orch  *Orchestrator
	store *cache.Store
	trk   *tracker.Tracker
}

// extractOutputScript is the shared shell prologue that recovers the
// output template passed via -o and substitutes the extension.
const extractOutputScript = `out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
`

func newFixture(t *testing.T, extractorScript, transcoderScript string) *fixture {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}

	toolsDir := t.TempDir()
	writeScript(t, filepath.Join(toolsDir, "yt-dlp"), extractorScript)
	writeScript(t, filepath.Join(toolsDir, "ffmpeg"), transcoderScript)
	writeScript(t, filepath.Join(toolsDir, "ffprobe"), "exit 0")

	provisioner := tools.NewProvisioner(toolsDir, "test")

	store, err := cache.NewStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	trk := tracker.New()
	run := runner.New(provisioner.ExtractorPath(), provisioner.TranscoderPath(), toolsDir)

	orch := NewOrchestrator(
		store, provisioner, trk, run, &telemetry.Telemetry{},
		30*time.Second, 30*time.Second,
	)

	return &fixture{orch: orch, store: store, trk: trk}
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
}

func mp3Extractor() string {
	return extractOutputScript + `out=$(printf '%s' "$out" | sed 's/%(ext)s/mp3/')
{ printf 'ID3'; head -c 2000 /dev/zero; } > "$out"
`
}

func TestOrchestrator_DownloadAudio_MP3(t *testing.T) {
	f := newFixture(t, mp3Extractor(), "exit 1")
	ctx := context.Background()
	url := "https://example.test/track"

	id := f.trk.Start(ctx, url)
	listener := &recordingListener{}

	path, err := f.orch.DownloadAudio(ctx, url, id, listener)
	require.NoError(t, err)

	assert.Equal(t, f.store.Resolve(url), path)
	assert.True(t, f.store.IsCached(url))
	assert.Contains(t, listener.Stages(), "downloading")
	assert.False(t, listener.Failed())
}

func TestOrchestrator_DownloadAudio_CacheHit(t *testing.T) {
	// extractor would blow up if invoked
	f := newFixture(t, "exit 1", "exit 1")
	ctx := context.Background()
	url := "https://example.test/track"

	require.NoError(t, os.WriteFile(f.store.Resolve(url), []byte("ID3cached"), 0644))

	id := f.trk.Start(ctx, url)
	listener := &recordingListener{}

	path, err := f.orch.DownloadAudio(ctx, url, id, listener)
	require.NoError(t, err)

	assert.Equal(t, f.store.Resolve(url), path)
	assert.Equal(t, []string{"cached"}, listener.Stages())
}

func TestOrchestrator_DownloadAudio_Transcodes(t *testing.T) {
	extractor := extractOutputScript + `out=$(printf '%s' "$out" | sed 's/%(ext)s/opus/')
{ printf 'OggS'; head -c 2000 /dev/zero; } > "$out"
`
	// the fake transcoder writes a valid mp3 to its last argument
	transcoder := `for a in "$@"; do last="$a"; done
{ printf 'ID3'; head -c 2000 /dev/zero; } > "$last"
`

	f := newFixture(t, extractor, transcoder)
	ctx := context.Background()
	url := "https://example.test/track"

	id := f.trk.Start(ctx, url)
	listener := &recordingListener{}

	path, err := f.orch.DownloadAudio(ctx, url, id, listener)
	require.NoError(t, err)

	assert.Equal(t, f.store.Resolve(url), path)
	assert.Contains(t, listener.Stages(), "converting")

	// the intermediate artifact is gone
	entries, err := os.ReadDir(f.store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestOrchestrator_DownloadAudio_PreCancelled(t *testing.T) {
	f := newFixture(t, mp3Extractor(), "exit 1")
	ctx := context.Background()
	url := "https://example.test/track"

	id := f.trk.Start(ctx, url)
	f.trk.Cancel(ctx, id)

	_, err := f.orch.DownloadAudio(ctx, url, id, &recordingListener{})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, f.store.IsCached(url))
}

func TestOrchestrator_DownloadAudio_CancelMidDownload(t *testing.T) {
	slow := `i=0
while [ $i -lt 100 ]; do
  echo "[download]  $i.0% of 3MiB" >&2
  sleep 0.1
  i=$((i+1))
done
`

	f := newFixture(t, slow, "exit 1")
	ctx := context.Background()
	url := "https://example.test/track"

	id := f.trk.Start(ctx, url)
	listener := &recordingListener{}

	done := make(chan error, 1)

	go func() {
		_, err := f.orch.DownloadAudio(ctx, url, id, listener)
		done <- err
	}()

	time.Sleep(300 * time.Millisecond)
	f.trk.Cancel(ctx, id)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(10 * time.Second):
		t.Fatal("cancellation did not terminate the download")
	}

	assert.True(t, listener.Failed())
	assert.False(t, f.store.IsCached(url))
}

func TestOrchestrator_DownloadAudio_NoAudioProduced(t *testing.T) {
	f := newFixture(t, "exit 0", "exit 1")
	ctx := context.Background()
	url := "https://example.test/track"

	id := f.trk.Start(ctx, url)
	listener := &recordingListener{}

	_, err := f.orch.DownloadAudio(ctx, url, id, listener)
	assert.ErrorIs(t, err, ErrNoAudioProduced)
	assert.True(t, listener.Failed())
}

func TestOrchestrator_DownloadThumbnail(t *testing.T) {
	extractor := extractOutputScript + `printf 'JFIF' > "$out.jpg"
`

	f := newFixture(t, extractor, "exit 1")
	ctx := context.Background()
	url := "https://example.test/track"

	path, err := f.orch.DownloadThumbnail(ctx, url, 10*time.Second)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(f.store.Dir(), cache.Key(url)+"_thumb.jpg"), path)
}

func TestOrchestrator_DownloadThumbnail_Cached(t *testing.T) {
	f := newFixture(t, "exit 1", "exit 1")
	ctx := context.Background()
	url := "https://example.test/track"

	cached := filepath.Join(f.store.Dir(), cache.Key(url)+"_thumb.jpg")
	require.NoError(t, os.WriteFile(cached, []byte("JFIF"), 0644))

	path, err := f.orch.DownloadThumbnail(ctx, url, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, cached, path)
}

func TestOrchestrator_DownloadThumbnail_NotProduced(t *testing.T) {
	f := newFixture(t, "exit 0", "exit 1")
	ctx := context.Background()

	_, err := f.orch.DownloadThumbnail(ctx, "https://example.test/track", 10*time.Second)

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestOrchestrator_DownloadAudio_RejectsTinyFile(t *testing.T) {
	tiny := extractOutputScript + `out=$(printf '%s' "$out" | sed 's/%(ext)s/mp3/')
printf 'ID3' > "$out"
`

	f := newFixture(t, tiny, "exit 1")
	ctx := context.Background()
	url := "https://example.test/track"

	id := f.trk.Start(ctx, url)

	_, err := f.orch.DownloadAudio(ctx, url, id, &recordingListener{})

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.False(t, f.store.IsCached(url))
}
