package pipeline

import (
	"bytes"
	"context"
	"os"

	"github.com/psprofi/audiocache/internal/logctx"
)

// minAudioSize guards against error pages and truncated writes being
// promoted as audio.
const minAudioSize = 1000

// validateAudio checks that path holds a plausible audio file: big
// enough, and carrying a recognizable container header. Unknown headers
// are logged and let through; extractors emit more formats than we care
// to enumerate.
func validateAudio(ctx context.Context, path string) error {
	logger := logctx.LoggerFromContext(ctx)

	info, err := os.Stat(path)
	if err != nil {
		return &ValidationError{Path: path, Reason: "cannot stat: " + err.Error()}
	}

	if info.Size() < minAudioSize {
		return &ValidationError{Path: path, Reason: "file too small to be audio"}
	}

	f, err := os.Open(path)
	if err != nil {
		return &ValidationError{Path: path, Reason: "cannot open: " + err.Error()}
	}

	defer f.Close()

	header := make([]byte, 4)
	if _, err := f.Read(header); err != nil {
		return &ValidationError{Path: path, Reason: "cannot read header: " + err.Error()}
	}

	if !knownAudioHeader(header) {
		logger.Warn("unrecognized audio header, accepting anyway", "path", path)
	}

	return nil
}

func knownAudioHeader(h []byte) bool {
	if len(h) < 4 {
		return false
	}

	switch {
	case bytes.HasPrefix(h, []byte("ID3")):
		return true // MP3 with ID3 tag
	case h[0] == 0xFF && h[1]&0xE0 == 0xE0:
		return true // raw MPEG frame sync
	case bytes.HasPrefix(h, []byte("OggS")):
		return true
	case bytes.HasPrefix(h, []byte("RIFF")):
		return true
	}

	return false
}
