package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/psprofi/audiocache/internal/logctx"
)

// convertToMP3 transcodes input into an MP3 next to it and removes the
// input on success. MP3 inputs pass through untouched; an already
// existing output wins over re-encoding.
func (o *Orchestrator) convertToMP3(ctx context.Context, input string, id uuid.UUID) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	if filepath.Ext(input) == ".mp3" {
		return input, nil
	}

	output := mp3Path(input)

	if info, err := os.Stat(output); err == nil && info.Size() >= minAudioSize {
		os.Remove(input)

		return output, nil
	}

	logger.Info("transcoding to mp3", "input", filepath.Base(input))

	args := []string{
		"-i", input,
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", "320k",
		"-ar", "44100",
		"-ac", "2",
		"-y",
		output,
	}

	err := o.runner.ExecuteTranscoder(ctx, args, o.transcodeTimeout, func(string) error {
		if o.tracker.IsCancelled(id) {
			return ErrCancelled
		}

		return nil
	})
	if err != nil {
		os.Remove(output)
		o.tel.RecordTranscode("failed")

		return "", err
	}

	if info, statErr := os.Stat(output); statErr != nil || info.Size() < minAudioSize {
		os.Remove(output)
		o.tel.RecordTranscode("failed")

		return "", &ValidationError{Path: output, Reason: "transcoder produced no usable output"}
	}

	os.Remove(input)
	o.tel.RecordTranscode("completed")

	return output, nil
}
