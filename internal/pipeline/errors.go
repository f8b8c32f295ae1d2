package pipeline

import (
	"errors"
	"fmt"
)

// ErrCancelled aborts a running acquisition when the caller asked for
// the download to stop. The runner kills the subprocess when a line
// callback returns it.
var ErrCancelled = errors.New("download cancelled")

// ErrNoAudioProduced means the extractor exited cleanly but left no
// usable audio artifact behind.
var ErrNoAudioProduced = errors.New("extractor produced no audio file")

// ValidationError rejects a finished file that does not look like real
// audio.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid audio file %s: %s", e.Path, e.Reason)
}
