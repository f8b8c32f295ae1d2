package source

import (
	"errors"
	"fmt"
)

// ErrInvalidURL rejects URLs whose host is not on the allowlist.
var ErrInvalidURL = errors.New("unsupported source url")

// ErrAlreadyDownloading rejects a second resolve for a URL whose
// acquisition is still running.
var ErrAlreadyDownloading = errors.New("download already in progress for url")

// ResolveError wraps a pipeline failure with the URL and stage it
// happened in.
type ResolveError struct {
	URL   string
	Stage string
	Err   error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolving %s failed during %s: %v", e.URL, e.Stage, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}
