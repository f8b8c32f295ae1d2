package tools

import "fmt"

// NetworkError represents a failed download of a release asset:
// connection failures, timeouts, or non-200 responses.
type NetworkError struct {
	Operation  string // what was being fetched (e.g. "download_extractor")
	StatusCode int    // HTTP status, 0 for transport errors
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d)", e.Operation, e.StatusCode)
	}

	return fmt.Sprintf("network error during %s", e.Operation)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ArchiveError represents a transcoder archive that could not be
// extracted or did not contain the expected executables.
type ArchiveError struct {
	Archive string
	Reason  string
	Err     error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive error for %s: %s", e.Archive, e.Reason)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// FilesystemError represents a failure writing, renaming, or chmodding
// a tool inside the tools directory.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem error at %s", e.Path)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}
