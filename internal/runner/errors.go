package runner

import "fmt"

// TimeoutError reports a subprocess that exceeded its time budget and
// was force-killed.
type TimeoutError struct {
	Tool    string // binary that was running
	Seconds int    // budget it exceeded
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %ds", e.Tool, e.Seconds)
}

// ExitError reports a subprocess that finished with a nonzero exit
// code; Stderr carries the diagnostic tail.
type ExitError struct {
	Tool   string
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s failed with exit code %d: %s", e.Tool, e.Code, e.Stderr)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
