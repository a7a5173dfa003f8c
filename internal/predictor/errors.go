package predictor

import (
	"errors"
	"fmt"
)

var (
	// ErrNoReading means no sensor reading has been received yet.
	ErrNoReading = errors.New("no sensor reading available")

	// ErrBusy means another invocation holds the inference slot. Callers
	// are shed rather than queued; retry later if the result matters.
	ErrBusy = errors.New("forecast invocation already in flight")
)

// InvocationError reports a failed inference subprocess run: non-zero exit,
// enforced deadline, or unparseable output. Output carries whatever the
// process wrote to stdout, for diagnosis.
type InvocationError struct {
	Output string
	Err    error
}

func (e *InvocationError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("inference invocation failed: %v (output: %s)", e.Err, e.Output)
	}
	return fmt.Sprintf("inference invocation failed: %v", e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
