package cli

import (
	"errors"

	"github.com/waftester/wpscout/pkg/defaults"
)

// Process exit codes.
const (
	ExitOK          = defaults.ExitSuccess
	ExitFailure     = defaults.ExitError
	ExitAborted     = defaults.ExitAborted
	ExitInterrupted = defaults.ExitInterrupted
)

// ExitError carries an exit code out of a command. The message has
// already been shown to the user when Silent is set.
type ExitError struct {
	Code   int
	Err    error
	Silent bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return "exit status"
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCodeForStatus maps a scan status to the process exit code.
func ExitCodeForStatus(status string) int {
	switch status {
	case "completed":
		return ExitOK
	case "aborted":
		return ExitAborted
	case "interrupted":
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

// ExitCode returns the code for err: 0 for nil, the carried code for an
// *ExitError, 130 for an interrupt and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	if errors.Is(err, ErrInterrupted) {
		return ExitInterrupted
	}
	return ExitFailure
}
