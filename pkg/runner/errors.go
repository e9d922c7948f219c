package runner

import (
	"fmt"
	"os/exec"

	"github.com/gamermine/convertisseur/pkg/errors"
)

// JobError reports a download process that could not be started or exited
// non-zero. ExitCode is -1 when the process never ran.
type JobError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *JobError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("download job failed to run: %v", e.Err)
	}
	if e.Stderr != "" {
		return fmt.Sprintf("download job exited with code %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("download job exited with code %d", e.ExitCode)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// UpdateError reports a failed self-update invocation.
type UpdateError struct {
	ExitCode int
	Output   string
	Err      error
}

func (e *UpdateError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("update check failed to run: %v", e.Err)
	}
	return fmt.Sprintf("update check exited with code %d", e.ExitCode)
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}

// exitCode extracts the process exit status, or -1 when err is not an
// exit status.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
