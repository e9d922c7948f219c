package runner

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
)

// UpdateFlag asks the downloader to replace itself with the latest
// release.
const UpdateFlag = "-U"

// UpdateChecker runs the downloader's self-update.
type UpdateChecker struct {
	command CommandFunc
}

// NewUpdateChecker creates a checker spawning real processes.
func NewUpdateChecker() *UpdateChecker {
	return &UpdateChecker{command: exec.Command}
}

// NewUpdateCheckerWithCommand creates a checker using cmd to build
// processes.
func NewUpdateCheckerWithCommand(cmd CommandFunc) *UpdateChecker {
	return &UpdateChecker{command: cmd}
}

// Check runs the update synchronously. A non-zero exit is returned as
// *UpdateError. The tool may rewrite its own binary while doing so.
func (u *UpdateChecker) Check(ctx context.Context, downloaderPath string) error {
	if err := ctx.Err(); err != nil {
		return &UpdateError{ExitCode: -1, Err: err}
	}

	slog.Info("update_check_start", "downloader", downloaderPath)

	cmd := u.command(downloaderPath, UpdateFlag)
	hideWindow(cmd)

	out, err := cmd.CombinedOutput()
	if err != nil {
		uerr := &UpdateError{ExitCode: exitCode(err), Output: strings.TrimSpace(string(out)), Err: err}
		slog.Error("update_check_failed", "exit_code", uerr.ExitCode, "error", err)
		return uerr
	}

	slog.Info("update_check_complete", "output", strings.TrimSpace(string(out)))
	return nil
}
