// Package runner spawns the downloader tool: the audio download job and
// the one-shot self-update check.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/gamermine/convertisseur/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ProgressTemplate makes the downloader print one bare percentage per
// progress update.
const ProgressTemplate = "%(progress._percent_str)s"

// Request describes one audio download.
type Request struct {
	Downloader string
	Transcoder string
	URL        string
	DestDir    string
}

// Args builds the downloader argument list: audio only, title as file
// name, mp3 output, single video, explicit transcoder, percent progress.
func Args(req Request) []string {
	return []string{
		req.URL,
		"-o", "%(title)s",
		"-x",
		"-q",
		"--audio-format", "mp3",
		"--no-playlist",
		"--ffmpeg-location", req.Transcoder,
		"-P", req.DestDir,
		"--progress",
		"--progress-template", ProgressTemplate,
	}
}

// Progress is one parsed progress line.
type Progress struct {
	Percent float64
}

// CommandFunc builds the process to run. Tests substitute it.
type CommandFunc func(name string, args ...string) *exec.Cmd

// Runner starts download jobs. It does not limit concurrency; callers run
// one job at a time.
type Runner struct {
	command CommandFunc
}

// New creates a runner spawning real processes.
func New() *Runner {
	return &Runner{command: exec.Command}
}

// NewWithCommand creates a runner using cmd to build processes.
func NewWithCommand(cmd CommandFunc) *Runner {
	return &Runner{command: cmd}
}

// Handle owns a running download process until Wait returns.
type Handle struct {
	cmd    *exec.Cmd
	group  *errgroup.Group
	stderr *tailBuffer
	once   sync.Once
	err    error
}

// Start spawns the download without waiting for it. onProgress, if set,
// is called from a background goroutine for each progress line. The job
// is not tied to ctx once started.
func (r *Runner) Start(ctx context.Context, req Request, onProgress func(Progress)) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &JobError{ExitCode: -1, Err: err}
	}

	cmd := r.command(req.Downloader, Args(req)...)
	hideWindow(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &JobError{ExitCode: -1, Err: errors.Wrap(err, "failed to open stdout")}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &JobError{ExitCode: -1, Err: errors.Wrap(err, "failed to open stderr")}
	}

	slog.Info("download_job_start", "url", req.URL, "dest", req.DestDir)
	if err := cmd.Start(); err != nil {
		slog.Error("download_job_spawn_failed", "downloader", req.Downloader, "error", err)
		return nil, &JobError{ExitCode: -1, Err: errors.Wrap(err, "failed to start downloader")}
	}

	h := &Handle{cmd: cmd, group: &errgroup.Group{}, stderr: &tailBuffer{max: 4096}}
	h.group.Go(func() error {
		return scanProgress(stdout, onProgress)
	})
	h.group.Go(func() error {
		_, err := io.Copy(h.stderr, stderrPipe)
		return err
	})

	return h, nil
}

// Wait blocks until the process exits and its output is drained. A
// non-zero exit is returned as *JobError. Wait may be called repeatedly.
func (h *Handle) Wait() error {
	h.once.Do(func() {
		drainErr := h.group.Wait()
		waitErr := h.cmd.Wait()

		if waitErr != nil {
			h.err = &JobError{ExitCode: exitCode(waitErr), Stderr: h.stderr.String(), Err: waitErr}
			slog.Error("download_job_failed", "error", h.err)
			return
		}
		if drainErr != nil {
			slog.Warn("download_job_output_error", "error", drainErr)
		}
		slog.Info("download_job_complete")
	})
	return h.err
}

func scanProgress(r io.Reader, onProgress func(Progress)) error {
	sc := bufio.NewScanner(r)
	sc.Split(splitLines)
	for sc.Scan() {
		p, ok := ParseProgress(sc.Text())
		if ok && onProgress != nil {
			onProgress(p)
		}
	}
	return sc.Err()
}

// ParseProgress reads a percent-only progress line such as " 42.7%".
func ParseProgress(line string) (Progress, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasSuffix(line, "%") {
		return Progress{}, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(line, "%")), 64)
	if err != nil || v < 0 || v > 100 {
		return Progress{}, false
	}
	return Progress{Percent: v}, true
}

// splitLines splits on '\n' or '\r' since progress lines are rewritten in
// place with carriage returns.
func splitLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
