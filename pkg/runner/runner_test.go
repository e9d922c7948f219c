package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/gamermine/convertisseur/pkg/errors"
)

// helperCommand re-executes the test binary as a stand-in for the
// downloader. The helper's behaviour is chosen by mode.
func helperCommand(mode string) CommandFunc {
	return func(name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", mode, name}, args...)
		cmd := exec.Command(os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "CONVERTISSEUR_HELPER_PROCESS=1")
		return cmd
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("CONVERTISSEUR_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}
	mode, rest := args[1], args[2:]

	switch mode {
	case "progress":
		fmt.Fprint(os.Stdout, "  0.0%\r 42.5%\r\n100.0%\n")
		os.Exit(0)
	case "fail":
		fmt.Fprint(os.Stderr, "ERROR: video unavailable\n")
		os.Exit(3)
	case "echo":
		fmt.Fprint(os.Stdout, strings.Join(rest, "|"))
		os.Exit(0)
	}
	os.Exit(0)
}

func TestArgs(t *testing.T) {
	args := Args(Request{
		Downloader: "/libs/yt-dlp",
		Transcoder: "/libs/ffmpeg",
		URL:        "https://youtube.com/watch?v=abc",
		DestDir:    "/media/USB",
	})

	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-x",
		"--audio-format mp3",
		"--no-playlist",
		"--ffmpeg-location /libs/ffmpeg",
		"-P /media/USB",
		"-o %(title)s",
		"--progress-template " + ProgressTemplate,
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	if args[0] != "https://youtube.com/watch?v=abc" {
		t.Errorf("expected URL as first positional arg, got %s", args[0])
	}
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{" 42.7%", 42.7, true},
		{"100%", 100, true},
		{"  N/A%", 0, false},
		{"[download] Destination: x", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseProgress(tt.line)
		if ok != tt.ok || got.Percent != tt.want {
			t.Errorf("ParseProgress(%q) = %v, %v; want %v, %v", tt.line, got.Percent, ok, tt.want, tt.ok)
		}
	}
}

func TestRunner_ReportsProgress(t *testing.T) {
	r := NewWithCommand(helperCommand("progress"))

	var mu sync.Mutex
	var seen []float64
	h, err := r.Start(context.Background(), Request{Downloader: "yt-dlp"}, func(p Progress) {
		mu.Lock()
		seen = append(seen, p.Percent)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []float64{0, 42.5, 100}
	if len(seen) != len(want) {
		t.Fatalf("progress = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestRunner_NonZeroExit(t *testing.T) {
	r := NewWithCommand(helperCommand("fail"))

	h, err := r.Start(context.Background(), Request{Downloader: "yt-dlp"}, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err = h.Wait()
	var jerr *JobError
	if !errors.As(err, &jerr) {
		t.Fatalf("expected *JobError, got %T: %v", err, err)
	}
	if jerr.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", jerr.ExitCode)
	}
	if !strings.Contains(jerr.Stderr, "video unavailable") {
		t.Errorf("stderr not captured: %q", jerr.Stderr)
	}
	if h.Wait() != err {
		t.Error("second Wait should return the same error")
	}
}

func TestRunner_SpawnFailure(t *testing.T) {
	r := NewWithCommand(exec.Command)

	_, err := r.Start(context.Background(), Request{Downloader: "/nonexistent/yt-dlp"}, nil)
	var jerr *JobError
	if !errors.As(err, &jerr) || jerr.ExitCode != -1 {
		t.Fatalf("expected spawn *JobError, got %v", err)
	}
}

func TestUpdateChecker(t *testing.T) {
	ok := NewUpdateCheckerWithCommand(helperCommand("echo"))
	if err := ok.Check(context.Background(), "yt-dlp"); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	bad := NewUpdateCheckerWithCommand(helperCommand("fail"))
	err := bad.Check(context.Background(), "yt-dlp")
	var uerr *UpdateError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *UpdateError, got %T: %v", err, err)
	}
	if uerr.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", uerr.ExitCode)
	}
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 4}
	b.Write([]byte("abcdef"))
	if got := b.String(); got != "cdef" {
		t.Errorf("tail = %q, want %q", got, "cdef")
	}
}
