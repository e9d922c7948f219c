package orchestrator

import (
	"context"

	"github.com/gamermine/convertisseur/pkg/runner"
)

// Prerequisites checks for and installs the external tools.
type Prerequisites interface {
	Present() bool
	Fetch(ctx context.Context) error
}

// Updater runs the downloader's self-update.
type Updater interface {
	Check(ctx context.Context, downloaderPath string) error
}

// Job is a running download.
type Job interface {
	Wait() error
}

// Launcher spawns a download without waiting for it. onProgress may be
// called from any goroutine, including from inside Launch; updates that
// arrive faster than they are consumed are dropped.
type Launcher interface {
	Launch(ctx context.Context, req runner.Request, onProgress func(runner.Progress)) (Job, error)
}

type runnerLauncher struct {
	r *runner.Runner
}

// RunnerLauncher adapts a runner.Runner to Launcher.
func RunnerLauncher(r *runner.Runner) Launcher {
	return runnerLauncher{r: r}
}

func (l runnerLauncher) Launch(ctx context.Context, req runner.Request, onProgress func(runner.Progress)) (Job, error) {
	h, err := l.r.Start(ctx, req, onProgress)
	if err != nil {
		return nil, err
	}
	return h, nil
}
