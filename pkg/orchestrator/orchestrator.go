// Package orchestrator sequences a download: it validates input, installs
// missing tools, runs the one-per-session self-update, then starts the
// download job and reports the outcome.
//
// All state belongs to the goroutine running Run. Public methods post
// events to it, and background tasks post exactly one completion each.
package orchestrator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gamermine/convertisseur/pkg/drives"
	"github.com/gamermine/convertisseur/pkg/errors"
	"github.com/gamermine/convertisseur/pkg/provision"
	"github.com/gamermine/convertisseur/pkg/runner"
	"golang.org/x/time/rate"
)

// Defaults for Config.
const (
	DefaultSuccessWindow    = 2 * time.Second
	DefaultProgressInterval = 200 * time.Millisecond
)

// Config wires the orchestrator to its collaborators.
type Config struct {
	Paths         provision.Paths
	Prerequisites Prerequisites
	Updater       Updater
	Launcher      Launcher
	Registry      drives.Registry

	// SuccessWindow is how long DownloadSucceeded lasts before Idle
	SuccessWindow time.Duration
	// ProgressInterval is the minimum gap between progress notices
	ProgressInterval time.Duration
	// OnNotice is called from the event loop; it must not block
	OnNotice func(Notice)
}

type eventKind int

const (
	evLinkChanged eventKind = iota
	evDriveSelected
	evStartRequested
	evProvisioningCompleted
	evUpdateCheckCompleted
	evDownloadCompleted
	evProgress
	evSuccessAcknowledged
	evBarrier
)

type event struct {
	kind     eventKind
	seq      uint64
	text     string
	target   drives.Target
	err      error
	progress runner.Progress
	done     chan struct{}
}

// Orchestrator is the download state machine.
type Orchestrator struct {
	cfg          Config
	destinations []drives.Target
	events       chan event
	done         chan struct{}
	phase        atomic.Int32

	// owned by the event loop
	link          string
	dest          *drives.Target
	updateChecked bool
	pending       bool
	taskSeq       uint64
	successGen    uint64
	successTimer  *time.Timer
	limiter       *rate.Limiter
}

// New builds an orchestrator in Idle. The drive registry is read once
// here; a refresh needs a new orchestrator.
func New(ctx context.Context, cfg Config) (*Orchestrator, error) {
	if cfg.Prerequisites == nil || cfg.Updater == nil || cfg.Launcher == nil {
		return nil, errors.New("orchestrator needs prerequisites, updater and launcher")
	}
	if cfg.SuccessWindow <= 0 {
		cfg.SuccessWindow = DefaultSuccessWindow
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}

	var destinations []drives.Target
	if cfg.Registry != nil {
		targets, err := cfg.Registry.List(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to list destinations")
		}
		destinations = targets
	}

	o := &Orchestrator{
		cfg:          cfg,
		destinations: destinations,
		events:       make(chan event, 64),
		done:         make(chan struct{}),
		limiter:      rate.NewLimiter(rate.Every(cfg.ProgressInterval), 1),
	}
	o.phase.Store(int32(Idle))
	return o, nil
}

// Destinations returns the drives known at construction.
func (o *Orchestrator) Destinations() []drives.Target {
	out := make([]drives.Target, len(o.destinations))
	copy(out, o.destinations)
	return out
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	return Phase(o.phase.Load())
}

// LinkChanged replaces the stored link.
func (o *Orchestrator) LinkChanged(text string) {
	o.post(event{kind: evLinkChanged, text: text})
}

// SelectDrive replaces the selected destination.
func (o *Orchestrator) SelectDrive(target drives.Target) {
	o.post(event{kind: evDriveSelected, target: target})
}

// Start requests a download of the stored link to the selected drive.
func (o *Orchestrator) Start() {
	o.post(event{kind: evStartRequested})
}

// sync returns once every previously posted event has been handled.
func (o *Orchestrator) sync() {
	done := make(chan struct{})
	o.post(event{kind: evBarrier, done: done})
	select {
	case <-done:
	case <-o.done:
	}
}

func (o *Orchestrator) post(ev event) {
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

// offer posts ev unless the queue is full. Progress goes through here: it
// may be reported from inside Launch, while the loop itself is blocked.
func (o *Orchestrator) offer(ev event) {
	select {
	case o.events <- ev:
	case <-o.done:
	default:
	}
}

// Run processes events until ctx is cancelled. A started job is not
// killed when Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)
	defer func() {
		if o.successTimer != nil {
			o.successTimer.Stop()
		}
	}()

	slog.Info("orchestrator_start", "destinations", len(o.destinations))
	for {
		select {
		case <-ctx.Done():
			slog.Info("orchestrator_stop", "phase", o.Phase().String())
			return ctx.Err()
		case ev := <-o.events:
			o.handle(ctx, ev)
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evLinkChanged:
		if o.Phase().Busy() {
			slog.Debug("input_ignored_busy", "input", "link", "phase", o.Phase().String())
			return
		}
		o.link = ev.text
		if o.Phase() == InvalidLink {
			o.setPhase(Idle)
		}

	case evDriveSelected:
		if o.Phase().Busy() {
			slog.Debug("input_ignored_busy", "input", "drive", "phase", o.Phase().String())
			return
		}
		target := ev.target
		o.dest = &target
		slog.Info("drive_selected", "label", target.Label, "mount_path", target.MountPath)

	case evStartRequested:
		if o.pending {
			slog.Info("start_ignored_busy", "phase", o.Phase().String())
			return
		}
		o.evaluate(ctx)

	case evProvisioningCompleted:
		if !o.complete(ev.seq) {
			return
		}
		if ev.err != nil {
			o.fail(ev.err)
			return
		}
		if !o.cfg.Prerequisites.Present() {
			o.fail(&provision.Error{Step: provision.StepVerify, Err: errors.New("tools still missing after provisioning")})
			return
		}
		o.evaluate(ctx)

	case evUpdateCheckCompleted:
		if !o.complete(ev.seq) {
			return
		}
		if ev.err != nil {
			o.fail(ev.err)
			return
		}
		o.updateChecked = true
		o.evaluate(ctx)

	case evDownloadCompleted:
		if !o.complete(ev.seq) {
			return
		}
		if ev.err != nil {
			o.fail(ev.err)
			return
		}
		o.setPhase(DownloadSucceeded)
		o.armSuccessTimer()

	case evProgress:
		if ev.seq != o.taskSeq || o.Phase() != DownloadRunning {
			return
		}
		if ev.progress.Percent >= 100 || o.limiter.Allow() {
			o.notify(Notice{Kind: NoticeProgress, Phase: DownloadRunning, Percent: ev.progress.Percent})
		}

	case evSuccessAcknowledged:
		if ev.seq == o.successGen && o.Phase() == DownloadSucceeded {
			o.setPhase(Idle)
		}

	case evBarrier:
		close(ev.done)
	}
}

// evaluate is the start transition. It runs for external starts and again
// after each prerequisite completes, re-checking every guard each time.
func (o *Orchestrator) evaluate(ctx context.Context) {
	if o.Phase() == DownloadSucceeded {
		slog.Info("start_ignored_success_window")
		return
	}

	if o.dest == nil {
		err := &InputError{Reason: ReasonNoDestination}
		slog.Warn("start_rejected", "reason", err.Reason)
		o.notify(Notice{Kind: NoticeNoDestination, Phase: o.Phase(), Err: err})
		return
	}

	if err := ValidateLink(o.link); err != nil {
		slog.Warn("start_rejected", "reason", ReasonInvalidLink, "link", o.link)
		o.setPhase(InvalidLink)
		o.notify(Notice{Kind: NoticeError, Phase: InvalidLink, Err: err})
		return
	}

	if !o.cfg.Prerequisites.Present() {
		o.setPhase(ProvisioningPrerequisites)
		o.spawn(ctx, evProvisioningCompleted, func(ctx context.Context) error {
			return o.cfg.Prerequisites.Fetch(ctx)
		})
		return
	}

	if !o.updateChecked {
		o.setPhase(CheckingUpdate)
		downloader := o.cfg.Paths.Downloader
		o.spawn(ctx, evUpdateCheckCompleted, func(ctx context.Context) error {
			return o.cfg.Updater.Check(ctx, downloader)
		})
		return
	}

	o.startDownload(ctx)
}

func (o *Orchestrator) startDownload(ctx context.Context) {
	req := runner.Request{
		Downloader: o.cfg.Paths.Downloader,
		Transcoder: o.cfg.Paths.Transcoder,
		URL:        o.link,
		DestDir:    o.dest.MountPath,
	}

	o.setPhase(DownloadRunning)
	seq := o.begin()
	o.limiter = rate.NewLimiter(rate.Every(o.cfg.ProgressInterval), 1)

	job, err := o.cfg.Launcher.Launch(ctx, req, func(p runner.Progress) {
		o.offer(event{kind: evProgress, seq: seq, progress: p})
	})
	if err != nil {
		go o.post(event{kind: evDownloadCompleted, seq: seq, err: err})
		return
	}

	go func() {
		o.post(event{kind: evDownloadCompleted, seq: seq, err: job.Wait()})
	}()
}

// spawn runs fn off the loop and posts its result as one completion event.
func (o *Orchestrator) spawn(ctx context.Context, kind eventKind, fn func(context.Context) error) {
	seq := o.begin()
	go func() {
		o.post(event{kind: kind, seq: seq, err: fn(ctx)})
	}()
}

func (o *Orchestrator) begin() uint64 {
	o.taskSeq++
	o.pending = true
	return o.taskSeq
}

// complete accepts the completion of the outstanding task and drops stale
// ones.
func (o *Orchestrator) complete(seq uint64) bool {
	if !o.pending || seq != o.taskSeq {
		slog.Warn("stale_completion_dropped", "seq", seq, "current", o.taskSeq)
		return false
	}
	o.pending = false
	return true
}

func (o *Orchestrator) fail(err error) {
	slog.Error("download_chain_failed", "phase", o.Phase().String(), "error", err)
	o.setPhase(Idle)
	o.notify(Notice{Kind: NoticeError, Phase: Idle, Err: err})
}

func (o *Orchestrator) armSuccessTimer() {
	o.successGen++
	gen := o.successGen
	if o.successTimer != nil {
		o.successTimer.Stop()
	}
	o.successTimer = time.AfterFunc(o.cfg.SuccessWindow, func() {
		o.post(event{kind: evSuccessAcknowledged, seq: gen})
	})
}

func (o *Orchestrator) setPhase(p Phase) {
	prev := o.Phase()
	if prev == p {
		return
	}
	o.phase.Store(int32(p))
	slog.Info("phase_changed", "from", prev.String(), "to", p.String())
	o.notify(Notice{Kind: NoticePhase, Phase: p})
}

func (o *Orchestrator) notify(n Notice) {
	if o.cfg.OnNotice != nil {
		o.cfg.OnNotice(n)
	}
}
