// Package fsm runs tool provisioning as a durable workflow on
// superfly/fsm. Each provisioning step is one state, every run is logged
// to the manifest, and the first failing step aborts the run.
package fsm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gamermine/convertisseur/pkg/db"
	"github.com/gamermine/convertisseur/pkg/errors"
	"github.com/gamermine/convertisseur/pkg/provision"
	"github.com/google/uuid"
	"github.com/superfly/fsm"
)

// Register registers the provisioning FSM. Every failing step aborts its
// run, so nothing is retried and an interrupted run is not resumed. The
// next Fetch starts a fresh run.
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[ProvisionRequest, ProvisionResponse], error) {
	start, _, err := fsm.Register[ProvisionRequest, ProvisionResponse](manager, "tool-provision").
		Start(StatePrepareDir, m.handlePrepareDir).
		To(StateFetchDownloader, m.handleFetchDownloader).
		To(StateFetchArchive, m.handleFetchArchive).
		To(StateExtractTranscoder, m.handleExtractTranscoder).
		To(StateCleanup, m.handleCleanup).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, nil
}

// Workflow drives the registered FSM one run at a time. It satisfies the
// orchestrator's prerequisite contract, so the download flow provisions
// through the durable workflow.
type Workflow struct {
	machine *Machine
	manager *fsm.Manager
	start   fsm.Start[ProvisionRequest, ProvisionResponse]
}

// NewWorkflow opens the FSM store at dbPath and registers the machine.
func NewWorkflow(ctx context.Context, machine *Machine, dbPath string) (*Workflow, error) {
	manager, err := fsm.New(fsm.Config{DBPath: dbPath})
	if err != nil {
		return nil, errors.Wrap(err, "FSM manager failed")
	}

	start, err := machine.Register(ctx, manager)
	if err != nil {
		manager.Shutdown(10 * time.Second)
		return nil, err
	}

	return &Workflow{machine: machine, manager: manager, start: start}, nil
}

// Present reports whether both tools are installed.
func (w *Workflow) Present() bool {
	return w.machine.prov.Present()
}

// Fetch runs one provisioning workflow to completion. A failed step comes
// back as *provision.Error.
func (w *Workflow) Fetch(ctx context.Context) error {
	runID := uuid.NewString()
	libsDir := w.machine.prov.Paths().Dir

	if err := w.machine.repo.StartRun(ctx, runID, libsDir); err != nil {
		return err
	}

	req := &ProvisionRequest{RunID: runID, LibsDir: libsDir}
	resp := &ProvisionResponse{}

	version, err := w.start(ctx, runID, fsm.NewRequest(req, resp))
	if err != nil {
		w.machine.finish(ctx, runID, err)
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("provision_workflow_started", "run_id", runID, "version", version)

	waitErr := w.manager.Wait(ctx, version)
	if stepErr := w.machine.takeFailure(runID); stepErr != nil {
		w.machine.finish(ctx, runID, stepErr)
		return stepErr
	}
	if waitErr != nil {
		w.machine.finish(ctx, runID, waitErr)
		return errors.Wrap(waitErr, "FSM execution failed")
	}

	w.machine.finish(ctx, runID, nil)
	slog.Info("provision_workflow_complete", "run_id", runID)
	return nil
}

// Close stops the FSM manager.
func (w *Workflow) Close() {
	w.manager.Shutdown(10 * time.Second)
}

// Machine holds dependencies for FSM transitions
type Machine struct {
	repo *db.Repository
	prov *provision.Provisioner

	mu       sync.Mutex
	failures map[string]error
}

// NewMachine creates a new FSM machine with dependencies
func NewMachine(repo *db.Repository, prov *provision.Provisioner) *Machine {
	return &Machine{
		repo:     repo,
		prov:     prov,
		failures: make(map[string]error),
	}
}

func (m *Machine) recordFailure(runID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[runID] = err
}

func (m *Machine) takeFailure(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.failures[runID]
	delete(m.failures, runID)
	return err
}

func (m *Machine) finish(ctx context.Context, runID string, err error) {
	status, step, msg := db.RunComplete, "", ""
	if err != nil {
		status, msg = db.RunFailed, err.Error()
		var perr *provision.Error
		if errors.As(err, &perr) {
			step = string(perr.Step)
		}
	}
	if ferr := m.repo.FinishRun(ctx, runID, status, step, msg); ferr != nil {
		slog.Warn("provision_run_record_failed", "run_id", runID, "error", ferr)
	}
}
