package fsm

import (
	"context"
	"log/slog"

	"github.com/gamermine/convertisseur/pkg/db"
	"github.com/superfly/fsm"
)

type (
	request  = fsm.Request[ProvisionRequest, ProvisionResponse]
	response = fsm.Response[ProvisionResponse]
)

// abort records err against the run and stops the workflow. Nothing is
// retried automatically; the caller starts a new run.
func (m *Machine) abort(runID string, err error) (*response, error) {
	m.recordFailure(runID, err)
	return nil, fsm.Abort(err)
}

func responseOf(req *request) *ProvisionResponse {
	if req.W.Msg != nil {
		return req.W.Msg
	}
	return &ProvisionResponse{}
}

// handlePrepareDir creates the libs folder
func (m *Machine) handlePrepareDir(ctx context.Context, req *request) (*response, error) {
	runID := req.Msg.RunID
	slog.Info("fsm_state_prepare_dir", "run_id", runID, "libs_dir", req.Msg.LibsDir)

	if err := m.prov.PrepareDir(ctx); err != nil {
		return m.abort(runID, err)
	}

	return fsm.NewResponse(responseOf(req)), nil
}

// handleFetchDownloader downloads the downloader executable
func (m *Machine) handleFetchDownloader(ctx context.Context, req *request) (*response, error) {
	runID := req.Msg.RunID
	slog.Info("fsm_state_fetch_downloader", "run_id", runID)

	platform, paths := m.prov.Platform(), m.prov.Paths()
	m.upsertTool(ctx, &db.Tool{
		Name:      db.ToolDownloader,
		Path:      paths.Downloader,
		SourceURL: platform.Downloader.URL,
		Status:    db.StatusInstalling,
	})

	dl, err := m.prov.FetchDownloader(ctx)
	if err != nil {
		m.markFailed(ctx, db.ToolDownloader, err)
		return m.abort(runID, err)
	}

	m.upsertTool(ctx, &db.Tool{
		Name:      db.ToolDownloader,
		Path:      dl.Path,
		SourceURL: platform.Downloader.URL,
		SHA256:    dl.SHA256,
		Size:      dl.Size,
		Status:    db.StatusReady,
	})

	resp := responseOf(req)
	resp.DownloaderSHA256 = dl.SHA256
	resp.DownloaderSize = dl.Size
	return fsm.NewResponse(resp), nil
}

// handleFetchArchive stages the transcoder release archive
func (m *Machine) handleFetchArchive(ctx context.Context, req *request) (*response, error) {
	runID := req.Msg.RunID
	slog.Info("fsm_state_fetch_archive", "run_id", runID)

	m.upsertTool(ctx, &db.Tool{
		Name:      db.ToolTranscoder,
		Path:      m.prov.Paths().Transcoder,
		SourceURL: m.prov.Platform().Archive.URL,
		Status:    db.StatusInstalling,
	})

	dl, err := m.prov.FetchArchive(ctx)
	if err != nil {
		m.markFailed(ctx, db.ToolTranscoder, err)
		return m.abort(runID, err)
	}

	resp := responseOf(req)
	resp.ArchivePath = dl.Path
	resp.ArchiveSize = dl.Size
	return fsm.NewResponse(resp), nil
}

// handleExtractTranscoder pulls the transcoder out of the staged archive
func (m *Machine) handleExtractTranscoder(ctx context.Context, req *request) (*response, error) {
	runID := req.Msg.RunID
	slog.Info("fsm_state_extract_transcoder", "run_id", runID)

	dl, err := m.prov.ExtractTranscoder(ctx)
	if err != nil {
		m.markFailed(ctx, db.ToolTranscoder, err)
		return m.abort(runID, err)
	}

	m.upsertTool(ctx, &db.Tool{
		Name:      db.ToolTranscoder,
		Path:      dl.Path,
		SourceURL: m.prov.Platform().Archive.URL,
		SHA256:    dl.SHA256,
		Size:      dl.Size,
		Status:    db.StatusReady,
	})

	resp := responseOf(req)
	resp.TranscoderSHA256 = dl.SHA256
	resp.TranscoderSize = dl.Size
	return fsm.NewResponse(resp), nil
}

// handleCleanup removes the staged archive
func (m *Machine) handleCleanup(ctx context.Context, req *request) (*response, error) {
	runID := req.Msg.RunID
	slog.Info("fsm_state_cleanup", "run_id", runID)

	if err := m.prov.Cleanup(ctx); err != nil {
		return m.abort(runID, err)
	}

	resp := responseOf(req)
	resp.ArchivePath = ""
	return fsm.NewResponse(resp), nil
}

// handleComplete verifies both tools landed on disk
func (m *Machine) handleComplete(ctx context.Context, req *request) (*response, error) {
	runID := req.Msg.RunID
	slog.Info("fsm_state_complete", "run_id", runID)

	if err := m.prov.Verify(); err != nil {
		return m.abort(runID, err)
	}

	resp := responseOf(req)
	resp.Status = db.StatusReady
	slog.Info("fsm_complete", "run_id", runID, "status", db.StatusReady)
	return fsm.NewResponse(resp), nil
}

func (m *Machine) upsertTool(ctx context.Context, tool *db.Tool) {
	if err := m.repo.Upsert(ctx, tool); err != nil {
		slog.Warn("manifest_update_failed", "tool", tool.Name, "error", err)
	}
}

func (m *Machine) markFailed(ctx context.Context, name string, err error) {
	if uerr := m.repo.UpdateStatus(ctx, name, db.StatusFailed, err.Error()); uerr != nil {
		slog.Warn("manifest_update_failed", "tool", name, "error", uerr)
	}
}
