package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gamermine/convertisseur/internal/config"
	"github.com/gamermine/convertisseur/pkg/db"
	"github.com/gamermine/convertisseur/pkg/drives"
	"github.com/gamermine/convertisseur/pkg/errors"
	appfsm "github.com/gamermine/convertisseur/pkg/fsm"
	"github.com/gamermine/convertisseur/pkg/provision"
	"github.com/gamermine/convertisseur/pkg/security"
	"github.com/gamermine/convertisseur/pkg/storage"
)

// ensureDirectories creates the directories holding the manifest and the
// FSM store
func ensureDirectories(manifestPath, fsmDBPath string) error {
	if err := os.MkdirAll(filepath.Dir(manifestPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create manifest directory")
	}

	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	return nil
}

// toolPaths resolves where the tools live for this platform.
func toolPaths(cfg *config.Config) (provision.Platform, provision.Paths, error) {
	platform, err := provision.PlatformFor(runtime.GOOS)
	if err != nil {
		return provision.Platform{}, provision.Paths{}, err
	}
	platform = platform.WithOverrides(cfg.DownloaderURL, cfg.TranscoderURL)

	paths, err := platform.Paths(cfg.LibsDir)
	if err != nil {
		return provision.Platform{}, provision.Paths{}, err
	}
	return platform, paths, nil
}

// newProvisioner wires the provisioner to the upstream URLs, or to the S3
// mirror when a bucket is configured.
func newProvisioner(ctx context.Context, cfg *config.Config) (*provision.Provisioner, error) {
	platform, paths, err := toolPaths(cfg)
	if err != nil {
		return nil, err
	}

	var source provision.Source = provision.NewHTTPSource(cfg.HTTPTimeout)
	if cfg.MirrorBucket != "" {
		client, err := newMirror(ctx, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "S3 client failed")
		}
		source = client
	}

	validator := security.NewValidator(cfg.MaxEntrySize, cfg.MaxTotalSize, cfg.MaxCompressionRatio)
	return provision.New(platform, paths, source, validator), nil
}

func newMirror(ctx context.Context, cfg *config.Config) (*storage.Client, error) {
	return storage.NewClient(ctx, cfg.MirrorBucket, cfg.MirrorRegion, cfg.MirrorPrefix, cfg.MirrorEndpoint)
}

// openWorkflow opens the manifest and the FSM store. The returned close
// function releases both.
func openWorkflow(ctx context.Context, cfg *config.Config) (*appfsm.Workflow, *db.Repository, func(), error) {
	if err := ensureDirectories(cfg.ManifestPath, cfg.FSMDBPath); err != nil {
		return nil, nil, nil, err
	}

	prov, err := newProvisioner(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	repo, err := db.NewRepository(cfg.ManifestPath)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "db init failed")
	}

	workflow, err := appfsm.NewWorkflow(ctx, appfsm.NewMachine(repo, prov), cfg.FSMDBPath)
	if err != nil {
		repo.Close()
		return nil, nil, nil, err
	}

	closeFn := func() {
		workflow.Close()
		repo.Close()
	}
	return workflow, repo, closeFn, nil
}

// newRegistry prefers the configured static list over discovery.
func newRegistry(cfg *config.Config) (drives.Registry, error) {
	if len(cfg.Drives) > 0 {
		slog.Debug("drives_from_config", "count", len(cfg.Drives))
		return drives.NewStaticRegistry(cfg.Drives)
	}
	return drives.NewRegistry(), nil
}

// recordingUpdater stamps the manifest after each successful self-update.
type recordingUpdater struct {
	check func(ctx context.Context, downloaderPath string) error
	repo  *db.Repository
}

func (u recordingUpdater) Check(ctx context.Context, downloaderPath string) error {
	if err := u.check(ctx, downloaderPath); err != nil {
		return err
	}
	if err := u.repo.MarkChecked(ctx, db.ToolDownloader); err != nil {
		slog.Warn("manifest_update_failed", "tool", db.ToolDownloader, "error", err)
	}
	return nil
}
