// Package provision installs the downloader and transcoder executables the
// download jobs depend on.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gamermine/convertisseur/pkg/errors"
	"github.com/gamermine/convertisseur/pkg/security"
)

// Provisioner fetches the platform's tools into a libs folder.
type Provisioner struct {
	platform  Platform
	paths     Paths
	source    Source
	validator *security.Validator
}

// New creates a provisioner installing into paths.Dir.
func New(platform Platform, paths Paths, source Source, validator *security.Validator) *Provisioner {
	return &Provisioner{
		platform:  platform,
		paths:     paths,
		source:    source,
		validator: validator,
	}
}

// Paths returns where the tools are installed.
func (p *Provisioner) Paths() Paths {
	return p.paths
}

// Platform returns the asset coordinates in use.
func (p *Provisioner) Platform() Platform {
	return p.platform
}

// Present reports whether both tools are already installed.
func (p *Provisioner) Present() bool {
	return Present(p.paths)
}

// ArchivePath is where the transcoder archive is staged before extraction.
func (p *Provisioner) ArchivePath() string {
	return filepath.Join(p.paths.Dir, p.platform.Archive.FileName)
}

// Fetch runs the whole sequence. The first failing step aborts it and is
// reported as *Error. Every step overwrites or is idempotent, so calling
// Fetch again after a failure is safe.
func (p *Provisioner) Fetch(ctx context.Context) error {
	slog.Info("provision_start", "dir", p.paths.Dir, "platform", p.platform.OS)

	if err := p.PrepareDir(ctx); err != nil {
		return err
	}
	if _, err := p.FetchDownloader(ctx); err != nil {
		return err
	}
	if _, err := p.FetchArchive(ctx); err != nil {
		return err
	}
	if _, err := p.ExtractTranscoder(ctx); err != nil {
		return err
	}
	if err := p.Cleanup(ctx); err != nil {
		return err
	}

	slog.Info("provision_complete", "downloader", p.paths.Downloader, "transcoder", p.paths.Transcoder)
	return nil
}

// PrepareDir creates the libs folder.
func (p *Provisioner) PrepareDir(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return stepError(StepPrepareDir, err)
	}
	if err := os.MkdirAll(p.paths.Dir, 0755); err != nil {
		slog.Error("libs_dir_create_failed", "dir", p.paths.Dir, "error", err)
		return stepError(StepPrepareDir, errors.Wrap(err, "failed to create libs dir"))
	}
	return nil
}

// FetchDownloader downloads the downloader executable and marks it
// executable.
func (p *Provisioner) FetchDownloader(ctx context.Context) (*Download, error) {
	dl, err := p.source.Fetch(ctx, p.platform.Downloader, p.paths.Downloader)
	if err != nil {
		return nil, stepError(StepFetchDownloader, err)
	}
	if err := markExecutable(dl.Path); err != nil {
		return nil, stepError(StepFetchDownloader, errors.Wrap(err, "failed to mark downloader executable"))
	}
	return dl, nil
}

// FetchArchive downloads the transcoder release archive next to the tools.
func (p *Provisioner) FetchArchive(ctx context.Context) (*Download, error) {
	dl, err := p.source.Fetch(ctx, p.platform.Archive, p.ArchivePath())
	if err != nil {
		return nil, stepError(StepFetchArchive, err)
	}
	return dl, nil
}

// ExtractTranscoder writes the transcoder entry of the staged archive into
// the libs folder.
func (p *Provisioner) ExtractTranscoder(ctx context.Context) (*Download, error) {
	if err := ctx.Err(); err != nil {
		return nil, stepError(StepExtractTranscoder, err)
	}
	dl, err := ExtractEntry(p.ArchivePath(), p.platform.Format, p.platform.TranscoderEntry, p.paths.Transcoder, p.validator)
	if err != nil {
		return nil, stepError(StepExtractTranscoder, err)
	}
	return dl, nil
}

// Cleanup removes the staged archive. A missing archive is not an error.
func (p *Provisioner) Cleanup(ctx context.Context) error {
	if err := os.Remove(p.ArchivePath()); err != nil && !os.IsNotExist(err) {
		return stepError(StepCleanup, errors.Wrap(err, "failed to remove archive"))
	}
	return nil
}

// Verify confirms both tools exist after a run.
func (p *Provisioner) Verify() error {
	if !p.Present() {
		return stepError(StepVerify, fmt.Errorf("tools still missing from %s", p.paths.Dir))
	}
	return nil
}
