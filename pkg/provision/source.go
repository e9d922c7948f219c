package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gamermine/convertisseur/pkg/errors"
)

// Download describes a file written to disk by a Source.
type Download struct {
	Path   string
	SHA256 string
	Size   int64
}

// Source fetches a release asset into a local file.
type Source interface {
	Fetch(ctx context.Context, asset Asset, destPath string) (*Download, error)
}

// HTTPSource downloads assets straight from their release URL.
type HTTPSource struct {
	client    *http.Client
	userAgent string
}

// NewHTTPSource creates a source whose requests give up after timeout.
func NewHTTPSource(timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		client:    &http.Client{Timeout: timeout},
		userAgent: "convertisseur",
	}
}

func (s *HTTPSource) Fetch(ctx context.Context, asset Asset, destPath string) (*Download, error) {
	slog.Info("asset_download_start", "url", asset.URL, "dest", destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("asset_request_failed", "url", asset.URL, "error", err)
		return nil, errors.Wrap(err, "failed to request asset")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("asset_bad_status", "url", asset.URL, "status", resp.Status)
		return nil, fmt.Errorf("unexpected HTTP status for %s: %s", asset.URL, resp.Status)
	}

	return SaveStream(resp.Body, destPath)
}

// SaveStream copies r into destPath through a temporary file so a failed
// transfer never leaves a truncated tool behind. An existing file is
// replaced.
func SaveStream(r io.Reader, destPath string) (*Download, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create destination directory")
	}

	tmpPath := destPath + ".download"
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to remove stale temp file")
	}

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp file")
	}

	hash := sha256.New()
	size, copyErr := io.Copy(io.MultiWriter(f, hash), r)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return nil, errors.Wrap(copyErr, "failed to write file")
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return nil, errors.Wrap(closeErr, "failed to close file")
	}

	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		os.Remove(tmpPath)
		return nil, errors.Wrap(err, "failed to remove previous file")
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return nil, errors.Wrap(err, "failed to move file into place")
	}

	checksum := hex.EncodeToString(hash.Sum(nil))
	slog.Info("asset_saved", "path", destPath, "size_mb", size/1024/1024, "sha256", shortSum(checksum))

	return &Download{Path: destPath, SHA256: checksum, Size: size}, nil
}

func shortSum(sum string) string {
	if len(sum) <= 16 {
		return sum
	}
	return sum[:16] + "..."
}
