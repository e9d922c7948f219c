package provision

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/gamermine/convertisseur/pkg/errors"
	"github.com/gamermine/convertisseur/pkg/security"
	"github.com/ulikunitz/xz"
)

// ErrEntryNotFound is returned when the archive holds no entry with the
// requested name.
var ErrEntryNotFound = errors.New("entry not found in archive")

// ExtractEntry streams through the archive at archivePath and writes the
// single regular file whose base name is entry to destPath. Every other
// entry is skipped without touching the disk.
func ExtractEntry(archivePath string, format Format, entry, destPath string, validator *security.Validator) (*Download, error) {
	validator.Reset()
	slog.Info("extract_start", "archive", archivePath, "format", format, "entry", entry)

	var (
		dl  *Download
		err error
	)
	switch format {
	case FormatTarXz:
		dl, err = extractTarXz(archivePath, entry, destPath, validator)
	case FormatZip:
		dl, err = extractZip(archivePath, entry, destPath, validator)
	case Format7z:
		dl, err = extract7z(archivePath, entry, destPath, validator)
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
	if err != nil {
		slog.Error("extract_failed", "archive", archivePath, "entry", entry, "error", err)
		return nil, err
	}

	fi, err := os.Stat(archivePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat archive")
	}
	if err := validator.ValidateCompressionRatio(fi.Size(), validator.Extracted()); err != nil {
		os.Remove(destPath)
		return nil, err
	}

	slog.Info("extract_complete", "entry", entry, "dest", destPath, "size_mb", dl.Size/1024/1024)
	return dl, nil
}

func extractTarXz(archivePath, entry, destPath string, validator *security.Validator) (*Download, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open archive")
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open xz stream")
	}
	tr := tar.NewReader(xr)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil, ErrEntryNotFound
		}
		if err != nil {
			return nil, errors.Wrap(err, "tar read error")
		}

		if err := validator.ValidateEntryName(header.Name); err != nil {
			return nil, err
		}
		if header.Typeflag != tar.TypeReg || baseName(header.Name) != entry {
			continue
		}

		return writeEntry(tr, header.Size, destPath, validator)
	}
}

func extractZip(archivePath, entry, destPath string, validator *security.Validator) (*Download, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open zip")
	}
	defer r.Close()

	for _, f := range r.File {
		if err := validator.ValidateEntryName(f.Name); err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() || baseName(f.Name) != entry {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrap(err, "failed to open zip entry")
		}
		dl, err := writeEntry(rc, int64(f.UncompressedSize64), destPath, validator)
		rc.Close()
		return dl, err
	}
	return nil, ErrEntryNotFound
}

func extract7z(archivePath, entry, destPath string, validator *security.Validator) (*Download, error) {
	r, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open 7z")
	}
	defer r.Close()

	for _, f := range r.File {
		if err := validator.ValidateEntryName(f.Name); err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() || baseName(f.Name) != entry {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrap(err, "failed to open 7z entry")
		}
		dl, err := writeEntry(rc, int64(f.UncompressedSize), destPath, validator)
		rc.Close()
		return dl, err
	}
	return nil, ErrEntryNotFound
}

// writeEntry saves one entry, enforcing the size limits on the declared
// size and again on the bytes actually read.
func writeEntry(r io.Reader, declared int64, destPath string, validator *security.Validator) (*Download, error) {
	if err := validator.ValidateEntrySize(declared); err != nil {
		return nil, err
	}

	lr := &countingReader{r: io.LimitReader(r, validator.MaxEntrySize()+1)}
	dl, err := SaveStream(lr, destPath)
	if err != nil {
		return nil, err
	}

	if err := validator.ValidateEntrySize(lr.n); err != nil {
		os.Remove(destPath)
		return nil, err
	}
	if err := validator.AddExtracted(lr.n); err != nil {
		os.Remove(destPath)
		return nil, err
	}

	if err := markExecutable(destPath); err != nil {
		return nil, errors.Wrap(err, "failed to mark transcoder executable")
	}
	return dl, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// baseName accepts both separators since 7z archives built on windows
// store backslashes.
func baseName(name string) string {
	name = strings.TrimRight(strings.ReplaceAll(name, `\`, "/"), "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
