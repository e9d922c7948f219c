// Package security guards archive extraction against hostile or corrupt
// release archives: escaping entry names, oversized entries and
// decompression bombs.
package security

import (
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
)

// Validator enforces limits while entries are read out of an archive.
// A Validator tracks one extraction at a time; call Reset before reuse.
type Validator struct {
	maxEntrySize        int64
	maxTotalSize        int64
	maxCompressionRatio float64

	mu           sync.Mutex
	extractedSum int64
}

// NewValidator creates a validator with the given limits.
func NewValidator(maxEntrySize, maxTotalSize int64, maxCompressionRatio float64) *Validator {
	slog.Debug("archive_validator_init",
		"max_entry_size_mb", maxEntrySize/1024/1024,
		"max_total_size_mb", maxTotalSize/1024/1024,
		"max_compression_ratio", maxCompressionRatio)

	return &Validator{
		maxEntrySize:        maxEntrySize,
		maxTotalSize:        maxTotalSize,
		maxCompressionRatio: maxCompressionRatio,
	}
}

// ValidateEntryName rejects absolute names and names that climb out of the
// archive root. Both slash styles are accepted since 7z archives built on
// windows use backslashes.
func (v *Validator) ValidateEntryName(name string) error {
	normalized := strings.ReplaceAll(name, `\`, "/")

	if strings.HasPrefix(normalized, "/") || (len(normalized) > 1 && normalized[1] == ':') {
		slog.Error("archive_entry_rejected", "entry", name, "reason", "absolute_path")
		return fmt.Errorf("security: absolute entry name not allowed: %s", name)
	}

	clean := path.Clean(normalized)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		slog.Error("archive_entry_rejected", "entry", name, "reason", "path_traversal")
		return fmt.Errorf("security: path traversal detected: %s", name)
	}

	return nil
}

// ValidateEntrySize checks a single entry against the per-entry limit.
func (v *Validator) ValidateEntrySize(size int64) error {
	if size > v.maxEntrySize {
		slog.Error("archive_entry_too_large",
			"entry_size_mb", size/1024/1024,
			"max_entry_size_mb", v.maxEntrySize/1024/1024)
		return fmt.Errorf("security: entry size %d exceeds max %d", size, v.maxEntrySize)
	}
	return nil
}

// AddExtracted accounts for bytes written out of the archive and fails once
// the running total passes the limit.
func (v *Validator) AddExtracted(size int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.extractedSum += size
	if v.extractedSum > v.maxTotalSize {
		slog.Error("archive_total_size_exceeded",
			"extracted_mb", v.extractedSum/1024/1024,
			"max_total_mb", v.maxTotalSize/1024/1024)
		return fmt.Errorf("security: total extracted size %d exceeds max %d", v.extractedSum, v.maxTotalSize)
	}
	return nil
}

// ValidateCompressionRatio compares the archive size on disk with what was
// extracted from it.
func (v *Validator) ValidateCompressionRatio(compressedSize, uncompressedSize int64) error {
	if compressedSize <= 0 {
		return fmt.Errorf("security: compressed size must be positive")
	}

	ratio := float64(uncompressedSize) / float64(compressedSize)
	if ratio > v.maxCompressionRatio {
		slog.Error("archive_compression_bomb_detected",
			"ratio", ratio,
			"max_ratio", v.maxCompressionRatio,
			"compressed_mb", compressedSize/1024/1024,
			"uncompressed_mb", uncompressedSize/1024/1024)
		return fmt.Errorf("security: compression ratio %.2f exceeds max %.2f", ratio, v.maxCompressionRatio)
	}
	return nil
}

// MaxEntrySize returns the per-entry limit.
func (v *Validator) MaxEntrySize() int64 {
	return v.maxEntrySize
}

// Reset clears the running total.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.extractedSum = 0
}

// Extracted returns the running total of extracted bytes.
func (v *Validator) Extracted() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.extractedSum
}
