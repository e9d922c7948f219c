package commands

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gamermine/convertisseur/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging installs the default logger: text on stderr, or JSON into a
// rotating file when logFile is set.
func setupLogging(level, logFile string) error {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return errors.Wrap(err, "failed to create log directory")
	}

	writer := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(writer, opts)))
	return nil
}
