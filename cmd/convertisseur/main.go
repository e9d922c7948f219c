package main

import (
	"log/slog"
	"os"

	"github.com/gamermine/convertisseur/cmd/convertisseur/commands"
)

func main() {
	// Replaced once configuration is loaded
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
