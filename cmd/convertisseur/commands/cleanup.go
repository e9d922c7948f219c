package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gamermine/convertisseur/internal/config"
	"github.com/gamermine/convertisseur/pkg/db"
	"github.com/gamermine/convertisseur/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cleanupAll      bool
	cleanupOrphaned bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up the libs folder and the tool manifest",
	Long: `Clean up provisioning leftovers:
  --all        Remove the libs folder and every manifest entry
  --orphaned   Remove partial downloads, a staged archive and entries whose file is gone`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Remove everything")
	cleanupCmd.Flags().BoolVar(&cleanupOrphaned, "orphaned", false, "Remove orphaned files and entries")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if !cleanupAll && !cleanupOrphaned {
		return fmt.Errorf("must specify --all or --orphaned")
	}

	if err := ensureDirectories(cfg.ManifestPath, ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.ManifestPath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	ctx := cmd.Context()
	if cleanupAll {
		return cleanupEverything(ctx, repo, cfg)
	}
	return cleanupOrphanedResources(ctx, repo, cfg)
}

func cleanupEverything(ctx context.Context, repo *db.Repository, cfg *config.Config) error {
	tools, err := repo.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	fmt.Printf("🧹 Removing %s...\n", cfg.LibsDir)
	if err := os.RemoveAll(cfg.LibsDir); err != nil {
		return errors.Wrap(err, "failed to remove libs folder")
	}

	for _, tool := range tools {
		if err := repo.Delete(ctx, tool.ID); err != nil {
			fmt.Printf("⚠️  Failed to forget %s: %v\n", tool.Name, err)
			continue
		}
		fmt.Printf("✅ Forgot: %s\n", tool.Name)
	}
	return nil
}

func cleanupOrphanedResources(ctx context.Context, repo *db.Repository, cfg *config.Config) error {
	fmt.Println("🔍 Scanning for orphaned resources...")

	orphanCount := 0

	_, paths, err := toolPaths(cfg)
	if err != nil {
		return err
	}

	// partial downloads left by an interrupted transfer
	if entries, err := os.ReadDir(paths.Dir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".download") {
				continue
			}
			if err := os.Remove(filepath.Join(paths.Dir, entry.Name())); err != nil {
				fmt.Printf("⚠️  Failed to remove %s: %v\n", entry.Name(), err)
				continue
			}
			fmt.Printf("🗑️  Removed partial download: %s\n", entry.Name())
			orphanCount++
		}
	}

	prov, err := newProvisioner(ctx, cfg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(prov.ArchivePath()); err == nil {
		if err := prov.Cleanup(ctx); err != nil {
			fmt.Printf("⚠️  %v\n", err)
		} else {
			fmt.Printf("🗑️  Removed staged archive: %s\n", filepath.Base(prov.ArchivePath()))
			orphanCount++
		}
	}

	tools, err := repo.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}
	for _, tool := range tools {
		if tool.Path == "" {
			continue
		}
		if _, err := os.Stat(tool.Path); err == nil {
			continue
		}
		if err := repo.Delete(ctx, tool.ID); err != nil {
			fmt.Printf("⚠️  Failed to forget %s: %v\n", tool.Name, err)
			continue
		}
		fmt.Printf("🗑️  Forgot missing tool: %s (%s)\n", tool.Name, tool.Path)
		orphanCount++
	}

	if orphanCount == 0 {
		fmt.Println("✅ No orphaned resources found")
	} else {
		fmt.Printf("✅ Cleaned up %d orphaned resources\n", orphanCount)
	}
	return nil
}
