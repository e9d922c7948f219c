package commands

import (
	"context"
	"fmt"

	"github.com/gamermine/convertisseur/pkg/db"
	"github.com/gamermine/convertisseur/pkg/errors"
	"github.com/spf13/cobra"
)

var toolsRuns int

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List installed tools and recent provisioning runs",
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().IntVar(&toolsRuns, "runs", 5, "Number of recent provisioning runs to show")
}

func runTools(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := ensureDirectories(cfg.ManifestPath, ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.ManifestPath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	tools, err := repo.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(tools) == 0 {
		fmt.Println("No tools installed")
	} else {
		fmt.Printf("%-12s %-12s %-20s %-22s %-50s\n", "TOOL", "STATUS", "SHA256", "LAST UPDATE CHECK", "PATH")
		fmt.Println("------------------------------------------------------------------------------------------------------------------------")
		for _, tool := range tools {
			sum := tool.SHA256
			if len(sum) > 16 {
				sum = sum[:16] + "..."
			}
			if sum == "" {
				sum = "-"
			}
			checked := tool.CheckedAt
			if checked == "" {
				checked = "-"
			}
			fmt.Printf("%-12s %-12s %-20s %-22s %-50s\n", tool.Name, tool.Status, sum, checked, tool.Path)
		}
	}

	if toolsRuns > 0 {
		if err := printRuns(ctx, repo, toolsRuns); err != nil {
			return err
		}
	}

	if cfg.MirrorBucket != "" {
		return printMirror(ctx)
	}
	return nil
}

func printRuns(ctx context.Context, repo *db.Repository, limit int) error {
	runs, err := repo.ListRuns(ctx, limit)
	if err != nil {
		return errors.Wrap(err, "list runs failed")
	}
	if len(runs) == 0 {
		return nil
	}

	fmt.Println()
	fmt.Printf("%-38s %-10s %-20s %-s\n", "RUN", "STATUS", "FAILED STEP", "ERROR")
	for _, run := range runs {
		step := run.FailedStep
		if step == "" {
			step = "-"
		}
		fmt.Printf("%-38s %-10s %-20s %-s\n", run.ID, run.Status, step, run.ErrorMessage)
	}
	return nil
}

func printMirror(ctx context.Context) error {
	platform, _, err := toolPaths(cfg)
	if err != nil {
		return err
	}

	mirror, err := newMirror(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "S3 client failed")
	}

	keys, err := mirror.ListObjects(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Mirror s3://%s/%s (%d objects)\n", cfg.MirrorBucket, cfg.MirrorPrefix, len(keys))
	for _, key := range keys {
		fmt.Printf("  %s\n", key)
	}

	missing, err := mirror.MissingAssets(ctx, platform.Downloader, platform.Archive)
	if err != nil {
		return err
	}
	for _, asset := range missing {
		fmt.Printf("⚠️  Missing from mirror: %s\n", mirror.Key(asset))
	}
	return nil
}
