package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var provisionForce bool

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Install the downloader and transcoder into the libs folder",
	RunE:  runProvision,
}

func init() {
	rootCmd.AddCommand(provisionCmd)
	provisionCmd.Flags().BoolVar(&provisionForce, "force", false, "Reinstall even if both tools are present")
}

func runProvision(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	workflow, _, closeFn, err := openWorkflow(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	if workflow.Present() && !provisionForce {
		fmt.Println("✅ Tools already installed (use --force to reinstall)")
		return nil
	}

	fmt.Println("📦 Installing downloader and transcoder...")
	if err := workflow.Fetch(ctx); err != nil {
		return err
	}

	fmt.Printf("✅ Tools installed in %s\n", cfg.LibsDir)
	return nil
}
