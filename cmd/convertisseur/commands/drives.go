package commands

import (
	"fmt"

	"github.com/gamermine/convertisseur/pkg/errors"
	"github.com/spf13/cobra"
)

var drivesCmd = &cobra.Command{
	Use:   "drives",
	Short: "List destination drives",
	RunE:  runDrives,
}

func init() {
	rootCmd.AddCommand(drivesCmd)
}

func runDrives(cmd *cobra.Command, args []string) error {
	registry, err := newRegistry(cfg)
	if err != nil {
		return errors.Wrap(err, "drive registry failed")
	}

	targets, err := registry.List(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(targets) == 0 {
		fmt.Println("No removable drives found")
		return nil
	}

	fmt.Printf("%-24s %-50s\n", "LABEL", "MOUNT PATH")
	fmt.Println("---------------------------------------------------------------------------")
	for _, t := range targets {
		fmt.Printf("%-24s %-50s\n", t.Label, t.MountPath)
	}
	return nil
}
