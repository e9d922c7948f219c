package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/gamermine/convertisseur/pkg/drives"
	"github.com/gamermine/convertisseur/pkg/errors"
	"github.com/gamermine/convertisseur/pkg/orchestrator"
	"github.com/gamermine/convertisseur/pkg/runner"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var downloadDrive string

var downloadCmd = &cobra.Command{
	Use:   "download <link>",
	Short: "Download a video's audio as mp3 onto a drive",
	Long: `Downloads the audio of <link> as mp3 into the selected drive.
Missing tools are installed first and the downloader updates itself once.
With a single known drive, --drive may be omitted.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVar(&downloadDrive, "drive", "", "Destination drive label or mount path")
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	workflow, repo, closeFn, err := openWorkflow(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	registry, err := newRegistry(cfg)
	if err != nil {
		return errors.Wrap(err, "drive registry failed")
	}

	_, paths, err := toolPaths(cfg)
	if err != nil {
		return err
	}

	notices := make(chan orchestrator.Notice, 256)
	orch, err := orchestrator.New(ctx, orchestrator.Config{
		Paths:         paths,
		Prerequisites: workflow,
		Updater:       recordingUpdater{check: runner.NewUpdateChecker().Check, repo: repo},
		Launcher:      orchestrator.RunnerLauncher(runner.New()),
		Registry:      registry,
		SuccessWindow: cfg.SuccessWindow,
		OnNotice: func(n orchestrator.Notice) {
			if n.Kind == orchestrator.NoticeProgress {
				select {
				case notices <- n:
				default:
				}
				return
			}
			select {
			case notices <- n:
			case <-ctx.Done():
			}
		},
	})
	if err != nil {
		return err
	}

	go orch.Run(ctx)

	if target, ok := pickDrive(orch.Destinations(), downloadDrive); ok {
		orch.SelectDrive(target)
	} else if downloadDrive != "" {
		return fmt.Errorf("unknown drive %q, see 'convertisseur drives'", downloadDrive)
	}
	orch.LinkChanged(args[0])
	orch.Start()

	var bar *progressbar.ProgressBar
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-notices:
			switch n.Kind {
			case orchestrator.NoticePhase:
				switch n.Phase {
				case orchestrator.ProvisioningPrerequisites:
					fmt.Println("📦 Installing downloader and transcoder...")
				case orchestrator.CheckingUpdate:
					fmt.Println("🔄 Checking for downloader updates...")
				case orchestrator.DownloadRunning:
					bar = progressbar.NewOptions(100,
						progressbar.OptionSetDescription("downloading"),
						progressbar.OptionSetWriter(os.Stderr),
					)
				case orchestrator.DownloadSucceeded:
					if bar != nil {
						bar.Finish()
					}
					fmt.Println("\n✅ Download complete")
					return nil
				}
			case orchestrator.NoticeProgress:
				if bar != nil {
					bar.Set(int(n.Percent))
				}
			case orchestrator.NoticeNoDestination, orchestrator.NoticeError:
				return n.Err
			}
		}
	}
}

// pickDrive resolves the --drive flag; with no flag and a single known
// drive that drive is used.
func pickDrive(targets []drives.Target, key string) (drives.Target, bool) {
	if key == "" {
		if len(targets) == 1 {
			return targets[0], true
		}
		return drives.Target{}, false
	}
	return drives.Find(targets, key)
}
