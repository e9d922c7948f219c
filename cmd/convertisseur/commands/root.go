package commands

import (
	"fmt"
	"os"

	"github.com/gamermine/convertisseur/internal/config"
	"github.com/gamermine/convertisseur/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cfg is loaded once per invocation by the root pre-run hook
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "convertisseur",
	Short: "Convertisseur MP3 - download video soundtracks as mp3 onto a USB drive",
	Long: `Downloads the audio of a video link as mp3 straight onto a removable drive.
The downloader and transcoder tools are installed on first use and the
downloader updates itself once per session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "config load failed")
		}
		if err := loaded.Validate(); err != nil {
			return errors.Wrap(err, "config invalid")
		}
		if err := setupLogging(loaded.LogLevel, loaded.LogFile); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("libs-dir", "libs", "Folder holding the downloader and transcoder")
	rootCmd.PersistentFlags().String("manifest-path", ".convertisseur/manifest.db", "SQLite tool manifest path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".convertisseur/fsm", "FSM store directory")
	rootCmd.PersistentFlags().String("mirror-bucket", "", "S3 bucket mirroring the release assets")
	rootCmd.PersistentFlags().String("mirror-region", "us-east-1", "S3 mirror region")
	rootCmd.PersistentFlags().String("mirror-endpoint", "", "S3-compatible endpoint URL for the mirror")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "Write JSON logs to this rotating file instead of stderr")
	rootCmd.PersistentFlags().StringSlice("drives", nil, "Static destinations as label=path")

	viper.BindPFlag("libs-dir", rootCmd.PersistentFlags().Lookup("libs-dir"))
	viper.BindPFlag("manifest-path", rootCmd.PersistentFlags().Lookup("manifest-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("mirror-bucket", rootCmd.PersistentFlags().Lookup("mirror-bucket"))
	viper.BindPFlag("mirror-region", rootCmd.PersistentFlags().Lookup("mirror-region"))
	viper.BindPFlag("mirror-endpoint", rootCmd.PersistentFlags().Lookup("mirror-endpoint"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("drives", rootCmd.PersistentFlags().Lookup("drives"))
}
