package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/treekeep/treekeep/internal/treekeep/commands"
	"github.com/treekeep/treekeep/internal/treekeep/config"
	"github.com/treekeep/treekeep/internal/treekeep/logging"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "treekeep",
		Short: "File-tree backup and restore with compression, packaging, and encryption.",
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to a treekeep config file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(NewBackupCommand(flags))
	rootCmd.AddCommand(NewRestoreCommand(flags))
	rootCmd.AddCommand(NewTimerCommand(flags))
	rootCmd.AddCommand(NewWatchCommand(flags))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration, applies command-line overrides, and wires
// the logger and controller.
func setup(flags *rootFlags, override func(*config.Config)) (*commands.Controller, logging.Logger, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	if override != nil {
		override(cfg)
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}

	log := logging.New(logging.Options{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		Console: cfg.Logging.Console,
	})

	filters, err := cfg.BuildFilters()
	if err != nil {
		return nil, nil, err
	}
	return commands.NewController(cfg.BackupConfig(), filters, log), log, nil
}
