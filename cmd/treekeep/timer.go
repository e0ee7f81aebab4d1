package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/treekeep/treekeep/internal/treekeep/config"
)

func NewTimerCommand(flags *rootFlags) *cobra.Command {
	var (
		source      string
		destination string
		interval    int
	)

	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Back up the source on a fixed interval until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, log, err := setup(flags, func(cfg *config.Config) {
				if source != "" {
					cfg.Source = source
				}
				if destination != "" {
					cfg.Destination = destination
				}
			})
			if err != nil {
				return err
			}
			if err := ctrl.StartTimer(interval); err != nil {
				return err
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			log.Info("shutting down")
			ctrl.StopTimer()
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Source directory")
	cmd.Flags().StringVarP(&destination, "dest", "d", "", "Destination directory")
	cmd.Flags().IntVarP(&interval, "interval", "i", 0, "Backup interval in seconds (default from config)")

	return cmd
}
