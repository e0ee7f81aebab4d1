package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/treekeep/treekeep/internal/treekeep/config"
)

func NewWatchCommand(flags *rootFlags) *cobra.Command {
	var (
		source      string
		destination string
		debounceMs  int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the source tree and back up on change until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, log, err := setup(flags, func(cfg *config.Config) {
				if source != "" {
					cfg.Source = source
				}
				if destination != "" {
					cfg.Destination = destination
				}
				if debounceMs > 0 {
					cfg.DebounceMs = debounceMs
				}
			})
			if err != nil {
				return err
			}
			if err := ctrl.StartRealtime(); err != nil {
				return err
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			log.Info("shutting down")
			ctrl.StopRealtime()
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Source directory")
	cmd.Flags().StringVarP(&destination, "dest", "d", "", "Destination directory")
	cmd.Flags().IntVar(&debounceMs, "debounce", 0, "Debounce window in milliseconds (default from config)")

	return cmd
}
