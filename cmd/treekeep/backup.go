package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/treekeep/treekeep/internal/treekeep/config"
)

func NewBackupCommand(flags *rootFlags) *cobra.Command {
	var (
		source      string
		destination string
		compress    bool
		pkg         bool
		pkgName     string
		password    string
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Run one backup of the source tree into the destination.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, err := setup(flags, func(cfg *config.Config) {
				if source != "" {
					cfg.Source = source
				}
				if destination != "" {
					cfg.Destination = destination
				}
				if cmd.Flags().Changed("compress") {
					cfg.Compress = compress
				}
				if cmd.Flags().Changed("package") {
					cfg.Package = pkg
				}
				if pkgName != "" {
					cfg.PackageFileName = pkgName
				}
				if password != "" {
					cfg.Password = password
				}
			})
			if err != nil {
				return err
			}
			if !ctrl.ExecuteBackup(nil) {
				return fmt.Errorf("backup failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Source directory")
	cmd.Flags().StringVarP(&destination, "dest", "d", "", "Destination directory")
	cmd.Flags().BoolVar(&compress, "compress", false, "Huffman-compress regular files")
	cmd.Flags().BoolVar(&pkg, "package", false, "Fold the backup into a single package file")
	cmd.Flags().StringVar(&pkgName, "package-name", "", "Package file name (default backup.pkg)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Encrypt the backup with this password")

	return cmd
}
