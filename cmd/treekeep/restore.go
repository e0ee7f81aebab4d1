package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/treekeep/treekeep/internal/treekeep/config"
)

func NewRestoreCommand(flags *rootFlags) *cobra.Command {
	var (
		backupDir  string
		restoreDir string
		compress   bool
		pkg        bool
		pkgName    string
		password   string
	)

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a backup into a directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, err := setup(flags, func(cfg *config.Config) {
				if backupDir != "" {
					cfg.Destination = backupDir
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
				if password == "" && cfg.Password == "" && hasEncryptedFiles(cfg.Destination) {
					if p, perr := promptPassword(); perr == nil {
						cfg.Password = p
					}
				}
			})
			if err != nil {
				return err
			}
			if restoreDir == "" {
				return fmt.Errorf("--to is required")
			}
			if !ctrl.ExecuteRestore(restoreDir, "", nil) {
				return fmt.Errorf("restore failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&backupDir, "from", "f", "", "Backup directory to restore from")
	cmd.Flags().StringVarP(&restoreDir, "to", "t", "", "Directory to restore into")
	cmd.Flags().BoolVar(&compress, "compress", false, "Backup was Huffman-compressed")
	cmd.Flags().BoolVar(&pkg, "package", false, "Backup is a single package file")
	cmd.Flags().StringVar(&pkgName, "package-name", "", "Package file name (default backup.pkg)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password the backup was encrypted with")

	return cmd
}

// hasEncryptedFiles reports whether the backup directory contains any .enc
// artifact, which means a password will be needed.
func hasEncryptedFiles(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".enc") {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// promptPassword reads a password from the terminal with echo suppressed.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
