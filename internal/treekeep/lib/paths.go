// Package lib contains the core filesystem services for the treekeep
// application: tree walking, entry snapshots, path normalization, and
// metadata reapplication.
package lib

import (
	"path/filepath"
	"strings"
)

// NormalizeDirPath reduces a path to its absolute, cleaned form with the
// OS-native separator and exactly one trailing separator. The result is a
// fixed point: NormalizeDirPath(NormalizeDirPath(p)) == NormalizeDirPath(p).
func NormalizeDirPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = filepath.Clean(p)
	}
	sep := string(filepath.Separator)
	if !strings.HasSuffix(abs, sep) {
		abs += sep
	}
	return abs
}

// RelPath computes the path of p relative to root, comparing the absolute
// forms of both. Symlink components are not resolved, so the relative path
// of a symlink names the link itself, never its target.
func RelPath(root, p string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.Rel(absRoot, absPath)
}
