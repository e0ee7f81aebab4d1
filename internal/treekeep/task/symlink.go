package task

import (
	"path/filepath"
	"strings"
)

// Suffixes appended by the pipeline's transforms. When both apply to a file
// they stack as "name.huff.enc".
const (
	CompressedSuffix = ".huff"
	EncryptedSuffix  = ".enc"
)

// RetargetSymlink rewrites a symlink's stored target so that, after the
// backup transforms are applied, the link still points at the transformed
// file. This is the only place a symlink target string is modified.
//
// Absolute targets under sourceDir are rebased to a path relative to
// sourceDir. Relative targets naming a regular file in the link's own
// directory keep their form. In both cases, when the target is a regular
// file, the ".huff" suffix is appended when compression is on, and ".enc"
// when encryption is on and packaging is off (packaged backups encrypt the
// package, not the members). Anything else is left verbatim.
func RetargetSymlink(target, sourceDir string, targetIsRegular, compress, encrypt, packaged bool) string {
	appendSuffixes := func(t string) string {
		if targetIsRegular && compress {
			t += CompressedSuffix
		}
		if targetIsRegular && encrypt && !packaged {
			t += EncryptedSuffix
		}
		return t
	}

	if filepath.IsAbs(target) {
		absSource, err := filepath.Abs(sourceDir)
		if err != nil {
			return target
		}
		rel, err := filepath.Rel(absSource, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			// Points outside the tree being backed up; leave it alone.
			return target
		}
		return appendSuffixes(rel)
	}

	// A relative target stays relative. Only a plain name resolving to a
	// regular file next to the link gets the transform suffixes.
	if targetIsRegular && !strings.ContainsRune(target, '/') && !strings.ContainsRune(target, filepath.Separator) {
		return appendSuffixes(target)
	}
	return target
}

// StripBackupSuffixes is the restore-side inverse of RetargetSymlink's
// suffix handling: a trailing ".enc" is removed first, then a trailing
// ".huff".
func StripBackupSuffixes(target string) string {
	target = strings.TrimSuffix(target, EncryptedSuffix)
	return strings.TrimSuffix(target, CompressedSuffix)
}
