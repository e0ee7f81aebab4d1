//go:build !linux && !darwin

package lib

import (
	"os"

	"github.com/treekeep/treekeep/internal/treekeep/types"
)

// fillStat covers platforms without a POSIX stat structure. Ownership and
// the ctime/atime pair are left at zero; mtime comes from the portable
// FileInfo.
func fillStat(e *types.Entry, fi os.FileInfo) {
	sec := fi.ModTime().Unix()
	if sec > 0 {
		e.Mtime = uint64(sec)
	}
	e.LinkCount = 1
}
