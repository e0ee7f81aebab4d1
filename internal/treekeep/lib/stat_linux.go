//go:build linux

package lib

import (
	"os"
	"syscall"

	"github.com/treekeep/treekeep/internal/treekeep/types"
)

// fillStat copies ownership, link count, and timestamps from the raw stat
// structure. Pre-epoch times are clamped to the zero sentinel.
func fillStat(e *types.Entry, fi os.FileInfo) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	e.UID = st.Uid
	e.GID = st.Gid
	e.LinkCount = uint64(st.Nlink)
	e.Ctime = clampSec(st.Ctim.Sec)
	e.Mtime = clampSec(st.Mtim.Sec)
	e.Atime = clampSec(st.Atim.Sec)
}

func clampSec(sec int64) uint64 {
	if sec < 0 {
		return 0
	}
	return uint64(sec)
}
