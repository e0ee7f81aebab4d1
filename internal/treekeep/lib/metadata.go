package lib

import (
	"fmt"
	"os"
	"time"

	"github.com/treekeep/treekeep/internal/treekeep/logging"
	"github.com/treekeep/treekeep/internal/treekeep/types"
)

// Metadata is the tuple reapplied to a restored filesystem object.
type Metadata struct {
	Mode  uint32
	UID   uint32
	GID   uint32
	Atime uint64
	Mtime uint64
	Ctime uint64
	Kind  types.EntryKind
}

// MetadataOf extracts the reapplicable metadata from an entry snapshot.
func MetadataOf(e *types.Entry) Metadata {
	return Metadata{
		Mode:  e.Mode,
		UID:   e.UID,
		GID:   e.GID,
		Atime: e.Atime,
		Mtime: e.Mtime,
		Ctime: e.Ctime,
		Kind:  e.Kind,
	}
}

// sentinelTime converts a stored Unix-seconds value to a time, substituting
// the current wall clock for the zero "unknown" sentinel.
func sentinelTime(sec uint64, now time.Time) time.Time {
	if sec == 0 {
		return now
	}
	return time.Unix(int64(sec), 0)
}

// ApplyMetadata is the single code path that reapplies mode, ownership, and
// timestamps to a restored object. Failures are downgraded to warnings; they
// never fail the surrounding task.
func ApplyMetadata(path string, md Metadata, log logging.Logger) {
	now := time.Now()
	atime := sentinelTime(md.Atime, now)
	mtime := sentinelTime(md.Mtime, now)

	if md.Kind == types.KindSymlink {
		// There is no portable lchmod; the link's permission bits are left
		// as created. Timestamps use the no-follow variant where the
		// platform has one.
		if symlinkTimesSupported {
			if err := applyTimes(path, atime, mtime, true); err != nil {
				log.Warn(fmt.Sprintf("could not set symlink times on %s: %v", path, err))
			}
		}
	} else {
		if err := os.Chmod(path, os.FileMode(md.Mode&0o7777)); err != nil {
			log.Warn(fmt.Sprintf("could not set mode on %s: %v", path, err))
		}
		if err := applyTimes(path, atime, mtime, false); err != nil {
			log.Warn(fmt.Sprintf("could not set times on %s: %v", path, err))
		}
		if md.Ctime != 0 {
			if err := applyBirthTime(path, sentinelTime(md.Ctime, now)); err != nil {
				log.Warn(fmt.Sprintf("could not set creation time on %s: %v", path, err))
			}
		}
	}

	if md.UID != 0 || md.GID != 0 {
		if err := applyOwner(path, md.UID, md.GID); err != nil {
			log.Warn(fmt.Sprintf("could not set owner on %s: %v", path, err))
		}
	}
}

// CopyLstatMetadata applies the lstat metadata of src to dst. Used when a
// transform (decrypt, decompress, copy) produces a new file that should carry
// its source's mode and mtime forward.
func CopyLstatMetadata(src, dst string, log logging.Logger) {
	fi, err := os.Lstat(src)
	if err != nil {
		log.Warn(fmt.Sprintf("could not stat %s for metadata carry-over: %v", src, err))
		return
	}
	e, err := entryFromInfo(src, fi)
	if err != nil {
		log.Warn(fmt.Sprintf("could not snapshot %s for metadata carry-over: %v", src, err))
		return
	}
	md := MetadataOf(e)
	// The destination of a carry-over keeps its own kind; only the source's
	// mode and times travel.
	if dfi, err := os.Lstat(dst); err == nil {
		md.Kind = kindOf(dfi.Mode())
	}
	ApplyMetadata(dst, md, log)
}
