//go:build unix

package lib

import (
	"time"

	"golang.org/x/sys/unix"
)

// symlinkTimesSupported reports whether the platform can set timestamps on
// a symlink itself.
const symlinkTimesSupported = true

// applyTimes sets atime and mtime with nanosecond-capable utimensat. When
// nofollow is set the times are applied to the symlink itself.
func applyTimes(path string, atime, mtime time.Time, nofollow bool) error {
	ts := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	flags := 0
	if nofollow {
		flags = unix.AT_SYMLINK_NOFOLLOW
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, flags)
}

// applyOwner sets the owner without following symlinks.
func applyOwner(path string, uid, gid uint32) error {
	return unix.Lchown(path, int(uid), int(gid))
}

// applyBirthTime is a no-op outside Windows; creation time is not a settable
// attribute on POSIX filesystems.
func applyBirthTime(path string, ctime time.Time) error {
	_ = path
	_ = ctime
	return nil
}

// Mkfifo creates a named pipe with the given permission bits.
func Mkfifo(path string, mode uint32) error {
	return unix.Mkfifo(path, mode)
}

// FifoSupported reports whether named pipes can be materialized here.
const FifoSupported = true
