//go:build windows

package lib

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

const symlinkTimesSupported = false

// applyTimes sets atime and mtime through the portable API. Symlink
// timestamps cannot be set here; callers drop them silently per the
// metadata contract.
func applyTimes(path string, atime, mtime time.Time, nofollow bool) error {
	if nofollow {
		return errors.ErrUnsupported
	}
	return os.Chtimes(path, atime, mtime)
}

// applyOwner is a no-op: numeric POSIX ownership has no Windows equivalent.
func applyOwner(path string, uid, gid uint32) error {
	_ = path
	_ = uid
	_ = gid
	return nil
}

// applyBirthTime sets the file creation time, which only exists on Windows.
func applyBirthTime(path string, ctime time.Time) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	h, err := windows.CreateFile(p, windows.FILE_WRITE_ATTRIBUTES,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE, nil,
		windows.OPEN_EXISTING, windows.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)
	ft := windows.NsecToFiletime(ctime.UnixNano())
	return windows.SetFileTime(h, &ft, nil, nil)
}

// Mkfifo is unsupported on Windows; callers skip FIFOs with a warning.
func Mkfifo(path string, mode uint32) error {
	_ = path
	_ = mode
	return errors.ErrUnsupported
}

const FifoSupported = false
