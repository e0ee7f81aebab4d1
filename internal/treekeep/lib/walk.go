package lib

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/treekeep/treekeep/internal/treekeep/types"
)

// NewEntry takes a metadata snapshot of the object at path using the
// non-dereferencing stat. A symlink is reported as a symlink, never as the
// kind of its target.
func NewEntry(path string) (*types.Entry, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	return entryFromInfo(path, fi)
}

func entryFromInfo(path string, fi os.FileInfo) (*types.Entry, error) {
	e := &types.Entry{
		Path: path,
		Name: filepath.Base(path),
		Mode: modeBits(fi.Mode()),
		Kind: kindOf(fi.Mode()),
	}
	if e.Kind == types.KindRegular {
		e.Size = uint64(fi.Size())
	}
	if e.Kind == types.KindSymlink {
		target, err := os.Readlink(path)
		if err != nil {
			return nil, err
		}
		e.SymlinkTarget = target
	}
	fillStat(e, fi)
	return e, nil
}

// modeBits extracts the 12 low POSIX mode bits (07777) from a Go FileMode.
func modeBits(m os.FileMode) uint32 {
	bits := uint32(m.Perm())
	if m&os.ModeSetuid != 0 {
		bits |= 0o4000
	}
	if m&os.ModeSetgid != 0 {
		bits |= 0o2000
	}
	if m&os.ModeSticky != 0 {
		bits |= 0o1000
	}
	return bits
}

func kindOf(m os.FileMode) types.EntryKind {
	switch {
	case m.IsRegular():
		return types.KindRegular
	case m.IsDir():
		return types.KindDirectory
	case m&os.ModeSymlink != 0:
		return types.KindSymlink
	case m&os.ModeNamedPipe != 0:
		return types.KindFifo
	case m&os.ModeCharDevice != 0:
		return types.KindCharDevice
	case m&os.ModeDevice != 0:
		return types.KindBlockDevice
	case m&os.ModeSocket != 0:
		return types.KindSocket
	default:
		return types.KindUnknown
	}
}

// LoadContent reads the entry's file content into the Content buffer.
// Only meaningful for regular files.
func LoadContent(e *types.Entry) error {
	if e.Kind != types.KindRegular {
		return nil
	}
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return err
	}
	e.Content = data
	e.Size = uint64(len(data))
	return nil
}

// Walk enumerates the tree rooted at root and returns entries in a stable
// order: children byte-wise sorted by name within each directory, depth-first
// pre-order across directories. The root itself is not yielded. Directories
// are yielded before their children, so empty directories appear in the
// result and can be re-created on restore.
//
// Symlinks are yielded as leaves; the walk never descends through them.
// Entries whose lstat fails are skipped. The only walk-level error is a
// missing root.
func Walk(root string) ([]*types.Entry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(absRoot); err != nil {
		return nil, fmt.Errorf("walk root %s: %w", absRoot, err)
	}
	var entries []*types.Entry
	walkDir(absRoot, &entries)
	return entries, nil
}

func walkDir(dir string, out *[]*types.Entry) {
	// os.ReadDir returns entries sorted by filename, which is the byte-wise
	// order the walker guarantees.
	children, err := os.ReadDir(dir)
	if err != nil {
		// Unreadable directories are skipped, matching the per-entry
		// permission policy.
		return
	}
	for _, child := range children {
		path := filepath.Join(dir, child.Name())
		entry, err := NewEntry(path)
		if err != nil {
			continue
		}
		*out = append(*out, entry)
		if entry.Kind == types.KindDirectory {
			walkDir(path, out)
		}
	}
}
