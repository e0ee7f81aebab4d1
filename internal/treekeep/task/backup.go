// Package task implements the backup and restore pipelines. A task owns its
// configuration by value, runs to completion on the calling goroutine, and
// polls a shared cancel flag at well-defined checkpoints.
package task

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/treekeep/treekeep/internal/treekeep/crypt"
	"github.com/treekeep/treekeep/internal/treekeep/filter"
	"github.com/treekeep/treekeep/internal/treekeep/huffman"
	"github.com/treekeep/treekeep/internal/treekeep/lib"
	"github.com/treekeep/treekeep/internal/treekeep/logging"
	"github.com/treekeep/treekeep/internal/treekeep/pack"
	"github.com/treekeep/treekeep/internal/treekeep/types"
)

// ErrSourceMissing is returned by the validation phase when the source
// directory does not exist.
var ErrSourceMissing = errors.New("task: source directory missing")

// BackupTask drives one snapshot through walk, filter, materialize,
// package, and encrypt.
type BackupTask struct {
	id      uuid.UUID
	cfg     types.BackupConfig
	filters filter.Chain
	log     logging.Logger
	cancel  *types.CancelFlag

	mu     sync.Mutex
	status types.TaskStatus
}

// NewBackupTask builds a pending backup task. cancel may be nil when the
// caller never cancels.
func NewBackupTask(cfg types.BackupConfig, filters filter.Chain, log logging.Logger, cancel *types.CancelFlag) *BackupTask {
	return &BackupTask{
		id:      uuid.New(),
		cfg:     cfg,
		filters: filters,
		log:     log,
		cancel:  cancel,
		status:  types.StatusPending,
	}
}

// ID identifies this run in log output.
func (t *BackupTask) ID() uuid.UUID { return t.id }

// Status returns the task's current lifecycle state.
func (t *BackupTask) Status() types.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *BackupTask) setStatus(s types.TaskStatus) types.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
	return s
}

func (t *BackupTask) cancelled() bool {
	return t.cancel != nil && t.cancel.Cancelled()
}

// writtenFile pairs a source entry with the path actually produced for it
// in the destination (compression may have changed the name).
type writtenFile struct {
	path  string
	entry *types.Entry
}

// Execute runs phases B1..B6 and returns Completed, Failed, or Cancelled.
func (t *BackupTask) Execute() types.TaskStatus {
	t.setStatus(types.StatusRunning)
	t.log.Info(fmt.Sprintf("backup %s: %s -> %s", t.id, t.cfg.SourceDir, t.cfg.DestinationDir))

	// B1: validate source and destination.
	src, err := filepath.Abs(t.cfg.SourceDir)
	if err == nil {
		var fi os.FileInfo
		fi, err = os.Lstat(src)
		if err == nil && !fi.IsDir() {
			err = fmt.Errorf("%w: %s is not a directory", ErrSourceMissing, src)
		}
	}
	if err != nil {
		t.log.Error(fmt.Sprintf("backup %s: source: %v", t.id, err))
		return t.setStatus(types.StatusFailed)
	}
	dest, err := filepath.Abs(t.cfg.DestinationDir)
	if err == nil {
		err = os.MkdirAll(dest, 0o755)
	}
	if err != nil {
		t.log.Error(fmt.Sprintf("backup %s: destination: %v", t.id, err))
		return t.setStatus(types.StatusFailed)
	}

	// Checkpoint before walking.
	if t.cancelled() {
		return t.finishCancelled()
	}

	// B2: enumerate and filter.
	entries, err := lib.Walk(src)
	if err != nil {
		t.log.Error(fmt.Sprintf("backup %s: walk: %v", t.id, err))
		return t.setStatus(types.StatusFailed)
	}
	filtered := make([]*types.Entry, 0, len(entries))
	for _, e := range entries {
		if t.filters.Matches(e) {
			filtered = append(filtered, e)
		}
	}
	t.log.Info(fmt.Sprintf("backup %s: %d of %d entries selected", t.id, len(filtered), len(entries)))

	// Checkpoint between filter and copy.
	if t.cancelled() {
		return t.finishCancelled()
	}

	// B3: materialize each entry into the destination.
	written := make([]writtenFile, 0, len(filtered))
	for _, e := range filtered {
		if t.cancelled() {
			return t.finishCancelled()
		}
		path, err := t.materialize(e, src, dest)
		if err != nil {
			t.log.Error(fmt.Sprintf("backup %s: %s: %v", t.id, e.Path, err))
			return t.setStatus(types.StatusFailed)
		}
		if path != "" {
			written = append(written, writtenFile{path: path, entry: e})
		}
	}

	// Directory timestamps are reapplied after the loop; writing children
	// into a directory bumps its mtime.
	for i := len(written) - 1; i >= 0; i-- {
		if written[i].entry.IsDir() {
			lib.ApplyMetadata(written[i].path, lib.MetadataOf(written[i].entry), t.log)
		}
	}

	// Checkpoint before packaging.
	if t.cancelled() {
		return t.finishCancelled()
	}

	// B4: fold the mirror tree into a single package file.
	pkgPath := filepath.Join(dest, t.cfg.PackageName())
	if t.cfg.Package {
		if err := t.packageTree(written, dest, pkgPath); err != nil {
			t.log.Error(fmt.Sprintf("backup %s: package: %v", t.id, err))
			return t.setStatus(types.StatusFailed)
		}
	}

	// Checkpoint before encryption.
	if t.cancelled() {
		return t.finishCancelled()
	}

	// B5: encrypt the package, or every written file in mirror mode.
	if t.cfg.Password != "" {
		if t.cfg.Package {
			if err := encryptInPlace(pkgPath, t.cfg.Password, t.log); err != nil {
				t.log.Error(fmt.Sprintf("backup %s: encrypt: %v", t.id, err))
				return t.setStatus(types.StatusFailed)
			}
		} else {
			for _, w := range written {
				if t.cancelled() {
					return t.finishCancelled()
				}
				if !w.entry.IsRegular() {
					continue
				}
				if err := encryptInPlace(w.path, t.cfg.Password, t.log); err != nil {
					t.log.Error(fmt.Sprintf("backup %s: encrypt %s: %v", t.id, w.path, err))
					return t.setStatus(types.StatusFailed)
				}
			}
		}
	}

	// B6: done.
	t.log.Info(fmt.Sprintf("backup %s: completed, %d entries", t.id, len(written)))
	return t.setStatus(types.StatusCompleted)
}

func (t *BackupTask) finishCancelled() types.TaskStatus {
	t.log.Info(fmt.Sprintf("backup %s: cancelled", t.id))
	return t.setStatus(types.StatusCancelled)
}

// materialize writes one entry into the destination tree and returns the
// path actually produced. An empty path with nil error means the entry was
// skipped with a warning.
func (t *BackupTask) materialize(e *types.Entry, src, dest string) (string, error) {
	rel, err := lib.RelPath(src, e.Path)
	if err != nil {
		return "", err
	}
	target := filepath.Join(dest, rel)
	if parent := filepath.Dir(target); parent != dest {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", err
		}
	}

	switch e.Kind {
	case types.KindRegular:
		return t.materializeRegular(e, target)

	case types.KindDirectory:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return "", err
		}
		// Timestamps are deferred to the post-loop pass.
		return target, nil

	case types.KindSymlink:
		newTarget := RetargetSymlink(
			e.SymlinkTarget, src,
			symlinkTargetIsRegular(e),
			t.cfg.Compress, t.cfg.Password != "", t.cfg.Package,
		)
		_ = os.Remove(target)
		if err := os.Symlink(newTarget, target); err != nil {
			return "", err
		}
		lib.ApplyMetadata(target, lib.MetadataOf(e), t.log)
		return target, nil

	case types.KindFifo:
		if !lib.FifoSupported {
			t.log.Warn(fmt.Sprintf("skipping fifo %s: unsupported on this platform", e.Path))
			return "", nil
		}
		if err := lib.Mkfifo(target, e.Mode&0o7777); err != nil {
			return "", err
		}
		lib.ApplyMetadata(target, lib.MetadataOf(e), t.log)
		return target, nil

	default:
		t.log.Warn(fmt.Sprintf("skipping %s entry %s", e.Kind, e.Path))
		return "", nil
	}
}

// materializeRegular copies or compresses one regular file. When the
// compressed output is not smaller than the input it is discarded and the
// file is copied raw instead.
func (t *BackupTask) materializeRegular(e *types.Entry, target string) (string, error) {
	if t.cfg.Compress {
		huffPath := target + CompressedSuffix
		if err := huffman.CompressFile(e.Path, huffPath); err != nil {
			return "", err
		}
		fi, err := os.Stat(huffPath)
		if err == nil && uint64(fi.Size()) < e.Size {
			lib.ApplyMetadata(huffPath, lib.MetadataOf(e), t.log)
			return huffPath, nil
		}
		_ = os.Remove(huffPath)
	}
	if err := lib.CopyFile(e.Path, target); err != nil {
		return "", err
	}
	lib.ApplyMetadata(target, lib.MetadataOf(e), t.log)
	return target, nil
}

// symlinkTargetIsRegular resolves the link's target (following further
// links) and reports whether it is a regular file.
func symlinkTargetIsRegular(e *types.Entry) bool {
	resolved := e.SymlinkTarget
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(e.Path), resolved)
	}
	fi, err := os.Stat(resolved)
	return err == nil && fi.Mode().IsRegular()
}

// packageTree encodes everything written in B3 into one package file, then
// removes the originals and prunes the emptied directories.
func (t *BackupTask) packageTree(written []writtenFile, dest, pkgPath string) error {
	entries := make([]*types.Entry, 0, len(written))
	for _, w := range written {
		// Re-snapshot the written path: B3 preserved mode and mtime onto
		// it, and compression may have changed name and size.
		e, err := lib.NewEntry(w.path)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	if err := pack.Write(entries, dest, pkgPath); err != nil {
		return err
	}

	// Checkpoint before cleanup of the mirror tree.
	if t.cancelled() {
		return nil
	}
	for i := len(written) - 1; i >= 0; i-- {
		w := written[i]
		if w.entry.IsDir() {
			continue
		}
		if err := os.Remove(w.path); err != nil {
			t.log.Warn(fmt.Sprintf("could not remove packaged original %s: %v", w.path, err))
		}
	}
	return lib.PruneEmptyDirs(dest)
}

// encryptInPlace replaces path with path+".enc", carrying mode and mtime
// from the plaintext onto the ciphertext.
func encryptInPlace(path, password string, log logging.Logger) error {
	encPath := path + EncryptedSuffix
	if err := crypt.EncryptFile(path, encPath, password); err != nil {
		return err
	}
	lib.CopyLstatMetadata(path, encPath, log)
	return os.Remove(path)
}
