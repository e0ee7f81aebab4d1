package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/treekeep/treekeep/internal/treekeep/crypt"
	"github.com/treekeep/treekeep/internal/treekeep/huffman"
	"github.com/treekeep/treekeep/internal/treekeep/lib"
	"github.com/treekeep/treekeep/internal/treekeep/logging"
	"github.com/treekeep/treekeep/internal/treekeep/pack"
	"github.com/treekeep/treekeep/internal/treekeep/types"
)

// unpackDirName is the temporary unpack directory created under the backup
// root while a packaged backup is being restored.
const unpackDirName = ".treekeep-unpack"

// decryptTmpSuffix marks the sibling file a ciphertext is decrypted into.
const decryptTmpSuffix = ".tmp"

// RestoreTask inverts a backup: decrypt, unpack, decompress, materialize,
// and reapply metadata. Temporary artifacts are removed on every exit path.
type RestoreTask struct {
	id         uuid.UUID
	cfg        types.BackupConfig
	restoreDir string
	log        logging.Logger
	cancel     *types.CancelFlag

	mu     sync.Mutex
	status types.TaskStatus
}

// NewRestoreTask builds a pending restore task. The backup is read from
// cfg.DestinationDir and materialized under restoreDir; Compress, Package,
// PackageFileName, and Password describe how the backup was produced.
func NewRestoreTask(cfg types.BackupConfig, restoreDir string, log logging.Logger, cancel *types.CancelFlag) *RestoreTask {
	return &RestoreTask{
		id:         uuid.New(),
		cfg:        cfg,
		restoreDir: restoreDir,
		log:        log,
		cancel:     cancel,
		status:     types.StatusPending,
	}
}

// ID identifies this run in log output.
func (t *RestoreTask) ID() uuid.UUID { return t.id }

// Status returns the task's current lifecycle state.
func (t *RestoreTask) Status() types.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *RestoreTask) setStatus(s types.TaskStatus) types.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
	return s
}

func (t *RestoreTask) cancelled() bool {
	return t.cancel != nil && t.cancel.Cancelled()
}

// Execute runs phases R1..R6 and returns Completed, Failed, or Cancelled.
func (t *RestoreTask) Execute() types.TaskStatus {
	t.setStatus(types.StatusRunning)
	t.log.Info(fmt.Sprintf("restore %s: %s -> %s", t.id, t.cfg.DestinationDir, t.restoreDir))

	backupDir, err := filepath.Abs(t.cfg.DestinationDir)
	if err == nil {
		_, err = os.Lstat(backupDir)
	}
	if err != nil {
		t.log.Error(fmt.Sprintf("restore %s: backup directory: %v", t.id, err))
		return t.setStatus(types.StatusFailed)
	}
	restoreDir, err := filepath.Abs(t.restoreDir)
	if err == nil {
		err = os.MkdirAll(restoreDir, 0o755)
	}
	if err != nil {
		t.log.Error(fmt.Sprintf("restore %s: restore directory: %v", t.id, err))
		return t.setStatus(types.StatusFailed)
	}

	// Temporaries are cleaned up on success and failure alike.
	cleanup := &tmpCleanup{}
	defer cleanup.run()

	if t.cfg.Package {
		return t.restorePackaged(backupDir, restoreDir, cleanup)
	}
	return t.restoreMirror(backupDir, restoreDir, cleanup)
}

// tmpCleanup collects the temporary files and directories a restore creates.
type tmpCleanup struct {
	files []string
	dirs  []string
}

func (c *tmpCleanup) addFile(p string) { c.files = append(c.files, p) }
func (c *tmpCleanup) addDir(p string)  { c.dirs = append(c.dirs, p) }

func (c *tmpCleanup) run() {
	for _, f := range c.files {
		_ = os.Remove(f)
	}
	for _, d := range c.dirs {
		_ = os.RemoveAll(d)
	}
}

// restorePackaged handles R1..R6 for a packaged backup: locate the package
// (or its encrypted form), decrypt if needed, unpack into a temporary
// directory, then materialize the unpacked tree.
func (t *RestoreTask) restorePackaged(backupDir, restoreDir string, cleanup *tmpCleanup) types.TaskStatus {
	pkgName := t.cfg.PackageName()
	pkgPath := filepath.Join(backupDir, pkgName)
	encPath := pkgPath + EncryptedSuffix

	src := ""
	switch {
	case lib.Exists(encPath):
		if t.cfg.Password == "" {
			t.log.Error(fmt.Sprintf("restore %s: %s is encrypted but no password is configured", t.id, encPath))
			return t.setStatus(types.StatusFailed)
		}
		tmp := encPath + decryptTmpSuffix
		cleanup.addFile(tmp)
		if err := crypt.DecryptFile(encPath, tmp, t.cfg.Password); err != nil {
			t.log.Error(fmt.Sprintf("restore %s: decrypt %s: %v", t.id, encPath, err))
			return t.setStatus(types.StatusFailed)
		}
		lib.CopyLstatMetadata(encPath, tmp, t.log)
		src = tmp
	case lib.Exists(pkgPath):
		src = pkgPath
	default:
		t.log.Info(fmt.Sprintf("restore %s: no package found in %s", t.id, backupDir))
		return t.setStatus(types.StatusCompleted)
	}

	if t.cancelled() {
		return t.finishCancelled()
	}

	unpackDir := filepath.Join(backupDir, unpackDirName)
	cleanup.addDir(unpackDir)
	if err := pack.Unpack(src, unpackDir, t.log); err != nil {
		t.log.Error(fmt.Sprintf("restore %s: unpack: %v", t.id, err))
		return t.setStatus(types.StatusFailed)
	}

	entries, err := lib.Walk(unpackDir)
	if err != nil {
		t.log.Error(fmt.Sprintf("restore %s: walk unpacked tree: %v", t.id, err))
		return t.setStatus(types.StatusFailed)
	}
	return t.materializeAll(entries, unpackDir, restoreDir, cleanup)
}

// restoreMirror handles a mirror backup: every file in the backup tree is
// decrypted and decompressed as its suffixes dictate.
func (t *RestoreTask) restoreMirror(backupDir, restoreDir string, cleanup *tmpCleanup) types.TaskStatus {
	entries, err := lib.Walk(backupDir)
	if err != nil {
		t.log.Error(fmt.Sprintf("restore %s: walk backup tree: %v", t.id, err))
		return t.setStatus(types.StatusFailed)
	}
	return t.materializeAll(entries, backupDir, restoreDir, cleanup)
}

// materializeAll runs R4 for every entry and finishes with the directory
// metadata pass of R5.
func (t *RestoreTask) materializeAll(entries []*types.Entry, baseDir, restoreDir string, cleanup *tmpCleanup) types.TaskStatus {
	type restoredDir struct {
		path  string
		entry *types.Entry
	}
	var dirs []restoredDir

	count := 0
	for _, e := range entries {
		if t.cancelled() {
			return t.finishCancelled()
		}
		dest, err := t.restoreEntry(e, baseDir, restoreDir, cleanup)
		if err != nil {
			t.log.Error(fmt.Sprintf("restore %s: %s: %v", t.id, e.Path, err))
			return t.setStatus(types.StatusFailed)
		}
		if dest == "" {
			continue
		}
		count++
		if e.IsDir() {
			dirs = append(dirs, restoredDir{path: dest, entry: e})
		}
	}

	// Directory timestamps land last, children first bump their parents.
	for i := len(dirs) - 1; i >= 0; i-- {
		lib.ApplyMetadata(dirs[i].path, lib.MetadataOf(dirs[i].entry), t.log)
	}

	t.log.Info(fmt.Sprintf("restore %s: completed, %d entries", t.id, count))
	return t.setStatus(types.StatusCompleted)
}

func (t *RestoreTask) finishCancelled() types.TaskStatus {
	t.log.Info(fmt.Sprintf("restore %s: cancelled", t.id))
	return t.setStatus(types.StatusCancelled)
}

// restoreEntry materializes one backup entry at its restore location and
// returns the path produced. An empty path with nil error means the entry
// was skipped.
func (t *RestoreTask) restoreEntry(e *types.Entry, baseDir, restoreDir string, cleanup *tmpCleanup) (string, error) {
	rel, err := lib.RelPath(baseDir, e.Path)
	if err != nil {
		return "", err
	}

	src := e.Path
	// R2: decrypt in mirror mode. Packaged restores decrypt the package
	// before unpacking, so nothing inside the unpacked tree is encrypted.
	if e.IsRegular() && !t.cfg.Package && strings.HasSuffix(e.Name, EncryptedSuffix) {
		if t.cfg.Password == "" {
			return "", fmt.Errorf("%s is encrypted but no password is configured", e.Path)
		}
		tmp := e.Path + decryptTmpSuffix
		cleanup.addFile(tmp)
		if err := crypt.DecryptFile(e.Path, tmp, t.cfg.Password); err != nil {
			return "", err
		}
		lib.CopyLstatMetadata(e.Path, tmp, t.log)
		src = tmp
		rel = strings.TrimSuffix(rel, EncryptedSuffix)
	}

	dest := filepath.Join(restoreDir, rel)
	if parent := filepath.Dir(dest); parent != restoreDir {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", err
		}
	}

	switch e.Kind {
	case types.KindSymlink:
		cleaned := StripBackupSuffixes(e.SymlinkTarget)
		_ = os.Remove(dest)
		if err := os.Symlink(cleaned, dest); err != nil {
			return "", err
		}
		lib.ApplyMetadata(dest, lib.MetadataOf(e), t.log)
		return dest, nil

	case types.KindDirectory:
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return "", err
		}
		return dest, nil

	case types.KindRegular:
		if t.cfg.Compress && strings.HasSuffix(rel, CompressedSuffix) {
			dest = strings.TrimSuffix(dest, CompressedSuffix)
			if err := huffman.DecompressFile(src, dest); err != nil {
				return "", err
			}
		} else {
			if err := lib.CopyFile(src, dest); err != nil {
				return "", err
			}
		}
		lib.CopyLstatMetadata(src, dest, t.log)
		return dest, nil

	case types.KindFifo:
		if !lib.FifoSupported {
			t.log.Warn(fmt.Sprintf("skipping fifo %s: unsupported on this platform", e.Path))
			return "", nil
		}
		if err := lib.Mkfifo(dest, e.Mode&0o7777); err != nil {
			return "", err
		}
		lib.ApplyMetadata(dest, lib.MetadataOf(e), t.log)
		return dest, nil

	default:
		t.log.Warn(fmt.Sprintf("skipping %s entry %s", e.Kind, e.Path))
		return "", nil
	}
}
