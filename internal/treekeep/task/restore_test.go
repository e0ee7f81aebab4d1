package task_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treekeep/treekeep/internal/treekeep/logging"
	"github.com/treekeep/treekeep/internal/treekeep/task"
	"github.com/treekeep/treekeep/internal/treekeep/types"
)

func runRestore(t *testing.T, cfg types.BackupConfig, restoreDir string) types.TaskStatus {
	t.Helper()
	return task.NewRestoreTask(cfg, restoreDir, logging.Nop(), nil).Execute()
}

// requireTreesEqual compares two trees: same relative paths, same kinds,
// byte-equal file contents, symlink targets equal.
func requireTreesEqual(t *testing.T, want, got string) {
	t.Helper()
	wantEntries := listTree(t, want)
	gotEntries := listTree(t, got)
	require.Equal(t, wantEntries, gotEntries, "tree shapes differ")

	for rel, kind := range wantEntries {
		switch kind {
		case "file":
			w, err := os.ReadFile(filepath.Join(want, rel))
			require.NoError(t, err)
			g, err := os.ReadFile(filepath.Join(got, rel))
			require.NoError(t, err)
			require.Equal(t, w, g, "content mismatch at %s", rel)
		case "symlink":
			w, err := os.Readlink(filepath.Join(want, rel))
			require.NoError(t, err)
			g, err := os.Readlink(filepath.Join(got, rel))
			require.NoError(t, err)
			require.Equal(t, w, g, "symlink target mismatch at %s", rel)
		}
	}
}

func listTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		kind := "file"
		switch {
		case d.Type()&os.ModeSymlink != 0:
			kind = "symlink"
		case d.IsDir():
			kind = "dir"
		}
		out[filepath.ToSlash(rel)] = kind
		return nil
	})
	require.NoError(t, err)
	return out
}

// TestMirrorRoundTrip is the S1 scenario: plain mirror backup, restore to a
// fresh directory, byte-equal trees.
func TestMirrorRoundTrip(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	restored := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("A"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("B"), 0o644))

	cfg := types.BackupConfig{SourceDir: src, DestinationDir: dest}
	require.Equal(t, types.StatusCompleted, runBackup(t, cfg, nil))
	require.Equal(t, types.StatusCompleted, runRestore(t, cfg, restored))

	requireTreesEqual(t, src, restored)
}

// TestCompressedEncryptedPackageRoundTrip is the S2 scenario.
func TestCompressedEncryptedPackageRoundTrip(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	restored := t.TempDir()

	for i := 0; i < 10; i++ {
		data := pseudoData(i, 2000)
		name := filepath.Join(src, fmt.Sprintf("file%02d.bin", i))
		require.NoError(t, os.WriteFile(name, data, 0o644))
	}

	cfg := types.BackupConfig{
		SourceDir:      src,
		DestinationDir: dest,
		Compress:       true,
		Package:        true,
		Password:       "StrongPassword123!",
	}
	require.Equal(t, types.StatusCompleted, runBackup(t, cfg, nil))

	children, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "backup.pkg.enc", children[0].Name())

	require.Equal(t, types.StatusCompleted, runRestore(t, cfg, restored))
	requireTreesEqual(t, src, restored)

	// Temporary decrypt and unpack artifacts are gone.
	left, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Len(t, left, 1, "restore must clean up its temporaries")
}

// pseudoData produces deterministic mixed-entropy content per index.
func pseudoData(seed, n int) []byte {
	out := make([]byte, n)
	state := uint32(seed)*2654435761 + 1
	for i := range out {
		state = state*1664525 + 1013904223
		out[i] = byte(state >> 24)
	}
	// Make half of the files compressible.
	if seed%2 == 0 {
		copy(out, bytes.Repeat([]byte("pattern "), n/8))
	}
	return out
}

func TestRestoreWithWrongPasswordFails(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("A"), 0o644))

	cfg := types.BackupConfig{
		SourceDir:      src,
		DestinationDir: dest,
		Package:        true,
		Password:       "right password",
	}
	require.Equal(t, types.StatusCompleted, runBackup(t, cfg, nil))

	bad := cfg
	bad.Password = "wrong password"
	status := runRestore(t, bad, t.TempDir())
	assert.Equal(t, types.StatusFailed, status)
}

func TestRestoreEncryptedNeedsPassword(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("A"), 0o644))

	cfg := types.BackupConfig{
		SourceDir:      src,
		DestinationDir: dest,
		Package:        true,
		Password:       "pw",
	}
	require.Equal(t, types.StatusCompleted, runBackup(t, cfg, nil))

	noPw := cfg
	noPw.Password = ""
	assert.Equal(t, types.StatusFailed, runRestore(t, noPw, t.TempDir()))
}

// TestSymlinkRoundTrip is the S4 scenario: the retargeted link comes back
// pointing at the original file name.
func TestSymlinkRoundTrip(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	restored := t.TempDir()
	compressible := bytes.Repeat([]byte("link target content "), 300)
	require.NoError(t, os.WriteFile(filepath.Join(src, "f.txt"), compressible, 0o644))
	require.NoError(t, os.Symlink("f.txt", filepath.Join(src, "link")))

	cfg := types.BackupConfig{
		SourceDir:      src,
		DestinationDir: dest,
		Compress:       true,
		Password:       "p",
	}
	require.Equal(t, types.StatusCompleted, runBackup(t, cfg, nil))
	require.Equal(t, types.StatusCompleted, runRestore(t, cfg, restored))

	target, err := os.Readlink(filepath.Join(restored, "link"))
	require.NoError(t, err)
	assert.Equal(t, "f.txt", target)

	content, err := os.ReadFile(filepath.Join(restored, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, compressible, content)

	// The link resolves in the restored tree.
	resolved, err := os.ReadFile(filepath.Join(restored, "link"))
	require.NoError(t, err)
	assert.Equal(t, compressible, resolved)
}

func TestMirrorEncryptedCompressedRoundTrip(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	restored := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "big.txt"), bytes.Repeat([]byte("data "), 1000), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "tiny"), []byte{7}, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(src, "empty"), 0o755))

	cfg := types.BackupConfig{
		SourceDir:      src,
		DestinationDir: dest,
		Compress:       true,
		Password:       "mirror pw",
	}
	require.Equal(t, types.StatusCompleted, runBackup(t, cfg, nil))

	// The mirror holds transformed names only.
	assert.FileExists(t, filepath.Join(dest, "big.txt.huff.enc"))
	assert.FileExists(t, filepath.Join(dest, "tiny.enc"))

	require.Equal(t, types.StatusCompleted, runRestore(t, cfg, restored))
	requireTreesEqual(t, src, restored)
}

func TestRestorePreservesModeAndMtime(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	restored := t.TempDir()
	path := filepath.Join(src, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o600))

	cfg := types.BackupConfig{SourceDir: src, DestinationDir: dest, Package: true}
	require.Equal(t, types.StatusCompleted, runBackup(t, cfg, nil))
	require.Equal(t, types.StatusCompleted, runRestore(t, cfg, restored))

	srcInfo, err := os.Stat(path)
	require.NoError(t, err)
	gotInfo, err := os.Stat(filepath.Join(restored, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, srcInfo.Mode().Perm(), gotInfo.Mode().Perm())
	assert.Equal(t, srcInfo.ModTime().Unix(), gotInfo.ModTime().Unix())
}

func TestRestoreFromMissingBackupDirFails(t *testing.T) {
	cfg := types.BackupConfig{
		SourceDir:      t.TempDir(),
		DestinationDir: filepath.Join(t.TempDir(), "missing"),
	}
	assert.Equal(t, types.StatusFailed, runRestore(t, cfg, t.TempDir()))
}
