package lib

import (
	"io"
	"os"
	"path/filepath"
	"sort"
)

// CopyFile copies a file from src to dst. If dst does not exist, it is
// created. If it does exist, it is overwritten. The destination is synced
// before the handle closes so metadata applied afterwards observes a
// settled file.
func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}

// Exists reports whether anything exists at path, symlinks included.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// PruneEmptyDirs removes directories under root that contain no files after
// packaging has consumed the mirror tree. The root itself is kept. Deeper
// directories are removed first so that emptied parents collapse too.
func PruneEmptyDirs(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		children, err := os.ReadDir(dir)
		if err == nil && len(children) == 0 {
			_ = os.Remove(dir)
		}
	}
	return nil
}
