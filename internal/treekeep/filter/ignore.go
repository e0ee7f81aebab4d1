package filter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/denormal/go-gitignore"

	"github.com/treekeep/treekeep/internal/treekeep/lib"
	"github.com/treekeep/treekeep/internal/treekeep/types"
)

// IgnoreFileName is the name of the optional per-source ignore file whose
// gitignore-style patterns contribute exclusions to the filter chain.
const IgnoreFileName = ".bkignore"

type ignoreMatcher = gitignore.GitIgnore

// NewIgnoreFile builds a filter from the .bkignore file in the source root.
// A missing ignore file yields a pass-through filter; a present one is
// parsed with gitignore semantics. Patterns are evaluated against the
// entry's path relative to the root with forward-slash separators.
func NewIgnoreFile(root string) (*Filter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	f := &Filter{kind: IgnoreFile, root: absRoot}

	ignorePath := filepath.Join(absRoot, IgnoreFileName)
	content, err := os.ReadFile(ignorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("read %s: %w", ignorePath, err)
	}

	// The ignore file itself never travels with a backup.
	patterns := []string{IgnoreFileName}
	for _, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		// Directory patterns become globs so that the whole subtree is
		// covered, matching gitignore's directory semantics.
		if strings.HasSuffix(trimmed, "/") && !strings.HasSuffix(trimmed, "**/") {
			trimmed += "**"
		}
		patterns = append(patterns, trimmed)
	}

	matcher := gitignore.New(
		strings.NewReader(strings.Join(patterns, "\n")),
		absRoot,
		func(gitignore.Error) bool { return false },
	)
	if matcher == nil {
		return f, nil
	}
	f.ignore = matcher
	return f, nil
}

// matchIgnore rejects entries the ignore matcher marks as ignored.
func (f *Filter) matchIgnore(e *types.Entry) bool {
	if f.ignore == nil {
		return true
	}
	rel, err := lib.RelPath(f.root, e.Path)
	if err != nil {
		return true
	}
	match := f.ignore.Relative(filepath.ToSlash(rel), e.Kind == types.KindDirectory)
	if match == nil {
		return true
	}
	return !match.Ignore()
}
