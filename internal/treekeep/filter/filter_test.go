// External test package: the chain is exercised exactly the way the backup
// task uses it.
package filter_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treekeep/treekeep/internal/treekeep/filter"
	"github.com/treekeep/treekeep/internal/treekeep/types"
)

func regularEntry(path string, size uint64, mtime uint64) *types.Entry {
	return &types.Entry{
		Path:  path,
		Name:  filepath.Base(path),
		Kind:  types.KindRegular,
		Size:  size,
		Mtime: mtime,
	}
}

func dirEntry(path string) *types.Entry {
	return &types.Entry{Path: path, Name: filepath.Base(path), Kind: types.KindDirectory}
}

func TestPathExclude(t *testing.T) {
	f := filter.NewPathExclude("/src/temp")

	// The directory itself, files inside it, and deeper paths are rejected.
	assert.False(t, f.Matches(dirEntry("/src/temp")))
	assert.False(t, f.Matches(regularEntry("/src/temp/z.tmp", 1, 0)))
	assert.False(t, f.Matches(regularEntry("/src/temp/deep/z.tmp", 1, 0)))

	// Siblings pass, including names sharing the prefix string.
	assert.True(t, f.Matches(regularEntry("/src/docs/x.txt", 1, 0)))
	assert.True(t, f.Matches(dirEntry("/src/temporary")))
}

func TestPathExcludeAddRemoveIdempotent(t *testing.T) {
	f := filter.NewPathExclude()
	f.AddExcludedPath("/a/b")
	f.AddExcludedPath("/a/b/")
	assert.Len(t, f.ExcludedPaths(), 1, "equivalent spellings collapse to one prefix")

	assert.True(t, f.IsExcluded("/a/b"))
	assert.True(t, f.IsExcluded("/a/b/"))

	// Removing an absent prefix is a no-op success.
	f.RemoveExcludedPath("/never/added")
	f.RemoveExcludedPath("/a/b")
	assert.False(t, f.IsExcluded("/a/b"))
	f.RemoveExcludedPath("/a/b")
	assert.Empty(t, f.ExcludedPaths())
}

func TestTypeInclude(t *testing.T) {
	f := filter.NewTypeInclude("regular", "symlink")
	assert.True(t, f.Matches(regularEntry("/s/f", 0, 0)))
	assert.True(t, f.Matches(&types.Entry{Name: "l", Kind: types.KindSymlink, SymlinkTarget: "f"}))
	assert.False(t, f.Matches(dirEntry("/s/d")))

	empty := filter.NewTypeInclude()
	assert.True(t, empty.Matches(dirEntry("/s/d")), "empty set passes everything")
}

func TestSizeRange(t *testing.T) {
	cases := []struct {
		name     string
		min, max uint64
		size     uint64
		want     bool
	}{
		{"open range matches all", 0, 0, 12345, true},
		{"below min", 100, 0, 99, false},
		{"at min", 100, 0, 100, true},
		{"above max", 0, 100, 101, false},
		{"at max", 0, 100, 100, true},
		{"inside window", 10, 100, 50, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := filter.NewSizeRange(tc.min, tc.max)
			assert.Equal(t, tc.want, f.Matches(regularEntry("/s/f", tc.size, 0)))
		})
	}
}

func TestNameFilters(t *testing.T) {
	include, err := filter.NewNameInclude(`\.txt$`, `\.md$`)
	require.NoError(t, err)
	exclude, err := filter.NewNameExclude(`^~`, `\.tmp$`)
	require.NoError(t, err)

	chain := filter.Chain{include, exclude}

	assert.True(t, chain.Matches(regularEntry("/s/notes.txt", 1, 0)))
	assert.True(t, chain.Matches(regularEntry("/s/README.md", 1, 0)))
	assert.False(t, chain.Matches(regularEntry("/s/image.png", 1, 0)), "no include pattern matches")
	assert.False(t, chain.Matches(regularEntry("/s/~notes.txt", 1, 0)), "exclude wins over include")
	assert.False(t, chain.Matches(regularEntry("/s/scratch.tmp", 1, 0)))
}

func TestNameFilterInvalidPattern(t *testing.T) {
	_, err := filter.NewNameInclude(`valid`, `[unclosed`)
	require.Error(t, err)
	assert.ErrorIs(t, err, filter.ErrInvalidPattern)

	_, err = filter.NewNameExclude(`(`)
	assert.ErrorIs(t, err, filter.ErrInvalidPattern)
}

func TestTimeRange(t *testing.T) {
	f := filter.NewTimeRange(1000, 2000)
	assert.True(t, f.Matches(regularEntry("/s/f", 1, 1000)))
	assert.True(t, f.Matches(regularEntry("/s/f", 1, 1500)))
	assert.True(t, f.Matches(regularEntry("/s/f", 1, 2000)))
	assert.False(t, f.Matches(regularEntry("/s/f", 1, 999)))
	assert.False(t, f.Matches(regularEntry("/s/f", 1, 2001)))
}

func TestExtensionInclude(t *testing.T) {
	f := filter.NewExtensionInclude(".TXT", "jpg")

	assert.True(t, f.Matches(regularEntry("/s/a.txt", 1, 0)))
	assert.True(t, f.Matches(regularEntry("/s/photo.JPG", 1, 0)))
	assert.False(t, f.Matches(regularEntry("/s/a.png", 1, 0)))
	// Non-regular entries are never constrained by extension.
	assert.True(t, f.Matches(dirEntry("/s/dir.png")))
}

func TestChainComposition(t *testing.T) {
	sizeF := filter.NewSizeRange(0, 100)
	nameF, err := filter.NewNameExclude(`\.log$`)
	require.NoError(t, err)
	typeF := filter.NewTypeInclude("regular")

	entries := []*types.Entry{
		regularEntry("/s/small.txt", 10, 0),
		regularEntry("/s/big.txt", 1000, 0),
		regularEntry("/s/app.log", 10, 0),
		dirEntry("/s/sub"),
	}

	forward := filter.Chain{sizeF, nameF, typeF}
	backward := filter.Chain{typeF, nameF, sizeF}

	for _, e := range entries {
		assert.Equal(t, forward.Matches(e), backward.Matches(e),
			"filter order must not affect the result for %s", e.Name)
	}
	assert.True(t, forward.Matches(entries[0]))
	assert.False(t, forward.Matches(entries[1]))
	assert.False(t, forward.Matches(entries[2]))
	assert.False(t, forward.Matches(entries[3]))
}

func TestEmptyChainPassesEverything(t *testing.T) {
	var chain filter.Chain
	assert.True(t, chain.Matches(regularEntry("/s/anything", 1, 0)))
}
