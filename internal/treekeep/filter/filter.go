// Package filter implements the predicate chain applied to walker entries.
// A filter is a tagged variant with a single Matches method; a Chain is the
// AND-composition of its members. Filters are pure over the Entry snapshot
// and never touch the filesystem.
package filter

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/treekeep/treekeep/internal/treekeep/lib"
	"github.com/treekeep/treekeep/internal/treekeep/types"
)

// ErrInvalidPattern is returned when a regex filter is registered with a
// pattern that does not compile.
var ErrInvalidPattern = errors.New("invalid filter pattern")

// Kind discriminates the filter variants.
type Kind int

const (
	PathExclude Kind = iota
	TypeInclude
	SizeRange
	NameInclude
	NameExclude
	TimeRange
	ExtensionInclude
	IgnoreFile
)

// Filter is one predicate over Entry snapshots. Construct values with the
// New* functions; the zero Filter matches everything.
type Filter struct {
	kind Kind

	prefixes map[string]struct{} // PathExclude: normalized dir prefixes
	names    map[string]struct{} // TypeInclude: kind names

	minSize uint64 // SizeRange
	maxSize uint64

	patterns    []*regexp.Regexp // NameInclude / NameExclude
	patternSrcs []string

	start    uint64 // TimeRange
	end      uint64
	hasRange bool

	exts map[string]struct{} // ExtensionInclude: lowercased, no leading dot

	ignore ignoreMatcher // IgnoreFile
	root   string
}

// Chain is an ordered AND-composition of filters. An entry passes the chain
// iff every member matches; order does not affect the result.
type Chain []*Filter

// Matches reports whether the entry passes every filter in the chain.
func (c Chain) Matches(e *types.Entry) bool {
	for _, f := range c {
		if !f.Matches(e) {
			return false
		}
	}
	return true
}

// Kind returns the filter's variant tag.
func (f *Filter) Kind() Kind { return f.kind }

// NewPathExclude builds a path-prefix exclusion filter. Each path is
// normalized to an absolute directory prefix with a trailing separator.
func NewPathExclude(paths ...string) *Filter {
	f := &Filter{kind: PathExclude, prefixes: make(map[string]struct{})}
	for _, p := range paths {
		f.AddExcludedPath(p)
	}
	return f
}

// AddExcludedPath registers a directory prefix. Adding an already-present
// prefix is a no-op.
func (f *Filter) AddExcludedPath(p string) {
	f.prefixes[lib.NormalizeDirPath(p)] = struct{}{}
}

// RemoveExcludedPath removes a directory prefix. Removing an absent prefix
// is a no-op success.
func (f *Filter) RemoveExcludedPath(p string) {
	delete(f.prefixes, lib.NormalizeDirPath(p))
}

// IsExcluded reports exact membership of the normalized path in the set.
func (f *Filter) IsExcluded(p string) bool {
	_, ok := f.prefixes[lib.NormalizeDirPath(p)]
	return ok
}

// ExcludedPaths returns the normalized prefixes in sorted order.
func (f *Filter) ExcludedPaths() []string {
	out := make([]string, 0, len(f.prefixes))
	for p := range f.prefixes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// NewTypeInclude builds a filter that passes only entries whose kind name is
// in the given set. An empty set passes everything.
func NewTypeInclude(kindNames ...string) *Filter {
	f := &Filter{kind: TypeInclude, names: make(map[string]struct{})}
	for _, n := range kindNames {
		f.names[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
	}
	return f
}

// NewSizeRange builds a byte-size window filter. A zero bound is open;
// (0, 0) matches everything.
func NewSizeRange(minSize, maxSize uint64) *Filter {
	return &Filter{kind: SizeRange, minSize: minSize, maxSize: maxSize}
}

// NewNameInclude builds a filter requiring at least one of the patterns to
// match the entry's terminal name. Patterns compile at registration.
func NewNameInclude(patterns ...string) (*Filter, error) {
	res, err := compileAll(patterns)
	if err != nil {
		return nil, err
	}
	return &Filter{kind: NameInclude, patterns: res, patternSrcs: patterns}, nil
}

// NewNameExclude builds a filter rejecting entries whose terminal name
// matches any of the patterns. Patterns compile at registration.
func NewNameExclude(patterns ...string) (*Filter, error) {
	res, err := compileAll(patterns)
	if err != nil {
		return nil, err
	}
	return &Filter{kind: NameExclude, patterns: res, patternSrcs: patterns}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err)
		}
		res = append(res, re)
	}
	return res, nil
}

// NewTimeRange builds a modification-time window filter over Unix seconds.
func NewTimeRange(start, end uint64) *Filter {
	return &Filter{kind: TimeRange, start: start, end: end, hasRange: true}
}

// NewExtensionInclude builds a filter constraining regular files to the
// given extensions. Extensions are lowercased and stripped of a leading dot.
// Non-regular entries always pass.
func NewExtensionInclude(exts ...string) *Filter {
	f := &Filter{kind: ExtensionInclude, exts: make(map[string]struct{})}
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		ext = strings.TrimPrefix(ext, ".")
		if ext != "" {
			f.exts[ext] = struct{}{}
		}
	}
	return f
}

// Matches reports whether the entry passes this filter. Empty filter state
// is pass-through for every variant.
func (f *Filter) Matches(e *types.Entry) bool {
	switch f.kind {
	case PathExclude:
		return f.matchPath(e)
	case TypeInclude:
		if len(f.names) == 0 {
			return true
		}
		_, ok := f.names[e.Kind.String()]
		return ok
	case SizeRange:
		if f.minSize > 0 && e.Size < f.minSize {
			return false
		}
		if f.maxSize > 0 && e.Size > f.maxSize {
			return false
		}
		return true
	case NameInclude:
		if len(f.patterns) == 0 {
			return true
		}
		for _, re := range f.patterns {
			if re.MatchString(e.Name) {
				return true
			}
		}
		return false
	case NameExclude:
		for _, re := range f.patterns {
			if re.MatchString(e.Name) {
				return false
			}
		}
		return true
	case TimeRange:
		if !f.hasRange {
			return true
		}
		return e.Mtime >= f.start && e.Mtime <= f.end
	case ExtensionInclude:
		if e.Kind != types.KindRegular || len(f.exts) == 0 {
			return true
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(e.Name), "."))
		_, ok := f.exts[ext]
		return ok
	case IgnoreFile:
		return f.matchIgnore(e)
	default:
		return true
	}
}

// matchPath rejects entries whose directory-style path equals or extends one
// of the excluded prefixes. For non-directories the parent path is tested so
// that files inside an excluded directory are rejected with it.
func (f *Filter) matchPath(e *types.Entry) bool {
	if len(f.prefixes) == 0 {
		return true
	}
	dirPath := e.Path
	if e.Kind != types.KindDirectory {
		dirPath = filepath.Dir(e.Path)
	}
	norm := lib.NormalizeDirPath(dirPath)
	for prefix := range f.prefixes {
		if strings.HasPrefix(norm, prefix) {
			return false
		}
	}
	return true
}

// Description renders a human-readable summary used by configuration
// listings.
func (f *Filter) Description() string {
	switch f.kind {
	case PathExclude:
		return fmt.Sprintf("exclude paths %v", f.ExcludedPaths())
	case TypeInclude:
		return fmt.Sprintf("include types %v", setKeys(f.names))
	case SizeRange:
		return fmt.Sprintf("size in [%d, %d] bytes", f.minSize, f.maxSize)
	case NameInclude:
		return fmt.Sprintf("name matches any of %v", f.patternSrcs)
	case NameExclude:
		return fmt.Sprintf("name matches none of %v", f.patternSrcs)
	case TimeRange:
		return fmt.Sprintf("mtime in [%d, %d]", f.start, f.end)
	case ExtensionInclude:
		return fmt.Sprintf("extension in %v", setKeys(f.exts))
	case IgnoreFile:
		return fmt.Sprintf("ignore rules from %s", filepath.Join(f.root, IgnoreFileName))
	default:
		return "pass-through"
	}
}

func setKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
