package watch

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Extensions of build-relevant implementation sources.
var relevantExts = map[string]bool{
	".ts":  true,
	".tsx": true,
	".js":  true,
	".jsx": true,
}

// Path segments that are never build-relevant regardless of extension.
var ignoredSegments = map[string]bool{
	"node_modules": true,
	"__tests__":    true,
	".git":         true,
	".svn":         true,
	".hg":          true,
}

// Basenames of OS metadata files.
var ignoredBasenames = map[string]bool{
	".DS_Store":   true,
	"Thumbs.db":   true,
	"desktop.ini": true,
}

// Filter classifies workspace-relative paths as build-relevant or noise.
// The zero value applies the built-in rules; extra ignore globs come from
// the per-workspace project config.
type Filter struct {
	ignoreGlobs []string // doublestar patterns, workspace-relative
}

// NewFilter creates a filter with additional ignore globs layered on the
// built-in rules. Invalid patterns are dropped silently at match time.
func NewFilter(ignoreGlobs []string) *Filter {
	return &Filter{ignoreGlobs: ignoreGlobs}
}

// Relevant reports whether a change at rel (workspace-relative) should
// trigger a rebuild. Irrelevant changes are dropped before any timer is
// created or reset.
func (f *Filter) Relevant(rel string) bool {
	rel = filepath.ToSlash(rel)
	base := path.Base(rel)

	if ignoredBasenames[base] {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if ignoredSegments[seg] || strings.HasPrefix(seg, ".") {
			return false
		}
	}

	// Test and spec files are edited alongside sources but never shipped.
	if strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return false
	}

	if !relevantExts[path.Ext(rel)] {
		return false
	}

	for _, glob := range f.ignoreGlobs {
		if ok, err := doublestar.Match(glob, rel); err == nil && ok {
			return false
		}
	}
	return true
}
