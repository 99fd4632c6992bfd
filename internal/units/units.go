// Package units discovers the units of a source tree.
//
// A unit is a top-level directory of the source root. Files directly in the
// root are shared by every unit.
package units

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrRootNotExist indicates the source root does not exist.
	ErrRootNotExist = errors.New("source root does not exist")

	// ErrInvalidPattern indicates an exclude pattern could not be compiled.
	ErrInvalidPattern = errors.New("invalid exclude pattern")
)

// Discoverer lists units and their managed files.
type Discoverer struct {
	ext      string
	excludes []glob.Glob
}

// NewDiscoverer creates a Discoverer for files with extension ext.
// Names matching any exclude pattern are skipped.
func NewDiscoverer(ext string, exclude []string) (*Discoverer, error) {
	excludes, err := CompilePatterns(exclude)
	if err != nil {
		return nil, err
	}
	return &Discoverer{ext: ext, excludes: excludes}, nil
}

// CompilePatterns compiles glob patterns using '/' as the separator.
func CompilePatterns(patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, fmt.Errorf("%q: %w", pattern, err))
		}
		compiled = append(compiled, g)
	}
	return compiled, nil
}

// Excluded reports whether the slash-separated relative path, or any of its
// segments, matches an exclude pattern.
func (d *Discoverer) Excluded(rel string) bool {
	return MatchAny(d.excludes, rel)
}

// MatchAny reports whether rel or one of its segments matches a pattern.
func MatchAny(patterns []glob.Glob, rel string) bool {
	if len(patterns) == 0 {
		return false
	}
	segments := strings.Split(rel, "/")
	for _, g := range patterns {
		if g.Match(rel) {
			return true
		}
		for _, seg := range segments {
			if g.Match(seg) {
				return true
			}
		}
	}
	return false
}

// Discover returns the sorted unit names under root: every non-hidden,
// non-excluded top-level directory.
func (d *Discoverer) Discover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotExist, root)
		}
		return nil, fmt.Errorf("failed to read source root: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") || d.Excluded(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Shared returns the managed files directly in root, sorted, as names
// relative to root.
func (d *Discoverer) Shared(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read source root: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !d.Managed(name) {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// Modules returns the managed files of unit, sorted, as slash-separated
// paths relative to root (for example "Druid/core.lua"). A unit whose
// directory no longer exists has no modules.
func (d *Discoverer) Modules(root, unit string) ([]string, error) {
	unitDir := filepath.Join(root, unit)
	if _, err := os.Stat(unitDir); os.IsNotExist(err) {
		return nil, nil
	}
	var files []string

	err := filepath.WalkDir(unitDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if path != unitDir && (strings.HasPrefix(entry.Name(), ".") || d.Excluded(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Managed(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list modules for %s: %w", unit, err)
	}

	sort.Strings(files)
	return files, nil
}

// Managed reports whether the slash-separated relative path names a file the
// watcher manages: it carries the managed extension and is not excluded.
func (d *Discoverer) Managed(rel string) bool {
	return strings.HasSuffix(rel, d.ext) && !d.Excluded(rel)
}

// Extension returns the managed file extension.
func (d *Discoverer) Extension() string {
	return d.ext
}
