// Package scanner resolves Ant-like include/exclude patterns against a
// directory tree into the list of archives a run should process.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"

	"github.com/bibin-skaria/jarslim/internal/types"
)

// DefaultIncludes selects any archive with a `.?ar` extension at any depth.
var DefaultIncludes = []string{"**/*.?ar"}

// PatternMatcher resolves include/exclude patterns under root into absolute
// file paths. The order is stable for a given file-system snapshot.
type PatternMatcher interface {
	Match(root string, includes, excludes []string) ([]string, error)
}

// DirScanner walks the file system and matches slash-separated paths relative
// to the root with doublestar globs.
type DirScanner struct {
	// KeepBackups disables the filtering of backup markers.
	KeepBackups bool
	// Log receives a debug line for every skipped backup marker. May be nil.
	Log logrus.FieldLogger
}

func NewDirScanner() *DirScanner {
	return &DirScanner{}
}

// NormalizePattern converts an Ant-style pattern to doublestar syntax: native
// separators become "/", a leading "./" or "/" is dropped and a trailing "/"
// means everything below it.
func NormalizePattern(pattern string) string {
	p := strings.TrimSpace(pattern)
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")
	if strings.HasSuffix(p, "/") {
		p += "**"
	}
	return p
}

// ValidatePatterns checks that every pattern is a valid glob once normalized.
func ValidatePatterns(patterns []string) error {
	for _, pat := range patterns {
		if strings.TrimSpace(pat) == "" {
			return fmt.Errorf("empty pattern")
		}
		if !doublestar.ValidatePattern(NormalizePattern(pat)) {
			return fmt.Errorf("invalid pattern %q: %w", pat, doublestar.ErrBadPattern)
		}
	}
	return nil
}

func (s *DirScanner) Match(root string, includes, excludes []string) ([]string, error) {
	if len(includes) == 0 {
		includes = DefaultIncludes
	}
	if err := ValidatePatterns(includes); err != nil {
		return nil, err
	}
	if err := ValidatePatterns(excludes); err != nil {
		return nil, err
	}
	inc := normalizeAll(includes)
	exc := normalizeAll(excludes)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var rels []string
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !isRegular(p, d) {
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !matchesAny(inc, rel) || matchesAny(exc, rel) {
			return nil
		}
		if !s.KeepBackups && IsBackupMarker(rel) {
			if s.Log != nil {
				s.Log.WithField("path", rel).Debug("Skipping backup marker")
			}
			return nil
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(rels)
	files := make([]string, len(rels))
	for i, rel := range rels {
		files[i] = filepath.Join(absRoot, filepath.FromSlash(rel))
	}
	return files, nil
}

// IsArchiveExt reports whether ext looks like ".jar", ".war", ".ear"...
func IsArchiveExt(ext string) bool {
	return len(ext) == 4 && ext[0] == '.' && strings.EqualFold(ext[2:], "ar")
}

// IsBackupMarker reports whether name is the pre-normalization copy of an
// archive, e.g. "lib/a.original.jar".
func IsBackupMarker(name string) bool {
	ext := path.Ext(name)
	if !IsArchiveExt(ext) {
		return false
	}
	return strings.HasSuffix(strings.TrimSuffix(name, ext), types.OriginalSuffix)
}

func isRegular(p string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink != 0 {
		info, err := os.Stat(p)
		return err == nil && info.Mode().IsRegular()
	}
	return false
}

func normalizeAll(patterns []string) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = NormalizePattern(p)
	}
	return out
}

func matchesAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if matched, err := doublestar.Match(pat, rel); err == nil && matched {
			return true
		}
	}
	return false
}
