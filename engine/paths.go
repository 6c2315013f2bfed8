package engine

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bibin-skaria/jarslim/internal/types"
	"github.com/bibin-skaria/jarslim/scanner"
)

// DeriveTask maps a discovered candidate to its task. The source root prefix
// is removed first, then a trailing ".pack" or ".pack<ext>" suffix, then the
// archive extension, so "a/b/c.jar", "a/b/c.pack.gz" and "a/b/c.jar.pack.gz"
// all derive "a/b/c".
func DeriveTask(candidate, sourceRoot, outputRoot, compressedExt string) (types.ArchiveTask, error) {
	rel, err := filepath.Rel(sourceRoot, candidate)
	if err != nil {
		return types.ArchiveTask{}, fmt.Errorf("candidate %s is not under %s: %w", candidate, sourceRoot, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return types.ArchiveTask{}, fmt.Errorf("candidate %s is not under %s", candidate, sourceRoot)
	}

	rel = stripPackSuffix(rel)

	var archiveExt string
	if ext := path.Ext(rel); scanner.IsArchiveExt(ext) {
		archiveExt = ext
		rel = strings.TrimSuffix(rel, ext)
	}

	if rel == "" || strings.HasSuffix(rel, "/") {
		return types.ArchiveTask{}, fmt.Errorf("candidate %s has no archive name", candidate)
	}

	return types.NewArchiveTask(rel, archiveExt, candidate, sourceRoot, outputRoot, compressedExt), nil
}

// stripPackSuffix removes ".pack" or ".pack" followed by a single compressor
// extension from the last path element.
func stripPackSuffix(rel string) string {
	if strings.HasSuffix(rel, types.PackSuffix) {
		return strings.TrimSuffix(rel, types.PackSuffix)
	}
	ext := path.Ext(rel)
	if ext == "" {
		return rel
	}
	if base := strings.TrimSuffix(rel, ext); strings.HasSuffix(base, types.PackSuffix) {
		return strings.TrimSuffix(base, types.PackSuffix)
	}
	return rel
}
