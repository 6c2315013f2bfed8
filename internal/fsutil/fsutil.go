package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Exists reports whether path exists. Errors other than "not exist" are
// returned as is.
func Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// renameCheckExists is the fallback when the kernel or filesystem cannot
// rename without replacing. The check and the rename are not atomic.
func renameCheckExists(oldpath, newpath string) error {
	exists, err := Exists(newpath)
	if err != nil {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: err}
	}
	if exists {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrExist}
	}
	return os.Rename(oldpath, newpath)
}

// StagedFile is a temporary file in the directory of its final path. Nothing
// is visible under the final name until Commit succeeds.
type StagedFile struct {
	*os.File
	final string
	done  bool
}

// Stage creates the parent directory of path if needed and opens a temporary
// file next to it.
func Stage(path string) (*StagedFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &StagedFile{File: f, final: path}, nil
}

// Commit flushes and closes the temporary file and renames it over the final
// path.
func (s *StagedFile) Commit() error {
	if s.done {
		return fmt.Errorf("staged file %s already finished", s.final)
	}
	s.done = true

	if err := s.File.Sync(); err != nil {
		s.File.Close()
		os.Remove(s.File.Name())
		return err
	}
	if err := s.File.Close(); err != nil {
		os.Remove(s.File.Name())
		return err
	}
	if err := os.Rename(s.File.Name(), s.final); err != nil {
		os.Remove(s.File.Name())
		return err
	}
	return nil
}

// Abort closes and removes the temporary file. It is a no-op after Commit, so
// it can be deferred unconditionally.
func (s *StagedFile) Abort() {
	if s.done {
		return
	}
	s.done = true
	s.File.Close()
	os.Remove(s.File.Name())
}
