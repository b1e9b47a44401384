// Package storage is the narrow filesystem interface the git engine runs on.
// Production code uses the host filesystem; tests use an in-memory one.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
)

// Reader is the read-only part of Storage.
type Reader interface {
	ReadFile(name string) ([]byte, error)
	Stat(name string) (os.FileInfo, error)
	ReadDir(name string) ([]os.FileInfo, error)
	Exists(name string) bool
	// Lstat is Stat without following a final symlink
	Lstat(name string) (os.FileInfo, error)
	Readlink(name string) (string, error)
}

// Storage is the filesystem used by every component. Paths are absolute.
type Storage interface {
	Reader
	// WriteFile replaces name atomically through a temp file in the same directory
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(name string, perm os.FileMode) error
	Symlink(target, link string) error
	Remove(name string) error
	RemoveAll(name string) error
	// Billy exposes the backing filesystem for go-git storers and ignore matchers
	Billy() billy.Filesystem
}

type billyStorage struct {
	fs billy.Filesystem
}

// New wraps a billy filesystem rooted at "/".
func New(fs billy.Filesystem) Storage {
	return &billyStorage{fs: fs}
}

// OS returns Storage over the host filesystem.
func OS() Storage {
	return New(osfs.New("/"))
}

// Memory returns an empty in-memory Storage.
func Memory() Storage {
	return New(memfs.New())
}

func (s *billyStorage) Billy() billy.Filesystem {
	return s.fs
}

func (s *billyStorage) ReadFile(name string) ([]byte, error) {
	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound{Path: name}
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func (s *billyStorage) Stat(name string) (os.FileInfo, error) {
	info, err := s.fs.Stat(name)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound{Path: name}
	}
	return info, err
}

func (s *billyStorage) Exists(name string) bool {
	_, err := s.fs.Stat(name)
	return err == nil
}

func (s *billyStorage) ReadDir(name string) ([]os.FileInfo, error) {
	info, err := s.Stat(name)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrNotDirectory{Path: name}
	}
	return s.fs.ReadDir(name)
}

func (s *billyStorage) WriteFile(name string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(name)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpName := filepath.Join(dir, "."+filepath.Base(name)+".tmp-"+uuid.NewString())
	tmp, err := s.fs.OpenFile(tmpName, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", name, err)
	}

	if err := s.fs.Rename(tmpName, name); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to rename %s: %w", name, err)
	}
	return nil
}

func (s *billyStorage) Lstat(name string) (os.FileInfo, error) {
	info, err := s.fs.Lstat(name)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound{Path: name}
	}
	return info, err
}

func (s *billyStorage) Readlink(name string) (string, error) {
	target, err := s.fs.Readlink(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound{Path: name}
		}
		return "", fmt.Errorf("failed to read link %s: %w", name, err)
	}
	return target, nil
}

// Symlink creates link pointing at target, creating parent directories.
func (s *billyStorage) Symlink(target, link string) error {
	dir := filepath.Dir(link)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := s.fs.Symlink(target, link); err != nil {
		return fmt.Errorf("failed to create symlink %s: %w", link, err)
	}
	return nil
}

func (s *billyStorage) MkdirAll(name string, perm os.FileMode) error {
	return s.fs.MkdirAll(name, perm)
}

func (s *billyStorage) Remove(name string) error {
	if err := s.fs.Remove(name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound{Path: name}
		}
		return err
	}
	return nil
}

func (s *billyStorage) RemoveAll(name string) error {
	return util.RemoveAll(s.fs, name)
}
