package storage

import (
	"errors"
	"fmt"
	"os"
)

// ErrNotFound is returned when a path does not exist.
type ErrNotFound struct {
	Path string
}

func (e ErrNotFound) Error() string {
	if e.Path == "" {
		return "path does not exist"
	}
	return fmt.Sprintf("path does not exist: %s", e.Path)
}

// Is lets callers match ErrNotFound against os.ErrNotExist.
func (e ErrNotFound) Is(target error) bool {
	return target == os.ErrNotExist
}

// ErrNotDirectory is returned when a directory operation hits a file.
type ErrNotDirectory struct {
	Path string
}

func (e ErrNotDirectory) Error() string {
	return fmt.Sprintf("not a directory: %s", e.Path)
}

// IsNotExist reports whether err means the path is missing.
func IsNotExist(err error) bool {
	if err == nil {
		return false
	}
	var nf ErrNotFound
	return errors.As(err, &nf) || errors.Is(err, os.ErrNotExist)
}
