// Package filemanager provides locked, atomic YAML file access and the
// per-repository writer lock.
package filemanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aki/arbor/internal/storage"
)

// ErrConcurrentModification is returned when a file changed between read and write
var ErrConcurrentModification = errors.New("file was modified concurrently")

// FileInfo is the stat snapshot used for compare-and-swap writes
type FileInfo struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// UpdateFunc modifies data in place
type UpdateFunc[T any] func(data *T) error

// Manager reads and writes YAML documents of type T.
type Manager[T any] struct {
	fs     storage.Storage
	locker *Locker
}

// NewManager creates a Manager over fs. Each file is guarded by "<path>.lock".
func NewManager[T any](fs storage.Storage, locker *Locker) *Manager[T] {
	return &Manager[T]{fs: fs, locker: locker}
}

func (m *Manager[T]) stat(path string) (*FileInfo, error) {
	st, err := m.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	return &FileInfo{Path: path, ModTime: st.ModTime(), Size: st.Size()}, nil
}

func (m *Manager[T]) read(path string) (*T, *FileInfo, error) {
	info, err := m.stat(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := m.fs.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var result T
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal yaml %s: %w", path, err)
	}
	return &result, info, nil
}

func (m *Manager[T]) write(path string, data *T) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal yaml: %w", err)
	}
	return m.fs.WriteFile(path, out, 0o644)
}

// Read loads path. A missing file yields an error matching storage.IsNotExist.
func (m *Manager[T]) Read(ctx context.Context, path string) (*T, *FileInfo, error) {
	unlock, err := m.locker.Lock(ctx, path+".lock")
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	return m.read(path)
}

// Write stores data under the file's lock.
func (m *Manager[T]) Write(ctx context.Context, path string, data *T) error {
	unlock, err := m.locker.Lock(ctx, path+".lock")
	if err != nil {
		return err
	}
	defer unlock()

	return m.write(path, data)
}

// WriteWithCAS stores data only if the file still matches expected.
func (m *Manager[T]) WriteWithCAS(ctx context.Context, path string, data *T, expected *FileInfo) error {
	unlock, err := m.locker.Lock(ctx, path+".lock")
	if err != nil {
		return err
	}
	defer unlock()

	if expected != nil {
		current, err := m.stat(path)
		if err != nil && !storage.IsNotExist(err) {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if current != nil && (!current.ModTime.Equal(expected.ModTime) || current.Size != expected.Size) {
			return ErrConcurrentModification
		}
	}

	return m.write(path, data)
}

// Update applies fn to the stored document and writes it back, retrying on
// concurrent modification. A missing file starts from the zero value.
func (m *Manager[T]) Update(ctx context.Context, path string, fn UpdateFunc[T]) error {
	const maxRetries = 10

	for i := 0; i < maxRetries; i++ {
		data, info, err := m.Read(ctx, path)
		if err != nil {
			if !storage.IsNotExist(err) {
				return fmt.Errorf("failed to read file: %w", err)
			}
			data, info = new(T), nil
		}

		if err := fn(data); err != nil {
			return fmt.Errorf("update function failed: %w", err)
		}

		if err := m.WriteWithCAS(ctx, path, data, info); err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				continue
			}
			return err
		}
		return nil
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, ErrConcurrentModification)
}
