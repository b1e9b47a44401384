package filemanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when a lock cannot be acquired in time
var ErrLockTimeout = errors.New("timeout acquiring repository lock")

// RepoLockName is the lock file created inside the common git directory
const RepoLockName = "arbor.lock"

const lockRetryDelay = 100 * time.Millisecond

// Locker serializes writers per key. Inside the process a key maps to a
// one-slot channel; across processes an advisory flock on the key's lock file
// is taken as well when the key lives on the host filesystem.
type Locker struct {
	timeout time.Duration
	osLocks bool

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocker creates a Locker. With osLocks false only the in-process lock
// is taken, which is what in-memory filesystems need.
func NewLocker(timeout time.Duration, osLocks bool) *Locker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Locker{
		timeout: timeout,
		osLocks: osLocks,
		slots:   make(map[string]chan struct{}),
	}
}

func (l *Locker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Lock takes the exclusive lock backed by lockPath and returns its release func.
func (l *Locker) Lock(ctx context.Context, lockPath string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := filepath.Clean(lockPath)

	lockCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-lockCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}
	release := func() { <-ch }

	if !l.osLocks {
		return release, nil
	}

	if err := os.MkdirAll(filepath.Dir(key), 0o755); err != nil {
		release()
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(key)
	locked, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		release()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !locked {
		release()
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}

	return func() {
		_ = fl.Unlock()
		release()
	}, nil
}

// LockRepo takes the single-writer lock of a repository identified by its
// common git directory.
func (l *Locker) LockRepo(ctx context.Context, gitdir string) (func(), error) {
	return l.Lock(ctx, filepath.Join(gitdir, RepoLockName))
}
