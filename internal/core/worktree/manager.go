package worktree

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/aki/arbor/internal/core/gitpath"
	"github.com/aki/arbor/internal/core/logger"
	"github.com/aki/arbor/internal/core/refs"
	"github.com/aki/arbor/internal/core/status"
	"github.com/aki/arbor/internal/filemanager"
	"github.com/aki/arbor/internal/storage"
)

// Manager implements the worktree lifecycle. Mutations hold the repository
// lock of the common gitdir.
type Manager struct {
	fs     storage.Storage
	paths  *gitpath.Resolver
	refs   *refs.Resolver
	status *status.Engine
	locker *filemanager.Locker
	logger logger.Logger
}

// NewManager creates a Manager
func NewManager(fs storage.Storage, paths *gitpath.Resolver, refs *refs.Resolver, st *status.Engine, locker *filemanager.Locker, log logger.Logger) *Manager {
	return &Manager{
		fs:     fs,
		paths:  paths,
		refs:   refs,
		status: st,
		locker: locker,
		logger: logger.OrNop(log),
	}
}

// worktreeID derives a stable id from the checkout path
func worktreeID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.Clean(path))).String()
}

func readText(fs storage.Reader, path string) (string, bool) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return "", false
	}
	s := strings.TrimSpace(string(data))
	return s, s != ""
}

// describeHead fills Ref, Rev and Detached from the HEAD in active.
func (m *Manager) describeHead(wt *Worktree, common, active string) {
	if target, ok := m.refs.ReadSymbolicRef(common, active, "HEAD"); ok {
		wt.Ref = strings.TrimPrefix(target, "refs/heads/")
	} else {
		wt.Detached = true
	}
	if h, ok := m.refs.ResolveIn(common, active, "HEAD"); ok {
		wt.Rev = h.String()
	}
}

func (m *Manager) lock(ctx context.Context, gitdir string) (func(), error) {
	unlock, err := m.locker.LockRepo(ctx, gitdir)
	if err != nil {
		return nil, fmt.Errorf("failed to lock repository %s: %w", gitdir, err)
	}
	return unlock, nil
}
