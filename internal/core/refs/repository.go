// Package refs resolves refs, branches and history for repositories and
// their linked worktrees.
package refs

import (
	"errors"
	"fmt"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// errStop breaks out of commit iteration
var errStop = errors.New("stop iteration")

// OpenRepository opens the common gitdir for object access through go-git.
// The repository is bare from go-git's point of view; worktree state is read
// by the callers themselves.
func OpenRepository(fs billy.Filesystem, gitdir string) (*git.Repository, error) {
	chroot, err := fs.Chroot(gitdir)
	if err != nil {
		return nil, fmt.Errorf("failed to chroot to %s: %w", gitdir, err)
	}
	repo, err := git.Open(filesystem.NewStorage(chroot, cache.NewObjectLRUDefault()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", gitdir, err)
	}
	return repo, nil
}
