package refs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/aki/arbor/internal/storage"
)

// DeleteBranch removes refs/heads/<branch> from the loose refs and from
// packed-refs. Callers that mutate worktrees hold the repository lock.
func (r *Resolver) DeleteBranch(ctx context.Context, dir, branch string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	paths, ok := r.paths.GetWorktreePaths(dir)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRepository, dir)
	}

	name := "refs/heads/" + strings.TrimPrefix(branch, "refs/heads/")
	found := false

	loose := filepath.Join(paths.Gitdir, filepath.FromSlash(name))
	if err := r.fs.Remove(loose); err == nil {
		found = true
		r.logger.Debug("removed loose ref", "ref", name, "path", loose)
	} else if !storage.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", loose, err)
	}

	removed, err := r.removePacked(paths.Gitdir, name)
	if err != nil {
		return err
	}
	if !found && !removed {
		return fmt.Errorf("%w: %s", ErrRefNotFound, name)
	}
	return nil
}

func (r *Resolver) removePacked(gitdir, name string) (bool, error) {
	path := filepath.Join(gitdir, "packed-refs")
	data, err := r.fs.ReadFile(path)
	if err != nil {
		if storage.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	var out bytes.Buffer
	removed, skipPeeled := false, false
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if skipPeeled && strings.HasPrefix(line, "^") {
			continue
		}
		skipPeeled = false
		if _, ref, ok := strings.Cut(line, " "); ok && !strings.HasPrefix(line, "#") && ref == name {
			removed, skipPeeled = true, true
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if !removed {
		return false, nil
	}
	if err := r.fs.WriteFile(path, out.Bytes(), 0o644); err != nil {
		return false, fmt.Errorf("failed to rewrite packed-refs: %w", err)
	}
	r.logger.Debug("removed packed ref", "ref", name)
	return true, nil
}

// BranchLog returns the commits reachable from exactly one of a and b,
// those only on b first. An empty result means neither side has anything
// the other lacks.
func (r *Resolver) BranchLog(ctx context.Context, dir, a, b string) ([]Commit, error) {
	paths, ok := r.paths.GetWorktreePaths(dir)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, dir)
	}
	ha, ok, err := r.ResolveRef(ctx, ResolveOptions{Dir: dir, Ref: a})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRefNotFound, a)
	}
	hb, ok, err := r.ResolveRef(ctx, ResolveOptions{Dir: dir, Ref: b})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRefNotFound, b)
	}
	if ha == hb {
		return nil, nil
	}

	repo, err := OpenRepository(r.fs.Billy(), paths.Gitdir)
	if err != nil {
		return nil, err
	}
	logA, err := history(ctx, repo, ha)
	if err != nil {
		return nil, err
	}
	logB, err := history(ctx, repo, hb)
	if err != nil {
		return nil, err
	}

	inA := make(map[plumbing.Hash]bool, len(logA))
	for _, c := range logA {
		inA[c.Hash] = true
	}
	inB := make(map[plumbing.Hash]bool, len(logB))
	for _, c := range logB {
		inB[c.Hash] = true
	}

	var diff []Commit
	for _, c := range logB {
		if !inA[c.Hash] {
			diff = append(diff, summarize(c))
		}
	}
	for _, c := range logA {
		if !inB[c.Hash] {
			diff = append(diff, summarize(c))
		}
	}
	return diff, nil
}

func history(ctx context.Context, repo *git.Repository, from plumbing.Hash) ([]*object.Commit, error) {
	iter, err := repo.Log(&git.LogOptions{From: from})
	if err != nil {
		return nil, fmt.Errorf("failed to read log from %s: %w", from, err)
	}
	defer iter.Close()

	var commits []*object.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		commits = append(commits, c)
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, fmt.Errorf("failed to read log from %s: %w", from, err)
	}
	return commits, nil
}

func summarize(c *object.Commit) Commit {
	return Commit{
		Oid:     c.Hash.String(),
		Message: strings.TrimSpace(c.Message),
		Author:  c.Author.Name,
		When:    c.Author.When.UTC().Format(time.RFC3339),
	}
}
