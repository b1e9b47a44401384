package mcp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/aki/arbor/internal/core/hooks"
	"github.com/aki/arbor/internal/core/merge"
	"github.com/aki/arbor/internal/core/refs"
	"github.com/aki/arbor/internal/core/status"
	"github.com/aki/arbor/internal/core/worktree"
)

// resolvePath makes a path argument absolute against the repository root
func (s *Server) resolvePath(p string) string {
	if p == "" {
		return s.container.ProjectRoot
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.container.ProjectRoot, p)
}

func stringArg(args map[string]interface{}, name string, required bool) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		if required {
			return "", InvalidParameterError(name, "a string")
		}
		return "", nil
	}
	str, ok := v.(string)
	if !ok || (required && str == "") {
		return "", InvalidParameterError(name, "a string")
	}
	return str, nil
}

func boolArg(args map[string]interface{}, name string) (bool, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, InvalidParameterError(name, "a boolean")
	}
	return b, nil
}

// JSON numbers arrive as float64
func intArg(args map[string]interface{}, name string) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return 0, nil
	}
	f, ok := v.(float64)
	if !ok || f < 0 || f != float64(int(f)) {
		return 0, InvalidParameterError(name, "a non-negative integer")
	}
	return int(f), nil
}

func stringsArg(args map[string]interface{}, name string) ([]string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, InvalidParameterError(name, "an array of strings")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		str, ok := item.(string)
		if !ok {
			return nil, InvalidParameterError(name, "an array of strings")
		}
		out = append(out, str)
	}
	return out, nil
}

// fireHooks runs trusted hooks. Untrusted configurations are skipped.
func (s *Server) fireHooks(ctx context.Context, event hooks.Event, vars hooks.Vars) error {
	results, err := s.container.FireHooks(ctx, event, vars)
	if errors.Is(err, hooks.ErrNotTrusted) {
		s.logger.Warn("skipped untrusted hooks", "event", event)
		return nil
	}
	for _, r := range results {
		if r.Error != nil && r.Hook.OnError != hooks.ErrorStrategyIgnore {
			s.logger.Warn("hook failed", "event", event, "hook", r.Hook.Name, "error", r.Error)
		}
	}
	return err
}

func (s *Server) pathArg(args map[string]interface{}) (string, error) {
	p, err := stringArg(args, "path", false)
	if err != nil {
		return "", err
	}
	return s.resolvePath(p), nil
}

func (s *Server) handleResolveRef(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	dir, err := s.pathArg(args)
	if err != nil {
		return nil, err
	}
	ref, err := stringArg(args, "ref", false)
	if err != nil {
		return nil, err
	}
	depth, err := intArg(args, "depth")
	if err != nil {
		return nil, err
	}

	oid, ok, err := s.container.Refs.ResolveRef(ctx, refs.ResolveOptions{Dir: dir, Ref: ref, Depth: depth})
	if err != nil {
		return nil, err
	}
	if ref == "" {
		ref = "HEAD"
	}
	if !ok {
		return nil, RefNotFoundError(ref)
	}
	return createEnhancedResult("resolve_ref", map[string]interface{}{
		"ref":   ref,
		"depth": depth,
		"oid":   oid.String(),
	})
}

func (s *Server) handleCurrentBranch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := s.pathArg(request.GetArguments())
	if err != nil {
		return nil, err
	}
	if _, ok := s.container.Paths.GetRoot(dir); !ok {
		return nil, NotRepositoryError(dir)
	}
	branch, ok := s.container.Refs.CurrentBranch(dir)
	return createEnhancedResult("current_branch", map[string]interface{}{
		"branch":   branch,
		"detached": !ok,
	})
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := stringArg(request.GetArguments(), "path", true)
	if err != nil {
		return nil, err
	}
	target := s.resolvePath(p)
	st, ok := s.container.Status.GetStatus(ctx, target)
	if !ok {
		return nil, NotRepositoryError(target)
	}
	return createEnhancedResult("status", map[string]string{
		"path":   target,
		"status": string(st),
	})
}

func (s *Server) handleStatusMatrix(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	dir, err := s.pathArg(args)
	if err != nil {
		return nil, err
	}
	prefixes, err := stringsArg(args, "filepaths")
	if err != nil {
		return nil, err
	}
	all, err := boolArg(args, "all")
	if err != nil {
		return nil, err
	}

	entries, ok, err := s.container.Status.StatusMatrix(ctx, dir, prefixes...)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NotRepositoryError(dir)
	}
	result := make([]status.Entry, 0, len(entries))
	for _, e := range entries {
		if all || e.Status != status.StatusUnmodified {
			result = append(result, e)
		}
	}
	return createEnhancedResult("status_matrix", result)
}

func (s *Server) handleWorktreeList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := s.pathArg(request.GetArguments())
	if err != nil {
		return nil, err
	}
	list, ok := s.container.Worktrees.List(ctx, dir)
	if !ok {
		return nil, NotRepositoryError(dir)
	}
	return createEnhancedResult("worktree_list", list)
}

func (s *Server) handleWorktreeAdd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	repo, err := s.pathArg(args)
	if err != nil {
		return nil, err
	}
	dir, err := stringArg(args, "dir", true)
	if err != nil {
		return nil, err
	}
	commitish, err := stringArg(args, "commitish", true)
	if err != nil {
		return nil, err
	}

	wt, err := s.container.Worktrees.Add(ctx, repo, s.resolvePath(dir), commitish)
	if err != nil {
		switch {
		case errors.Is(err, worktree.ErrBranchCheckedOut), errors.Is(err, worktree.ErrWorktreeExists):
			return nil, ToolError(err, "worktree_list - See existing worktrees")
		case errors.Is(err, worktree.ErrInvalidCommitish):
			return nil, ToolError(err, "resolve_ref - Resolve the commit id first")
		}
		return nil, err
	}
	if err := s.fireHooks(ctx, hooks.EventWorktreeAdd, hooks.Vars{Dir: wt.Path, Path: wt.Path, Branch: wt.Ref, Rev: wt.Rev}); err != nil {
		return nil, fmt.Errorf("worktree created at %s but a hook failed: %w", wt.Path, err)
	}
	return createEnhancedResult("worktree_add", wt)
}

func (s *Server) handleWorktreeRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	dir, err := stringArg(args, "dir", true)
	if err != nil {
		return nil, err
	}
	force, err := boolArg(args, "force")
	if err != nil {
		return nil, err
	}

	path := s.resolvePath(dir)
	target := s.container.Worktrees.Lookup(ctx, path)
	if !target.Main && target.Name != "" && s.container.FS.Exists(target.Path) {
		vars := hooks.Vars{Dir: target.Path, Path: target.Path, Branch: target.Ref, Rev: target.Rev}
		if err := s.fireHooks(ctx, hooks.EventWorktreeRemove, vars); err != nil {
			return nil, fmt.Errorf("not removing %s: %w", path, err)
		}
	}
	removed, err := s.container.Worktrees.Remove(ctx, target, force)
	if err != nil {
		if errors.Is(err, worktree.ErrNotLinked) || errors.Is(err, worktree.ErrMainWorktree) {
			return nil, ToolError(err, "worktree_list - Find the linked worktree to remove")
		}
		return nil, err
	}
	result := map[string]interface{}{"path": path, "removed": removed}
	if !removed {
		result["reason"] = "worktree has changes; pass force to remove it anyway"
	}
	return createEnhancedResult("worktree_remove", result)
}

func (s *Server) handleWorktreePrune(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	dir, err := s.pathArg(args)
	if err != nil {
		return nil, err
	}
	dryRun, err := boolArg(args, "dry_run")
	if err != nil {
		return nil, err
	}
	expireArg, err := stringArg(args, "expire", false)
	if err != nil {
		return nil, err
	}
	expire := s.container.Config.Prune.Expire
	if expireArg != "" {
		expire, err = time.ParseDuration(expireArg)
		if err != nil || expire < 0 {
			return nil, InvalidParameterError("expire", "a non-negative duration such as 24h")
		}
	}

	pruned, err := s.container.Worktrees.Prune(ctx, dir, worktree.PruneOptions{DryRun: dryRun, Expire: expire})
	if err != nil {
		return nil, err
	}
	if pruned == nil {
		pruned = []worktree.Pruned{}
	}
	return createEnhancedResult("worktree_prune", map[string]interface{}{
		"dry_run": dryRun,
		"pruned":  pruned,
	})
}

func (s *Server) handleWorktreeCheck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := s.pathArg(request.GetArguments())
	if err != nil {
		return nil, err
	}
	reports, ok := s.container.Worktrees.Check(ctx, dir)
	if !ok {
		return nil, NotRepositoryError(dir)
	}
	if reports == nil {
		reports = []worktree.LinkReport{}
	}
	return createEnhancedResult("worktree_check", reports)
}

func (s *Server) handleMerge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	dir, err := s.pathArg(args)
	if err != nil {
		return nil, err
	}
	base, err := stringArg(args, "base", true)
	if err != nil {
		return nil, err
	}
	compare, err := stringArg(args, "compare", true)
	if err != nil {
		return nil, err
	}

	res, err := s.container.Merge.Merge(ctx, dir, base, compare)
	if err != nil {
		if errors.Is(err, refs.ErrNotRepository) {
			return nil, NotRepositoryError(dir)
		}
		return nil, err
	}
	if res.Status != merge.StatusAlreadyMerged {
		vars := hooks.Vars{Dir: res.Root, Path: res.Root, Branch: base, MergeStatus: string(res.Status)}
		if err := s.fireHooks(ctx, hooks.EventMergeFinished, vars); err != nil {
			return nil, err
		}
	}
	return createEnhancedResult("merge", res)
}

func (s *Server) handleMergeStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := s.pathArg(request.GetArguments())
	if err != nil {
		return nil, err
	}
	progress, err := s.container.Merge.ResolveConflicts(ctx, dir)
	if err != nil {
		return nil, err
	}
	return createEnhancedResult("merge_status", map[string]interface{}{
		"in_progress": progress != nil,
		"merge":       progress,
	})
}

func (s *Server) handleMergeAbort(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := s.pathArg(request.GetArguments())
	if err != nil {
		return nil, err
	}
	aborted, err := s.container.Merge.AbortMerge(ctx, dir)
	if err != nil {
		return nil, err
	}
	return createEnhancedResult("merge_abort", map[string]bool{"aborted": aborted})
}

func (s *Server) handleMergeResolve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	dir, err := s.pathArg(args)
	if err != nil {
		return nil, err
	}
	message, err := stringArg(args, "message", false)
	if err != nil {
		return nil, err
	}
	resolved, err := s.container.Merge.ResolveMerge(ctx, dir, message)
	if err != nil {
		var cmdErr *merge.CommandError
		if errors.As(err, &cmdErr) {
			return nil, ToolError(err, "conflicts_check - Find files still carrying conflict markers")
		}
		return nil, err
	}
	return createEnhancedResult("merge_resolve", map[string]bool{"resolved": resolved})
}

func (s *Server) handleConflictsCheck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := s.pathArg(request.GetArguments())
	if err != nil {
		return nil, err
	}
	info, err := s.container.FS.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", target, err)
	}

	conflicts := []merge.Conflict{}
	if info.IsDir() {
		found, err := s.container.Merge.CheckProject(ctx, target)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, found...)
	} else {
		found, err := s.container.Merge.CheckFilepath(target)
		if err != nil {
			return nil, err
		}
		if len(found.Conflicts) > 0 {
			conflicts = append(conflicts, found)
		}
	}
	return createEnhancedResult("conflicts_check", conflicts)
}
