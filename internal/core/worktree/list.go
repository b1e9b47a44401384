package worktree

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/aki/arbor/internal/core/gitpath"
)

// List returns the main worktree followed by every linked worktree, sorted
// by metadata name. The bool is false only when dir is outside any repository.
func (m *Manager) List(ctx context.Context, dir string) ([]Worktree, bool) {
	paths, ok := m.paths.GetWorktreePaths(dir)
	if !ok {
		return nil, false
	}

	main := Worktree{
		ID:   worktreeID(paths.Dir),
		Path: paths.Dir,
		Main: true,
	}
	m.describeHead(&main, paths.Gitdir, paths.Gitdir)

	list := []Worktree{main}
	for _, wt := range m.linked(paths) {
		if ctx.Err() != nil {
			break
		}
		list = append(list, wt)
	}
	return list, true
}

// linked reads every entry of the worktrees metadata directory.
func (m *Manager) linked(paths gitpath.WorktreePaths) []Worktree {
	worktrees := filepath.Join(paths.Gitdir, gitpath.WorktreesDir)
	entries, err := m.fs.ReadDir(worktrees)
	if err != nil {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var list []Worktree
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		wgd := filepath.Join(worktrees, e.Name())
		report := m.inspect(e.Name(), wgd)

		wt := Worktree{Name: e.Name(), Path: report.Checkout}
		if wt.Path != "" {
			wt.ID = worktreeID(wt.Path)
		}
		if report.State == LinkGitdirMissing || report.State == LinkCheckoutMissing {
			wt.Prunable = report.Reason
		}
		if report.State != LinkConsistent {
			m.logger.Warn("inconsistent worktree link", "name", e.Name(), "state", report.State, "reason", report.Reason)
		}
		m.describeHead(&wt, paths.Gitdir, wgd)
		list = append(list, wt)
	}
	return list
}

// inspect follows both halves of the link of one metadata directory.
func (m *Manager) inspect(name, wgd string) LinkReport {
	report := LinkReport{Name: name, Gitdir: wgd}

	raw, ok := readText(m.fs, filepath.Join(wgd, "gitdir"))
	if !ok {
		if m.fs.Exists(filepath.Join(wgd, "gitdir")) {
			report.State, report.Reason = LinkGitdirMissing, ReasonGitdirInvalid
		} else {
			report.State, report.Reason = LinkGitdirMissing, ReasonGitdirMissing
		}
		return report
	}

	link := raw
	if !filepath.IsAbs(link) {
		link = filepath.Join(wgd, link)
	}
	link = filepath.Clean(link)
	report.Checkout = filepath.Dir(link)

	data, err := m.fs.ReadFile(link)
	if err != nil {
		report.State, report.Reason = LinkCheckoutMissing, ReasonCheckoutMissing
		return report
	}
	back, ok := gitpath.ParseGitdirFile(data)
	if !ok {
		report.State, report.Reason = LinkBroken, ReasonNoBacklink
		return report
	}
	if !filepath.IsAbs(back) {
		back = filepath.Join(report.Checkout, back)
	}
	if filepath.Clean(back) != filepath.Clean(wgd) {
		report.State, report.Reason = LinkBroken, ReasonNoBacklink
		return report
	}

	report.State = LinkConsistent
	return report
}

// Check reports the link state of every linked worktree of dir's repository.
func (m *Manager) Check(ctx context.Context, dir string) ([]LinkReport, bool) {
	paths, ok := m.paths.GetWorktreePaths(dir)
	if !ok {
		return nil, false
	}
	worktrees := filepath.Join(paths.Gitdir, gitpath.WorktreesDir)
	entries, err := m.fs.ReadDir(worktrees)
	if err != nil {
		return []LinkReport{}, true
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	reports := make([]LinkReport, 0, len(entries))
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if e.IsDir() {
			reports = append(reports, m.inspect(e.Name(), filepath.Join(worktrees, e.Name())))
		}
	}
	return reports, true
}

// Lookup returns the listed worktree checked out at path, or a bare
// Worktree{Path: path} when none matches.
func (m *Manager) Lookup(ctx context.Context, path string) Worktree {
	path = filepath.Clean(path)
	if list, ok := m.List(ctx, path); ok {
		for _, wt := range list {
			if wt.Path == path {
				return wt
			}
		}
	}
	return Worktree{Path: path}
}
