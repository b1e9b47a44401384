package merge

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	mergeSubject = regexp.MustCompile(`^Merge (?:remote-tracking )?branch(?:es)? (.+?)(?: into (\S+))?$`)
	quotedName   = regexp.MustCompile(`'([^']+)'`)
)

// ParseMergeMessage recovers the branches named by the first line of a
// MERGE_MSG. base is empty when the message does not name it.
func ParseMergeMessage(msg string) (base, compare string, ok bool) {
	subject, _, _ := strings.Cut(strings.TrimSpace(msg), "\n")
	match := mergeSubject.FindStringSubmatch(strings.TrimSpace(subject))
	if match == nil {
		return "", "", false
	}
	var names []string
	for _, q := range quotedName.FindAllStringSubmatch(match[1], -1) {
		names = append(names, q[1])
	}
	if len(names) == 0 {
		return "", "", false
	}

	compare = names[len(names)-1]
	switch {
	case match[2] != "":
		base = match[2]
	case len(names) > 1:
		base = names[0]
	}
	return base, compare, true
}

// ResolveConflicts describes the merge in progress in root's checkout: the
// branches recovered from MERGE_MSG and the files still holding conflict
// blocks. It returns nil when no MERGE_MSG exists.
func (m *Manager) ResolveConflicts(ctx context.Context, root string) (*InProgress, error) {
	paths, err := m.repoPaths(root)
	if err != nil {
		return nil, err
	}
	data, err := m.fs.ReadFile(filepath.Join(paths.ActiveGitdir(), "MERGE_MSG"))
	if err != nil {
		return nil, nil
	}

	base, compare, ok := ParseMergeMessage(string(data))
	if !ok {
		m.logger.Warn("unrecognized merge message", "gitdir", paths.ActiveGitdir())
	}
	conflicts, err := m.CheckProject(ctx, paths.Root())
	if err != nil {
		return nil, err
	}
	return &InProgress{Base: base, Compare: compare, Conflicts: conflicts}, nil
}

// inProgress reports whether a merge is underway in dir's checkout
func (m *Manager) inProgress(dir string) (string, bool, error) {
	paths, err := m.repoPaths(dir)
	if err != nil {
		return "", false, err
	}
	return paths.Root(), m.fs.Exists(filepath.Join(paths.ActiveGitdir(), "MERGE_HEAD")), nil
}

// AbortMerge runs merge --abort when a merge is in progress. It returns
// false without running anything otherwise.
func (m *Manager) AbortMerge(ctx context.Context, dir string) (bool, error) {
	root, ok, err := m.inProgress(dir)
	if err != nil || !ok {
		return false, err
	}
	if _, err := m.runOK(ctx, root, "merge", "--abort"); err != nil {
		return false, err
	}
	m.logger.Info("merge aborted", "root", root)
	return true, nil
}

// ResolveMerge concludes a merge in progress by committing with message.
// An empty message reuses MERGE_MSG. It returns false without running
// anything when no merge is in progress.
func (m *Manager) ResolveMerge(ctx context.Context, dir, message string) (bool, error) {
	root, ok, err := m.inProgress(dir)
	if err != nil || !ok {
		return false, err
	}
	if message == "" {
		message = m.storedMessage(root)
	}
	if _, err := m.runOK(ctx, root, "commit", "-m", message); err != nil {
		return false, err
	}
	m.logger.Info("merge resolved", "root", root)
	return true, nil
}

// storedMessage is MERGE_MSG without its comment lines
func (m *Manager) storedMessage(root string) string {
	paths, ok := m.paths.GetWorktreePaths(root)
	if !ok {
		return "Merge"
	}
	data, err := m.fs.ReadFile(filepath.Join(paths.ActiveGitdir(), "MERGE_MSG"))
	if err != nil {
		return "Merge"
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	msg := strings.TrimSpace(strings.Join(lines, "\n"))
	if msg == "" {
		return "Merge"
	}
	return msg
}
