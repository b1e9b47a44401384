package merge

import (
	"context"
	"regexp"
	"strings"
)

var (
	conflictLine   = regexp.MustCompile(`(?i)conflict in (\S.*)$`)
	// CONFLICT (modify/delete): x deleted in HEAD and modified in topic. ...
	conflictHeader = regexp.MustCompile(`^CONFLICT \([^)]*\): (\S.*)$`)
	pathEnds       = []string{" deleted in ", " renamed to ", " added in ", " modified in "}
)

// Merge merges compare and base in the checkout where base is checked out.
// Branches with identical history short-circuit to an already-merged
// result without running git. A non-zero exit is classified, not returned
// as an error.
func (m *Manager) Merge(ctx context.Context, dir, base, compare string) (*Result, error) {
	paths, err := m.repoPaths(dir)
	if err != nil {
		return nil, err
	}

	diff, err := m.refs.BranchLog(ctx, dir, base, compare)
	if err != nil {
		return nil, err
	}

	root, ok := m.paths.GetBranchRoot(dir, base)
	if !ok {
		root = paths.Root()
	}
	if len(diff) == 0 {
		m.logger.Info("branches already merged", "base", base, "compare", compare)
		return &Result{Status: StatusAlreadyMerged, AlreadyMerged: true, Root: root}, nil
	}

	res, err := m.run(ctx, root, "merge", base, compare)
	if err != nil {
		return nil, err
	}

	result := classify(res.Combined(), res.ExitCode)
	result.Root = root
	m.logger.Info("merge finished", "base", base, "compare", compare, "root", root, "status", result.Status, "exit", res.ExitCode)
	return result, nil
}

// classify interprets the combined output of git merge.
func classify(output string, exitCode int) *Result {
	result := &Result{Output: output}

	seen := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		path, ok := conflictPath(line)
		if ok && !seen[path] {
			seen[path] = true
			result.Conflicts = append(result.Conflicts, path)
		}
	}

	switch {
	case len(result.Conflicts) > 0:
		result.Status = StatusConflicted
	case exitCode == 0 && strings.Contains(output, "Fast-forward"):
		result.Status = StatusFastForward
		result.FastForward = true
	case exitCode == 0 && (strings.Contains(output, "Already up to date") || strings.Contains(output, "Already up-to-date")):
		result.Status = StatusAlreadyMerged
		result.AlreadyMerged = true
	case exitCode == 0:
		result.Status = StatusClean
	default:
		result.Status = StatusFailed
	}
	return result
}

// conflictPath extracts the path a merge output line reports as conflicted.
func conflictPath(line string) (string, bool) {
	if m := conflictLine.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	m := conflictHeader.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	rest := m[1]
	for _, end := range pathEnds {
		if path, _, ok := strings.Cut(rest, end); ok {
			return path, true
		}
	}
	return strings.Fields(rest)[0], true
}
