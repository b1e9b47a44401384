package merge

import (
	"bufio"
	"context"
	"strconv"
	"strings"
)

// MergeBase returns the best common ancestor of a and b. The bool is false
// when the histories are unrelated.
func (m *Manager) MergeBase(ctx context.Context, dir, a, b string) (string, bool, error) {
	paths, err := m.repoPaths(dir)
	if err != nil {
		return "", false, err
	}
	res, err := m.run(ctx, paths.Root(), "merge-base", a, b)
	if err != nil {
		return "", false, err
	}
	if res.ExitCode == 1 && strings.TrimSpace(res.Combined()) == "" {
		return "", false, nil
	}
	if res.ExitCode != 0 {
		return "", false, &CommandError{Command: m.git, Args: []string{"merge-base", a, b}, ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	}
	return strings.TrimSpace(res.Stdout), true, nil
}

// PorcelainStatus runs status --porcelain in dir's checkout
func (m *Manager) PorcelainStatus(ctx context.Context, dir string) ([]FileStatus, error) {
	paths, err := m.repoPaths(dir)
	if err != nil {
		return nil, err
	}
	res, err := m.runOK(ctx, paths.Root(), "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parsePorcelain(res.Stdout), nil
}

// UnmergedPaths lists the paths status --porcelain reports as unmerged
func (m *Manager) UnmergedPaths(ctx context.Context, dir string) ([]string, error) {
	files, err := m.PorcelainStatus(ctx, dir)
	if err != nil {
		return nil, err
	}
	var unmerged []string
	for _, f := range files {
		if f.Unmerged() {
			unmerged = append(unmerged, f.Path)
		}
	}
	return unmerged, nil
}

// DiffFiles runs diff-files --name-status in dir's checkout
func (m *Manager) DiffFiles(ctx context.Context, dir string) ([]FileStatus, error) {
	paths, err := m.repoPaths(dir)
	if err != nil {
		return nil, err
	}
	res, err := m.runOK(ctx, paths.Root(), "diff-files", "--name-status")
	if err != nil {
		return nil, err
	}
	return parseNameStatus(res.Stdout), nil
}

// DiffCheck runs diff --check in dir's checkout. git exits non-zero when it
// finds problems, so only a failure to run is an error.
func (m *Manager) DiffCheck(ctx context.Context, dir string) ([]CheckIssue, error) {
	paths, err := m.repoPaths(dir)
	if err != nil {
		return nil, err
	}
	res, err := m.run(ctx, paths.Root(), "diff", "--check")
	if err != nil {
		return nil, err
	}
	return parseDiffCheck(res.Stdout), nil
}

// parsePorcelain reads "XY path" and "XY from -> to" lines
func parsePorcelain(out string) []FileStatus {
	var files []FileStatus
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		f := FileStatus{Code: line[:2], Path: line[3:]}
		if from, to, ok := strings.Cut(f.Path, " -> "); ok {
			f.From, f.Path = from, to
		}
		files = append(files, f)
	}
	return files
}

// parseNameStatus reads "<code>\t<path>" lines
func parseNameStatus(out string) []FileStatus {
	var files []FileStatus
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 2 {
			continue
		}
		f := FileStatus{Code: fields[0], Path: fields[len(fields)-1]}
		if len(fields) == 3 {
			f.From = fields[1]
		}
		files = append(files, f)
	}
	return files
}

// parseDiffCheck reads "file:line: message" lines, skipping the offending
// content git prints after each
func parseDiffCheck(out string) []CheckIssue {
	var issues []CheckIssue
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") {
			continue
		}
		path, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		num, msg, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		issues = append(issues, CheckIssue{Path: path, Line: n, Message: strings.TrimSpace(msg)})
	}
	return issues
}
