package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aki/arbor/internal/core/gitpath"
	"github.com/aki/arbor/internal/core/merge"
	"github.com/aki/arbor/internal/core/refs"
	"github.com/aki/arbor/internal/core/status"
	"github.com/aki/arbor/internal/core/worktree"
)

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// PrintPaths displays the topology of a checkout
func PrintPaths(p gitpath.WorktreePaths) {
	PrintKeyValue("Dir", orDash(p.Dir))
	PrintKeyValue("Gitdir", orDash(p.Gitdir))
	PrintKeyValue("Worktrees", orDash(p.Worktrees))
	if p.IsLinked() {
		PrintKeyValue("Checkout", orDash(p.WorktreeDir))
		PrintKeyValue("Metadata", orDash(p.WorktreeGitdir))
		PrintKeyValue("Link", orDash(p.WorktreeLink))
	}
}

// PrintWorktreeList displays worktrees using a table
func PrintWorktreeList(worktrees []worktree.Worktree) {
	tbl := NewTable("PATH", "BRANCH", "REV", "STATE")
	for _, wt := range worktrees {
		branch := wt.Ref
		if wt.Detached {
			branch = DimStyle.Render("(detached)")
		}
		var state []string
		if wt.Main {
			state = append(state, "main")
		}
		if wt.Prunable != "" {
			state = append(state, WarningStyle.Render("prunable: "+wt.Prunable))
		}
		tbl.AddRow(wt.Path, orDash(branch), orDash(ShortHash(wt.Rev)), orDash(strings.Join(state, ", ")))
	}

	PrintSectionHeader(WorktreeIcon, "Worktrees", len(worktrees))
	tbl.Print()
}

// PrintWorktree displays a single worktree
func PrintWorktree(wt *worktree.Worktree) {
	OutputLine("%s %s", WorktreeIcon, BoldStyle.Render(wt.Path))
	PrintKeyValue("ID", wt.ID)
	if wt.Detached {
		PrintKeyValue("HEAD", "detached")
	} else {
		PrintKeyValue("Branch", wt.Ref)
	}
	PrintKeyValue("Rev", orDash(wt.Rev))
	if wt.Name != "" {
		PrintKeyValue("Name", wt.Name)
	}
}

// PrintPruned displays the metadata directories selected by prune
func PrintPruned(pruned []worktree.Pruned, dryRun bool) {
	if len(pruned) == 0 {
		Info("Nothing to prune")
		return
	}
	verb := "Pruned"
	if dryRun {
		verb = "Would prune"
	}
	for _, p := range pruned {
		OutputLine("%s %s %s", verb, BoldStyle.Render(p.Name), DimStyle.Render("("+p.Reason+")"))
	}
}

// PrintLinkReports displays the link check of each linked worktree
func PrintLinkReports(reports []worktree.LinkReport) {
	if len(reports) == 0 {
		Info("No linked worktrees")
		return
	}
	tbl := NewTable("NAME", "CHECKOUT", "STATE", "REASON")
	for _, r := range reports {
		state := SuccessStyle.Render(string(r.State))
		if r.State != worktree.LinkConsistent {
			state = WarningStyle.Render(string(r.State))
		}
		tbl.AddRow(r.Name, orDash(r.Checkout), state, orDash(r.Reason))
	}
	tbl.Print()
}

// PrintStatusEntries displays status entries sorted by path
func PrintStatusEntries(entries []status.Entry, showAll bool) {
	sorted := make([]status.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	tbl := NewTable("PATH", "STATUS", "MATRIX")
	shown := 0
	for _, e := range sorted {
		if !showAll && e.Status == status.StatusUnmodified {
			continue
		}
		tbl.AddRow(e.Path, StatusStyle(e.Status).Render(orDash(string(e.Status))), fmt.Sprintf("[%d,%d,%d]", e.Matrix[0], e.Matrix[1], e.Matrix[2]))
		shown++
	}
	if shown == 0 {
		Success("Working tree clean")
		return
	}
	tbl.Print()
}

// PrintBranches lists branches, marking current
func PrintBranches(branches []string, current string) {
	for _, b := range branches {
		if b == current {
			OutputLine("* %s", SuccessStyle.Render(b))
			continue
		}
		OutputLine("  %s", b)
	}
}

// PrintCommits displays a branch log
func PrintCommits(commits []refs.Commit) {
	if len(commits) == 0 {
		Info("No commits differ")
		return
	}
	for _, c := range commits {
		when := c.When
		if t, err := time.Parse(time.RFC3339, c.When); err == nil {
			when = FormatTime(t)
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		OutputLine("%s %s %s", BoldStyle.Render(ShortHash(c.Oid)), subject, DimStyle.Render("("+c.Author+", "+when+")"))
	}
}

// PrintMergeResult displays the outcome of a merge
func PrintMergeResult(res *merge.Result) {
	switch res.Status {
	case merge.StatusAlreadyMerged:
		Info("Already merged")
	case merge.StatusFastForward:
		Success("Fast-forwarded in %s", res.Root)
	case merge.StatusClean:
		Success("Merged cleanly in %s", res.Root)
	case merge.StatusConflicted:
		Warning("Merge stopped with %d conflicted file(s) in %s", len(res.Conflicts), res.Root)
		for _, c := range res.Conflicts {
			OutputLine("  %s %s", ConflictIcon, c)
		}
	default:
		Error("Merge failed in %s", res.Root)
		if res.Output != "" {
			OutputLine("%s", DimStyle.Render(res.Output))
		}
	}
}

// PrintConflicts displays files holding conflict blocks
func PrintConflicts(conflicts []merge.Conflict) {
	if len(conflicts) == 0 {
		Success("No conflict markers found")
		return
	}
	tbl := NewTable("PATH", "BLOCKS", "OFFSETS")
	for _, c := range conflicts {
		offsets := make([]string, len(c.Conflicts))
		for i, o := range c.Conflicts {
			offsets[i] = fmt.Sprint(o)
		}
		tbl.AddRow(c.Path, len(c.Conflicts), strings.Join(offsets, ","))
	}
	PrintSectionHeader(ConflictIcon, "Conflicts", len(conflicts))
	tbl.Print()
}

// PrintInProgress displays a merge that has not been concluded
func PrintInProgress(p *merge.InProgress) {
	if p == nil {
		Info("No merge in progress")
		return
	}
	PrintKeyValue("Base", orDash(p.Base))
	PrintKeyValue("Compare", orDash(p.Compare))
	PrintConflicts(p.Conflicts)
}

// PrintFileStatuses displays porcelain or name-status lines
func PrintFileStatuses(files []merge.FileStatus) {
	if len(files) == 0 {
		Success("No changes")
		return
	}
	for _, f := range files {
		if f.From != "" {
			OutputLine("%s %s -> %s", BoldStyle.Render(f.Code), f.From, f.Path)
			continue
		}
		OutputLine("%s %s", BoldStyle.Render(f.Code), f.Path)
	}
}

// PrintCheckIssues displays diff --check findings
func PrintCheckIssues(issues []merge.CheckIssue) {
	if len(issues) == 0 {
		Success("No whitespace or marker problems")
		return
	}
	for _, i := range issues {
		OutputLine("%s:%d: %s", i.Path, i.Line, WarningStyle.Render(i.Message))
	}
}
