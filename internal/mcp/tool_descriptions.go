package mcp

import "strings"

// ToolDescription provides extended descriptions for AI agents
type ToolDescription struct {
	Description string
	WhenToUse   []string
	NextTools   []string
}

var toolDescriptions = map[string]ToolDescription{
	"resolve_ref": {
		Description: "Resolve a branch, tag, pseudo ref such as HEAD or MERGE_HEAD, or an object id to a full commit id. HEAD is resolved for the checkout containing path, so a linked worktree answers with its own HEAD",
		WhenToUse: []string{
			"Before comparing two branches or starting a merge",
			"To find the commit a worktree is on",
		},
		NextTools: []string{
			"merge - Merge two branches once both resolve",
		},
	},
	"current_branch": {
		Description: "Report the branch checked out in the worktree containing path, or that HEAD is detached",
		WhenToUse: []string{
			"To learn which branch a worktree is on before changing it",
		},
	},
	"status": {
		Description: "Classify one file or directory as unmodified, modified, added, deleted, absent, ignored, or one of the staged variants",
		WhenToUse: []string{
			"To check a single path without scanning the whole checkout",
		},
		NextTools: []string{
			"status_matrix - See every changed path",
		},
	},
	"status_matrix": {
		Description: "Return [HEAD, WORKDIR, STAGE] for every path of a checkout, optionally limited to path prefixes. Unmodified paths are omitted unless all is set",
		WhenToUse: []string{
			"To see everything that changed in a worktree",
			"Before removing a worktree, to check for pending work",
		},
	},
	"worktree_list": {
		Description: "List the main worktree and every linked worktree with branch, commit and prunable state",
		WhenToUse: []string{
			"To find where a branch is checked out",
			"Before adding a worktree, to avoid a collision",
		},
		NextTools: []string{
			"worktree_add - Check out another branch",
			"worktree_prune - Clean up stale metadata",
		},
	},
	"worktree_add": {
		Description: "Check out a local branch, or a full commit id for a detached checkout, into a new directory linked to the repository. A branch checked out elsewhere is refused",
		WhenToUse: []string{
			"When work needs an isolated checkout of another branch",
		},
		NextTools: []string{
			"worktree_list - Verify the new worktree",
			"status_matrix - Inspect the new checkout",
		},
	},
	"worktree_remove": {
		Description: "Remove a linked worktree. Unstaged changes keep it in place unless force is set; force also deletes its branch",
		WhenToUse: []string{
			"After a branch has been merged",
		},
		NextTools: []string{
			"worktree_list - Verify remaining worktrees",
		},
	},
	"worktree_prune": {
		Description: "Remove metadata of linked worktrees whose checkout is gone. dry_run only reports",
		WhenToUse: []string{
			"After checkout directories were deleted by hand",
		},
	},
	"worktree_check": {
		Description: "Verify that every linked worktree and its metadata point at each other",
		WhenToUse: []string{
			"When a worktree behaves as if it were not a repository",
		},
		NextTools: []string{
			"worktree_prune - Remove broken metadata",
		},
	},
	"merge": {
		Description: "Merge compare into base in the checkout holding base and report clean, fast-forward, conflicted, already-merged or failed",
		WhenToUse: []string{
			"To integrate a finished branch",
		},
		NextTools: []string{
			"conflicts_check - Locate conflict markers",
			"merge_abort - Give up on a conflicted merge",
			"merge_resolve - Commit once conflicts are fixed",
		},
	},
	"merge_status": {
		Description: "Describe the merge in progress: the branches involved and files that still carry conflict markers",
		WhenToUse: []string{
			"To resume work on a conflicted merge",
		},
		NextTools: []string{
			"merge_resolve - Commit once no conflicts remain",
		},
	},
	"merge_abort": {
		Description: "Abort the merge in progress and restore the pre-merge state",
	},
	"merge_resolve": {
		Description: "Commit the merge in progress. Without message the prepared merge message is used",
	},
	"conflicts_check": {
		Description: "Find conflict marker blocks in a file, or in every tracked-looking file below a directory. Ignored files are skipped",
		WhenToUse: []string{
			"After a conflicted merge, to find what needs fixing",
			"Before merge_resolve, to make sure nothing is left",
		},
	},
}

// GetEnhancedDescription returns the description of a tool with its usage hints
func GetEnhancedDescription(toolName string) string {
	desc, ok := toolDescriptions[toolName]
	if !ok {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(desc.Description)
	if len(desc.WhenToUse) > 0 {
		sb.WriteString("\n\nWHEN TO USE THIS TOOL:\n")
		for _, when := range desc.WhenToUse {
			sb.WriteString("- " + when + "\n")
		}
	}
	return sb.String()
}

// GetNextToolSuggestions returns suggested next tools for a given tool
func GetNextToolSuggestions(toolName string) []map[string]string {
	desc, ok := toolDescriptions[toolName]
	if !ok {
		return nil
	}
	suggestions := make([]map[string]string, 0, len(desc.NextTools))
	for _, next := range desc.NextTools {
		suggestions = append(suggestions, map[string]string{"tool": next})
	}
	return suggestions
}
