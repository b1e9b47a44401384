// Package gitpath resolves the on-disk topology of a repository and its
// linked worktrees.
//
// A main worktree has a .git directory. A linked worktree has a .git file
// containing "gitdir: <common gitdir>/worktrees/<name>", and that metadata
// directory holds a gitdir file pointing back at the checkout's .git file.
// The two text files form a bidirectional link; this package follows it in
// either direction without writing anything.
package gitpath
