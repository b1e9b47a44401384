// Package helpers builds repositories for tests.
package helpers

import (
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/stretchr/testify/require"

	gitobject "github.com/aki/arbor/internal/core/object"
	"github.com/aki/arbor/internal/storage"
)

// MemRepo is a repository written with real loose objects, refs and index
// onto a Storage, usually an in-memory one.
type MemRepo struct {
	t      *testing.T
	FS     storage.Storage
	Root   string
	Gitdir string

	store   *filesystem.Storage
	commits int
	trees   map[plumbing.Hash]map[string]string
}

// NewMemRepo initializes an empty repository at root with HEAD on main.
func NewMemRepo(t *testing.T, fs storage.Storage, root string) *MemRepo {
	t.Helper()
	gitdir := filepath.Join(root, ".git")

	for _, dir := range []string{"objects", "refs/heads", "refs/tags"} {
		require.NoError(t, fs.MkdirAll(filepath.Join(gitdir, dir), 0o755))
	}
	require.NoError(t, fs.WriteFile(filepath.Join(gitdir, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))
	require.NoError(t, fs.WriteFile(filepath.Join(gitdir, "config"),
		[]byte("[core]\n\trepositoryformatversion = 0\n\tbare = false\n"), 0o644))

	chroot, err := fs.Billy().Chroot(gitdir)
	require.NoError(t, err)

	return &MemRepo{
		t:      t,
		FS:     fs,
		Root:   root,
		Gitdir: gitdir,
		store:  filesystem.NewStorage(chroot, cache.NewObjectLRUDefault()),
		trees:  make(map[plumbing.Hash]map[string]string),
	}
}

const (
	linkPrefix = "\x00link:"
	execPrefix = "\x00exec:"
)

// Link marks a files value as a symlink pointing at target.
func Link(target string) string { return linkPrefix + target }

// Exec marks a files value as an executable file.
func Exec(content string) string { return execPrefix + content }

func decode(value string) (filemode.FileMode, string) {
	if target, ok := strings.CutPrefix(value, linkPrefix); ok {
		return filemode.Symlink, target
	}
	if content, ok := strings.CutPrefix(value, execPrefix); ok {
		return filemode.Executable, content
	}
	return filemode.Regular, value
}

// StoreBlob writes content as a loose blob.
func (r *MemRepo) StoreBlob(content string) plumbing.Hash {
	r.t.Helper()
	obj := r.store.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	require.NoError(r.t, err)
	_, err = w.Write([]byte(content))
	require.NoError(r.t, err)
	require.NoError(r.t, w.Close())

	h, err := r.store.SetEncodedObject(obj)
	require.NoError(r.t, err)
	return h
}

func (r *MemRepo) writeTree(files map[string]string) plumbing.Hash {
	r.t.Helper()
	subdirs := make(map[string]map[string]string)
	var entries []object.TreeEntry

	for path, content := range files {
		if dir, rest, ok := strings.Cut(path, "/"); ok {
			if subdirs[dir] == nil {
				subdirs[dir] = make(map[string]string)
			}
			subdirs[dir][rest] = content
			continue
		}
		mode, blob := decode(content)
		entries = append(entries, object.TreeEntry{Name: path, Mode: mode, Hash: r.StoreBlob(blob)})
	}
	for dir, sub := range subdirs {
		entries = append(entries, object.TreeEntry{Name: dir, Mode: filemode.Dir, Hash: r.writeTree(sub)})
	}

	key := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.Slice(entries, func(i, j int) bool { return key(entries[i]) < key(entries[j]) })

	obj := r.store.NewEncodedObject()
	require.NoError(r.t, (&object.Tree{Entries: entries}).Encode(obj))
	h, err := r.store.SetEncodedObject(obj)
	require.NoError(r.t, err)
	return h
}

// Commit records files as the complete tree of a new commit on branch,
// parented on the branch tip when there is one, and advances the branch.
func (r *MemRepo) Commit(branch, message string, files map[string]string) plumbing.Hash {
	r.t.Helper()
	var parents []plumbing.Hash
	if tip, ok := r.Tip(branch); ok {
		parents = append(parents, tip)
	}
	h := r.CommitWithParents(message, files, parents...)
	r.SetBranch(branch, h)
	return h
}

// CommitWithParents writes a commit without touching any ref.
func (r *MemRepo) CommitWithParents(message string, files map[string]string, parents ...plumbing.Hash) plumbing.Hash {
	r.t.Helper()
	r.commits++
	sig := object.Signature{
		Name:  "Test User",
		Email: "test@example.com",
		When:  time.Date(2024, 1, 1, 0, 0, r.commits, 0, time.UTC),
	}
	c := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     r.writeTree(files),
		ParentHashes: parents,
	}

	obj := r.store.NewEncodedObject()
	require.NoError(r.t, c.Encode(obj))
	h, err := r.store.SetEncodedObject(obj)
	require.NoError(r.t, err)

	snapshot := make(map[string]string, len(files))
	for k, v := range files {
		snapshot[k] = v
	}
	r.trees[h] = snapshot
	return h
}

// SetBranch points refs/heads/<branch> at h.
func (r *MemRepo) SetBranch(branch string, h plumbing.Hash) {
	r.SetRef("refs/heads/"+branch, h.String())
}

// SetRef writes a loose ref or pseudo ref with the given raw content.
func (r *MemRepo) SetRef(name, content string) {
	r.t.Helper()
	path := filepath.Join(r.Gitdir, filepath.FromSlash(name))
	require.NoError(r.t, r.FS.WriteFile(path, []byte(content+"\n"), 0o644))
}

// Tip returns the commit a local branch points at.
func (r *MemRepo) Tip(branch string) (plumbing.Hash, bool) {
	data, err := r.FS.ReadFile(filepath.Join(r.Gitdir, "refs", "heads", filepath.FromSlash(branch)))
	if err != nil {
		return plumbing.ZeroHash, false
	}
	s := strings.TrimSpace(string(data))
	if !plumbing.IsHash(s) {
		return plumbing.ZeroHash, false
	}
	return plumbing.NewHash(s), true
}

// Checkout points HEAD at branch and makes workdir and index match its tip.
func (r *MemRepo) Checkout(branch string) {
	r.t.Helper()
	tip, ok := r.Tip(branch)
	require.True(r.t, ok, "branch %s has no commits", branch)

	r.SetRef("HEAD", "ref: refs/heads/"+branch)
	files := r.trees[tip]

	entries := make([]*index.Entry, 0, len(files))
	for path, content := range files {
		r.WriteFile(path, content)
		entries = append(entries, r.entry(path, content))
	}
	r.writeIndex(entries)
}

// WriteFile writes a workdir file relative to Root. Link and Exec values
// create a symlink or an executable.
func (r *MemRepo) WriteFile(rel, content string) {
	r.t.Helper()
	path := filepath.Join(r.Root, filepath.FromSlash(rel))
	mode, data := decode(content)
	switch mode {
	case filemode.Symlink:
		_ = r.FS.Remove(path)
		require.NoError(r.t, r.FS.Symlink(data, path))
	case filemode.Executable:
		require.NoError(r.t, r.FS.WriteFile(path, []byte(data), 0o755))
	default:
		require.NoError(r.t, r.FS.WriteFile(path, []byte(data), 0o644))
	}
}

// RemoveFile deletes a workdir file relative to Root.
func (r *MemRepo) RemoveFile(rel string) {
	r.t.Helper()
	require.NoError(r.t, r.FS.Remove(filepath.Join(r.Root, filepath.FromSlash(rel))))
}

// Stage records the current workdir content of rel in the index.
func (r *MemRepo) Stage(rel string) {
	r.t.Helper()
	data, err := r.FS.ReadFile(filepath.Join(r.Root, filepath.FromSlash(rel)))
	require.NoError(r.t, err)
	r.StageContent(rel, string(data))
}

// StageContent records content for rel in the index without touching the workdir.
func (r *MemRepo) StageContent(rel, content string) {
	r.t.Helper()
	entries := r.withoutEntry(rel)
	r.writeIndex(append(entries, r.entry(rel, content)))
}

// Unstage drops rel from the index.
func (r *MemRepo) Unstage(rel string) {
	r.t.Helper()
	r.writeIndex(r.withoutEntry(rel))
}

// StageConflict replaces rel with stage 1-3 entries, as a failed merge leaves it.
func (r *MemRepo) StageConflict(rel, base, ours, theirs string) {
	r.t.Helper()
	entries := r.withoutEntry(rel)
	for stage, content := range []string{base, ours, theirs} {
		e := r.entry(rel, content)
		e.Stage = index.Stage(stage + 1)
		entries = append(entries, e)
	}
	r.writeIndex(entries)
}

func (r *MemRepo) entry(rel, content string) *index.Entry {
	mode, blob := decode(content)
	return &index.Entry{
		Name:       filepath.ToSlash(rel),
		Hash:       r.StoreBlob(blob),
		Mode:       mode,
		Size:       uint32(len(blob)),
		ModifiedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *MemRepo) withoutEntry(rel string) []*index.Entry {
	r.t.Helper()
	idx, err := gitobject.ReadIndex(r.FS, filepath.Join(r.Gitdir, "index"))
	require.NoError(r.t, err)
	name := filepath.ToSlash(rel)
	kept := make([]*index.Entry, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	return kept
}

func (r *MemRepo) writeIndex(entries []*index.Entry) {
	r.t.Helper()
	require.NoError(r.t, gitobject.WriteIndex(r.FS, filepath.Join(r.Gitdir, "index"), entries))
}
