package commands

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/cobra"

	"github.com/aki/arbor/internal/cli/ui"
	gitobject "github.com/aki/arbor/internal/core/object"
)

// objectView is the printable form of a loose object
type objectView struct {
	Hash    string      `json:"hash"`
	Type    string      `json:"type"`
	Size    int64       `json:"size"`
	Content string      `json:"content,omitempty"`
	Entries []treeEntry `json:"entries,omitempty"`
}

type treeEntry struct {
	Mode string `json:"mode"`
	Hash string `json:"hash"`
	Name string `json:"name"`
}

func viewOf(o *gitobject.Object) (objectView, error) {
	v := objectView{Hash: o.Hash.String(), Type: o.Type.String(), Size: o.Size}
	if o.Type != plumbing.TreeObject {
		v.Content = string(o.Content)
		return v, nil
	}

	mem := &plumbing.MemoryObject{}
	mem.SetType(plumbing.TreeObject)
	if _, err := mem.Write(o.Content); err != nil {
		return v, err
	}
	var tree object.Tree
	if err := tree.Decode(mem); err != nil {
		return v, fmt.Errorf("failed to decode tree %s: %w", o.Hash, err)
	}
	for _, e := range tree.Entries {
		v.Entries = append(v.Entries, treeEntry{Mode: e.Mode.String(), Hash: e.Hash.String(), Name: e.Name})
	}
	return v, nil
}

func newObjectCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "object",
		Short: "Inspect loose objects",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "hash <object-file>",
		Short: "Hash a loose object file and verify it against its path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			path := e.resolve(args[0])
			h, err := c.Objects.ExplodeHash(path)
			if err != nil {
				return err
			}
			data := map[string]string{"path": path, "hash": h.String()}
			return output(data, func() { ui.OutputLine("%s", h.String()) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <object-file|oid>",
		Short: "Decode a loose object by file path or object id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}

			var obj *gitobject.Object
			if plumbing.IsHash(args[0]) {
				dir := e.resolve("")
				paths, ok := c.Paths.GetWorktreePaths(dir)
				if !ok {
					return notRepository(dir)
				}
				obj, err = c.Objects.ReadObject(paths.Gitdir, plumbing.NewHash(args[0]))
			} else {
				obj, err = c.Objects.ExplodeGitFile(e.resolve(args[0]))
			}
			if err != nil {
				return err
			}

			view, err := viewOf(obj)
			if err != nil {
				return err
			}
			return output(view, func() {
				ui.PrintKeyValue("Hash", view.Hash)
				ui.PrintKeyValue("Type", view.Type)
				ui.PrintKeyValue("Size", view.Size)
				ui.OutputLine("")
				for _, entry := range view.Entries {
					ui.OutputLine("%s %s\t%s", entry.Mode, entry.Hash, entry.Name)
				}
				if view.Content != "" {
					ui.OutputLine("%s", view.Content)
				}
			})
		},
	})
	return cmd
}
