package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage(t *testing.T) {
	s := Memory()

	t.Run("write creates parents and replaces content", func(t *testing.T) {
		require.NoError(t, s.WriteFile("/repo/.git/HEAD", []byte("ref: refs/heads/main\n"), 0o644))
		require.NoError(t, s.WriteFile("/repo/.git/HEAD", []byte("ref: refs/heads/dev\n"), 0o644))

		data, err := s.ReadFile("/repo/.git/HEAD")
		require.NoError(t, err)
		assert.Equal(t, "ref: refs/heads/dev\n", string(data))

		entries, err := s.ReadDir("/repo/.git")
		require.NoError(t, err)
		require.Len(t, entries, 1, "temp files must not survive")
		assert.Equal(t, "HEAD", entries[0].Name())
	})

	t.Run("missing file is ErrNotFound", func(t *testing.T) {
		_, err := s.ReadFile("/repo/missing")
		require.Error(t, err)
		var nf ErrNotFound
		assert.ErrorAs(t, err, &nf)
		assert.Equal(t, "/repo/missing", nf.Path)
		assert.True(t, IsNotExist(err))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("readdir on a file", func(t *testing.T) {
		_, err := s.ReadDir("/repo/.git/HEAD")
		var nd ErrNotDirectory
		assert.ErrorAs(t, err, &nd)
	})

	t.Run("remove all", func(t *testing.T) {
		require.NoError(t, s.WriteFile("/tmp/a/b/c.txt", []byte("c"), 0o644))
		require.NoError(t, s.RemoveAll("/tmp/a"))
		assert.False(t, s.Exists("/tmp/a/b/c.txt"))
		assert.False(t, s.Exists("/tmp/a"))
	})
}

func TestWalk(t *testing.T) {
	s := Memory()
	for _, p := range []string{"/w/b.txt", "/w/a/x.txt", "/w/.git/HEAD", "/w/a/y.txt"} {
		require.NoError(t, s.WriteFile(p, []byte(p), 0o644))
	}

	var seen []string
	err := Walk(s, "/w", func(path string, info os.FileInfo) error {
		if info.IsDir() && info.Name() == ".git" {
			return SkipDir
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel("/w", path)
			seen = append(seen, rel)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/x.txt", "a/y.txt", "b.txt"}, seen)
}

func TestOSStorage_WriteFileModes(t *testing.T) {
	dir := t.TempDir()
	s := OS()

	// the process umask applies to both writers alike
	umasked := func(perm os.FileMode) os.FileMode {
		control := filepath.Join(t.TempDir(), "control")
		require.NoError(t, os.WriteFile(control, nil, perm))
		info, err := os.Stat(control)
		require.NoError(t, err)
		return info.Mode().Perm()
	}

	for name, perm := range map[string]os.FileMode{"run.sh": 0o755, "README.md": 0o644} {
		path := filepath.Join(dir, name)
		require.NoError(t, s.WriteFile(path, []byte(name), perm))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, umasked(perm), info.Mode().Perm(), name)
	}

	path := filepath.Join(dir, "run.sh")
	require.NoError(t, s.WriteFile(path, []byte("again"), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, umasked(0o644), info.Mode().Perm(), "rewrite applies the new mode")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp files must not survive")
}

func TestSymlinks(t *testing.T) {
	for name, newStorage := range map[string]func(t *testing.T) (Storage, string){
		"memory": func(*testing.T) (Storage, string) { return Memory(), "/w" },
		"os":     func(t *testing.T) (Storage, string) { return OS(), t.TempDir() },
	} {
		t.Run(name, func(t *testing.T) {
			s, root := newStorage(t)
			require.NoError(t, s.WriteFile(filepath.Join(root, "sub", "x.txt"), []byte("x"), 0o644))
			require.NoError(t, s.Symlink("sub", filepath.Join(root, "link-dir")))

			info, err := s.Lstat(filepath.Join(root, "link-dir"))
			require.NoError(t, err)
			assert.NotZero(t, info.Mode()&os.ModeSymlink)
			target, err := s.Readlink(filepath.Join(root, "link-dir"))
			require.NoError(t, err)
			assert.Equal(t, "sub", target)

			_, err = s.Lstat(filepath.Join(root, "missing"))
			assert.True(t, IsNotExist(err))

			var seen []string
			err = Walk(s, root, func(path string, info os.FileInfo) error {
				rel, _ := filepath.Rel(root, path)
				if info.Mode()&os.ModeSymlink != 0 {
					rel += "@"
				}
				seen = append(seen, rel)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"link-dir@", "sub", filepath.Join("sub", "x.txt")}, seen, "links are not followed")
		})
	}
}
