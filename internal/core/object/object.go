// Package object reads loose git objects: zlib framed "<type> <size>\0<content>"
// files stored under objects/xx/yyyy.
package object

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/objfile"

	"github.com/aki/arbor/internal/storage"
)

// ErrCorruptObject is returned when an object's header or hash does not check out
var ErrCorruptObject = errors.New("corrupt object")

// Object is a fully decoded loose object
type Object struct {
	Type    plumbing.ObjectType `json:"type"`
	Size    int64               `json:"size"`
	Content []byte              `json:"-"`
	Hash    plumbing.Hash       `json:"hash"`
}

// Decompress inflates a loose object back to its plaintext framing. Input
// that is not a zlib framed object is returned unchanged.
func Decompress(buf []byte) []byte {
	r, err := objfile.NewReader(bytes.NewReader(buf))
	if err != nil {
		return buf
	}
	defer func() { _ = r.Close() }()

	t, size, err := r.Header()
	if err != nil {
		return buf
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return buf
	}

	out := make([]byte, 0, len(content)+32)
	out = append(out, header(t, size)...)
	return append(out, content...)
}

func header(t plumbing.ObjectType, size int64) []byte {
	return []byte(fmt.Sprintf("%s %d\x00", t, size))
}

// ParsePlain splits plaintext framing into type, declared size and content.
func ParsePlain(plain []byte) (plumbing.ObjectType, int64, []byte, error) {
	nul := bytes.IndexByte(plain, 0)
	if nul < 0 {
		return plumbing.InvalidObject, 0, nil, fmt.Errorf("%w: missing header terminator", ErrCorruptObject)
	}
	typ, sizeStr, ok := strings.Cut(string(plain[:nul]), " ")
	if !ok {
		return plumbing.InvalidObject, 0, nil, fmt.Errorf("%w: malformed header %q", ErrCorruptObject, plain[:nul])
	}
	t, err := plumbing.ParseObjectType(typ)
	if err != nil {
		return plumbing.InvalidObject, 0, nil, fmt.Errorf("%w: %v", ErrCorruptObject, err)
	}
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil || size < 0 {
		return plumbing.InvalidObject, 0, nil, fmt.Errorf("%w: bad size %q", ErrCorruptObject, sizeStr)
	}
	return t, size, plain[nul+1:], nil
}

// ObjectPath returns the loose object path for h.
func ObjectPath(gitdir string, h plumbing.Hash) string {
	s := h.String()
	return filepath.Join(gitdir, "objects", s[:2], s[2:])
}

// HashFromPath recovers the id encoded in a loose object's directory and
// file name.
func HashFromPath(path string) (plumbing.Hash, bool) {
	dir := filepath.Base(filepath.Dir(path))
	s := dir + filepath.Base(path)
	if len(dir) != 2 || !plumbing.IsHash(s) {
		return plumbing.ZeroHash, false
	}
	return plumbing.NewHash(s), true
}

// Reader reads loose objects from a Storage.
type Reader struct {
	fs storage.Reader
}

// NewReader creates a Reader
func NewReader(fs storage.Reader) *Reader {
	return &Reader{fs: fs}
}

// ExplodeHash returns the SHA-1 of the object stored at path. When path has
// the objects/xx/yyyy layout the computed id must match it.
func (r *Reader) ExplodeHash(path string) (plumbing.Hash, error) {
	obj, err := r.explode(path, false)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return obj.Hash, nil
}

// ExplodeGitFile fully decodes the object at path, checking the declared
// size as well as the id.
func (r *Reader) ExplodeGitFile(path string) (*Object, error) {
	return r.explode(path, true)
}

// ReadObject reads object h from gitdir.
func (r *Reader) ReadObject(gitdir string, h plumbing.Hash) (*Object, error) {
	return r.ExplodeGitFile(ObjectPath(gitdir, h))
}

func (r *Reader) explode(path string, checkSize bool) (*Object, error) {
	data, err := r.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", path, err)
	}

	t, size, content, err := ParsePlain(Decompress(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if checkSize && size != int64(len(content)) {
		return nil, fmt.Errorf("%w: %s: header declares %d bytes, found %d", ErrCorruptObject, path, size, len(content))
	}

	actual := plumbing.ComputeHash(t, content)
	if expected, ok := HashFromPath(path); ok && expected != actual {
		return nil, fmt.Errorf("%w: %s: expected %s, got %s", ErrCorruptObject, path, expected, actual)
	}

	return &Object{Type: t, Size: size, Content: content, Hash: actual}, nil
}
