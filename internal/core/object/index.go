package object

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing/format/index"

	"github.com/aki/arbor/internal/storage"
)

// ReadIndex decodes the index file at path. A missing file is an empty index.
func ReadIndex(fs storage.Reader, path string) (*index.Index, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		if storage.IsNotExist(err) {
			return &index.Index{Version: 2}, nil
		}
		return nil, err
	}

	idx := &index.Index{}
	if err := index.NewDecoder(bytes.NewReader(data)).Decode(idx); err != nil {
		return nil, fmt.Errorf("failed to decode index %s: %w", path, err)
	}
	return idx, nil
}

// WriteIndex encodes entries as a version 2 index at path.
func WriteIndex(fs storage.Storage, path string, entries []*index.Entry) error {
	sorted := make([]*index.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name == sorted[j].Name {
			return sorted[i].Stage < sorted[j].Stage
		}
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	if err := index.NewEncoder(&buf).Encode(&index.Index{Version: 2, Entries: sorted}); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	return fs.WriteFile(path, buf.Bytes(), 0o644)
}
