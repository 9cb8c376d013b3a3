// Package store persists recording data on disk: the per-clip chunk
// namespaces written while recording and the session directory layout
// (manifest, finalized assets, exports).
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store is the persistence contract the clip lifecycle consumes. Chunks are
// named by (clipID, index); writing the same index twice overwrites, so
// retried deliveries are harmless. ReadAll returns the concatenation of all
// chunks in index order.
type Store interface {
	Append(clipID string, index int, data []byte) error
	ReadAll(clipID string) ([]byte, error)
	Delete(clipID string) error
}

const chunkExt = ".chunk"

// FS is the filesystem chunk store. Each clip owns a directory under root
// holding zero-padded chunk files, so lexical order is index order:
//
//	<root>/<clipID>/000000.chunk
//	<root>/<clipID>/000001.chunk
type FS struct {
	root string
}

// NewFS creates the root directory if needed and returns the store.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("chunk store root: %w", err)
	}
	return &FS{root: root}, nil
}

// Append writes one chunk. Re-writing an existing index overwrites it.
func (s *FS) Append(clipID string, index int, data []byte) error {
	if index < 0 {
		return fmt.Errorf("chunk index %d for clip %s is negative", index, clipID)
	}
	dir := filepath.Join(s.root, clipID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, chunkName(index)), data, 0o644)
}

// ReadAll concatenates every chunk of the clip in index order. Missing
// indices are simply absent from the result; a clip with no chunks yields an
// empty slice, not an error.
func (s *FS) ReadAll(clipID string) ([]byte, error) {
	dir := filepath.Join(s.root, clipID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), chunkExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []byte
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read chunk %s/%s: %w", clipID, name, err)
		}
		out = append(out, data...)
	}
	return out, nil
}

// Delete removes the clip's chunk namespace. Deleting a clip that was never
// written is a no-op.
func (s *FS) Delete(clipID string) error {
	return os.RemoveAll(filepath.Join(s.root, clipID))
}

// Count returns the number of chunks currently stored for the clip.
func (s *FS) Count(clipID string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, clipID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), chunkExt) {
			n++
		}
	}
	return n, nil
}

func chunkName(index int) string {
	return fmt.Sprintf("%06d%s", index, chunkExt)
}
