package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Layout resolves the paths inside one session directory:
//
//	<root>/<sessionID>/
//	    session.json      manifest
//	    chunks/<clipID>/  in-flight recording data
//	    assets/           finalized clip files
//	    exports/          rendered outputs
type Layout struct {
	Dir string
}

// SessionLayout points at the directory for the given session ID. Nothing is
// created until Ensure runs.
func SessionLayout(root, sessionID string) Layout {
	return Layout{Dir: filepath.Join(root, sessionID)}
}

// Ensure creates the session directory tree.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Dir, l.ChunkRoot(), l.AssetsDir(), l.ExportsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("session layout: %w", err)
		}
	}
	return nil
}

func (l Layout) ManifestPath() string {
	return filepath.Join(l.Dir, "session.json")
}

func (l Layout) ChunkRoot() string {
	return filepath.Join(l.Dir, "chunks")
}

func (l Layout) AssetsDir() string {
	return filepath.Join(l.Dir, "assets")
}

func (l Layout) ExportsDir() string {
	return filepath.Join(l.Dir, "exports")
}

// AssetPath is where a finalized clip lands, named by clip ID so concurrent
// recorders can never collide.
func (l Layout) AssetPath(clipID, container string) string {
	return filepath.Join(l.AssetsDir(), clipID+"."+container)
}

// ListSessionDirs finds every session under the storage root, identified by
// the presence of a manifest. Returned IDs are sorted for stable output. A
// missing root means no sessions, not an error.
func ListSessionDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		manifest := filepath.Join(root, e.Name(), "session.json")
		if _, err := os.Stat(manifest); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
