package store

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestFS_AppendReadAllOrdering(t *testing.T) {
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	// Deliver out of order; ReadAll must still concatenate by index.
	if err := s.Append("clip-a", 2, []byte("cc")); err != nil {
		t.Fatalf("Append(2): %v", err)
	}
	if err := s.Append("clip-a", 0, []byte("aa")); err != nil {
		t.Fatalf("Append(0): %v", err)
	}
	if err := s.Append("clip-a", 1, []byte("bb")); err != nil {
		t.Fatalf("Append(1): %v", err)
	}

	got, err := s.ReadAll("clip-a")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if want := []byte("aabbcc"); !bytes.Equal(got, want) {
		t.Errorf("ReadAll: got %q, want %q", got, want)
	}

	n, err := s.Count("clip-a")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}
}

func TestFS_AppendIdempotentByIndex(t *testing.T) {
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	if err := s.Append("clip-a", 0, []byte("first")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append("clip-a", 0, []byte("retry")); err != nil {
		t.Fatalf("Append overwrite: %v", err)
	}

	got, err := s.ReadAll("clip-a")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "retry" {
		t.Errorf("ReadAll after overwrite: got %q, want %q", got, "retry")
	}
}

func TestFS_AppendRejectsNegativeIndex(t *testing.T) {
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if err := s.Append("clip-a", -1, []byte("x")); err == nil {
		t.Error("Append(-1): expected error, got nil")
	}
}

func TestFS_ReadAllUnknownClip(t *testing.T) {
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	got, err := s.ReadAll("never-written")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadAll: got %d bytes, want 0", len(got))
	}
}

func TestFS_Delete(t *testing.T) {
	root := t.TempDir()
	s, err := NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if err := s.Append("clip-a", 0, []byte("data")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Delete("clip-a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "clip-a")); !os.IsNotExist(err) {
		t.Errorf("clip dir still present after Delete: err=%v", err)
	}
	// Deleting again is a no-op.
	if err := s.Delete("clip-a"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestLayout_Paths(t *testing.T) {
	l := SessionLayout("/data", "sess-1")

	if got, want := l.ManifestPath(), filepath.Join("/data", "sess-1", "session.json"); got != want {
		t.Errorf("ManifestPath: got %q, want %q", got, want)
	}
	if got, want := l.AssetPath("clip-a", "mkv"), filepath.Join("/data", "sess-1", "assets", "clip-a.mkv"); got != want {
		t.Errorf("AssetPath: got %q, want %q", got, want)
	}
}

func TestLayout_Ensure(t *testing.T) {
	root := t.TempDir()
	l := SessionLayout(root, "sess-1")
	if err := l.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	for _, dir := range []string{l.ChunkRoot(), l.AssetsDir(), l.ExportsDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("missing dir %s: %v", dir, err)
		}
	}
}

func TestListSessionDirs(t *testing.T) {
	root := t.TempDir()

	// Two real sessions, one stray dir without a manifest, one stray file.
	for _, id := range []string{"bbb", "aaa"} {
		l := SessionLayout(root, id)
		if err := l.Ensure(); err != nil {
			t.Fatalf("Ensure(%s): %v", id, err)
		}
		if err := os.WriteFile(l.ManifestPath(), []byte("{}"), 0o644); err != nil {
			t.Fatalf("write manifest: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, "not-a-session"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := ListSessionDirs(root)
	if err != nil {
		t.Fatalf("ListSessionDirs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "aaa" || ids[1] != "bbb" {
		t.Errorf("ListSessionDirs: got %v, want [aaa bbb]", ids)
	}
}

func TestListSessionDirs_MissingRoot(t *testing.T) {
	ids, err := ListSessionDirs(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("ListSessionDirs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ListSessionDirs: got %v, want empty", ids)
	}
}
