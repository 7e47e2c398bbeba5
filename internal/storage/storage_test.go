package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func testStoreRoundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.Put(ctx, "documents/a.json", []byte(`{"hello":"world"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ok, err := s.Exists(ctx, "documents/a.json")
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
	got, err := s.Get(ctx, "documents/a.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"hello":"world"}` {
		t.Errorf("got %q", got)
	}

	paths, err := s.List(ctx, "documents/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(paths) != 1 || paths[0] != "documents/a.json" {
		t.Errorf("List returned %v", paths)
	}

	if err := s.Rename(ctx, "documents/a.json", "documents/b.json"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := s.Get(ctx, "documents/a.json"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after rename, got %v", err)
	}
	if _, err := s.Get(ctx, "documents/b.json"); err != nil {
		t.Errorf("Get after rename: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreRoundTrip(t, NewMemory())
}

func TestFSStore(t *testing.T) {
	fs, err := NewFS(filepath.Join(t.TempDir(), "jacs-data"))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	testStoreRoundTrip(t, fs)
}

func TestMemoryGetMissingReturnsNotFound(t *testing.T) {
	m := NewMemory()
	if _, err := m.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
