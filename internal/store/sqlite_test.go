package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "session/e1/form-1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := s.Get(ctx, "session/e1/form-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected key to be present")
	}
	if string(got) != `{"a":1}` {
		t.Errorf("expected stored value, got %q", got)
	}
}

func TestGetAbsent(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Get(context.Background(), "session/nobody/none")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Error("expected absent key")
	}
}

func TestSetOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Set(ctx, "k/a/b", []byte("v1"))
	s.Set(ctx, "k/a/b", []byte("v2"))

	got, _, _ := s.Get(ctx, "k/a/b")
	if string(got) != "v2" {
		t.Errorf("expected 'v2', got %q", got)
	}
	st, _ := s.Stats(ctx)
	if st.Entries != 1 {
		t.Errorf("expected 1 entry after overwrite, got %d", st.Entries)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Set(ctx, "k/a/b", []byte("v"))
	if err := s.Remove(ctx, "k/a/b"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k/a/b"); ok {
		t.Error("expected key removed")
	}
	if err := s.Remove(ctx, "k/a/b"); err != nil {
		t.Errorf("removing an absent key should not fail: %v", err)
	}
}

func TestListByPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Set(ctx, SessionKey("e1", "form-1"), []byte("{}"))
	s.Set(ctx, SessionKey("e2", "form-1"), []byte("{}"))
	s.Set(ctx, SubmittedKey("e1", "form-1"), []byte("true"))

	all, _ := s.List(ctx, ListParams{})
	if len(all) != 3 {
		t.Errorf("expected 3, got %d", len(all))
	}

	sessions, _ := s.List(ctx, ListParams{Prefix: NamespaceSession + "/"})
	if len(sessions) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(sessions))
	}

	limited, _ := s.List(ctx, ListParams{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Set(ctx, SessionKey("e1", "form-1"), []byte("{}"))
	s.Set(ctx, SessionKey("e1", "form-2"), []byte("{}"))
	s.Set(ctx, SubmittedKey("e1", "form-1"), []byte("true"))

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Entries != 3 {
		t.Errorf("expected 3 entries, got %d", st.Entries)
	}
	if len(st.Namespaces) != 2 || st.Namespaces[0].Namespace != NamespaceSession || st.Namespaces[0].Count != 2 {
		t.Errorf("unexpected namespace stats: %+v", st.Namespaces)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Set(ctx, "session/e1/form-1", []byte("kept"))
	s.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s2.Close()

	got, ok, _ := s2.Get(ctx, "session/e1/form-1")
	if !ok || string(got) != "kept" {
		t.Errorf("expected value to survive reopen, got %q (present=%v)", got, ok)
	}
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}
