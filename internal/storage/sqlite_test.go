package storage

import (
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetDocument(ProfileDocument)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument on empty store: err = %v, want ErrNotFound", err)
	}
}

func TestPutDocument_ReplacesWholeBody(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutDocument(ConversationsDocument, []byte(`[{"user":"a"}]`)); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	if err := s.PutDocument(ConversationsDocument, []byte(`[]`)); err != nil {
		t.Fatalf("PutDocument (replace): %v", err)
	}

	got, err := s.GetDocument(ConversationsDocument)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if string(got) != `[]` {
		t.Errorf("body = %q, want %q", got, `[]`)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count); err != nil {
		t.Fatalf("counting documents: %v", err)
	}
	if count != 1 {
		t.Errorf("document rows = %d, want 1", count)
	}
}

func TestDeleteDocument_Idempotent(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutDocument(ProfileDocument, []byte(`{}`)); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	if err := s.DeleteDocument(ProfileDocument); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if err := s.DeleteDocument(ProfileDocument); err != nil {
		t.Fatalf("second DeleteDocument: %v", err)
	}
	if _, err := s.GetDocument(ProfileDocument); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument after delete: err = %v, want ErrNotFound", err)
	}
}

func TestDocumentsPersistAcrossOpen(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.PutDocument(ProfileDocument, []byte(`{"name":"Ada"}`)); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetDocument(ProfileDocument)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if string(got) != `{"name":"Ada"}` {
		t.Errorf("body = %q, want %q", got, `{"name":"Ada"}`)
	}
}
