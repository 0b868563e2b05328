package storage

import (
	"errors"
	"testing"
	"time"
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
	versions, err := openTestStore(t).AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) < 2 {
		t.Fatalf("versions = %v, want at least 2 migrations", versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("versions not ascending: %v", versions)
		}
	}
}

func TestSaveAndGetDocument(t *testing.T) {
	s := openTestStore(t)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	doc := PolicyDocument{ID: "d1", Namespace: "default", Path: "/p/warranty.pdf", ContentHash: "abc", Chunks: 3, IndexedAt: at}
	if err := s.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	got, err := s.GetDocument("default", "/p/warranty.pdf")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.ID != "d1" || got.ContentHash != "abc" || got.Chunks != 3 || !got.IndexedAt.Equal(at) {
		t.Errorf("GetDocument = %+v", got)
	}

	// Re-indexing the same path replaces the row.
	doc.ID, doc.ContentHash, doc.Chunks = "d2", "def", 5
	if err := s.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument (update): %v", err)
	}
	docs, err := s.ListDocuments("default")
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "d2" || docs[0].Chunks != 5 {
		t.Errorf("ListDocuments = %+v", docs)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	_, err := openTestStore(t).GetDocument("default", "missing.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteDocumentRemovesPassages(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveDocument(PolicyDocument{ID: "d1", Namespace: "ns", Path: "a.txt", ContentHash: "h"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DB().Exec(`INSERT INTO policy_passages (id, namespace, document_id, text_chunk, embedding, created_at)
		VALUES ('p1', 'ns', 'd1', 'text', x'00000000', '2024-01-01T00:00:00Z')`); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteDocument("d1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	var n int
	s.DB().QueryRow("SELECT COUNT(*) FROM policy_passages").Scan(&n)
	if n != 0 {
		t.Errorf("passages left = %d, want 0", n)
	}
	if err := s.DeleteDocument("d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestListDocumentsScopedByNamespace(t *testing.T) {
	s := openTestStore(t)
	s.SaveDocument(PolicyDocument{ID: "a", Namespace: "one", Path: "b.txt", ContentHash: "h"})
	s.SaveDocument(PolicyDocument{ID: "b", Namespace: "one", Path: "a.txt", ContentHash: "h"})
	s.SaveDocument(PolicyDocument{ID: "c", Namespace: "two", Path: "c.txt", ContentHash: "h"})

	docs, err := s.ListDocuments("one")
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 2 || docs[0].Path != "a.txt" || docs[1].Path != "b.txt" {
		t.Errorf("ListDocuments = %+v", docs)
	}
}
