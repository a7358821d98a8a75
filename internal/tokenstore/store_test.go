package tokenstore

import (
	"context"
	"os"
	"testing"
)

func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "tokenstore_test_*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	store, err := Open(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to open store: %v", err)
	}
	return store, func() {
		store.Close()
		os.Remove(tmpFile.Name())
	}
}

func TestSaveAndLoadToken(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, ok, err := store.LoadToken(ctx, "host1", "db1"); err != nil || ok {
		t.Fatalf("expected no token yet, got ok=%v err=%v", ok, err)
	}

	if err := store.SaveToken(ctx, "host1", "db1", "tok-abc"); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	token, ok, err := store.LoadToken(ctx, "host1", "db1")
	if err != nil || !ok || token != "tok-abc" {
		t.Fatalf("LoadToken = %q, %v, %v", token, ok, err)
	}

	// Overwrite.
	if err := store.SaveToken(ctx, "host1", "db1", "tok-xyz"); err != nil {
		t.Fatalf("SaveToken overwrite: %v", err)
	}
	token, _, _ = store.LoadToken(ctx, "host1", "db1")
	if token != "tok-xyz" {
		t.Errorf("expected overwritten token, got %q", token)
	}
}

func TestDeleteToken(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	store.SaveToken(ctx, "h", "d", "t")
	if err := store.DeleteToken(ctx, "h", "d"); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if _, ok, _ := store.LoadToken(ctx, "h", "d"); ok {
		t.Error("expected token to be gone after delete")
	}
}

func TestSaveAndLoadSchemaDocument(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SaveSchemaDocument(ctx, "h", "d", 3, []byte(`{"tables":[]}`)); err != nil {
		t.Fatalf("SaveSchemaDocument: %v", err)
	}
	doc, version, ok, err := store.LoadSchemaDocument(ctx, "h", "d")
	if err != nil || !ok || version != 3 || string(doc) != `{"tables":[]}` {
		t.Fatalf("LoadSchemaDocument = %q, %d, %v, %v", doc, version, ok, err)
	}
}

func TestSaveAndLoadBloomFilter(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SaveBloomFilter(ctx, "h", "d", "person", []byte{1, 2, 3}, 1024, 4, 10); err != nil {
		t.Fatalf("SaveBloomFilter: %v", err)
	}
	rec, ok, err := store.LoadBloomFilter(ctx, "h", "d", "person")
	if err != nil || !ok {
		t.Fatalf("LoadBloomFilter ok=%v err=%v", ok, err)
	}
	if rec.NumBits != 1024 || rec.NumHashes != 4 || rec.ItemCount != 10 || len(rec.CompressedData) != 3 {
		t.Errorf("unexpected record: %+v", rec)
	}

	if _, ok, _ := store.LoadBloomFilter(ctx, "h", "d", "nope"); ok {
		t.Error("expected no bloom filter for unknown table")
	}
}
