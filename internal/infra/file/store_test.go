package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "storage.json")

	first := NewStore(path)
	if err := first.Set(ctx, "user", "alice"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := first.Set(ctx, "timeSpent", "42"); err != nil {
		t.Fatalf("set: %v", err)
	}

	second := NewStore(path)
	value, ok, err := second.Get(ctx, "user")
	if err != nil || !ok || value != "alice" {
		t.Fatalf("expected alice from disk, got %q ok=%v err=%v", value, ok, err)
	}

	if err := second.Delete(ctx, "user", "timeSpent"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := first.Exists(ctx, "user"); ok {
		t.Fatalf("expected user removed")
	}
}

func TestStoreMissingFileIsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent.json"))
	if _, ok, err := store.Get(context.Background(), "quizState"); ok || err != nil {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
}

func TestStoreCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "storage.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := NewStore(path)

	if _, _, err := store.Get(ctx, "user"); err == nil {
		t.Fatalf("expected decode error")
	}
	// a write replaces the corrupt file
	if err := store.Set(ctx, "user", "bob"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if value, ok, err := store.Get(ctx, "user"); err != nil || !ok || value != "bob" {
		t.Fatalf("expected bob, got %q ok=%v err=%v", value, ok, err)
	}
}
