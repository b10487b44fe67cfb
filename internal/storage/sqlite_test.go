package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := OpenSQLite(filepath.Join(t.TempDir(), "state", "moonolog.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if _, found, err := store.Load(ctx, "moonolog-storage"); err != nil || found {
		t.Fatalf("expected empty database, found=%v err=%v", found, err)
	}

	if err := store.Save(ctx, "moonolog-storage", []byte(`{"state":{}}`)); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	value, found, err := store.Load(ctx, "moonolog-storage")
	if err != nil || !found {
		t.Fatalf("load failed: found=%v err=%v", found, err)
	}
	if string(value) != `{"state":{}}` {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestSQLiteSaveOverwrites(t *testing.T) {
	t.Parallel()

	store, err := OpenSQLite(filepath.Join(t.TempDir(), "moonolog.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "k", []byte("first")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Save(ctx, "k", []byte("second")); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	value, found, err := store.Load(ctx, "k")
	if err != nil || !found {
		t.Fatalf("load failed: found=%v err=%v", found, err)
	}
	if string(value) != "second" {
		t.Fatalf("expected overwrite, got %s", value)
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "moonolog.db")
	ctx := context.Background()

	first, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := first.Save(ctx, "k", []byte("persisted")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	second, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	value, found, err := second.Load(ctx, "k")
	if err != nil || !found {
		t.Fatalf("load after reopen failed: found=%v err=%v", found, err)
	}
	if string(value) != "persisted" {
		t.Fatalf("unexpected value after reopen: %s", value)
	}
}

func TestUnavailableStorage(t *testing.T) {
	t.Parallel()

	var store Unavailable
	ctx := context.Background()

	if err := store.Save(ctx, "k", []byte("dropped")); err != nil {
		t.Fatalf("save should be discarded silently: %v", err)
	}
	if _, found, err := store.Load(ctx, "k"); err != nil || found {
		t.Fatalf("unavailable storage must load nothing, found=%v err=%v", found, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}
