package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type storeFactory func(t *testing.T) Store

func storeBackends() map[string]storeFactory {
	return map[string]storeFactory{
		"fs":     newTestStore,
		"sqlite": newTestSQLiteStore,
		"memory": func(t *testing.T) Store { return NewMemoryStore("") },
	}
}

func TestStoreWriteAndRead(t *testing.T) {
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			if err := store.EnsureGroup(ctx, "weather"); err != nil {
				t.Fatalf("ensure group error: %v", err)
			}

			doc := &Document{
				Data:    json.RawMessage(`{"temp":20}`),
				Status:  StatusLast,
				Updated: 100,
				Date:    90,
			}
			if err := store.Write(ctx, "weather", "paris", doc); err != nil {
				t.Fatalf("write error: %v", err)
			}

			got, err := store.Read(ctx, "weather", "paris")
			if err != nil {
				t.Fatalf("read error: %v", err)
			}
			if string(got.Data) != `{"temp":20}` {
				t.Fatalf("data mismatch: %s", string(got.Data))
			}
			if got.Status != StatusLast || got.Updated != 100 || got.Date != 90 {
				t.Fatalf("metadata mismatch: %+v", got)
			}

			exists, err := store.Exists(ctx, "weather", "paris")
			if err != nil || !exists {
				t.Fatalf("expected document to exist, got %v (%v)", exists, err)
			}
		})
	}
}

func TestStoreWriteOverwritesWholeDocument(t *testing.T) {
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			mustEnsureGroup(t, store, "weather")

			first := &Document{Data: json.RawMessage(`{"temp":20,"wind":3}`), Status: StatusLast, Updated: 1, Date: 1}
			second := &Document{Data: json.RawMessage(`{"temp":21}`), Status: StatusOld, Updated: 2, Date: 1}
			if err := store.Write(ctx, "weather", "paris", first); err != nil {
				t.Fatalf("write error: %v", err)
			}
			if err := store.Write(ctx, "weather", "paris", second); err != nil {
				t.Fatalf("write error: %v", err)
			}

			got, err := store.Read(ctx, "weather", "paris")
			if err != nil {
				t.Fatalf("read error: %v", err)
			}
			if string(got.Data) != `{"temp":21}` || got.Status != StatusOld {
				t.Fatalf("expected second document, got %+v", got)
			}
		})
	}
}

func TestStoreReadMissing(t *testing.T) {
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			mustEnsureGroup(t, store, "weather")

			_, err := store.Read(context.Background(), "weather", "missing")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			exists, err := store.Exists(context.Background(), "weather", "missing")
			if err != nil || exists {
				t.Fatalf("expected missing document, got %v (%v)", exists, err)
			}
		})
	}
}

func TestStoreRejectsInvalidNames(t *testing.T) {
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			for _, bad := range []string{"", "..", ".hidden", "a/b", `a\b`} {
				if err := store.EnsureGroup(ctx, bad); !errors.Is(err, ErrInvalidName) {
					t.Fatalf("group %q: expected ErrInvalidName, got %v", bad, err)
				}
				if _, err := store.Read(ctx, "weather", bad); !errors.Is(err, ErrInvalidName) {
					t.Fatalf("key %q: expected ErrInvalidName, got %v", bad, err)
				}
			}
		})
	}
}

func TestStoreLockIsExclusive(t *testing.T) {
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			mustEnsureGroup(t, store, "weather")

			createdAt := time.Unix(1700000000, 0)
			if err := store.CreateLock(ctx, "weather", "paris", createdAt); err != nil {
				t.Fatalf("create lock error: %v", err)
			}
			if err := store.CreateLock(ctx, "weather", "paris", createdAt); !errors.Is(err, ErrLockHeld) {
				t.Fatalf("expected ErrLockHeld, got %v", err)
			}

			got, err := store.ReadLock(ctx, "weather", "paris")
			if err != nil {
				t.Fatalf("read lock error: %v", err)
			}
			if !got.Equal(createdAt) {
				t.Fatalf("lock timestamp mismatch: %v", got)
			}

			if err := store.RemoveLock(ctx, "weather", "paris"); err != nil {
				t.Fatalf("remove lock error: %v", err)
			}
			if err := store.RemoveLock(ctx, "weather", "paris"); err != nil {
				t.Fatalf("removing a missing lock should succeed: %v", err)
			}
			if _, err := store.ReadLock(ctx, "weather", "paris"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after remove, got %v", err)
			}
		})
	}
}

func TestStoreKeepsPairsWithSeparatorsApart(t *testing.T) {
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			mustEnsureGroup(t, store, "a")
			mustEnsureGroup(t, store, "a::")

			doc := &Document{Data: json.RawMessage(`1`), Status: StatusLast, Updated: 1, Date: 1}
			if err := store.Write(ctx, "a", "::b", doc); err != nil {
				t.Fatalf("write error: %v", err)
			}
			if _, err := store.Read(ctx, "a::", "b"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound for a::/b, got %v", err)
			}
			if exists, err := store.Exists(ctx, "a::", "b"); err != nil || exists {
				t.Fatalf("expected a::/b to be absent, got %v (%v)", exists, err)
			}

			if err := store.CreateLock(ctx, "a", "::b", time.Unix(100, 0)); err != nil {
				t.Fatalf("create lock error: %v", err)
			}
			if err := store.CreateLock(ctx, "a::", "b", time.Unix(100, 0)); err != nil {
				t.Fatalf("lock on a::/b must be independent: %v", err)
			}
		})
	}
}

func TestFileStoreLayout(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	ctx := context.Background()
	mustEnsureGroup(t, store, "weather")

	if err := store.Write(ctx, "weather", "paris", &Document{Data: json.RawMessage(`1`), Status: StatusLast}); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if err := store.CreateLock(ctx, "weather", "paris", time.Unix(42, 0)); err != nil {
		t.Fatalf("create lock error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "weather", "paris.json")); err != nil {
		t.Fatalf("expected document file: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(root, "weather", "paris.json.lock"))
	if err != nil {
		t.Fatalf("expected lock file: %v", err)
	}
	if string(raw) != "42" {
		t.Fatalf("lock file should hold epoch seconds, got %q", string(raw))
	}

	entries, err := os.ReadDir(filepath.Join(root, "weather"))
	if err != nil {
		t.Fatalf("read dir error: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".cache-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestFileStoreCorruptLock(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	mustEnsureGroup(t, store, "weather")

	if err := os.WriteFile(filepath.Join(root, "weather", "paris.json.lock"), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write lock error: %v", err)
	}
	if _, err := store.ReadLock(context.Background(), "weather", "paris"); !errors.Is(err, ErrCorruptLock) {
		t.Fatalf("expected ErrCorruptLock, got %v", err)
	}
}

func TestNewStoreRejectsUnusableRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file error: %v", err)
	}

	for _, root := range []string{"", filepath.Join(dir, "missing"), file} {
		if _, err := NewStore(root); !errors.Is(err, ErrUnusableRoot) {
			t.Fatalf("root %q: expected ErrUnusableRoot, got %v", root, err)
		}
	}
}

func TestFileStoreEnsureGroupFailsWhenBlocked(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "weather"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file error: %v", err)
	}
	if err := store.EnsureGroup(context.Background(), "weather"); err == nil {
		t.Fatalf("expected error when group path is a file")
	}
}

func mustEnsureGroup(t *testing.T, store Store, group string) {
	t.Helper()
	if err := store.EnsureGroup(context.Background(), group); err != nil {
		t.Fatalf("ensure group %s: %v", group, err)
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func newTestSQLiteStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
