package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "test.db")
	store, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.EnsureMigrationsTable(ctx); err != nil {
		t.Fatalf("EnsureMigrationsTable: %v", err)
	}
	migrator := NewMigrator(store)
	if err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return store
}

func futureTime() time.Time { return time.Now().Add(5 * time.Minute) }
func pastTime() time.Time   { return time.Now().Add(-5 * time.Minute) }

func TestGetCacheEntryMissReturnsNilNotError(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetCacheEntry(context.Background(), "nobody|none")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected a nil miss, got %+v", got)
	}
}

func TestGetCacheEntryTreatsExpiredRowAsMiss(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &CacheEntry{Key: "bob|ops", RolesJSON: `[]`, ExpiresAt: pastTime()}
	if err := store.PutCacheEntry(ctx, entry); err != nil {
		t.Fatalf("PutCacheEntry: %v", err)
	}

	got, err := store.GetCacheEntry(ctx, "bob|ops")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected an expired row to read as a miss, got %+v", got)
	}
}

func TestPutCacheEntryUpdatesOnConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key := "carol|finance"
	if err := store.PutCacheEntry(ctx, &CacheEntry{Key: key, RolesJSON: `[{"ID":"old"}]`, ExpiresAt: futureTime()}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutCacheEntry(ctx, &CacheEntry{Key: key, RolesJSON: `[{"ID":"new"}]`, ExpiresAt: futureTime()}); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetCacheEntry(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if got.RolesJSON != `[{"ID":"new"}]` {
		t.Errorf("expected the second write to win, got %q", got.RolesJSON)
	}
}

func TestEvictExpiredRemovesOnlyStaleRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.PutCacheEntry(ctx, &CacheEntry{Key: "stale", RolesJSON: `[]`, ExpiresAt: pastTime()})
	store.PutCacheEntry(ctx, &CacheEntry{Key: "fresh", RolesJSON: `[]`, ExpiresAt: futureTime()})

	n, err := store.EvictExpired(ctx)
	if err != nil {
		t.Fatalf("EvictExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected to evict exactly one row, evicted %d", n)
	}

	if got, _ := store.GetCacheEntry(ctx, "fresh"); got == nil {
		t.Error("expected the fresh row to survive eviction")
	}
}

func TestMigrations(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "test.db")
	store, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.EnsureMigrationsTable(ctx); err != nil {
		t.Fatal(err)
	}

	migrator := NewMigrator(store)

	pending, err := migrator.PendingMigrations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) == 0 {
		t.Fatal("expected pending migrations")
	}

	if err := migrator.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	statuses, err := migrator.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %s not applied", s.Name)
		}
	}

	pending2, err := migrator.PendingMigrations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending2) != 0 {
		t.Errorf("expected 0 pending, got %d", len(pending2))
	}
}
