package progress

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/biolingo/sync-engine/internal/infrastructure/driver"
)

func openTestDB(t *testing.T, path string) driver.ITransactionalDB {
	t.Helper()
	conn, err := driver.NewSQLiteConn(path, &driver.DBConfig{})
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	if err := EnsureSchema(context.Background(), conn); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}
	return conn
}

func TestSQLCompletionCacheRoundTrip(t *testing.T) {
	conn := openTestDB(t, filepath.Join(t.TempDir(), "progress.db"))
	defer conn.Close(context.Background())
	cache := NewSQLCompletionCache(conn)
	ctx := context.Background()

	at := time.Now()
	if err := cache.Write(ctx, "u1", map[string]time.Time{"l1": at, "l2": at}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	completed, err := cache.Read(ctx, "u1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(completed) != 2 {
		t.Errorf("expected 2 completions, got %d", len(completed))
	}
	if _, ok := completed["l1"]; !ok {
		t.Error("expected l1 in cache")
	}
}

func TestSQLCompletionCacheScopedPerUser(t *testing.T) {
	conn := openTestDB(t, filepath.Join(t.TempDir(), "progress.db"))
	defer conn.Close(context.Background())
	cache := NewSQLCompletionCache(conn)
	ctx := context.Background()

	if err := cache.Write(ctx, "u1", map[string]time.Time{"l1": time.Now()}); err != nil {
		t.Fatal(err)
	}

	other, err := cache.Read(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("expected empty set for u2, got %v", other)
	}
}

func TestSQLCompletionCacheGrowOnly(t *testing.T) {
	conn := openTestDB(t, filepath.Join(t.TempDir(), "progress.db"))
	defer conn.Close(context.Background())
	cache := NewSQLCompletionCache(conn)
	ctx := context.Background()

	first := time.Unix(0, 1000)
	if err := cache.Write(ctx, "u1", map[string]time.Time{"l1": first}); err != nil {
		t.Fatal(err)
	}
	// a rewrite must not move the original timestamp
	if err := cache.Write(ctx, "u1", map[string]time.Time{"l1": time.Unix(0, 2000)}); err != nil {
		t.Fatal(err)
	}

	completed, err := cache.Read(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got := completed["l1"]; !got.Equal(first) {
		t.Errorf("expected original timestamp %v, got %v", first, got)
	}
}

func TestSQLStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.db")
	ctx := context.Background()

	conn := openTestDB(t, path)
	cache := NewSQLCompletionCache(conn)
	queue := NewSQLSyncQueue(conn)
	if err := cache.Write(ctx, "u1", map[string]time.Time{"l1": time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := queue.Enqueue(ctx, "u1", "l1", time.Now()); err != nil {
		t.Fatal(err)
	}
	conn.Close(ctx)

	conn = openTestDB(t, path)
	defer conn.Close(ctx)
	cache = NewSQLCompletionCache(conn)
	queue = NewSQLSyncQueue(conn)

	completed, err := cache.Read(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := completed["l1"]; !ok {
		t.Error("completion lost across reopen")
	}
	depth, err := queue.Depth(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if depth != 1 {
		t.Errorf("queue entry lost across reopen, depth %d", depth)
	}
}

func TestSQLSyncQueueFIFOAndDedup(t *testing.T) {
	conn := openTestDB(t, filepath.Join(t.TempDir(), "progress.db"))
	defer conn.Close(context.Background())
	queue := NewSQLSyncQueue(conn)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"l3", "l1", "l2"} {
		if err := queue.Enqueue(ctx, "u1", id, base.Add(time.Duration(i)*time.Millisecond)); err != nil {
			t.Fatal(err)
		}
	}
	// duplicate enqueue is a no-op, the original position is kept
	if err := queue.Enqueue(ctx, "u1", "l3", base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	entries, err := queue.PeekAll(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].LessonID != "l3" || entries[1].LessonID != "l1" || entries[2].LessonID != "l2" {
		t.Errorf("expected enqueue order l3,l1,l2, got %v", entries)
	}
}

func TestSQLSyncQueueRemoveAndAttempts(t *testing.T) {
	conn := openTestDB(t, filepath.Join(t.TempDir(), "progress.db"))
	defer conn.Close(context.Background())
	queue := NewSQLSyncQueue(conn)
	ctx := context.Background()

	if err := queue.Enqueue(ctx, "u1", "l1", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := queue.MarkAttempt(ctx, "u1", "l1"); err != nil {
		t.Fatal(err)
	}
	if err := queue.MarkAttempt(ctx, "u1", "l1"); err != nil {
		t.Fatal(err)
	}

	entries, err := queue.PeekAll(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Attempts != 2 {
		t.Errorf("expected 2 attempts, got %+v", entries)
	}

	if err := queue.Remove(ctx, "u1", "l1"); err != nil {
		t.Fatal(err)
	}
	depth, err := queue.Depth(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if depth != 0 {
		t.Errorf("expected empty queue, depth %d", depth)
	}
}
