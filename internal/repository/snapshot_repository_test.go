package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-runtime/internal/model"
	"github.com/stemsi/exstem-runtime/migrations"
)

// testRepository migrates DATABASE_TEST_URL and returns a repository on it. The test is
// skipped when the variable is unset.
func testRepository(t *testing.T) *SnapshotRepository {
	t.Helper()
	url := os.Getenv("DATABASE_TEST_URL")
	if url == "" {
		t.Skip("DATABASE_TEST_URL not set")
	}

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		t.Fatalf("migration source: %v", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate up: %v", err)
	}
	m.Close()

	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewSnapshotRepository(pool)
}

func TestSnapshotRepositoryDeleteWinsOverOlderUpsert(t *testing.T) {
	r := testRepository(t)
	ctx := context.Background()
	key := "test:" + t.Name() + ":" + time.Now().Format(time.RFC3339Nano)
	t0 := time.Now().UTC().Truncate(time.Microsecond)
	t.Cleanup(func() { r.pool.Exec(context.Background(), `DELETE FROM session_snapshots WHERE key = $1`, key) })

	if err := r.Upsert(ctx, key, `{"v":0}`, t0); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := r.Delete(ctx, key, t0.Add(2*time.Second)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// A requeued write from before the delete arrives late.
	if err := r.Upsert(ctx, key, `{"v":1}`, t0.Add(time.Second)); err != nil {
		t.Fatalf("late Upsert: %v", err)
	}
	if err := r.BulkUpsert(ctx, []model.SnapshotRecord{{Op: model.SnapshotOpUpsert, Key: key, Payload: `{"v":1}`, At: t0.Add(2 * time.Second)}}); err != nil {
		t.Fatalf("late BulkUpsert: %v", err)
	}
	if v, ok, err := r.Get(ctx, key); err != nil || ok {
		t.Fatalf("Get = %q %v %v, want tombstoned", v, ok, err)
	}

	// A new session after the delete is archived normally.
	if err := r.Upsert(ctx, key, `{"v":2}`, t0.Add(3*time.Second)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if v, ok, err := r.Get(ctx, key); err != nil || !ok || v != `{"v": 2}` {
		t.Fatalf("Get = %q %v %v", v, ok, err)
	}

	// Deletes arriving late lose to the newer snapshot.
	if err := r.BulkDelete(ctx, []model.SnapshotRecord{{Op: model.SnapshotOpDelete, Key: key, At: t0.Add(2 * time.Second)}}); err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	if _, ok, _ := r.Get(ctx, key); !ok {
		t.Fatal("stale delete removed a newer snapshot")
	}
}

func TestSnapshotRepositoryPurgeTombstones(t *testing.T) {
	r := testRepository(t)
	ctx := context.Background()
	key := "test:" + t.Name() + ":" + time.Now().Format(time.RFC3339Nano)
	old := time.Now().UTC().Add(-48 * time.Hour)
	t.Cleanup(func() { r.pool.Exec(context.Background(), `DELETE FROM session_snapshots WHERE key = $1`, key) })

	if err := r.Delete(ctx, key, old); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	n, err := r.PurgeTombstones(ctx, old.Add(time.Hour))
	if err != nil || n < 1 {
		t.Fatalf("PurgeTombstones = %d %v", n, err)
	}
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM session_snapshots WHERE key = $1`, key).Scan(&count); err != nil || count != 0 {
		t.Fatalf("rows left = %d %v", count, err)
	}
}
