package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-runtime/internal/model"
)

// SnapshotRepository is the Postgres archive of session snapshots.
//
// Deletes leave a tombstone row (payload NULL, deleted_at set) carrying the time of the
// delete. Every write only applies over a row with an older saved_at, so an upsert that
// reaches the archive after a newer delete is rejected whatever order the queue delivers in.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// upsertGuard lets a snapshot replace strictly older rows, or a live row of the same instant.
const upsertGuard = `
	WHERE session_snapshots.saved_at < EXCLUDED.saved_at
	   OR (session_snapshots.saved_at = EXCLUDED.saved_at AND session_snapshots.deleted_at IS NULL)`

// Get returns the archived payload of key. Tombstones read as absent.
func (r *SnapshotRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var payload string
	err := r.pool.QueryRow(ctx,
		`SELECT payload::text FROM session_snapshots WHERE key = $1 AND deleted_at IS NULL`, key,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return payload, true, nil
}

// Upsert writes one snapshot. An older write never replaces a newer snapshot or delete.
func (r *SnapshotRepository) Upsert(ctx context.Context, key, payload string, savedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_snapshots (key, payload, saved_at)
		 VALUES ($1, $2::jsonb, $3)
		 ON CONFLICT (key) DO UPDATE
		 SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at, deleted_at = NULL, updated_at = NOW()`+
			upsertGuard,
		key, payload, savedAt,
	)
	return err
}

// Delete tombstones one snapshot as of deletedAt.
func (r *SnapshotRepository) Delete(ctx context.Context, key string, deletedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_snapshots (key, payload, saved_at, deleted_at)
		 VALUES ($1, NULL, $2, $2)
		 ON CONFLICT (key) DO UPDATE
		 SET payload = NULL, saved_at = EXCLUDED.saved_at, deleted_at = EXCLUDED.deleted_at, updated_at = NOW()
		 WHERE session_snapshots.saved_at <= EXCLUDED.saved_at`,
		key, deletedAt,
	)
	return err
}

// BulkUpsert writes a batch of upserts in one statement. Keys must be unique in the batch.
func (r *SnapshotRepository) BulkUpsert(ctx context.Context, records []model.SnapshotRecord) error {
	if len(records) == 0 {
		return nil
	}
	keys, payloads, savedAt := columns(records)

	query := `
		INSERT INTO session_snapshots (key, payload, saved_at)
		SELECT u.key, u.payload::jsonb, u.saved_at
		FROM UNNEST(
			$1::text[],
			$2::text[],
			$3::timestamptz[]
		) AS u (key, payload, saved_at)
		ON CONFLICT (key) DO UPDATE
		SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at, deleted_at = NULL, updated_at = NOW()
	` + upsertGuard
	_, err := r.pool.Exec(ctx, query, keys, payloads, savedAt)
	return err
}

// BulkDelete tombstones a batch of snapshots. Keys must be unique in the batch.
func (r *SnapshotRepository) BulkDelete(ctx context.Context, records []model.SnapshotRecord) error {
	if len(records) == 0 {
		return nil
	}
	keys, _, deletedAt := columns(records)

	query := `
		INSERT INTO session_snapshots (key, payload, saved_at, deleted_at)
		SELECT u.key, NULL, u.deleted_at, u.deleted_at
		FROM UNNEST(
			$1::text[],
			$2::timestamptz[]
		) AS u (key, deleted_at)
		ON CONFLICT (key) DO UPDATE
		SET payload = NULL, saved_at = EXCLUDED.saved_at, deleted_at = EXCLUDED.deleted_at, updated_at = NOW()
		WHERE session_snapshots.saved_at <= EXCLUDED.saved_at
	`
	_, err := r.pool.Exec(ctx, query, keys, deletedAt)
	return err
}

// PurgeTombstones removes tombstones deleted before the cutoff and returns how many went.
func (r *SnapshotRepository) PurgeTombstones(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM session_snapshots WHERE deleted_at IS NOT NULL AND deleted_at < $1`, before,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func columns(records []model.SnapshotRecord) (keys, payloads []string, at []time.Time) {
	keys = make([]string, 0, len(records))
	payloads = make([]string, 0, len(records))
	at = make([]time.Time, 0, len(records))
	for _, rec := range records {
		keys = append(keys, rec.Key)
		payloads = append(payloads, rec.Payload)
		at = append(at, rec.At)
	}
	return keys, payloads, at
}
