package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runtime/internal/config"
	"github.com/stemsi/exstem-runtime/internal/model"
)

const (
	SnapshotBatchSize    = 50
	SnapshotBatchTimeout = 2 * time.Second
	SnapshotPollTimeout  = 1 * time.Second

	// TombstonePurgeInterval is how often archived deletes older than TombstoneRetention
	// are dropped. The retention must outlast any requeued upsert they guard against.
	TombstonePurgeInterval = time.Hour
	TombstoneRetention     = 7 * 24 * time.Hour
)

// SnapshotArchive is the Postgres side of the snapshot archive.
type SnapshotArchive interface {
	BulkUpsert(ctx context.Context, records []model.SnapshotRecord) error
	BulkDelete(ctx context.Context, records []model.SnapshotRecord) error
	Upsert(ctx context.Context, key, payload string, savedAt time.Time) error
	Delete(ctx context.Context, key string, deletedAt time.Time) error
	PurgeTombstones(ctx context.Context, before time.Time) (int64, error)
}

// SnapshotWorker consumes persist_snapshots_queue and mirrors snapshot writes to PostgreSQL.
type SnapshotWorker struct {
	archive SnapshotArchive
	rdb     *redis.Client
	now     func() time.Time
	log     zerolog.Logger
}

// NewSnapshotWorker creates a new SnapshotWorker.
func NewSnapshotWorker(archive SnapshotArchive, rdb *redis.Client, log zerolog.Logger) *SnapshotWorker {
	return &SnapshotWorker{
		archive: archive,
		rdb:     rdb,
		now:     time.Now,
		log:     log.With().Str("component", "snapshot_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *SnapshotWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SnapshotWorker started")

	batch := make([]model.SnapshotRecord, 0, SnapshotBatchSize)
	lastFlush := time.Now()
	lastPurge := time.Now()

	for {
		if time.Since(lastPurge) >= TombstonePurgeInterval {
			w.purge(ctx)
			lastPurge = time.Now()
		}

		if len(batch) > 0 &&
			(len(batch) >= SnapshotBatchSize || time.Since(lastFlush) >= SnapshotBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			w.drain(context.Background())
			w.log.Info().Msg("SnapshotWorker stopped")
			return

		default:
			item, err := w.rdb.BLPop(ctx, SnapshotPollTimeout, config.WorkerKey.PersistSnapshotsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var rec model.SnapshotRecord
			if err := json.Unmarshal([]byte(item[1]), &rec); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}
			batch = append(batch, rec)
		}
	}
}

// Coalesce keeps only the newest operation per key, by record time. Snapshots are
// overwritten wholesale, so older writes of the same key carry no information. A requeued
// record can sit behind newer ones in the queue, which is why position alone is not enough.
func Coalesce(batch []model.SnapshotRecord) (upserts, deletes []model.SnapshotRecord) {
	newest := make(map[string]int, len(batch))
	for i, rec := range batch {
		if j, ok := newest[rec.Key]; ok && rec.At.Before(batch[j].At) {
			continue
		}
		newest[rec.Key] = i
	}
	for i, rec := range batch {
		if newest[rec.Key] != i {
			continue
		}
		switch rec.Op {
		case model.SnapshotOpDelete:
			deletes = append(deletes, rec)
		default:
			upserts = append(upserts, rec)
		}
	}
	return upserts, deletes
}

func (w *SnapshotWorker) flushSafe(ctx context.Context, batch []model.SnapshotRecord) {
	if len(batch) == 0 {
		return
	}
	upserts, deletes := Coalesce(batch)

	if err := w.archive.BulkUpsert(ctx, upserts); err != nil {
		w.log.Warn().Err(err).Int("count", len(upserts)).Msg("bulk snapshot upsert failed, using fallback")
		for _, rec := range upserts {
			if err := w.archive.Upsert(ctx, rec.Key, rec.Payload, rec.At); err != nil {
				w.log.Error().Err(err).Str("key", rec.Key).Msg("Upsert failed, requeueing")
				w.requeue(ctx, rec)
			}
		}
	}

	if err := w.archive.BulkDelete(ctx, deletes); err != nil {
		w.log.Warn().Err(err).Int("count", len(deletes)).Msg("bulk snapshot delete failed, using fallback")
		for _, rec := range deletes {
			if err := w.archive.Delete(ctx, rec.Key, rec.At); err != nil {
				w.log.Error().Err(err).Str("key", rec.Key).Msg("Delete failed, requeueing")
				w.requeue(ctx, rec)
			}
		}
	}

	w.log.Debug().
		Int("received", len(batch)).
		Int("upserts", len(upserts)).
		Int("deletes", len(deletes)).
		Msg("Snapshot batch archived")
}

// requeue puts a failed record back at the tail of the queue. It keeps its original time, so
// the archive still orders it correctly against writes that overtook it.
func (w *SnapshotWorker) requeue(ctx context.Context, rec model.SnapshotRecord) {
	raw, _ := json.Marshal(rec)
	if err := w.rdb.RPush(ctx, config.WorkerKey.PersistSnapshotsQueue, raw).Err(); err != nil {
		w.log.Error().Err(err).Str("key", rec.Key).Msg("Requeue failed, archive write lost")
	}
}

// drain archives everything queued when it starts, in batches. Records requeued by a failed
// flush stay in the queue for the next start.
func (w *SnapshotWorker) drain(ctx context.Context) {
	pending, err := w.rdb.LLen(ctx, config.WorkerKey.PersistSnapshotsQueue).Result()
	if err != nil {
		w.log.Error().Err(err).Msg("Drain LLen error")
		return
	}

	drained := 0
	for pending > 0 {
		batch := make([]model.SnapshotRecord, 0, SnapshotBatchSize)
		for pending > 0 && len(batch) < SnapshotBatchSize {
			raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistSnapshotsQueue).Result()
			if err != nil {
				pending = 0
				break
			}
			pending--
			var rec model.SnapshotRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				w.log.Error().Err(err).Msg("Drain unmarshal error")
				continue
			}
			batch = append(batch, rec)
		}
		w.flushSafe(ctx, batch)
		drained += len(batch)
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}

func (w *SnapshotWorker) purge(ctx context.Context) {
	n, err := w.archive.PurgeTombstones(ctx, w.now().Add(-TombstoneRetention))
	if err != nil {
		w.log.Warn().Err(err).Msg("Tombstone purge failed")
		return
	}
	if n > 0 {
		w.log.Info().Int64("count", n).Msg("Purged snapshot tombstones")
	}
}
