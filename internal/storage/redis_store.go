// Package storage holds the snapshot store adapters behind session.Store.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runtime/internal/config"
	"github.com/stemsi/exstem-runtime/internal/model"
)

// DefaultSnapshotTTL bounds how long an idle snapshot stays in Redis. The archive keeps it
// after that and Get brings it back.
const DefaultSnapshotTTL = 24 * time.Hour

// Tombstone marks a removed key in Redis until the archive delete has landed. Get never
// falls back to the archive for a tombstoned key.
const Tombstone = "__deleted__"

// Archive is the durable fallback read by RedisStore on a cache miss.
type Archive interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// RedisStore keeps snapshots in Redis and queues every write for the Postgres archive.
type RedisStore struct {
	rdb     *redis.Client
	archive Archive
	ttl     time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewRedisStore creates a RedisStore. archive may be nil to disable the fallback.
func NewRedisStore(rdb *redis.Client, archive Archive, ttl time.Duration, log zerolog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisStore{
		rdb:     rdb,
		archive: archive,
		ttl:     ttl,
		now:     time.Now,
		log:     log.With().Str("component", "redis_store").Logger(),
	}
}

// Get reads key from Redis, then from the archive. An archive hit is written back to Redis
// when Redis answered with a plain miss.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		if val == Tombstone {
			return "", false, nil
		}
		return val, true, nil
	}
	miss := errors.Is(err, redis.Nil)
	if !miss {
		s.log.Warn().Err(err).Str("key", key).Msg("Redis read failed, falling back to archive")
	}
	if s.archive == nil {
		if miss {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get: %w", err)
	}

	payload, ok, aerr := s.archive.Get(ctx, key)
	if aerr != nil {
		return "", false, fmt.Errorf("archive get: %w", aerr)
	}
	if !ok {
		return "", false, nil
	}

	if !miss {
		return payload, true, nil
	}

	// Self-heal: put the snapshot back in Redis unless another write got there first.
	set, err := s.rdb.SetNX(ctx, key, payload, s.ttl).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to re-cache archived snapshot")
		return payload, true, nil
	}
	if !set {
		cur, err := s.rdb.Get(ctx, key).Result()
		if err != nil {
			return "", false, fmt.Errorf("redis get: %w", err)
		}
		if cur == Tombstone {
			return "", false, nil
		}
		return cur, true, nil
	}
	s.log.Info().Str("key", key).Msg("Snapshot restored from archive")
	return payload, true, nil
}

// Set overwrites key and queues the archive upsert in the same transaction.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	rec, err := s.record(model.SnapshotOpUpsert, key, value)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, value, s.ttl)
		pipe.RPush(ctx, config.WorkerKey.PersistSnapshotsQueue, rec)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Remove replaces key with a Tombstone and queues the archive delete.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	rec, err := s.record(model.SnapshotOpDelete, key, "")
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, Tombstone, s.ttl)
		pipe.RPush(ctx, config.WorkerKey.PersistSnapshotsQueue, rec)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) record(op model.SnapshotOp, key, payload string) ([]byte, error) {
	raw, err := json.Marshal(model.SnapshotRecord{Op: op, Key: key, Payload: payload, At: s.now()})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot record: %w", err)
	}
	return raw, nil
}
