package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runtime/internal/config"
	"github.com/stemsi/exstem-runtime/internal/model"
)

// Store is the durable key-value port used for snapshots.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Persister reads and writes session snapshots through a Store.
type Persister struct {
	store Store
	log   zerolog.Logger
}

// NewPersister creates a Persister.
func NewPersister(store Store, log zerolog.Logger) *Persister {
	return &Persister{
		store: store,
		log:   log.With().Str("component", "session_persistence").Logger(),
	}
}

// Load returns the stored snapshot for (examID, mode). Missing, unreadable or malformed
// snapshots all come back as nil: the caller then starts a fresh session.
func (p *Persister) Load(ctx context.Context, examID string, mode model.Mode) *model.SessionSnapshot {
	key := config.CacheKey.ExamSessionKey(examID, string(mode))

	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("Snapshot read failed, treating as absent")
		return nil
	}
	if !ok {
		return nil
	}

	var snap model.SessionSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("Discarding malformed snapshot")
		return nil
	}
	if snap.ExamID != examID || snap.Mode != mode {
		p.log.Warn().
			Str("key", key).
			Str("snapshot_exam_id", snap.ExamID).
			Str("snapshot_mode", string(snap.Mode)).
			Msg("Discarding snapshot for another session")
		return nil
	}
	for i := range snap.SelectedItems {
		it := &snap.SelectedItems[i]
		if !it.IsQuestion() && !it.IsExercise() {
			p.log.Warn().Str("key", key).Str("item_id", it.ID).Msg("Discarding snapshot with malformed item")
			return nil
		}
		if v, ok := snap.Answers[it.ID]; ok && it.IsQuestion() {
			snap.Answers[it.ID] = v.ForType(it.Question.QuestionType)
		}
	}
	return &snap
}

// Save overwrites the snapshot of the session.
func (p *Persister) Save(ctx context.Context, snap *model.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := config.CacheKey.ExamSessionKey(snap.ExamID, string(snap.Mode))
	if err := p.store.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Clear deletes the snapshot of (examID, mode).
func (p *Persister) Clear(ctx context.Context, examID string, mode model.Mode) error {
	key := config.CacheKey.ExamSessionKey(examID, string(mode))
	if err := p.store.Remove(ctx, key); err != nil {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}
