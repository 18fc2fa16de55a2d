package storage

import (
	"context"

	"github.com/stemsi/exstem-runtime/internal/config"
	"github.com/stemsi/exstem-runtime/internal/session"
)

// Scoped namespaces every key of an underlying store to one candidate.
type Scoped struct {
	inner  session.Store
	prefix string
}

// ForCandidate returns a view of store holding only candidateID's snapshots.
func ForCandidate(store session.Store, candidateID string) *Scoped {
	return &Scoped{inner: store, prefix: config.CacheKey.CandidateScope(candidateID)}
}

func (s *Scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *Scoped) Set(ctx context.Context, key, value string) error {
	return s.inner.Set(ctx, s.prefix+key, value)
}

func (s *Scoped) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, s.prefix+key)
}
