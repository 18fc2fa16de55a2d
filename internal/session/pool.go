package session

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runtime/internal/model"
	"golang.org/x/sync/errgroup"
)

// ExerciseFetcher resolves an exercise reference to its full step/action detail.
type ExerciseFetcher interface {
	FetchExercise(ctx context.Context, exerciseID string) (*model.Exercise, error)
}

// Pool is the materialized, ordered item list of a session.
type Pool struct {
	Items []model.TestItem
	// Answers holds the seeded answers of ordering questions (their shuffled option order).
	Answers map[string]model.AnswerValue
	// Dropped counts exercises left out because their detail could not be fetched.
	Dropped int
}

// PoolBuilder samples and orders the items of a new session.
type PoolBuilder struct {
	fetcher     ExerciseFetcher
	concurrency int
	log         zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPoolBuilder creates a PoolBuilder. A nil rng uses a randomly seeded source.
func NewPoolBuilder(fetcher ExerciseFetcher, rng *rand.Rand, concurrency int, log zerolog.Logger) *PoolBuilder {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if concurrency < 1 {
		concurrency = 4
	}
	return &PoolBuilder{
		fetcher:     fetcher,
		concurrency: concurrency,
		log:         log.With().Str("component", "pool_builder").Logger(),
		rng:         rng,
	}
}

// Build selects the session's items for mode: uniform samples of questions and exercises
// without replacement, exercises resolved concurrently, everything interleaved by a shuffle and
// every ordering question's options shuffled on their own.
func (b *PoolBuilder) Build(ctx context.Context, exam *model.ExamConfig, mode model.Mode) (*Pool, error) {
	questions, refs := candidates(exam, mode)
	targets := exam.Targets(mode)

	b.mu.Lock()
	questions = sample(b.rng, questions, targets.QuestionCount)
	refs = sample(b.rng, refs, targets.ExerciseCount)
	b.mu.Unlock()

	exercises, dropped := b.resolve(ctx, refs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := make([]model.TestItem, 0, len(questions)+len(exercises))
	items = append(items, questions...)
	items = append(items, exercises...)

	pool := &Pool{Answers: make(map[string]model.AnswerValue), Dropped: dropped}

	b.mu.Lock()
	b.rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	for i := range items {
		q := items[i].Question
		if q == nil || q.QuestionType != model.QuestionTypeOrdering {
			continue
		}
		shuffled := *q
		shuffled.Options = shuffleOptions(b.rng, q.Options)
		items[i].Question = &shuffled
		pool.Answers[items[i].ID] = model.ListAnswer(shuffled.OptionIDs())
	}
	b.mu.Unlock()

	pool.Items = items

	b.log.Debug().
		Str("exam_id", exam.ID).
		Str("mode", string(mode)).
		Int("items", len(items)).
		Int("dropped_exercises", dropped).
		Msg("Pool built")
	return pool, nil
}

type exerciseCandidate struct {
	ref      model.ExerciseRef
	category string
	topic    string
}

func candidates(exam *model.ExamConfig, mode model.Mode) ([]model.TestItem, []exerciseCandidate) {
	var questions []model.TestItem
	var refs []exerciseCandidate

	for _, cat := range exam.Categories {
		for _, topic := range cat.Topics {
			for i := range topic.Questions {
				q := topic.Questions[i]
				if q.Mode != mode {
					continue
				}
				questions = append(questions, model.TestItem{
					Kind:         model.ItemKindQuestion,
					ID:           q.ID,
					CategoryName: cat.Name,
					TopicName:    topic.Name,
					Mode:         q.Mode,
					Question:     &q,
				})
			}
			for _, ref := range topic.Exercises {
				if ref.Mode != mode {
					continue
				}
				refs = append(refs, exerciseCandidate{ref: ref, category: cat.Name, topic: topic.Name})
			}
		}
	}
	return questions, refs
}

// sample returns min(k, len(in)) elements chosen uniformly without replacement, using a
// partial Fisher–Yates pass over a copy of in.
func sample[T any](rng *rand.Rand, in []T, k int) []T {
	if k <= 0 || len(in) == 0 {
		return nil
	}
	if k > len(in) {
		k = len(in)
	}
	out := append([]T(nil), in...)
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(out)-i)
		out[i], out[j] = out[j], out[i]
	}
	return out[:k]
}

func shuffleOptions(rng *rand.Rand, in []model.Option) []model.Option {
	out := append([]model.Option(nil), in...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if len(out) > 1 && sameOrder(in, out) {
		out[0], out[1] = out[1], out[0]
	}
	return out
}

func sameOrder(a, b []model.Option) bool {
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

// resolve fetches every selected exercise concurrently. A failed fetch drops the exercise.
func (b *PoolBuilder) resolve(ctx context.Context, refs []exerciseCandidate) ([]model.TestItem, int) {
	if len(refs) == 0 {
		return nil, 0
	}

	fetched := make([]*model.Exercise, len(refs))

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, c := range refs {
		g.Go(func() error {
			ex, err := b.fetcher.FetchExercise(ctx, c.ref.ID)
			if err != nil {
				b.log.Warn().Err(err).Str("exercise_id", c.ref.ID).Msg("Exercise fetch failed, dropping from pool")
				return nil
			}
			if ex == nil || len(ex.Steps) == 0 {
				b.log.Warn().Str("exercise_id", c.ref.ID).Msg("Exercise has no steps, dropping from pool")
				return nil
			}
			fetched[i] = ex
			return nil
		})
	}
	_ = g.Wait()

	items := make([]model.TestItem, 0, len(refs))
	for i, ex := range fetched {
		if ex == nil {
			continue
		}
		if ex.ID == "" {
			ex.ID = refs[i].ref.ID
		}
		if ex.Mode == "" {
			ex.Mode = refs[i].ref.Mode
		}
		items = append(items, model.TestItem{
			Kind:         model.ItemKindExercise,
			ID:           ex.ID,
			CategoryName: refs[i].category,
			TopicName:    refs[i].topic,
			Mode:         refs[i].ref.Mode,
			Exercise:     ex,
		})
	}
	return items, len(refs) - len(items)
}
