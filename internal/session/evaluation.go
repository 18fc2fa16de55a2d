package session

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runtime/internal/model"
)

// Evaluator is the remote grading service.
type Evaluator interface {
	Evaluate(ctx context.Context, examID string, req *model.EvaluateRequest) (*model.EvaluateResponse, error)
}

// ResultSaver persists a finished session's result.
type ResultSaver interface {
	SaveResult(ctx context.Context, examID string, req *model.SaveResultRequest) (*model.SaveResultResponse, error)
}

// SubmitInput is everything the pipeline reads from the session.
type SubmitInput struct {
	ExamID            string
	Mode              model.Mode
	Trigger           model.SubmitTrigger
	PassingScore      float64
	ElapsedSeconds    int
	Items             []model.TestItem
	Answers           map[string]model.AnswerValue
	ExerciseResponses map[string]map[string]model.ActionResponse
}

// Pipeline drives submit: remote evaluate, breakdown, save result, clear snapshot.
// It runs at most once; a second Begin while in flight or after completion is rejected.
type Pipeline struct {
	evaluator Evaluator
	saver     ResultSaver
	persister *Persister
	log       zerolog.Logger

	mu    sync.Mutex
	state model.PipelineState
}

// NewPipeline creates an idle pipeline.
func NewPipeline(evaluator Evaluator, saver ResultSaver, persister *Persister, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		evaluator: evaluator,
		saver:     saver,
		persister: persister,
		log:       log.With().Str("component", "evaluation_pipeline").Logger(),
		state:     model.PipelineIdle,
	}
}

// State returns the current pipeline state.
func (p *Pipeline) State() model.PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Begin claims the single submission slot.
func (p *Pipeline) Begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case model.PipelineIdle:
		p.state = model.PipelineSubmitting
		return nil
	case model.PipelineSubmitting:
		return ErrSubmissionInFlight
	default:
		return ErrAlreadySubmitted
	}
}

func (p *Pipeline) finish(state model.PipelineState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

// Run executes the submission claimed by Begin. It never fails: evaluation and save errors
// degrade the result instead, and the snapshot is cleared on every path.
func (p *Pipeline) Run(ctx context.Context, in SubmitInput) *model.SessionResult {
	log := p.log.With().
		Str("exam_id", in.ExamID).
		Str("mode", string(in.Mode)).
		Str("trigger", string(in.Trigger)).
		Logger()

	result := &model.SessionResult{
		ExamID:            in.ExamID,
		Mode:              in.Mode,
		Trigger:           in.Trigger,
		Answers:           in.Answers,
		ExerciseResponses: in.ExerciseResponses,
		ElapsedSeconds:    in.ElapsedSeconds,
	}

	eval, err := p.evaluator.Evaluate(ctx, in.ExamID, &model.EvaluateRequest{
		Answers:           in.Answers,
		ExerciseResponses: in.ExerciseResponses,
		Items:             in.Items,
	})
	if err != nil || eval == nil {
		log.Error().Err(err).Msg("Evaluation failed, handing off raw answers")
		result.Outcome = model.PipelineDegraded
		p.cleanup(ctx, log, in)
		p.finish(model.PipelineDegraded)
		return result
	}

	breakdown := eval.Summary.Breakdown
	if breakdown == nil {
		breakdown = LocalBreakdown(in.Items, append(append([]model.ItemScore{}, eval.Questions...), eval.Exercises...))
	}

	percentage := eval.Summary.Percentage
	if percentage == 0 && eval.Summary.MaxPoints > 0 {
		percentage = Percent(eval.Summary.EarnedPoints, eval.Summary.MaxPoints)
	}
	status := model.ResultFailed
	if percentage >= in.PassingScore {
		status = model.ResultPassed
	}

	result.Outcome = model.PipelineSucceeded
	result.Evaluation = eval
	result.Breakdown = breakdown
	result.Status = status

	order := make([]string, len(in.Items))
	for i := range in.Items {
		order[i] = in.Items[i].ID
	}

	saved, err := p.saver.SaveResult(ctx, in.ExamID, &model.SaveResultRequest{
		ExamID:          in.ExamID,
		Mode:            in.Mode,
		Score:           eval.Summary.EarnedPoints,
		Percentage:      percentage,
		Status:          status,
		DurationSeconds: in.ElapsedSeconds,
		AnswersData: model.AnswersData{
			Answers:           in.Answers,
			ExerciseResponses: in.ExerciseResponses,
			Evaluation:        eval,
			Breakdown:         breakdown,
		},
		QuestionsOrder: order,
	})
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Saving result failed, continuing without result id")
	case saved != nil:
		result.ResultID = saved.ID
	}

	p.cleanup(ctx, log, in)
	p.finish(model.PipelineSucceeded)

	log.Info().
		Float64("percentage", percentage).
		Str("status", string(status)).
		Str("result_id", result.ResultID).
		Msg("Session evaluated")
	return result
}

func (p *Pipeline) cleanup(ctx context.Context, log zerolog.Logger, in SubmitInput) {
	// A cancelled submit context must not leave the snapshot behind.
	if err := p.persister.Clear(context.WithoutCancel(ctx), in.ExamID, in.Mode); err != nil {
		log.Error().Err(err).Msg("Snapshot cleanup failed")
	}
}

// Percent returns earned/max as a percentage rounded to one decimal, 0 when max is 0.
func Percent(earned, max float64) float64 {
	if max == 0 {
		return 0
	}
	return math.Round(earned/max*1000) / 10
}

// LocalBreakdown folds per-item scores into category and topic buckets, in pool order.
func LocalBreakdown(items []model.TestItem, scores []model.ItemScore) *model.Breakdown {
	byID := make(map[string]model.ItemScore, len(scores))
	for _, s := range scores {
		byID[s.ID] = s
	}

	type bucket struct {
		earned, max float64
		topics      []string
		topicScores map[string]*[2]float64
	}
	var order []string
	buckets := make(map[string]*bucket)

	for i := range items {
		it := &items[i]
		score, ok := byID[it.ID]
		if !ok {
			continue
		}
		b, ok := buckets[it.CategoryName]
		if !ok {
			b = &bucket{topicScores: make(map[string]*[2]float64)}
			buckets[it.CategoryName] = b
			order = append(order, it.CategoryName)
		}
		b.earned += score.EarnedScore
		b.max += score.MaxScore

		t, ok := b.topicScores[it.TopicName]
		if !ok {
			t = &[2]float64{}
			b.topicScores[it.TopicName] = t
			b.topics = append(b.topics, it.TopicName)
		}
		t[0] += score.EarnedScore
		t[1] += score.MaxScore
	}

	out := &model.Breakdown{Categories: make([]model.CategoryScore, 0, len(order))}
	for _, name := range order {
		b := buckets[name]
		cat := model.CategoryScore{
			ScoreBucket: model.ScoreBucket{Name: name, Earned: b.earned, Max: b.max, Percentage: Percent(b.earned, b.max)},
			Topics:      make([]model.ScoreBucket, 0, len(b.topics)),
		}
		for _, topic := range b.topics {
			t := b.topicScores[topic]
			cat.Topics = append(cat.Topics, model.ScoreBucket{Name: topic, Earned: t[0], Max: t[1], Percentage: Percent(t[0], t[1])})
		}
		out.Categories = append(out.Categories, cat)
	}
	return out
}
