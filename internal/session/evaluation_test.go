package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stemsi/exstem-runtime/internal/model"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		earned, max, want float64
	}{
		{1, 3, 33.3},
		{2, 3, 66.7},
		{5, 5, 100},
		{0, 0, 0},
		{3, 0, 0},
	}
	for _, tt := range tests {
		if got := Percent(tt.earned, tt.max); got != tt.want {
			t.Errorf("Percent(%v, %v) = %v, want %v", tt.earned, tt.max, got, tt.want)
		}
	}
}

func TestLocalBreakdown(t *testing.T) {
	items := []model.TestItem{
		{ID: "q1", CategoryName: "Docs", TopicName: "Fonts"},
		{ID: "q2", CategoryName: "Sheets", TopicName: "Formulas"},
		{ID: "q3", CategoryName: "Docs", TopicName: "Tables"},
		{ID: "q4", CategoryName: "Docs", TopicName: "Fonts"},
	}
	scores := []model.ItemScore{
		{ID: "q1", EarnedScore: 1, MaxScore: 1},
		{ID: "q2", EarnedScore: 0, MaxScore: 2},
		{ID: "q3", EarnedScore: 0, MaxScore: 1},
		{ID: "q4", EarnedScore: 1, MaxScore: 2},
	}

	b := LocalBreakdown(items, scores)
	if len(b.Categories) != 2 || b.Categories[0].Name != "Docs" || b.Categories[1].Name != "Sheets" {
		t.Fatalf("categories = %+v", b.Categories)
	}
	docs := b.Categories[0]
	if docs.Earned != 2 || docs.Max != 4 || docs.Percentage != 50 {
		t.Fatalf("docs = %+v", docs.ScoreBucket)
	}
	if len(docs.Topics) != 2 || docs.Topics[0].Name != "Fonts" || docs.Topics[0].Percentage != 66.7 {
		t.Fatalf("docs topics = %+v", docs.Topics)
	}
	if sheets := b.Categories[1]; sheets.Percentage != 0 || sheets.Max != 2 {
		t.Fatalf("sheets = %+v", sheets.ScoreBucket)
	}
}

func submitInput() SubmitInput {
	items := []model.TestItem{
		questionItem(trueFalse("q1", model.ModeExam)),
		questionItem(trueFalse("q2", model.ModeExam)),
	}
	items[0].CategoryName, items[1].CategoryName = "Docs", "Docs"
	return SubmitInput{
		ExamID:         "exam-1",
		Mode:           model.ModeExam,
		Trigger:        model.TriggerManual,
		PassingScore:   50,
		ElapsedSeconds: 90,
		Items:          items,
		Answers:        map[string]model.AnswerValue{"q1": model.BoolAnswer(true)},
	}
}

func TestPipelineSucceeds(t *testing.T) {
	store := newFakeStore()
	store.data["exam_session_exam-1_exam"] = "{}"
	eval := &fakeEvaluator{}
	saver := &fakeSaver{}
	p := NewPipeline(eval, saver, NewPersister(store, nopLog()), nopLog())

	if err := p.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := p.Begin(); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("second Begin = %v, want ErrSubmissionInFlight", err)
	}

	res := p.Run(context.Background(), submitInput())
	if res.Outcome != model.PipelineSucceeded || p.State() != model.PipelineSucceeded {
		t.Fatalf("outcome = %s state = %s", res.Outcome, p.State())
	}
	if res.Status != model.ResultPassed || res.ResultID != "result-1" {
		t.Fatalf("result = %+v", res)
	}
	if res.Breakdown == nil || len(res.Breakdown.Categories) != 1 || res.Breakdown.Categories[0].Percentage != 50 {
		t.Fatalf("local breakdown = %+v", res.Breakdown)
	}
	if saver.last.DurationSeconds != 90 || len(saver.last.QuestionsOrder) != 2 || saver.last.Percentage != 50 {
		t.Fatalf("save payload = %+v", saver.last)
	}
	if store.has("exam_session_exam-1_exam") {
		t.Fatal("snapshot not cleared")
	}
	if err := p.Begin(); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("Begin after completion = %v, want ErrAlreadySubmitted", err)
	}
}

func TestPipelinePrefersRemoteBreakdown(t *testing.T) {
	remote := &model.Breakdown{Categories: []model.CategoryScore{{ScoreBucket: model.ScoreBucket{Name: "remote"}}}}
	eval := &fakeEvaluator{resp: &model.EvaluateResponse{Summary: model.EvaluationSummary{
		EarnedPoints: 1, MaxPoints: 4, Breakdown: remote,
	}}}
	p := NewPipeline(eval, &fakeSaver{}, NewPersister(newFakeStore(), nopLog()), nopLog())
	_ = p.Begin()

	res := p.Run(context.Background(), submitInput())
	if res.Breakdown != remote {
		t.Fatalf("breakdown = %+v, want the remote one", res.Breakdown)
	}
	// Percentage derived from points when the summary omits it: 25 < 50.
	if res.Status != model.ResultFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
}

func TestPipelineDegradesOnEvaluateFailure(t *testing.T) {
	store := newFakeStore()
	store.data["exam_session_exam-1_exam"] = "{}"
	saver := &fakeSaver{}
	p := NewPipeline(&fakeEvaluator{err: errBoom}, saver, NewPersister(store, nopLog()), nopLog())
	_ = p.Begin()

	res := p.Run(context.Background(), submitInput())
	if res.Outcome != model.PipelineDegraded || res.Evaluation != nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Answers["q1"].Bool == nil {
		t.Fatal("raw answers missing from degraded result")
	}
	if saver.callCount() != 0 {
		t.Fatal("degraded path must not save a result")
	}
	if store.has("exam_session_exam-1_exam") {
		t.Fatal("snapshot not cleared on degraded path")
	}
}

func TestPipelineSwallowsSaveFailure(t *testing.T) {
	p := NewPipeline(&fakeEvaluator{}, &fakeSaver{err: errBoom}, NewPersister(newFakeStore(), nopLog()), nopLog())
	_ = p.Begin()

	res := p.Run(context.Background(), submitInput())
	if res.Outcome != model.PipelineSucceeded || res.Evaluation == nil || res.ResultID != "" {
		t.Fatalf("result = %+v", res)
	}
}
