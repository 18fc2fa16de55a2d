package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runtime/internal/model"
)

/* ---------------- In-memory fakes that satisfy the session ports ---------------- */

type fakeStore struct {
	mu      sync.Mutex
	data    map[string]string
	sets    int
	removes int
	getErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}}
}

func (s *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *fakeStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	s.sets++
	return nil
}

func (s *fakeStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	s.removes++
	return nil
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

func (s *fakeStore) counts() (sets, removes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets, s.removes
}

type fakeNotifier struct {
	mu       sync.Mutex
	warnings []string
	dismissd []string
	states   int
	expired  int
	steps    []StepResult
	results  chan *model.SessionResult
	exited   chan struct{}
	last     *model.SessionView
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		results: make(chan *model.SessionResult, 4),
		exited:  make(chan struct{}, 4),
	}
}

func (n *fakeNotifier) Warn(message string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, message)
	return fmt.Sprintf("w%d", len(n.warnings))
}

func (n *fakeNotifier) Dismiss(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dismissd = append(n.dismissd, id)
}

func (n *fakeNotifier) State(view *model.SessionView) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states++
	n.last = view
}

func (n *fakeNotifier) Tick(int, bool) {}

func (n *fakeNotifier) Expired() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired++
}

func (n *fakeNotifier) StepResult(res StepResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.steps = append(n.steps, res)
}

func (n *fakeNotifier) Result(res *model.SessionResult) { n.results <- res }

func (n *fakeNotifier) Exited() { n.exited <- struct{}{} }

func (n *fakeNotifier) expiredCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.expired
}

type fakeEvaluator struct {
	mu    sync.Mutex
	calls int
	last  *model.EvaluateRequest
	resp  *model.EvaluateResponse
	err   error
	// gate, when set, blocks Evaluate until closed.
	gate chan struct{}
}

func (e *fakeEvaluator) Evaluate(ctx context.Context, _ string, req *model.EvaluateRequest) (*model.EvaluateResponse, error) {
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.last = req
	if e.err != nil {
		return nil, e.err
	}
	if e.resp != nil {
		return e.resp, nil
	}
	return scoreAll(req), nil
}

func (e *fakeEvaluator) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// scoreAll awards one point per answered question.
func scoreAll(req *model.EvaluateRequest) *model.EvaluateResponse {
	resp := &model.EvaluateResponse{}
	for _, it := range req.Items {
		s := model.ItemScore{ID: it.ID, MaxScore: 1}
		if _, ok := req.Answers[it.ID]; ok {
			s.Correct = true
			s.EarnedScore = 1
		}
		if it.IsQuestion() {
			resp.Questions = append(resp.Questions, s)
			resp.Summary.TotalQuestions++
		} else {
			resp.Exercises = append(resp.Exercises, s)
			resp.Summary.TotalExercises++
		}
		resp.Summary.EarnedPoints += s.EarnedScore
		resp.Summary.MaxPoints += s.MaxScore
	}
	resp.Summary.Percentage = Percent(resp.Summary.EarnedPoints, resp.Summary.MaxPoints)
	return resp
}

type fakeSaver struct {
	mu    sync.Mutex
	calls int
	last  *model.SaveResultRequest
	err   error
}

func (s *fakeSaver) SaveResult(_ context.Context, _ string, req *model.SaveResultRequest) (*model.SaveResultResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &model.SaveResultResponse{ID: "result-1"}, nil
}

func (s *fakeSaver) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeFetcher struct {
	mu        sync.Mutex
	exercises map[string]*model.Exercise
	calls     int
}

func (f *fakeFetcher) FetchExercise(_ context.Context, id string) (*model.Exercise, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	ex, ok := f.exercises[id]
	if !ok {
		return nil, errors.New("exercise not found")
	}
	cp := *ex
	return &cp, nil
}

type fakeExams struct {
	exam *model.ExamConfig
}

func (f fakeExams) FetchExam(_ context.Context, id string) (*model.ExamConfig, error) {
	if f.exam == nil || f.exam.ID != id {
		return nil, errors.New("exam not found")
	}
	return f.exam, nil
}

/* ---------------- Fixtures ---------------- */

var errBoom = errors.New("boom")

func nopLog() zerolog.Logger { return zerolog.Nop() }

func seededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func boolPtr(b bool) *bool { return &b }

func trueFalse(id string, mode model.Mode) model.Question {
	return model.Question{ID: id, QuestionType: model.QuestionTypeTrueFalse, Text: id, Mode: mode}
}

func choice(id string, mode model.Mode, opts ...string) model.Question {
	q := model.Question{ID: id, QuestionType: model.QuestionTypeMultipleChoice, Text: id, Mode: mode}
	for _, o := range opts {
		q.Options = append(q.Options, model.Option{ID: o, Text: o})
	}
	return q
}

func ordering(id string, mode model.Mode, opts ...string) model.Question {
	q := choice(id, mode, opts...)
	q.QuestionType = model.QuestionTypeOrdering
	return q
}

func dragDrop(id string) model.Question {
	q := choice(id, model.ModeExam, "o1", "o2", "o3")
	q.QuestionType = model.QuestionTypeDragDrop
	q.Blanks = []model.Blank{{ID: "b1"}, {ID: "b2"}}
	return q
}

func columns(id string) model.Question {
	q := choice(id, model.ModeExam, "o1", "o2", "o3")
	q.QuestionType = model.QuestionTypeColumnGrouping
	q.Columns = []model.Column{{ID: "c1"}, {ID: "c2"}}
	return q
}

func questionItem(q model.Question) model.TestItem {
	return model.TestItem{Kind: model.ItemKindQuestion, ID: q.ID, Mode: q.Mode, Question: &q}
}

func exerciseItem(ex *model.Exercise) model.TestItem {
	return model.TestItem{Kind: model.ItemKindExercise, ID: ex.ID, Mode: ex.Mode, Exercise: ex}
}

// twoStepExercise has a button step followed by a text step, both using the given policy.
func twoStepExercise(id string, policy model.ErrorPolicy, maxAttempts int) *model.Exercise {
	return &model.Exercise{
		ID:   id,
		Mode: model.ModeExam,
		Steps: []model.Step{
			{ID: id + "-s1", Actions: []model.Action{
				{ID: "ok", Type: model.ActionTypeButton, CorrectAnswer: "true", OnError: policy, MaxAdditionalAttempts: maxAttempts},
				{ID: "bad", Type: model.ActionTypeButton, CorrectAnswer: model.WrongButton, OnError: policy, MaxAdditionalAttempts: maxAttempts},
			}},
			{ID: id + "-s2", Actions: []model.Action{
				{ID: "name", Type: model.ActionTypeTextInput, CorrectAnswer: "Report.docx", OnError: policy, MaxAdditionalAttempts: maxAttempts},
			}},
		},
	}
}

// twoQuestionExam is a 10 minute exam drawing two questions in exam mode.
func twoQuestionExam(pauseOnDisconnect bool) *model.ExamConfig {
	return &model.ExamConfig{
		ID:                "exam-1",
		Name:              "Office Basics",
		DurationMinutes:   10,
		PassingScore:      50,
		PauseOnDisconnect: pauseOnDisconnect,
		Modes: map[model.Mode]model.ModeTargets{
			model.ModeExam:      {QuestionCount: 2},
			model.ModeSimulator: {QuestionCount: 1},
		},
		Categories: []model.Category{{
			Name: "Documents",
			Topics: []model.Topic{{
				Name: "Formatting",
				Questions: []model.Question{
					trueFalse("q1", model.ModeExam),
					choice("q2", model.ModeExam, "a", "b", "c"),
					trueFalse("q3", model.ModeSimulator),
				},
			}},
		}},
	}
}

type harness struct {
	store     *fakeStore
	notifier  *fakeNotifier
	evaluator *fakeEvaluator
	saver     *fakeSaver
	fetcher   *fakeFetcher
	now       time.Time
}

func newHarness() *harness {
	return &harness{
		store:     newFakeStore(),
		notifier:  newFakeNotifier(),
		evaluator: &fakeEvaluator{},
		saver:     &fakeSaver{},
		fetcher:   &fakeFetcher{exercises: map[string]*model.Exercise{}},
		now:       time.UnixMilli(1_700_000_000_000),
	}
}

func (h *harness) controller(exam *model.ExamConfig, mode model.Mode) *Controller {
	return NewController(exam.ID, mode, Deps{
		Exams:     fakeExams{exam: exam},
		Exercises: h.fetcher,
		Evaluator: h.evaluator,
		Results:   h.saver,
		Store:     h.store,
		Notifier:  h.notifier,
		Rand:      seededRand(7),
		Now:       func() time.Time { return h.now },
		Log:       nopLog(),
	}, Options{
		TickInterval:     time.Hour,
		SnapshotInterval: time.Hour,
		WarningDisplay:   10 * time.Millisecond,
		SubmitTimeout:    time.Second,
	})
}
