package session

import (
	"fmt"
	"slices"

	"github.com/stemsi/exstem-runtime/internal/model"
)

// StepKey is the stepCompleted key of one exercise step.
func StepKey(exerciseID string, stepIndex int) string {
	return fmt.Sprintf("%s_%d", exerciseID, stepIndex)
}

// ActionKey is the exercise response / action error key of one action.
func ActionKey(stepID, actionID string) string {
	return stepID + "_" + actionID
}

// AnswerStore holds every mutable answer of a session: question answers, exercise action
// responses, step completion and per-action retry state.
type AnswerStore struct {
	answers            map[string]model.AnswerValue
	orderingInteracted map[string]bool
	responses          map[string]map[string]model.ActionResponse
	stepCompleted      map[string]bool
	actionErrors       map[string]model.ActionError
}

// NewAnswerStore creates an empty store.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{
		answers:            make(map[string]model.AnswerValue),
		orderingInteracted: make(map[string]bool),
		responses:          make(map[string]map[string]model.ActionResponse),
		stepCompleted:      make(map[string]bool),
		actionErrors:       make(map[string]model.ActionError),
	}
}

// Seed installs initial answers without marking them as interacted with.
func (s *AnswerStore) Seed(answers map[string]model.AnswerValue) {
	for id, v := range answers {
		s.answers[id] = v.Clone()
	}
}

// Answer returns the current answer of an item.
func (s *AnswerStore) Answer(itemID string) (model.AnswerValue, bool) {
	v, ok := s.answers[itemID]
	return v, ok
}

// SetAnswer replaces an item's answer wholesale after checking it fits the question type.
func (s *AnswerStore) SetAnswer(item *model.TestItem, v model.AnswerValue) error {
	if !item.IsQuestion() {
		return fmt.Errorf("%w: %s is not a question", ErrInvalidAnswer, item.ID)
	}
	q := item.Question

	switch q.QuestionType {
	case model.QuestionTypeTrueFalse:
		if v.Bool == nil {
			return fmt.Errorf("%w: true_false needs a boolean", ErrInvalidAnswer)
		}
	case model.QuestionTypeMultipleChoice:
		if !q.HasOption(v.ID) {
			return fmt.Errorf("%w: unknown option %q", ErrInvalidAnswer, v.ID)
		}
	case model.QuestionTypeMultipleSelect:
		ids := make([]string, 0, len(v.IDs))
		for _, id := range v.IDs {
			if !q.HasOption(id) {
				return fmt.Errorf("%w: unknown option %q", ErrInvalidAnswer, id)
			}
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			delete(s.answers, item.ID)
			return nil
		}
		v = model.ListAnswer(ids)
	case model.QuestionTypeOrdering:
		if !isPermutation(v.IDs, q.OptionIDs()) {
			return fmt.Errorf("%w: ordering must list every option once", ErrInvalidAnswer)
		}
		s.orderingInteracted[item.ID] = true
	case model.QuestionTypeDragDrop:
		seen := make(map[string]bool, len(v.Blanks))
		for blank, opt := range v.Blanks {
			if !q.HasBlank(blank) || !q.HasOption(opt) || seen[opt] {
				return fmt.Errorf("%w: invalid blank assignment %q=%q", ErrInvalidAnswer, blank, opt)
			}
			seen[opt] = true
		}
		if v.Blanks == nil {
			v.Blanks = map[string]string{}
		}
	case model.QuestionTypeColumnGrouping:
		seen := make(map[string]bool)
		for col, opts := range v.Columns {
			if !q.HasColumn(col) {
				return fmt.Errorf("%w: unknown column %q", ErrInvalidAnswer, col)
			}
			for _, opt := range opts {
				if !q.HasOption(opt) || seen[opt] {
					return fmt.Errorf("%w: invalid column assignment %q", ErrInvalidAnswer, opt)
				}
				seen[opt] = true
			}
		}
		if v.Columns == nil {
			v.Columns = map[string][]string{}
		}
	default:
		return fmt.Errorf("%w: unsupported question type %q", ErrInvalidAnswer, q.QuestionType)
	}

	s.answers[item.ID] = v.Clone()
	return nil
}

func isPermutation(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	a := slices.Clone(got)
	b := slices.Clone(want)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// SwapOrder exchanges two positions of an ordering question, keeping a total order.
func (s *AnswerStore) SwapOrder(item *model.TestItem, from, to int) error {
	if !item.IsQuestion() || item.Question.QuestionType != model.QuestionTypeOrdering {
		return fmt.Errorf("%w: %s is not an ordering question", ErrInvalidAnswer, item.ID)
	}

	order := item.Question.OptionIDs()
	if cur, ok := s.answers[item.ID]; ok && len(cur.IDs) == len(order) {
		order = slices.Clone(cur.IDs)
	}
	if from < 0 || to < 0 || from >= len(order) || to >= len(order) {
		return ErrInvalidPosition
	}

	order[from], order[to] = order[to], order[from]
	s.answers[item.ID] = model.ListAnswer(order)
	s.orderingInteracted[item.ID] = true
	return nil
}

// AssignBlank places an option into a blank of a drag_drop question. The option is first
// removed from whichever blank held it, so it sits in at most one blank.
func (s *AnswerStore) AssignBlank(item *model.TestItem, blankID, optionID string) error {
	if !item.IsQuestion() || item.Question.QuestionType != model.QuestionTypeDragDrop {
		return fmt.Errorf("%w: %s is not a drag_drop question", ErrInvalidAnswer, item.ID)
	}
	q := item.Question
	if !q.HasBlank(blankID) || !q.HasOption(optionID) {
		return fmt.Errorf("%w: invalid blank assignment %q=%q", ErrInvalidAnswer, blankID, optionID)
	}

	blanks := map[string]string{}
	if cur, ok := s.answers[item.ID]; ok {
		blanks = model.BlanksAnswer(cur.Blanks).Blanks
	}
	for b, opt := range blanks {
		if opt == optionID {
			delete(blanks, b)
		}
	}
	blanks[blankID] = optionID
	s.answers[item.ID] = model.AnswerValue{Blanks: blanks}
	return nil
}

// ClearBlank empties one blank of a drag_drop question.
func (s *AnswerStore) ClearBlank(item *model.TestItem, blankID string) error {
	if !item.IsQuestion() || item.Question.QuestionType != model.QuestionTypeDragDrop {
		return fmt.Errorf("%w: %s is not a drag_drop question", ErrInvalidAnswer, item.ID)
	}
	cur, ok := s.answers[item.ID]
	if !ok {
		return nil
	}
	blanks := model.BlanksAnswer(cur.Blanks).Blanks
	delete(blanks, blankID)
	s.answers[item.ID] = model.AnswerValue{Blanks: blanks}
	return nil
}

// AssignColumn moves an option into a column of a column_grouping question, removing it from
// any other column first.
func (s *AnswerStore) AssignColumn(item *model.TestItem, columnID, optionID string) error {
	if !item.IsQuestion() || item.Question.QuestionType != model.QuestionTypeColumnGrouping {
		return fmt.Errorf("%w: %s is not a column_grouping question", ErrInvalidAnswer, item.ID)
	}
	q := item.Question
	if !q.HasColumn(columnID) || !q.HasOption(optionID) {
		return fmt.Errorf("%w: invalid column assignment %q=%q", ErrInvalidAnswer, columnID, optionID)
	}

	columns := map[string][]string{}
	if cur, ok := s.answers[item.ID]; ok {
		columns = model.ColumnsAnswer(cur.Columns).Columns
	}
	for col, opts := range columns {
		opts = slices.DeleteFunc(opts, func(id string) bool { return id == optionID })
		if len(opts) == 0 {
			delete(columns, col)
			continue
		}
		columns[col] = opts
	}
	columns[columnID] = append(columns[columnID], optionID)
	s.answers[item.ID] = model.AnswerValue{Columns: columns}
	return nil
}

// IsAnswered reports whether the candidate has answered an item. Ordering questions are
// pre-seeded, so they only count once the candidate has moved something; exercises count
// once every step is completed.
func (s *AnswerStore) IsAnswered(item *model.TestItem) bool {
	switch {
	case item.IsExercise():
		return s.ExerciseCompleted(item.Exercise)
	case item.IsQuestion():
		if item.Question.QuestionType == model.QuestionTypeOrdering {
			return s.orderingInteracted[item.ID]
		}
		v, ok := s.answers[item.ID]
		return ok && !v.IsZero()
	}
	return false
}

// ExerciseCompleted reports whether every step of ex is completed.
func (s *AnswerStore) ExerciseCompleted(ex *model.Exercise) bool {
	if len(ex.Steps) == 0 {
		return false
	}
	for i := range ex.Steps {
		if !s.stepCompleted[StepKey(ex.ID, i)] {
			return false
		}
	}
	return true
}

// FirstPendingStep returns the index of the first step that is not completed, or the last
// step index when the exercise is finished.
func (s *AnswerStore) FirstPendingStep(ex *model.Exercise) int {
	for i := range ex.Steps {
		if !s.stepCompleted[StepKey(ex.ID, i)] {
			return i
		}
	}
	if len(ex.Steps) == 0 {
		return 0
	}
	return len(ex.Steps) - 1
}

func (s *AnswerStore) StepCompleted(exerciseID string, stepIndex int) bool {
	return s.stepCompleted[StepKey(exerciseID, stepIndex)]
}

func (s *AnswerStore) markStepCompleted(exerciseID string, stepIndex int) {
	s.stepCompleted[StepKey(exerciseID, stepIndex)] = true
}

func (s *AnswerStore) setResponse(exerciseID, key string, r model.ActionResponse) {
	m, ok := s.responses[exerciseID]
	if !ok {
		m = make(map[string]model.ActionResponse)
		s.responses[exerciseID] = m
	}
	m[key] = r
}

// Response returns the recorded response of an exercise action.
func (s *AnswerStore) Response(exerciseID, stepID, actionID string) (model.ActionResponse, bool) {
	r, ok := s.responses[exerciseID][ActionKey(stepID, actionID)]
	return r, ok
}

// ActionError returns the retry state of an exercise action.
func (s *AnswerStore) ActionError(stepID, actionID string) model.ActionError {
	return s.actionErrors[ActionKey(stepID, actionID)]
}

func (s *AnswerStore) setActionError(key string, e model.ActionError) {
	s.actionErrors[key] = e
}

// Answers returns a deep copy of the question answers.
func (s *AnswerStore) Answers() map[string]model.AnswerValue {
	out := make(map[string]model.AnswerValue, len(s.answers))
	for k, v := range s.answers {
		out[k] = v.Clone()
	}
	return out
}

// ExerciseResponses returns a deep copy of the exercise responses.
func (s *AnswerStore) ExerciseResponses() map[string]map[string]model.ActionResponse {
	out := make(map[string]map[string]model.ActionResponse, len(s.responses))
	for ex, m := range s.responses {
		inner := make(map[string]model.ActionResponse, len(m))
		for k, v := range m {
			inner[k] = v
		}
		out[ex] = inner
	}
	return out
}

// StepCompletion returns a copy of the step completion map.
func (s *AnswerStore) StepCompletion() map[string]bool {
	return cloneBools(s.stepCompleted)
}

// ActionErrors returns a copy of the per-action retry state.
func (s *AnswerStore) ActionErrors() map[string]model.ActionError {
	out := make(map[string]model.ActionError, len(s.actionErrors))
	for k, v := range s.actionErrors {
		out[k] = v
	}
	return out
}

// OrderingInteracted returns a copy of the ordering interaction flags.
func (s *AnswerStore) OrderingInteracted() map[string]bool {
	return cloneBools(s.orderingInteracted)
}

func (s *AnswerStore) restore(snap *model.SessionSnapshot) {
	s.Seed(snap.Answers)
	for ex, m := range snap.ExerciseResponses {
		for k, v := range m {
			s.setResponse(ex, k, v)
		}
	}
	for k, v := range snap.StepCompleted {
		s.stepCompleted[k] = v
	}
	for k, v := range snap.ActionErrors {
		s.actionErrors[k] = v
	}
	for k, v := range snap.OrderingInteracted {
		s.orderingInteracted[k] = v
	}
}

func cloneBools(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
