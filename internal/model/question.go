package model

import "strings"

// ItemKind discriminates the TestItem union.
type ItemKind string

const (
	ItemKindQuestion ItemKind = "question"
	ItemKindExercise ItemKind = "exercise"
)

// QuestionType enumerates the supported question renderers.
type QuestionType string

const (
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeMultipleSelect QuestionType = "multiple_select"
	QuestionTypeOrdering       QuestionType = "ordering"
	QuestionTypeDragDrop       QuestionType = "drag_drop"
	QuestionTypeColumnGrouping QuestionType = "column_grouping"
)

// TestItem is one entry of a session's ordered pool: either a Question or an Exercise.
// Exactly one of Question and Exercise is set, matching Kind.
type TestItem struct {
	Kind         ItemKind  `json:"kind"`
	ID           string    `json:"id"`
	CategoryName string    `json:"category_name"`
	TopicName    string    `json:"topic_name"`
	Mode         Mode      `json:"mode"`
	Question     *Question `json:"question,omitempty"`
	Exercise     *Exercise `json:"exercise,omitempty"`
}

// IsQuestion reports whether the item carries a question.
func (t *TestItem) IsQuestion() bool {
	return t.Kind == ItemKindQuestion && t.Question != nil
}

// IsExercise reports whether the item carries an exercise.
func (t *TestItem) IsExercise() bool {
	return t.Kind == ItemKindExercise && t.Exercise != nil
}

// Question is a single authored question.
type Question struct {
	ID           string       `json:"id"`
	QuestionType QuestionType `json:"question_type"`
	Text         string       `json:"text"`
	Mode         Mode         `json:"mode"`
	Options      []Option     `json:"options"`
	Blanks       []Blank      `json:"blanks,omitempty"`
	Columns      []Column     `json:"columns,omitempty"`
}

// Option is a selectable/draggable answer fragment.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Blank is a drop target of a drag_drop question.
type Blank struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Column is a group target of a column_grouping question.
type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// HasOption reports whether id names one of the question's options.
func (q *Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// HasBlank reports whether id names one of the question's blanks.
func (q *Question) HasBlank(id string) bool {
	for _, b := range q.Blanks {
		if b.ID == id {
			return true
		}
	}
	return false
}

// HasColumn reports whether id names one of the question's columns.
func (q *Question) HasColumn(id string) bool {
	for _, c := range q.Columns {
		if c.ID == id {
			return true
		}
	}
	return false
}

// OptionIDs returns the option ids in their current order.
func (q *Question) OptionIDs() []string {
	ids := make([]string, len(q.Options))
	for i, o := range q.Options {
		ids[i] = o.ID
	}
	return ids
}

// Exercise is a multi-step interactive simulation.
type Exercise struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Mode        Mode   `json:"mode"`
	Steps       []Step `json:"steps"`
}

// Step is one screen of an exercise: an image with clickable/typeable overlays.
type Step struct {
	ID      string   `json:"id"`
	Image   Image    `json:"image"`
	Actions []Action `json:"actions"`
}

// Image describes the step background.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ActionType enumerates overlay controls.
type ActionType string

const (
	ActionTypeButton    ActionType = "button"
	ActionTypeTextInput ActionType = "text_input"
)

// ErrorPolicy decides what an incorrect action does to the exercise.
type ErrorPolicy string

const (
	ErrorPolicyShowMessage  ErrorPolicy = "show_message"
	ErrorPolicyNextStep     ErrorPolicy = "next_step"
	ErrorPolicyEndExercise  ErrorPolicy = "end_exercise"
	ErrorPolicyNextExercise ErrorPolicy = "next_exercise"
)

const (
	// WrongButton marks a button that is always an incorrect choice.
	WrongButton = "wrong"
	// TrapField marks a text input that never accepts any answer.
	TrapField = "__trap__"
)

// Action is an overlay control placed on a step image.
type Action struct {
	ID                    string      `json:"id"`
	Type                  ActionType  `json:"type"`
	X                     float64     `json:"x"`
	Y                     float64     `json:"y"`
	Width                 float64     `json:"width"`
	Height                float64     `json:"height"`
	CorrectAnswer         string      `json:"correct_answer"`
	MaxAdditionalAttempts int         `json:"max_attempts"`
	OnError               ErrorPolicy `json:"on_error"`
	ErrorMessage          string      `json:"error_message,omitempty"`
}

// Policy returns the effective error policy, show_message when unset.
func (a *Action) Policy() ErrorPolicy {
	switch a.OnError {
	case ErrorPolicyNextStep, ErrorPolicyEndExercise, ErrorPolicyNextExercise:
		return a.OnError
	default:
		return ErrorPolicyShowMessage
	}
}

// Accepts reports whether the given input is a correct use of the action.
// Buttons ignore input; text inputs compare trimmed, case-insensitively.
func (a *Action) Accepts(input string) bool {
	want := strings.TrimSpace(a.CorrectAnswer)
	switch a.Type {
	case ActionTypeButton:
		switch strings.ToLower(want) {
		case "", "false", "0", WrongButton:
			return false
		}
		return true
	case ActionTypeTextInput:
		if want == "" || want == TrapField {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(input), want)
	}
	return false
}

// Find returns the action with the given id.
func (s *Step) Find(actionID string) (*Action, bool) {
	for i := range s.Actions {
		if s.Actions[i].ID == actionID {
			return &s.Actions[i], true
		}
	}
	return nil, false
}
