package model

// Mode distinguishes graded exams from practice runs. Items and targets are tagged per mode.
type Mode string

const (
	ModeExam      Mode = "exam"
	ModeSimulator Mode = "simulator"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeExam || m == ModeSimulator
}

// ExamConfig is the exam metadata returned by the exam configuration service.
type ExamConfig struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	DurationMinutes   int                  `json:"duration_minutes"`
	PassingScore      float64              `json:"passing_score"`
	PauseOnDisconnect bool                 `json:"pause_on_disconnect"`
	Modes             map[Mode]ModeTargets `json:"modes"`
	Categories        []Category           `json:"categories"`
}

// ModeTargets holds how many items a session of a given mode should contain.
type ModeTargets struct {
	QuestionCount int `json:"question_count"`
	ExerciseCount int `json:"exercise_count"`
}

// Targets returns the item targets for mode, zero when the exam does not define the mode.
func (e *ExamConfig) Targets(mode Mode) ModeTargets {
	if e.Modes == nil {
		return ModeTargets{}
	}
	return e.Modes[mode]
}

// DurationSeconds returns the full time budget of the exam.
func (e *ExamConfig) DurationSeconds() int {
	return e.DurationMinutes * 60
}

// Category is the top level of the exam content tree.
type Category struct {
	Name   string  `json:"name"`
	Topics []Topic `json:"topics"`
}

// Topic groups questions and exercise references under a category.
type Topic struct {
	Name      string        `json:"name"`
	Questions []Question    `json:"questions"`
	Exercises []ExerciseRef `json:"exercises"`
}

// ExerciseRef is the lightweight exercise entry in the content tree.
// Steps and actions are resolved through a separate detail call.
type ExerciseRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Mode  Mode   `json:"mode"`
}
