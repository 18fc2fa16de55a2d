package model

// EvaluateRequest is the payload sent to the remote evaluator.
type EvaluateRequest struct {
	Answers           map[string]AnswerValue               `json:"answers"`
	ExerciseResponses map[string]map[string]ActionResponse `json:"exerciseResponses"`
	Items             []TestItem                           `json:"items"`
}

// EvaluateResponse is the evaluator's verdict.
type EvaluateResponse struct {
	Questions []ItemScore       `json:"questions"`
	Exercises []ItemScore       `json:"exercises"`
	Summary   EvaluationSummary `json:"summary"`
}

// ItemScore is the evaluator's score for one pooled item.
type ItemScore struct {
	ID          string  `json:"id"`
	Correct     bool    `json:"correct"`
	EarnedScore float64 `json:"earned_score"`
	MaxScore    float64 `json:"max_score"`
}

// EvaluationSummary aggregates the whole session. Breakdown is optional on the wire.
type EvaluationSummary struct {
	TotalQuestions int        `json:"total_questions"`
	TotalExercises int        `json:"total_exercises"`
	EarnedPoints   float64    `json:"earned_points"`
	MaxPoints      float64    `json:"max_points"`
	Percentage     float64    `json:"percentage"`
	Breakdown      *Breakdown `json:"breakdown,omitempty"`
}

// Breakdown splits the score by category and topic.
type Breakdown struct {
	Categories []CategoryScore `json:"categories"`
}

// CategoryScore is one category bucket with its topic buckets.
type CategoryScore struct {
	ScoreBucket
	Topics []ScoreBucket `json:"topics"`
}

// ScoreBucket holds earned/max points for a named group.
type ScoreBucket struct {
	Name       string  `json:"name"`
	Earned     float64 `json:"earned"`
	Max        float64 `json:"max"`
	Percentage float64 `json:"percentage"`
}

// ResultStatus is the pass/fail verdict stored with a result.
type ResultStatus string

const (
	ResultPassed ResultStatus = "passed"
	ResultFailed ResultStatus = "failed"
)

// SaveResultRequest is the payload of the save-result service.
type SaveResultRequest struct {
	ExamID          string       `json:"exam_id"`
	Mode            Mode         `json:"mode"`
	Score           float64      `json:"score"`
	Percentage      float64      `json:"percentage"`
	Status          ResultStatus `json:"status"`
	DurationSeconds int          `json:"duration_seconds"`
	AnswersData     AnswersData  `json:"answers_data"`
	QuestionsOrder  []string     `json:"questions_order"`
}

// AnswersData is the full answer and score payload attached to a saved result.
type AnswersData struct {
	Answers           map[string]AnswerValue               `json:"answers"`
	ExerciseResponses map[string]map[string]ActionResponse `json:"exercise_responses"`
	Evaluation        *EvaluateResponse                    `json:"evaluation,omitempty"`
	Breakdown         *Breakdown                           `json:"breakdown,omitempty"`
}

// SaveResultResponse carries the persisted result id used by report generation.
type SaveResultResponse struct {
	ID string `json:"id"`
}

// SubmitTrigger tells why a session was submitted.
type SubmitTrigger string

const (
	TriggerManual SubmitTrigger = "manual"
	TriggerExpiry SubmitTrigger = "expiry"
)

// SessionResult is what the results view receives once the pipeline finishes.
// On the degraded path Evaluation and Breakdown are nil and only the raw answers are set.
type SessionResult struct {
	ExamID            string                               `json:"exam_id"`
	Mode              Mode                                 `json:"mode"`
	Outcome           PipelineState                        `json:"outcome"`
	Trigger           SubmitTrigger                        `json:"trigger"`
	Status            ResultStatus                         `json:"status,omitempty"`
	Evaluation        *EvaluateResponse                    `json:"evaluation,omitempty"`
	Breakdown         *Breakdown                           `json:"breakdown,omitempty"`
	Answers           map[string]AnswerValue               `json:"answers"`
	ExerciseResponses map[string]map[string]ActionResponse `json:"exercise_responses"`
	ElapsedSeconds    int                                  `json:"elapsed_seconds"`
	ResultID          string                               `json:"result_id,omitempty"`
}
