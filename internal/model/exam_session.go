package model

import "time"

// SessionSnapshot is the persisted serialization of an in-progress session, identified by
// (ExamID, Mode). Writing a snapshot always replaces the previous one for the same key.
type SessionSnapshot struct {
	ExamID               string                               `json:"exam_id"`
	Mode                 Mode                                 `json:"mode"`
	ExamName             string                               `json:"exam_name"`
	TimeRemainingSeconds int                                  `json:"time_remaining"`
	SavedAtEpochMs       int64                                `json:"saved_at"`
	PauseOnDisconnect    bool                                 `json:"pause_on_disconnect"`
	Answers              map[string]AnswerValue               `json:"answers"`
	ExerciseResponses    map[string]map[string]ActionResponse `json:"exercise_responses"`
	StepCompleted        map[string]bool                      `json:"step_completed"`
	ActionErrors         map[string]ActionError               `json:"action_errors"`
	CurrentItemIndex     int                                  `json:"current_item_index"`
	CurrentStepIndex     int                                  `json:"current_step_index"`
	FlaggedIndices       []int                                `json:"flagged_indices"`
	OrderingInteracted   map[string]bool                      `json:"ordering_interacted"`
	SelectedItems        []TestItem                           `json:"selected_items"`
}

// Resumable reports whether the snapshot can continue a session: it must carry the
// materialized pool and some time budget.
func (s *SessionSnapshot) Resumable() bool {
	return s != nil && len(s.SelectedItems) > 0 && s.TimeRemainingSeconds > 0
}

// SavedAt returns the save time as a time.Time.
func (s *SessionSnapshot) SavedAt() time.Time {
	return time.UnixMilli(s.SavedAtEpochMs)
}

// SnapshotStatus is the REST view of a stored snapshot.
type SnapshotStatus struct {
	ExamID               string     `json:"exam_id"`
	Mode                 Mode       `json:"mode"`
	Resumable            bool       `json:"resumable"`
	Mounted              bool       `json:"mounted"`
	TimeRemainingSeconds int        `json:"time_remaining_seconds"`
	SavedAt              *time.Time `json:"saved_at,omitempty"`
	CurrentItemIndex     int        `json:"current_item_index"`
	ItemCount            int        `json:"item_count"`
}

// Dialog names a confirmation dialog open on the candidate's screen.
type Dialog string

const (
	DialogNone   Dialog = ""
	DialogSubmit Dialog = "submit"
	DialogExit   Dialog = "exit"
)

// PipelineState is the evaluation pipeline's position.
type PipelineState string

const (
	PipelineIdle       PipelineState = "idle"
	PipelineSubmitting PipelineState = "submitting"
	PipelineSucceeded  PipelineState = "succeeded"
	PipelineDegraded   PipelineState = "degraded"
)

// SessionView is the full state pushed to the candidate after every transition.
type SessionView struct {
	ExamID               string                               `json:"exam_id"`
	Mode                 Mode                                 `json:"mode"`
	ExamName             string                               `json:"exam_name"`
	TimeRemainingSeconds int                                  `json:"time_remaining"`
	Paused               bool                                 `json:"paused"`
	Expired              bool                                 `json:"expired"`
	Pipeline             PipelineState                        `json:"pipeline"`
	Dialog               Dialog                               `json:"dialog,omitempty"`
	Items                []TestItem                           `json:"items"`
	CurrentItemIndex     int                                  `json:"current_item_index"`
	CurrentStepIndex     int                                  `json:"current_step_index"`
	Answers              map[string]AnswerValue               `json:"answers"`
	ExerciseResponses    map[string]map[string]ActionResponse `json:"exercise_responses"`
	StepCompleted        map[string]bool                      `json:"step_completed"`
	ActionErrors         map[string]ActionError               `json:"action_errors"`
	Answered             []bool                               `json:"answered"`
	AnsweredCount        int                                  `json:"answered_count"`
	FlaggedIndices       []int                                `json:"flagged_indices"`
}

// SessionParams addresses a session in REST and WebSocket routes.
type SessionParams struct {
	ExamID string `uri:"exam_id" binding:"required,max=128"`
	Mode   Mode   `uri:"mode" binding:"required,oneof=exam simulator"`
}
