package websocket

import (
	"github.com/stemsi/exstem-runtime/internal/model"
	"github.com/stemsi/exstem-runtime/internal/response"
	"github.com/stemsi/exstem-runtime/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer       Action = "answer"
	ActionSwap         Action = "swap"
	ActionAssignBlank  Action = "assign_blank"
	ActionClearBlank   Action = "clear_blank"
	ActionAssignColumn Action = "assign_column"
	ActionToggleFlag   Action = "toggle_flag"
	ActionNavigate     Action = "navigate"
	ActionSetStep      Action = "set_step"
	ActionExercise     Action = "exercise_action"
	ActionConnectivity Action = "connectivity"
	ActionVisibility   Action = "visibility"
	ActionOpenDialog   Action = "open_dialog"
	ActionCloseDialog  Action = "close_dialog"
	ActionSubmit       Action = "submit"
	ActionExit         Action = "exit"
	ActionState        Action = "state"
	ActionPing         Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest replaces the answer of a question.
type AnswerRequest struct {
	ItemID string            `json:"item_id" binding:"required"`
	Value  model.AnswerValue `json:"value"`
}

// SwapRequest exchanges two positions of an ordering question.
type SwapRequest struct {
	ItemID string `json:"item_id" binding:"required"`
	From   *int   `json:"from" binding:"required,min=0"`
	To     *int   `json:"to" binding:"required,min=0"`
}

// AssignBlankRequest places an option into a drag_drop blank.
type AssignBlankRequest struct {
	ItemID   string `json:"item_id" binding:"required"`
	BlankID  string `json:"blank_id" binding:"required"`
	OptionID string `json:"option_id" binding:"required"`
}

// ClearBlankRequest empties a drag_drop blank.
type ClearBlankRequest struct {
	ItemID  string `json:"item_id" binding:"required"`
	BlankID string `json:"blank_id" binding:"required"`
}

// AssignColumnRequest moves an option into a column_grouping column.
type AssignColumnRequest struct {
	ItemID   string `json:"item_id" binding:"required"`
	ColumnID string `json:"column_id" binding:"required"`
	OptionID string `json:"option_id" binding:"required"`
}

// IndexRequest carries the target of toggle_flag, navigate and set_step.
type IndexRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}

// ExerciseActionRequest reports an action outcome on the displayed step.
type ExerciseActionRequest struct {
	ActionID string `json:"action_id" binding:"required"`
	Input    string `json:"input"`
}

// ConnectivityRequest reports a network transition.
type ConnectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// VisibilityRequest reports a page visibility transition.
type VisibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// DialogRequest opens a confirmation dialog.
type DialogRequest struct {
	Dialog model.Dialog `json:"dialog" binding:"required,oneof=submit exit"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState      Event = "state"
	EventTick       Event = "tick"
	EventWarning    Event = "warning"
	EventDismiss    Event = "dismiss"
	EventExpired    Event = "expired"
	EventStepResult Event = "step_result"
	EventResult     Event = "result"
	EventExited     Event = "exited"
	EventError      Event = "error"
	EventPong       Event = "pong"
)

type StateResponse struct {
	Event   Event              `json:"event"`
	Session *model.SessionView `json:"session"`
}

type TickResponse struct {
	Event                Event `json:"event"`
	TimeRemainingSeconds int   `json:"time_remaining"`
	Paused               bool  `json:"paused"`
}

type WarningResponse struct {
	Event   Event  `json:"event"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

type DismissResponse struct {
	Event Event  `json:"event"`
	ID    string `json:"id"`
}

type StepResultResponse struct {
	Event  Event              `json:"event"`
	Result session.StepResult `json:"result"`
}

type ResultResponse struct {
	Event  Event                `json:"event"`
	Result *model.SessionResult `json:"result"`
}

// SignalResponse carries events without a payload: expired, exited, pong.
type SignalResponse struct {
	Event Event `json:"event"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   response.ErrCode  `json:"code"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	// Action echoes the request that failed, when known.
	Action Action `json:"action,omitempty"`
}
