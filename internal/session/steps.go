package session

import (
	"fmt"

	"github.com/stemsi/exstem-runtime/internal/model"
)

// DefaultActionErrorMessage is shown when an action carries no custom message.
const DefaultActionErrorMessage = "That is not correct, try again."

// StepOutcome names the transition an exercise action caused.
type StepOutcome string

const (
	// StepIgnored: the step was already completed, nothing changed.
	StepIgnored StepOutcome = "ignored"
	// StepRetry: incorrect, retry budget left, the step stays pending.
	StepRetry StepOutcome = "retry"
	// StepAdvanced: the step completed and the next step is displayed.
	StepAdvanced StepOutcome = "advanced"
	// StepFinished: every step of the exercise is completed.
	StepFinished StepOutcome = "finished"
)

// StepResult describes the effect of one exercise action.
type StepResult struct {
	ExerciseID  string      `json:"exercise_id"`
	ActionID    string      `json:"action_id"`
	Outcome     StepOutcome `json:"outcome"`
	Correct     bool        `json:"correct"`
	StepIndex   int         `json:"step_index"`
	Message     string      `json:"message,omitempty"`
	Attempts    int         `json:"attempts,omitempty"`
	RetriesLeft int         `json:"retries_left,omitempty"`
	// NextItem asks the controller to move on to the next pooled item.
	NextItem bool `json:"next_item,omitempty"`
}

// StepEngine runs the per-exercise step state machine on top of an AnswerStore.
type StepEngine struct {
	store *AnswerStore
}

// NewStepEngine creates a StepEngine writing into store.
func NewStepEngine(store *AnswerStore) *StepEngine {
	return &StepEngine{store: store}
}

// Apply routes one action outcome on the given step of ex.
func (e *StepEngine) Apply(ex *model.Exercise, stepIndex int, actionID, input string) (StepResult, error) {
	if stepIndex < 0 || stepIndex >= len(ex.Steps) {
		return StepResult{}, fmt.Errorf("%w: step %d", ErrInvalidPosition, stepIndex)
	}
	step := &ex.Steps[stepIndex]
	action, ok := step.Find(actionID)
	if !ok {
		return StepResult{}, fmt.Errorf("%w: %s", ErrUnknownAction, actionID)
	}

	res := StepResult{ExerciseID: ex.ID, ActionID: actionID, StepIndex: stepIndex}

	if e.store.StepCompleted(ex.ID, stepIndex) {
		res.Outcome = StepIgnored
		return res, nil
	}

	key := ActionKey(step.ID, action.ID)
	value := input
	if action.Type == model.ActionTypeButton {
		value = "clicked"
	}

	if action.Accepts(input) {
		e.store.setResponse(ex.ID, key, model.ActionResponse{Value: value, Correct: true})
		res.Correct = true
		return e.advance(ex, res), nil
	}

	switch action.Policy() {
	case model.ErrorPolicyEndExercise, model.ErrorPolicyNextExercise:
		e.store.setResponse(ex.ID, key, model.ActionResponse{Value: value})
		for i := range ex.Steps {
			e.store.markStepCompleted(ex.ID, i)
		}
		res.Outcome = StepFinished
		res.NextItem = action.Policy() == model.ErrorPolicyNextExercise
		return res, nil

	case model.ErrorPolicyNextStep:
		e.store.setResponse(ex.ID, key, model.ActionResponse{Value: value})
		return e.advance(ex, res), nil
	}

	// show_message: the first failure plus MaxAdditionalAttempts retries are allowed.
	ae := e.store.ActionError(step.ID, action.ID)
	ae.Attempts++
	ae.Message = action.ErrorMessage
	if ae.Message == "" {
		ae.Message = DefaultActionErrorMessage
	}
	res.Attempts = ae.Attempts
	res.Message = ae.Message

	if ae.Attempts > action.MaxAdditionalAttempts {
		ae.Locked = true
		e.store.setActionError(key, ae)
		e.store.setResponse(ex.ID, key, model.ActionResponse{Value: value})
		return e.advance(ex, res), nil
	}

	e.store.setActionError(key, ae)
	res.Outcome = StepRetry
	res.RetriesLeft = action.MaxAdditionalAttempts + 1 - ae.Attempts
	return res, nil
}

// advance completes the current step and moves to the next one, or finishes the exercise.
func (e *StepEngine) advance(ex *model.Exercise, res StepResult) StepResult {
	e.store.markStepCompleted(ex.ID, res.StepIndex)
	if res.StepIndex < len(ex.Steps)-1 {
		res.StepIndex++
		res.Outcome = StepAdvanced
		return res
	}
	res.Outcome = StepFinished
	return res
}

// CanShow reports whether the step at index may be displayed: completed steps and the first
// pending step are reachable, later ones are not.
func (e *StepEngine) CanShow(ex *model.Exercise, index int) bool {
	if index < 0 || index >= len(ex.Steps) {
		return false
	}
	return index <= e.store.FirstPendingStep(ex)
}
