package session

import "errors"

// Domain errors.
var (
	ErrInvalidAnswer      = errors.New("invalid answer")
	ErrInvalidPosition    = errors.New("position out of range")
	ErrInvalidDialog      = errors.New("unknown dialog")
	ErrUnknownItem        = errors.New("unknown item")
	ErrUnknownAction      = errors.New("unknown exercise action")
	ErrNotExercise        = errors.New("current item is not an exercise")
	ErrStepLocked         = errors.New("step is not reachable yet")
	ErrEmptyPool          = errors.New("no items available for this mode")
	ErrInvalidMode        = errors.New("invalid session mode")
	ErrSubmissionInFlight = errors.New("submission already in progress")
	ErrAlreadySubmitted   = errors.New("session already submitted")
	ErrSessionClosed      = errors.New("session is closed")
)
