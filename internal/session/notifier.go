package session

import "github.com/stemsi/exstem-runtime/internal/model"

// Notifier is the presentation port of a session. All calls come from the controller loop.
type Notifier interface {
	// Warn shows a notice and returns its id for a later Dismiss.
	Warn(message string) string
	Dismiss(id string)
	State(view *model.SessionView)
	Tick(remaining int, paused bool)
	Expired()
	StepResult(res StepResult)
	Result(res *model.SessionResult)
	Exited()
}

// Recorder receives runtime counters.
type Recorder interface {
	PoolBuilt(mode model.Mode, items, dropped int)
	SnapshotFlushed(err error)
	Submitted(res *model.SessionResult)
	Exited(mode model.Mode)
}

type nopRecorder struct{}

func (nopRecorder) PoolBuilt(model.Mode, int, int) {}
func (nopRecorder) SnapshotFlushed(error)          {}
func (nopRecorder) Submitted(*model.SessionResult) {}
func (nopRecorder) Exited(model.Mode)              {}
