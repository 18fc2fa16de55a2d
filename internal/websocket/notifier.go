package websocket

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runtime/internal/metrics"
	"github.com/stemsi/exstem-runtime/internal/model"
	"github.com/stemsi/exstem-runtime/internal/session"
)

// Sender queues an event for one connection.
type Sender interface {
	Send(v interface{}) error
}

// Notifier renders session events onto a WebSocket connection.
type Notifier struct {
	out Sender
	log zerolog.Logger
}

// NewNotifier creates a Notifier writing to out.
func NewNotifier(out Sender, log zerolog.Logger) *Notifier {
	return &Notifier{out: out, log: log}
}

func (n *Notifier) emit(event Event, v interface{}) {
	metrics.WSMessages.WithLabelValues(string(event), "out").Inc()
	if err := n.out.Send(v); err != nil {
		n.log.Debug().Err(err).Str("event", string(event)).Msg("Event dropped")
	}
}

func (n *Notifier) Warn(message string) string {
	id := uuid.New().String()
	n.emit(EventWarning, WarningResponse{Event: EventWarning, ID: id, Message: message})
	return id
}

func (n *Notifier) Dismiss(id string) {
	n.emit(EventDismiss, DismissResponse{Event: EventDismiss, ID: id})
}

func (n *Notifier) State(view *model.SessionView) {
	n.emit(EventState, StateResponse{Event: EventState, Session: view})
}

func (n *Notifier) Tick(remaining int, paused bool) {
	n.emit(EventTick, TickResponse{Event: EventTick, TimeRemainingSeconds: remaining, Paused: paused})
}

func (n *Notifier) Expired() {
	n.emit(EventExpired, SignalResponse{Event: EventExpired})
}

func (n *Notifier) StepResult(res session.StepResult) {
	n.emit(EventStepResult, StepResultResponse{Event: EventStepResult, Result: res})
}

func (n *Notifier) Result(res *model.SessionResult) {
	n.emit(EventResult, ResultResponse{Event: EventResult, Result: res})
}

func (n *Notifier) Exited() {
	n.emit(EventExited, SignalResponse{Event: EventExited})
}
