package guard

import (
	"github.com/wippyai/pgbridge/errors"
)

// State is the position of a bridge in the error-propagation cycle.
type State int

const (
	StateNormal State = iota
	StateHostPending
	StateRaised
	StateReEntering
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateHostPending:
		return "host_pending"
	case StateRaised:
		return "raised"
	case StateReEntering:
		return "re_entering"
	default:
		return "unknown"
	}
}

// Observer is notified of every state transition.
type Observer interface {
	Transition(from, to State, report *errors.Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(from, to State, report *errors.Report)

// Transition implements Observer.
func (f ObserverFunc) Transition(from, to State, report *errors.Report) {
	f(from, to, report)
}
