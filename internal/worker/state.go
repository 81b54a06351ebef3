package worker

import (
	"errors"
	"fmt"
)

// State is the session state of the worker.
type State int

const (
	StateUninitialized State = iota
	StateSessionJoined
	StateTrainingRunning
	StateIdle
	StateFailed
)

var stateNames = map[State]string{
	StateUninitialized:   "UNINITIALIZED",
	StateSessionJoined:   "SESSION_JOINED",
	StateTrainingRunning: "TRAINING_RUNNING",
	StateIdle:            "IDLE",
	StateFailed:          "FAILED",
}

// AllStates lists every state in declaration order.
var AllStates = []State{
	StateUninitialized,
	StateSessionJoined,
	StateTrainingRunning,
	StateIdle,
	StateFailed,
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state name in JSON status output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNoSession is returned by StartTraining before a session was joined.
	ErrNoSession = errors.New("no coordination environment; join a session first")
)

// transitions lists the allowed targets of each state. Joining a session is
// possible from every state except while training runs; training only starts
// from a joined session.
var transitions = map[State][]State{
	StateUninitialized:   {StateSessionJoined},
	StateSessionJoined:   {StateSessionJoined, StateTrainingRunning, StateUninitialized},
	StateTrainingRunning: {StateIdle, StateFailed},
	StateIdle:            {StateSessionJoined, StateUninitialized},
	StateFailed:          {StateSessionJoined, StateUninitialized},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
