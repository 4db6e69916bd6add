package domain

import "fmt"

// State is the orchestrator's position for one chain.
type State int

const (
	StateCreated State = iota
	StatePhase1Running
	StatePhase1Complete
	StatePhase2Running
	StatePhase2Complete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StatePhase1Running:
		return "Phase1Running"
	case StatePhase1Complete:
		return "Phase1Complete"
	case StatePhase2Running:
		return "Phase2Running"
	case StatePhase2Complete:
		return "Phase2Complete"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StatePhase2Complete || s == StateFailed
}

var transitions = map[State][]State{
	StateCreated:        {StatePhase1Running, StatePhase2Running},
	StatePhase1Running:  {StatePhase1Complete, StateFailed},
	StatePhase1Complete: {StatePhase2Running},
	StatePhase2Running:  {StatePhase2Complete, StateFailed},
}

// CanTransition reports whether from -> to is allowed. Created may jump to
// Phase2Running when Phase 1 is skipped; Failed is only reachable from a running state.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Machine tracks one chain's state and rejects illegal moves.
type Machine struct {
	state   State
	history []State
}

// NewMachine starts in Created.
func NewMachine() *Machine {
	return &Machine{state: StateCreated, history: []State{StateCreated}}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// History returns every state visited, in order.
func (m *Machine) History() []State {
	return append([]State(nil), m.history...)
}

// Transition moves to the next state.
func (m *Machine) Transition(to State) error {
	if !CanTransition(m.state, to) {
		return fmt.Errorf("illegal transition %s -> %s", m.state, to)
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}
