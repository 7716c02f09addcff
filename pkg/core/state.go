// Package core holds the types shared by every orchestrator component:
// the agent lifecycle state and request-scoped context values.
package core

// State describes the lifecycle state of an agent controller.
type State string

const (
	StateIdle        State = "idle"
	StateInitialized State = "initialized"
	StateProcessing  State = "processing"
	StateError       State = "error"
	StateTerminated  State = "terminated"
)

// transitions lists the states reachable from each state, excluding
// StateTerminated which is reachable from anywhere.
var transitions = map[State][]State{
	StateIdle:        {StateInitialized, StateProcessing},
	StateInitialized: {StateProcessing},
	StateProcessing:  {StateIdle, StateError},
}

// CanTransition reports whether the lifecycle allows moving from one state to another.
func CanTransition(from, to State) bool {
	if to == StateTerminated {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AcceptsRequests reports whether a request may start in this state.
func (s State) AcceptsRequests() bool {
	return s == StateIdle || s == StateInitialized
}

// Terminal reports whether no further transitions are accepted.
func (s State) Terminal() bool {
	return s == StateTerminated
}

func (s State) String() string {
	return string(s)
}
