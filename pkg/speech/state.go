package speech

// SessionState represents the lifecycle state of an utterance session.
type SessionState int

const (
	// StateIdle indicates the session has not started, or was stopped.
	StateIdle SessionState = iota
	// StateStarting indicates a start has been issued but not completed.
	StateStarting
	// StatePlaying indicates the timeline is advancing.
	StatePlaying
	// StatePaused indicates playback is paused.
	StatePaused
	// StateFinished indicates the utterance completed naturally.
	StateFinished
	// StateCancelled indicates the utterance was aborted.
	StateCancelled
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// stateMachine guards session state transitions.
type stateMachine struct {
	current     SessionState
	transitions map[SessionState][]SessionState
}

// newSessionMachine creates a state machine with the session's valid
// transitions. Cancel and Stop are reachable from every state so both stay
// idempotent and safe to call at any time.
func newSessionMachine() *stateMachine {
	return &stateMachine{
		current: StateIdle,
		transitions: map[SessionState][]SessionState{
			StateIdle:      {StateStarting, StateCancelled, StateIdle},
			StateStarting:  {StatePlaying, StatePaused, StateCancelled, StateIdle},
			StatePlaying:   {StatePaused, StateFinished, StateCancelled, StateIdle},
			StatePaused:    {StatePlaying, StateCancelled, StateIdle},
			StateFinished:  {StateStarting, StateCancelled, StateIdle},
			StateCancelled: {StateStarting, StateCancelled, StateIdle},
		},
	}
}

// transition attempts to move to the given state, reporting success.
func (sm *stateMachine) transition(to SessionState) bool {
	for _, state := range sm.transitions[sm.current] {
		if state == to {
			sm.current = to
			return true
		}
	}
	return false
}

// state returns the current state.
func (sm *stateMachine) state() SessionState {
	return sm.current
}
