package turn

import "fmt"

// State is the coordinator's turn state. Exactly one value is current at a
// time, so Speaking and Listening can never hold together.
type State int

const (
	// StateIdle means neither listening nor speaking.
	StateIdle State = iota
	// StateListening means the microphone is held and capture windows run.
	StateListening
	// StateProcessing means a clip is with the interpreter. The microphone
	// stays held but no window is open.
	StateProcessing
	// StateSpeaking means speech output owns the speaker. The microphone is
	// released.
	StateSpeaking
	// StateCooldown is the quiet gap after speech before capture resumes.
	StateCooldown
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// allowedTransitions lists every legal move other than the move to Idle,
// which is allowed from any state.
var allowedTransitions = map[State][]State{
	StateIdle:       {StateListening, StateSpeaking},
	StateListening:  {StateProcessing, StateSpeaking},
	StateProcessing: {StateSpeaking, StateListening},
	StateSpeaking:   {StateCooldown},
	StateCooldown:   {StateListening, StateSpeaking},
}

// CanTransition reports whether the state table allows from -> to.
func CanTransition(from, to State) bool {
	if to == StateIdle {
		return from != StateIdle
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned when a transition is not in the state table.
type TransitionError struct {
	From   State
	To     State
	Reason string
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid turn transition %s -> %s (%s)", e.From, e.To, e.Reason)
}
