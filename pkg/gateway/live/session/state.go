package session

// State is the externally visible phase of a voice session.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateGenerating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateGenerating:
		return "generating"
	default:
		return "unknown"
	}
}

// deriveState maps the loop-owned fields onto a State. An active mic wins over a
// pending request: a text_message can be in flight while the user keeps recording.
func deriveState(micActive bool, pending *pendingRequest) State {
	switch {
	case micActive:
		return StateListening
	case pending != nil:
		return StateGenerating
	default:
		return StateIdle
	}
}
