package playback

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// State is the playback state of a Session.
type State int

const (
	// StateIdle means nothing is loaded or playback finished.
	StateIdle State = iota
	// StateReady means a document is loaded and playback has not started.
	StateReady
	// StateGenerating means playback waits for the current clip.
	StateGenerating
	// StatePlaying means a segment is being spoken.
	StatePlaying
	// StatePaused means playback can resume from the stored position.
	StatePaused
	// StateError means the current segment could not be played. Resume
	// retries it.
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateGenerating:
		return "generating"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether a segment is playing or about to.
func (s State) Active() bool {
	return s == StateGenerating || s == StatePlaying
}

// stateMachine validates state transitions.
type stateMachine struct {
	current     State
	transitions map[State][]State
	logger      *log.Logger
	onChange    func(from, to State)
}

func newStateMachine(logger *log.Logger) *stateMachine {
	return &stateMachine{
		current: StateIdle,
		transitions: map[State][]State{
			StateIdle:       {StateReady, StateGenerating, StatePlaying, StatePaused},
			StateReady:      {StateIdle, StateGenerating, StatePlaying, StatePaused},
			StateGenerating: {StatePlaying, StatePaused, StateError, StateIdle, StateReady},
			StatePlaying:    {StatePlaying, StateGenerating, StatePaused, StateError, StateIdle, StateReady},
			StatePaused:     {StatePlaying, StateGenerating, StateIdle, StateReady},
			StateError:      {StateGenerating, StatePlaying, StatePaused, StateIdle, StateReady},
		},
		logger: logger,
	}
}

// transition moves to the given state. Staying in the current state is always
// allowed; an illegal move is logged and ignored.
func (sm *stateMachine) transition(to State) bool {
	if sm.current == to {
		return true
	}
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			sm.logger.Debug("State change", "from", sm.current, "to", to)
			from := sm.current
			sm.current = to
			if sm.onChange != nil {
				sm.onChange(from, to)
			}
			return true
		}
	}
	sm.logger.Warn("Ignoring illegal state transition", "from", sm.current, "to", to)
	return false
}

// Mode selects the playback backend.
type Mode int

const (
	// ModeClip plays synthesized audio clips.
	ModeClip Mode = iota
	// ModeUtterance speaks through the platform speech engine.
	ModeUtterance
)

func (m Mode) String() string {
	switch m {
	case ModeClip:
		return "clip"
	case ModeUtterance:
		return "utterance"
	default:
		return "unknown"
	}
}

// ParseMode parses a backend name. "synth" and "provider" select clip mode,
// "system" and "speech" select utterance mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clip", "synth", "provider", "":
		return ModeClip, nil
	case "utterance", "system", "speech":
		return ModeUtterance, nil
	default:
		return ModeClip, fmt.Errorf("unknown playback backend %q", s)
	}
}
