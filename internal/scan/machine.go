// Package scan drives the bottle scan dialog: a pure transition table, the
// per-dialog Session, the Pipeline that performs the side effects and the
// Manager that owns live sessions.
package scan

import (
	"errors"
	"fmt"
)

// State is a step of the scan dialog.
type State string

const (
	StateCaptureFront       State = "capture-front"
	StateCaptureBack        State = "capture-back"
	StatePreview            State = "preview"
	StateAnalyzing          State = "analyzing"
	StateQuickMatchResolved State = "quick-match-resolved"
	StateEnriching          State = "enriching"
	StatePresenting         State = "presenting"
	StateCommitted          State = "committed"
	StateCancelled          State = "cancelled"
)

// Event moves the dialog between states.
type Event string

const (
	EventCaptureFront   Event = "capture-front"
	EventRecaptureFront Event = "recapture-front"
	EventCaptureBack    Event = "capture-back"
	EventSkipBack       Event = "skip-back"
	EventRetakeFront    Event = "retake-front"
	EventRetakeBack     Event = "retake-back"
	EventAnalyze        Event = "analyze"
	EventQuickMatch     Event = "quick-match"
	EventEnrich         Event = "enrich"
	EventPresent        Event = "present"
	EventFail           Event = "fail"
	EventCommit         Event = "commit"
	EventCancel         Event = "cancel"
)

// ErrInvalidTransition is returned when an event is not allowed in the current state.
var ErrInvalidTransition = errors.New("invalid scan transition")

var transitions = map[State]map[Event]State{
	StateCaptureFront: {
		EventCaptureFront:   StateCaptureBack,
		EventRecaptureFront: StatePreview,
	},
	StateCaptureBack: {
		EventCaptureBack: StatePreview,
		EventSkipBack:    StatePreview,
		EventRetakeFront: StateCaptureFront,
	},
	StatePreview: {
		EventRetakeFront: StateCaptureFront,
		EventRetakeBack:  StateCaptureBack,
		EventAnalyze:     StateAnalyzing,
	},
	StateAnalyzing: {
		EventQuickMatch: StateQuickMatchResolved,
		EventEnrich:     StateEnriching,
		EventFail:       StatePreview,
	},
	StateQuickMatchResolved: {
		EventPresent: StatePresenting,
		EventFail:    StatePreview,
	},
	StateEnriching: {
		EventPresent: StatePresenting,
		EventFail:    StatePreview,
	},
	StatePresenting: {
		EventCommit: StateCommitted,
	},
}

// Terminal reports whether no further events are accepted.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateCancelled
}

// Busy reports whether an analysis is in flight.
func (s State) Busy() bool {
	return s == StateAnalyzing || s == StateQuickMatchResolved || s == StateEnriching
}

// Transition returns the state reached by applying ev to from. Every
// non-terminal state accepts EventCancel.
func Transition(from State, ev Event) (State, error) {
	if from.Terminal() {
		return from, fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	if ev == EventCancel {
		return StateCancelled, nil
	}
	next, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
	}
	return next, nil
}
