package scan

import (
	"errors"
	"testing"
)

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from State
		ev   Event
		want State
	}{
		{StateCaptureFront, EventCaptureFront, StateCaptureBack},
		{StateCaptureFront, EventRecaptureFront, StatePreview},
		{StateCaptureBack, EventCaptureBack, StatePreview},
		{StateCaptureBack, EventSkipBack, StatePreview},
		{StateCaptureBack, EventRetakeFront, StateCaptureFront},
		{StatePreview, EventRetakeFront, StateCaptureFront},
		{StatePreview, EventRetakeBack, StateCaptureBack},
		{StatePreview, EventAnalyze, StateAnalyzing},
		{StateAnalyzing, EventQuickMatch, StateQuickMatchResolved},
		{StateAnalyzing, EventEnrich, StateEnriching},
		{StateAnalyzing, EventFail, StatePreview},
		{StateQuickMatchResolved, EventPresent, StatePresenting},
		{StateQuickMatchResolved, EventFail, StatePreview},
		{StateEnriching, EventPresent, StatePresenting},
		{StateEnriching, EventFail, StatePreview},
		{StatePresenting, EventCommit, StateCommitted},
	}
	for _, tc := range cases {
		got, err := Transition(tc.from, tc.ev)
		if err != nil {
			t.Fatalf("Transition(%s, %s) returned error: %v", tc.from, tc.ev, err)
		}
		if got != tc.want {
			t.Fatalf("Transition(%s, %s) = %s, want %s", tc.from, tc.ev, got, tc.want)
		}
	}
}

func TestTransitionCancelFromEveryOpenState(t *testing.T) {
	t.Parallel()

	open := []State{StateCaptureFront, StateCaptureBack, StatePreview, StateAnalyzing, StateQuickMatchResolved, StateEnriching, StatePresenting}
	for _, state := range open {
		got, err := Transition(state, EventCancel)
		if err != nil || got != StateCancelled {
			t.Fatalf("cancel from %s = %s, %v", state, got, err)
		}
	}

	for _, state := range []State{StateCommitted, StateCancelled} {
		if _, err := Transition(state, EventCancel); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected terminal %s to reject cancel, got %v", state, err)
		}
	}
}

func TestTransitionRejectsInvalidEvents(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from State
		ev   Event
	}{
		{StateCaptureFront, EventAnalyze},
		{StateCaptureBack, EventRetakeBack},
		{StatePreview, EventCommit},
		{StateAnalyzing, EventAnalyze},
		{StateAnalyzing, EventRetakeFront},
		{StateEnriching, EventQuickMatch},
		{StatePresenting, EventFail},
		{StateCommitted, EventCommit},
	}
	for _, tc := range cases {
		got, err := Transition(tc.from, tc.ev)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("Transition(%s, %s) expected ErrInvalidTransition, got %v", tc.from, tc.ev, err)
		}
		if got != tc.from {
			t.Fatalf("rejected transition moved state to %s", got)
		}
	}
}

func TestFailuresNeverReturnToCapture(t *testing.T) {
	t.Parallel()

	for _, state := range []State{StateAnalyzing, StateQuickMatchResolved, StateEnriching} {
		got, err := Transition(state, EventFail)
		if err != nil || got != StatePreview {
			t.Fatalf("fail from %s = %s, %v; want preview", state, got, err)
		}
	}
}
