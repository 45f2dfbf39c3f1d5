package scan

import (
	"errors"
	"testing"
	"time"
)

func TestManagerSessionsAreScopedToUser(t *testing.T) {
	f := newPipelineFixture(standardResult())
	m := NewManager(f.pipeline, time.Minute)
	defer m.Shutdown()

	s := m.Open("user-1")
	if _, err := m.Get("user-1", s.ID); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if _, err := m.Get("user-2", s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for another user, got %v", err)
	}

	if err := m.Close("user-1", s.ID); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if s.State() != StateCancelled {
		t.Fatalf("expected closed session to be cancelled, got %s", s.State())
	}
	if m.Len() != 0 {
		t.Fatalf("expected no live sessions, got %d", m.Len())
	}
}

func TestManagerAnalyzeRunsInBackground(t *testing.T) {
	f := newPipelineFixture(quickMatchResult())
	m := NewManager(f.pipeline, time.Minute)
	defer m.Shutdown()

	s := m.Open("user-1")
	if err := f.pipeline.Capture(t.Context(), s, SideFront, Bytes("front")); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if err := s.SkipBack(); err != nil {
		t.Fatalf("skip back: %v", err)
	}

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	if _, err := m.Analyze("user-1", s.ID); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.State == StatePresenting {
				if !snap.QuickMatch || snap.ProductID != "p1" {
					t.Fatalf("unexpected presenting snapshot %+v", snap)
				}
				return
			}
		case <-deadline:
			t.Fatalf("analysis did not reach presenting, state %s", s.State())
		}
	}
}

func TestManagerSweepDropsIdleSessions(t *testing.T) {
	f := newPipelineFixture(standardResult())
	m := NewManager(f.pipeline, time.Minute)
	defer m.Shutdown()

	idle := m.Open("user-1")
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}
	if idle.State() != StateCancelled {
		t.Fatalf("expected swept session to be cancelled, got %s", idle.State())
	}
	if _, err := m.Get("user-1", idle.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected swept session to be gone, got %v", err)
	}
}
