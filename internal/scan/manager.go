package scan

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrSessionNotFound is returned for unknown or foreign session ids.
var ErrSessionNotFound = errors.New("scan session not found")

// DefaultSessionTTL is how long an idle dialog is kept.
const DefaultSessionTTL = 30 * time.Minute

// Manager owns the live scan dialogs.
type Manager struct {
	pipeline *Pipeline
	ttl      time.Duration

	mu       sync.Mutex
	sessions map[string]*Session

	base   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
	closed bool
}

// NewManager creates a manager. A zero ttl uses DefaultSessionTTL.
func NewManager(pipeline *Pipeline, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		pipeline: pipeline,
		ttl:      ttl,
		sessions: make(map[string]*Session),
		base:     base,
		stop:     stop,
		now:      time.Now,
	}
}

// Pipeline exposes the underlying pipeline for synchronous scans.
func (m *Manager) Pipeline() *Pipeline {
	return m.pipeline
}

// Open starts a new dialog for userID.
func (m *Manager) Open(userID string) *Session {
	s := NewSession(userID)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the user's session.
func (m *Manager) Get(userID, id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok || s.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close cancels the dialog and forgets it.
func (m *Manager) Close(userID, id string) error {
	s, err := m.Get(userID, id)
	if err != nil {
		return err
	}
	m.pipeline.Cancel(s)
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Analyze starts analysis in the background. Progress reaches subscribers
// through the session.
func (m *Manager) Analyze(userID, id string) (*Session, error) {
	s, err := m.Get(userID, id)
	if err != nil {
		return nil, err
	}

	wait, err := m.pipeline.StartAnalysis(m.base, s)
	if err != nil {
		return nil, err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := wait(); err != nil && !errors.Is(err, ErrCancelled) {
			log.Printf("scan %s: analysis failed: %v", s.ID, err)
		}
	}()
	return s, nil
}

// Sweep cancels and drops sessions idle for longer than the ttl, and
// finished sessions past the same age. It returns how many were removed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.LastActivity().Before(cutoff) && !s.State().Busy() {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Cancel()
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				log.Printf("scan: swept %d idle sessions", n)
			}
		}
	}
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown cancels every session and waits for background analyses.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Cancel()
	}
	m.stop()
	m.wg.Wait()
}
