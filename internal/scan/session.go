package scan

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stackscan/internal/db"
	"github.com/stackscan/internal/service"
)

// Side names which photo of the bottle is being captured.
type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

// Snapshot is a read-only copy of a session, sent to clients.
type Snapshot struct {
	ID            string                 `json:"id"`
	State         State                  `json:"state"`
	HasFront      bool                   `json:"has_front"`
	HasBack       bool                   `json:"has_back"`
	ManualBarcode string                 `json:"manual_barcode,omitempty"`
	QuickMatch    bool                   `json:"quick_match"`
	ProductID     string                 `json:"product_id,omitempty"`
	Extracted     *service.LabelData     `json:"extracted,omitempty"`
	Suggestions   *service.Suggestions   `json:"suggestions,omitempty"`
	Product       *service.ProductView   `json:"product,omitempty"`
	ScanCount     int                    `json:"scan_count,omitempty"`
	StackItem     *service.StackItemView `json:"stack_item,omitempty"`
	Error         string                 `json:"error,omitempty"`
	ErrorKind     Kind                   `json:"error_kind,omitempty"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Session is the ephemeral state of one scan dialog. It is never persisted.
type Session struct {
	ID     string
	UserID string

	mu            sync.Mutex
	state         State
	front         []byte
	back          []byte
	manualBarcode string
	recognition   *service.RecognitionResult
	product       *db.Product
	view          *service.ProductView
	entry         *db.LibraryEntry
	stackItem     *service.StackItemView
	failure       *Failure
	generation    uint64
	committing    bool
	cancel        context.CancelFunc
	updatedAt     time.Time

	subscribers map[int]chan Snapshot
	nextSub     int
}

// NewSession starts a dialog in capture-front.
func NewSession(userID string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		state:       StateCaptureFront,
		updatedAt:   time.Now(),
		subscribers: make(map[int]chan Snapshot),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot copies the session for presentation.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:            s.ID,
		State:         s.state,
		HasFront:      len(s.front) > 0,
		HasBack:       len(s.back) > 0,
		ManualBarcode: s.manualBarcode,
		StackItem:     s.stackItem,
		UpdatedAt:     s.updatedAt,
	}
	if s.recognition != nil {
		extracted := s.recognition.Extracted
		suggestions := s.recognition.Suggestions
		snap.Extracted = &extracted
		snap.Suggestions = &suggestions
		snap.QuickMatch = s.recognition.IsQuickMatch()
	}
	if s.product != nil {
		snap.ProductID = s.product.ID
	}
	if s.view != nil {
		view := *s.view
		snap.Product = &view
	}
	if s.entry != nil {
		snap.ScanCount = s.entry.ScanCount
	}
	if s.failure != nil {
		snap.Error = s.failure.Message
		snap.ErrorKind = s.failure.Kind
	}
	return snap
}

// LastActivity reports when the session last changed.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Subscribe streams a snapshot after every change. The returned func
// unsubscribes and closes the channel.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 8)
	ch <- s.snapshotLocked()
	if s.state.Terminal() {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if existing, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(existing)
			}
		})
	}
}

// fireLocked applies ev and notifies subscribers. Caller holds s.mu.
func (s *Session) fireLocked(ev Event) error {
	next, err := Transition(s.state, ev)
	if err != nil {
		return err
	}
	s.state = next
	s.touchLocked()
	return nil
}

// touchLocked records a change and fans out a snapshot.
func (s *Session) touchLocked() {
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Slow subscriber; it will catch up on the next change.
		}
	}
	if s.state.Terminal() {
		for id, ch := range s.subscribers {
			delete(s.subscribers, id)
			close(ch)
		}
	}
}

// SetManualBarcode records a barcode typed by the user. It overrides any
// barcode read from the label.
func (s *Session) SetManualBarcode(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() || s.state.Busy() {
		return ErrInvalidTransition
	}
	s.manualBarcode = strings.TrimSpace(code)
	s.touchLocked()
	return nil
}

// SkipBack continues without a back photo.
func (s *Session) SkipBack() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fireLocked(EventSkipBack); err != nil {
		return err
	}
	s.back = nil
	return nil
}

// Retake discards one photo and returns to its capture step.
func (s *Session) Retake(side Side) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := EventRetakeFront
	if side == SideBack {
		ev = EventRetakeBack
	}
	if _, err := Transition(s.state, ev); err != nil {
		return err
	}
	if side == SideBack {
		s.back = nil
	} else {
		s.front = nil
	}
	s.failure = nil
	return s.fireLocked(ev)
}

// storeImage saves a preprocessed photo and advances past its capture step.
func (s *Session) storeImage(side Side, jpeg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ev Event
	switch {
	case side == SideFront && len(s.back) > 0:
		ev = EventRecaptureFront
	case side == SideFront:
		ev = EventCaptureFront
	default:
		ev = EventCaptureBack
	}
	if _, err := Transition(s.state, ev); err != nil {
		return err
	}
	if side == SideFront {
		s.front = jpeg
	} else {
		s.back = jpeg
	}
	s.failure = nil
	return s.fireLocked(ev)
}

// checkCapture verifies side can be captured now, without changing state.
func (s *Session) checkCapture(side Side) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := StateCaptureFront
	if side == SideBack {
		want = StateCaptureBack
	}
	if s.state != want {
		return ErrInvalidTransition
	}
	return nil
}

func (s *Session) setFailure(f *Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = f
	s.touchLocked()
}

// Cancel closes the dialog, discarding captured photos and any result still
// in flight. It reports false when the session had already finished.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.front, s.back = nil, nil
	s.failure = nil
	_ = s.fireLocked(EventCancel)
	return true
}

// currentLocked reports whether gen is still the active run.
func (s *Session) currentLocked(gen uint64) bool {
	return s.generation == gen && !s.state.Terminal()
}
