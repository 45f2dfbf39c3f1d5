package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stackscan/internal/db"
	"github.com/stackscan/internal/imageprep"
	"github.com/stackscan/internal/service"
)

// DefaultRecognitionTimeout bounds a single recognition call.
const DefaultRecognitionTimeout = 90 * time.Second

// Source produces raw photo bytes, from a camera or a picked file.
type Source interface {
	Capture(ctx context.Context) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]byte, error)

// Capture implements Source.
func (f SourceFunc) Capture(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// Bytes is a Source for an already uploaded file.
type Bytes []byte

// Capture implements Source.
func (b Bytes) Capture(context.Context) ([]byte, error) {
	return b, nil
}

// Catalog resolves labels to canonical products.
type Catalog interface {
	Resolve(ctx context.Context, input service.ResolveInput) (*service.ResolveResult, error)
	Get(ctx context.Context, id string) (*db.Product, error)
	AttachImage(ctx context.Context, productID string, jpeg []byte) (*db.Product, error)
}

// Ledger records completed scans.
type Ledger interface {
	RecordScan(ctx context.Context, userID, productID string) (*db.LibraryEntry, error)
}

// Enrichment produces the presented product view. It never fails.
type Enrichment interface {
	Enrich(ctx context.Context, userID string, product *db.Product, label service.LabelData) service.ProductView
}

// Stack persists committed products.
type Stack interface {
	Commit(ctx context.Context, input service.CommitInput) (*service.StackItemView, error)
	Delete(ctx context.Context, userID, id string) error
}

// Options wires a Pipeline.
type Options struct {
	Recognizer         service.Recognizer
	Catalog            Catalog
	Ledger             Ledger
	Enrichment         Enrichment
	Stack              Stack
	RecognitionTimeout time.Duration
}

// Pipeline performs the side effects of the scan dialog.
type Pipeline struct {
	recognizer service.Recognizer
	catalog    Catalog
	ledger     Ledger
	enrichment Enrichment
	stack      Stack
	timeout    time.Duration
	preprocess func([]byte) ([]byte, error)
}

// NewPipeline creates a pipeline. A zero timeout uses DefaultRecognitionTimeout.
func NewPipeline(opts Options) *Pipeline {
	timeout := opts.RecognitionTimeout
	if timeout <= 0 {
		timeout = DefaultRecognitionTimeout
	}
	return &Pipeline{
		recognizer: opts.Recognizer,
		catalog:    opts.Catalog,
		ledger:     opts.Ledger,
		enrichment: opts.Enrichment,
		stack:      opts.Stack,
		timeout:    timeout,
		preprocess: imageprep.Normalize,
	}
}

// ScanResult is what a completed analysis presents.
type ScanResult struct {
	SessionID   string              `json:"session_id"`
	ProductID   string              `json:"product_id"`
	QuickMatch  bool                `json:"quick_match"`
	Product     service.ProductView `json:"product"`
	Extracted   service.LabelData   `json:"extracted"`
	Suggestions service.Suggestions `json:"suggestions"`
	ScanCount   int                 `json:"scan_count"`
}

// CommitInput carries the user's choices when adding to the stack.
type CommitInput struct {
	IntakeTimes             []string
	ApproxServingsRemaining *int
}

// Capture reads a photo from src, normalizes it and stores it on the session.
// A failed conversion leaves the state unchanged.
func (p *Pipeline) Capture(ctx context.Context, s *Session, side Side, src Source) error {
	if err := s.checkCapture(side); err != nil {
		return err
	}

	raw, err := src.Capture(ctx)
	if err == nil {
		raw, err = p.preprocess(raw)
	}
	if err != nil {
		failure := newFailure(KindPreprocess, err)
		s.setFailure(failure)
		return failure
	}
	return s.storeImage(side, raw)
}

// Analyze runs recognition and resolution and waits for the result.
func (p *Pipeline) Analyze(ctx context.Context, s *Session) (*ScanResult, error) {
	wait, err := p.StartAnalysis(ctx, s)
	if err != nil {
		return nil, err
	}
	return wait()
}

// StartAnalysis moves the session to analyzing and runs the rest in the
// background. The returned func blocks until the run settles.
func (p *Pipeline) StartAnalysis(parent context.Context, s *Session) (func() (*ScanResult, error), error) {
	s.mu.Lock()
	if len(s.front) == 0 {
		s.mu.Unlock()
		return nil, service.ErrFrontImageRequired
	}
	if err := s.fireLocked(EventAnalyze); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.generation++
	gen := s.generation
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.failure = nil
	s.recognition = nil
	s.product = nil
	s.view = nil
	s.entry = nil
	req := service.RecognitionRequest{FrontImage: s.front, BackImage: s.back}
	manual := s.manualBarcode
	userID := s.UserID
	s.mu.Unlock()

	done := make(chan struct{})
	var (
		result *ScanResult
		runErr error
	)
	go func() {
		defer close(done)
		defer cancel()
		result, runErr = p.run(ctx, s, gen, userID, req, manual)
	}()

	return func() (*ScanResult, error) {
		<-done
		return result, runErr
	}, nil
}

func (p *Pipeline) run(ctx context.Context, s *Session, gen uint64, userID string, req service.RecognitionRequest, manual string) (result *ScanResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scan %s: recovered panic: %v", s.ID, r)
			result, err = nil, p.fail(s, gen, newFailure(KindInternal, fmt.Errorf("%v", r)))
		}
	}()

	recognition, err := p.recognize(ctx, req)
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	if err != nil {
		kind := KindRecognition
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return nil, p.fail(s, gen, newFailure(kind, err))
	}

	if typed := strings.TrimSpace(manual); typed != "" && typed != strings.TrimSpace(recognition.Extracted.Barcode) && recognition.QuickMatch {
		// The match was made on the barcode read off the label; the typed one wins.
		overridden := *recognition
		overridden.QuickMatch = false
		overridden.ProductID = ""
		recognition = &overridden
	}
	if recognition.IsQuickMatch() {
		return p.presentQuickMatch(ctx, s, gen, userID, recognition)
	}
	return p.presentStandard(ctx, s, gen, userID, recognition, req.FrontImage, manual)
}

func (p *Pipeline) recognize(ctx context.Context, req service.RecognitionRequest) (*service.RecognitionResult, error) {
	if p.recognizer == nil {
		return nil, service.ErrAIEndpointMissing
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type outcome struct {
		result *service.RecognitionResult
		err    error
	}
	// Buffered so a recognizer that ignores ctx can still finish after we stop waiting.
	done := make(chan outcome, 1)
	go func() {
		result, err := p.recognizer.Recognize(callCtx, req)
		done <- outcome{result: result, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("recognition exceeded %s: %w", p.timeout, context.DeadlineExceeded)
	}

	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("recognition exceeded %s: %w", p.timeout, context.DeadlineExceeded)
	}
	if out.err != nil {
		return nil, out.err
	}
	if out.result == nil {
		return nil, service.ErrRecognitionFailed
	}
	if !out.result.Success {
		if msg := strings.TrimSpace(out.result.Error); msg != "" {
			return nil, fmt.Errorf("%w: %s", service.ErrRecognitionFailed, msg)
		}
		return nil, service.ErrRecognitionFailed
	}
	return out.result, nil
}

func (p *Pipeline) presentQuickMatch(ctx context.Context, s *Session, gen uint64, userID string, recognition *service.RecognitionResult) (*ScanResult, error) {
	if !p.advance(s, gen, EventQuickMatch, func() { s.recognition = recognition }) {
		return nil, ErrCancelled
	}

	product, err := p.catalog.Get(ctx, recognition.ProductID)
	if err != nil {
		return nil, p.failStep(ctx, s, gen, KindCatalog, err)
	}

	entry, err := p.ledger.RecordScan(ctx, userID, product.ID)
	if err != nil {
		return nil, p.failStep(ctx, s, gen, KindLedger, err)
	}

	view := service.QuickMatchView(product)
	return p.present(s, gen, recognition, product, entry, view)
}

func (p *Pipeline) presentStandard(ctx context.Context, s *Session, gen uint64, userID string, recognition *service.RecognitionResult, front []byte, manual string) (*ScanResult, error) {
	if !p.advance(s, gen, EventEnrich, func() { s.recognition = recognition }) {
		return nil, ErrCancelled
	}

	resolved, err := p.catalog.Resolve(ctx, service.ResolveInput{Label: recognition.Extracted, ManualBarcode: manual})
	if err != nil {
		return nil, p.failStep(ctx, s, gen, KindCatalog, err)
	}
	product := resolved.Product

	if resolved.Created && product.ImageURL == "" && len(front) > 0 {
		if updated, err := p.catalog.AttachImage(ctx, product.ID, front); err != nil {
			if !errors.Is(err, service.ErrImageStoreMissing) {
				log.Printf("scan %s: attach product image: %v", s.ID, err)
			}
		} else {
			product = updated
		}
	}

	if !p.current(s, gen) {
		return nil, ErrCancelled
	}
	entry, err := p.ledger.RecordScan(ctx, userID, product.ID)
	if err != nil {
		return nil, p.failStep(ctx, s, gen, KindLedger, err)
	}

	if !p.current(s, gen) {
		return nil, ErrCancelled
	}
	view := p.enrichment.Enrich(ctx, userID, product, recognition.Extracted)
	view.LowConfidence = view.LowConfidence || resolved.LowConfidence

	return p.present(s, gen, recognition, product, entry, view)
}

func (p *Pipeline) present(s *Session, gen uint64, recognition *service.RecognitionResult, product *db.Product, entry *db.LibraryEntry, view service.ProductView) (*ScanResult, error) {
	applied := p.advance(s, gen, EventPresent, func() {
		s.product = product
		s.entry = entry
		s.view = &view
	})
	if !applied {
		return nil, ErrCancelled
	}

	return &ScanResult{
		SessionID:   s.ID,
		ProductID:   product.ID,
		QuickMatch:  recognition.IsQuickMatch(),
		Product:     view,
		Extracted:   recognition.Extracted,
		Suggestions: recognition.Suggestions,
		ScanCount:   entry.ScanCount,
	}, nil
}

// advance applies ev when gen is still the active run.
func (p *Pipeline) advance(s *Session, gen uint64, ev Event, apply func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen) {
		return false
	}
	if _, err := Transition(s.state, ev); err != nil {
		return false
	}
	apply()
	return s.fireLocked(ev) == nil
}

func (p *Pipeline) current(s *Session, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(gen)
}

func (p *Pipeline) failStep(ctx context.Context, s *Session, gen uint64, kind Kind, err error) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return p.fail(s, gen, newFailure(kind, err))
}

// fail returns the session to preview, keeping the captured photos.
func (p *Pipeline) fail(s *Session, gen uint64, failure *Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen) {
		return ErrCancelled
	}
	s.failure = failure
	s.recognition = nil
	s.product = nil
	s.view = nil
	s.entry = nil
	if err := s.fireLocked(EventFail); err != nil {
		return err
	}
	return failure
}

// Commit adds the presented product to the user's stack. Resolution and the
// ledger already ran during analysis and are not repeated. If the dialog is
// closed before the write returns, the new stack item is removed again.
func (p *Pipeline) Commit(ctx context.Context, s *Session, input CommitInput) (*service.StackItemView, error) {
	s.mu.Lock()
	if s.state != StatePresenting || s.product == nil || s.committing {
		s.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	s.committing = true
	productID := s.product.ID
	var suggestions service.Suggestions
	if s.recognition != nil {
		suggestions = s.recognition.Suggestions
	}
	userID := s.UserID
	s.mu.Unlock()

	item, err := p.stack.Commit(ctx, service.CommitInput{
		UserID:                  userID,
		ProductID:               productID,
		IntakeTimes:             input.IntakeTimes,
		Suggestions:             suggestions,
		ApproxServingsRemaining: input.ApproxServingsRemaining,
	})

	s.mu.Lock()
	s.committing = false
	if err == nil && s.state != StatePresenting {
		s.mu.Unlock()
		// Closed while the write was in flight: undo it.
		if err := p.stack.Delete(context.WithoutCancel(ctx), userID, item.ID); err != nil {
			log.Printf("scan %s: remove stack item %s after cancel: %v", s.ID, item.ID, err)
		}
		return nil, ErrCancelled
	}
	defer s.mu.Unlock()
	if err != nil {
		failure := newFailure(KindCommit, err)
		if s.state == StatePresenting {
			s.failure = failure
			s.touchLocked()
		}
		return nil, failure
	}

	s.stackItem = item
	s.failure = nil
	s.front, s.back = nil, nil
	if err := s.fireLocked(EventCommit); err != nil {
		return nil, err
	}
	return item, nil
}

// Cancel closes the dialog and discards any late results.
func (p *Pipeline) Cancel(s *Session) bool {
	return s.Cancel()
}

// ScanBottle runs the whole flow for one request without a dialog.
func (p *Pipeline) ScanBottle(ctx context.Context, userID string, front, back []byte, manualBarcode string) (*ScanResult, error) {
	s := NewSession(userID)
	if err := p.Capture(ctx, s, SideFront, Bytes(front)); err != nil {
		return nil, err
	}
	if len(back) > 0 {
		if err := p.Capture(ctx, s, SideBack, Bytes(back)); err != nil {
			return nil, err
		}
	} else if err := s.SkipBack(); err != nil {
		return nil, err
	}
	if manualBarcode != "" {
		if err := s.SetManualBarcode(manualBarcode); err != nil {
			return nil, err
		}
	}
	return p.Analyze(ctx, s)
}
