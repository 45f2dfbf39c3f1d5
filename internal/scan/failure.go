package scan

import (
	"errors"
	"fmt"
)

// Kind classifies a failed scan step.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindRecognition Kind = "recognition"
	KindCatalog     Kind = "catalog"
	KindLedger      Kind = "ledger"
	KindPreprocess  Kind = "preprocess"
	KindCommit      Kind = "commit"
	KindInternal    Kind = "internal"
)

// ErrCancelled is returned when the dialog was closed while work was in flight.
var ErrCancelled = errors.New("scan cancelled")

// Failure is a user-facing scan error. Message is safe to show as is.
type Failure struct {
	Kind    Kind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Message
	}
	return fmt.Sprintf("%s: %v", f.Message, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func newFailure(kind Kind, err error) *Failure {
	return &Failure{Kind: kind, Message: failureMessage(kind, err), Err: err}
}

func failureMessage(kind Kind, err error) string {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	switch kind {
	case KindTimeout:
		return "Analysis took too long. Check your connection and try again."
	case KindRecognition:
		return "We couldn't read the label: " + detail
	case KindCatalog:
		return "We couldn't save this product: " + detail
	case KindLedger:
		return "We couldn't add this product to your library: " + detail
	case KindPreprocess:
		return "We couldn't process that photo: " + detail
	case KindCommit:
		return "We couldn't add this product to your stack: " + detail
	default:
		return "Something went wrong while scanning. Please try again."
	}
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}
