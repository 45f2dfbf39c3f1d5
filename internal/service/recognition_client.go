package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRecognitionFailed is returned when the service answers without success.
	ErrRecognitionFailed = errors.New("label recognition failed")
	// ErrFrontImageRequired is returned when no front photo is supplied.
	ErrFrontImageRequired = errors.New("front image is required")
)

// Recognizer reads a label from one or two bottle photos.
type Recognizer interface {
	Recognize(ctx context.Context, req RecognitionRequest) (*RecognitionResult, error)
}

type recognitionPayload struct {
	FrontImage string `json:"frontImage"`
	BackImage  string `json:"backImage,omitempty"`
}

// HTTPRecognizer calls a hosted recognition function.
type HTTPRecognizer struct {
	client *aiEndpointClient
}

// NewHTTPRecognizer builds a recognizer for the given endpoint.
func NewHTTPRecognizer(endpoint, apiKey string) *HTTPRecognizer {
	return &HTTPRecognizer{client: newAIEndpointClient("recognition", endpoint, apiKey)}
}

// SetHTTPClient swaps the transport, mainly for tests.
func (r *HTTPRecognizer) SetHTTPClient(client httpDoer) {
	r.client.SetHTTPClient(client)
}

// Recognize sends the photos as base64 and decodes the extracted label.
func (r *HTTPRecognizer) Recognize(ctx context.Context, req RecognitionRequest) (*RecognitionResult, error) {
	if len(req.FrontImage) == 0 {
		return nil, ErrFrontImageRequired
	}

	payload := recognitionPayload{FrontImage: base64.StdEncoding.EncodeToString(req.FrontImage)}
	if len(req.BackImage) > 0 {
		payload.BackImage = base64.StdEncoding.EncodeToString(req.BackImage)
	}
	exchange := photoExchange("http", req.FrontImage)
	exchange.log("request", fmt.Sprintf("front=%dB back=%dB", len(req.FrontImage), len(req.BackImage)))

	var result RecognitionResult
	if err := r.client.post(ctx, payload, &result); err != nil {
		return nil, err
	}
	exchange.log("response", fmt.Sprintf("success=%t name=%q brand=%q quick_match=%t", result.Success, result.Extracted.SupplementName, result.Extracted.Brand, result.QuickMatch))

	if !result.Success {
		msg := strings.TrimSpace(result.Error)
		if msg == "" {
			return nil, ErrRecognitionFailed
		}
		return nil, fmt.Errorf("%w: %s", ErrRecognitionFailed, msg)
	}
	return &result, nil
}
