package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEnrichmentFailed is returned when the service answers without product data.
var ErrEnrichmentFailed = errors.New("product enrichment failed")

// Enricher fetches marketing and research content for a product.
type Enricher interface {
	Enrich(ctx context.Context, req EnrichmentRequest) (*EnrichmentResult, error)
}

// HTTPEnricher calls a hosted enrichment function.
type HTTPEnricher struct {
	client *aiEndpointClient
}

// NewHTTPEnricher builds an enricher for the given endpoint.
func NewHTTPEnricher(endpoint, apiKey string) *HTTPEnricher {
	return &HTTPEnricher{client: newAIEndpointClient("enrichment", endpoint, apiKey)}
}

// SetHTTPClient swaps the transport, mainly for tests.
func (e *HTTPEnricher) SetHTTPClient(client httpDoer) {
	e.client.SetHTTPClient(client)
}

// Enrich posts the product id and label data.
func (e *HTTPEnricher) Enrich(ctx context.Context, req EnrichmentRequest) (*EnrichmentResult, error) {
	exchange := productExchange("http", req.ProductID)
	exchange.log("request", fmt.Sprintf("name=%q brand=%q", req.LabelData.SupplementName, req.LabelData.Brand))

	var result EnrichmentResult
	if err := e.client.post(ctx, req, &result); err != nil {
		return nil, err
	}

	if !result.Success || result.Product == nil {
		msg := strings.TrimSpace(result.Error)
		if msg == "" {
			return nil, ErrEnrichmentFailed
		}
		return nil, fmt.Errorf("%w: %s", ErrEnrichmentFailed, msg)
	}
	exchange.log("response", result.Product.Description.String())
	result.Source = "http"
	return &result, nil
}
