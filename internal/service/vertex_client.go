package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

// ErrEmptyModelResponse is returned when the model produced no text.
var ErrEmptyModelResponse = errors.New("model returned no content")

type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// BarcodeLookup resolves a barcode to a known product id. An empty id means no match.
type BarcodeLookup func(ctx context.Context, barcode string) (string, error)

// VertexOptions configures a Gemini model on Vertex AI.
type VertexOptions struct {
	ProjectID       string
	Location        string
	CredentialsFile string
	Model           string
}

// VertexClient reads labels and writes product descriptions with a Gemini model.
// It serves as both Recognizer and Enricher.
type VertexClient struct {
	client *genai.Client
	model  contentGenerator
	lookup BarcodeLookup
}

// NewVertexClient connects to Vertex AI.
func NewVertexClient(ctx context.Context, opts VertexOptions) (*VertexClient, error) {
	if strings.TrimSpace(opts.ProjectID) == "" {
		return nil, errors.New("vertex project id is required")
	}

	clientOpts := []option.ClientOption{}
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, opts.ProjectID, opts.Location, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create vertex client: %w", err)
	}

	model := client.GenerativeModel(opts.Model)
	model.SetTemperature(0.2)
	return &VertexClient{client: client, model: model}, nil
}

// SetBarcodeLookup enables quick matches against the local catalog.
func (v *VertexClient) SetBarcodeLookup(lookup BarcodeLookup) {
	v.lookup = lookup
}

// Close releases the underlying connection.
func (v *VertexClient) Close() error {
	if v.client == nil {
		return nil
	}
	return v.client.Close()
}

const recognitionPrompt = `You are reading the label of a dietary supplement bottle.
The first image is the front of the bottle. A second image, when present, is the back label.
Respond with a single JSON object and nothing else:
{
  "extracted": {
    "brand": "string",
    "supplement_name": "string",
    "dosage_per_serving": "amount and unit, e.g. 500 mg",
    "servings_per_container": number,
    "form": "capsule|tablet|powder|liquid|gummy|softgel|other",
    "barcode": "digits if visible, otherwise empty",
    "recommended_daily_intake": "string",
    "ingredients": "string",
    "warnings": "string",
    "expiration_info": "string"
  },
  "suggestions": {
    "intake_times": ["morning|afternoon|evening|bedtime"],
    "linked_biomarkers": ["string"],
    "ai_rationale": "string",
    "target_outcome": "string"
  }
}`

// Recognize asks the model to read the label from the photos.
func (v *VertexClient) Recognize(ctx context.Context, req RecognitionRequest) (*RecognitionResult, error) {
	if len(req.FrontImage) == 0 {
		return nil, ErrFrontImageRequired
	}

	parts := []genai.Part{genai.Text(recognitionPrompt), genai.ImageData("image/jpeg", req.FrontImage)}
	if len(req.BackImage) > 0 {
		parts = append(parts, genai.ImageData("image/jpeg", req.BackImage))
	}

	text, err := v.generate(ctx, photoExchange("vertex", req.FrontImage), parts...)
	if err != nil {
		return nil, err
	}

	var result RecognitionResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("decode recognition output: %w", err)
	}
	result.Success = true

	if barcode := strings.TrimSpace(result.Extracted.Barcode); barcode != "" && v.lookup != nil {
		productID, err := v.lookup(ctx, barcode)
		if err != nil {
			return nil, fmt.Errorf("lookup barcode: %w", err)
		}
		if productID != "" {
			result.QuickMatch = true
			result.ProductID = productID
		}
	}
	return &result, nil
}

const enrichmentPrompt = `Write consumer-facing information about this dietary supplement.
Product: %s by %s, %s per serving, form %s.
Ingredients: %s
Respond with a single JSON object and nothing else:
{
  "description": "markdown, two short paragraphs",
  "benefits": ["string"],
  "research_summary": "markdown summary of the evidence",
  "category": "string"
}`

// Enrich asks the model for a description of the product.
func (v *VertexClient) Enrich(ctx context.Context, req EnrichmentRequest) (*EnrichmentResult, error) {
	label := req.LabelData
	prompt := fmt.Sprintf(enrichmentPrompt, label.SupplementName, label.Brand, label.DosagePerServing, label.Form, label.Ingredients)

	text, err := v.generate(ctx, productExchange("vertex", req.ProductID), genai.Text(prompt))
	if err != nil {
		return nil, err
	}

	var fields EnrichedFields
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, fmt.Errorf("decode enrichment output: %w", err)
	}
	if fields.Description.String() == "" && len(fields.Benefits) == 0 {
		return nil, ErrEnrichmentFailed
	}
	return &EnrichmentResult{Success: true, Product: &fields, Source: "vertex"}, nil
}

func (v *VertexClient) generate(ctx context.Context, exchange aiExchange, parts ...genai.Part) (string, error) {
	if v.model == nil {
		return "", errors.New("vertex model not loaded")
	}

	resp, err := v.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("call vertex %s: %w", exchange.kind, err)
	}

	text := responseText(resp)
	exchange.log("response", text)
	if text == "" {
		return "", ErrEmptyModelResponse
	}
	return stripCodeFence(text), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}

	var builder strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			builder.WriteString(string(text))
		}
	}
	return strings.TrimSpace(builder.String())
}

// stripCodeFence removes a surrounding ```json ... ``` block.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		trimmed = trimmed[newline+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
