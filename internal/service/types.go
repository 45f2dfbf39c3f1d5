package service

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Text decodes label fields that may arrive as a string, a list of strings,
// a number or null. Lists are joined with ", ".
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*t = ""
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(s))
	case '[':
		var items []Text
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if s := strings.TrimSpace(string(item)); s != "" {
				parts = append(parts, s)
			}
		}
		*t = Text(strings.Join(parts, ", "))
	case '{':
		*t = ""
	default:
		*t = Text(string(trimmed))
	}
	return nil
}

// String returns the trimmed text.
func (t Text) String() string {
	return strings.TrimSpace(string(t))
}

var leadingNumber = regexp.MustCompile(`^-?\d+(\.\d+)?`)

// Count decodes a servings count given as a number, a string such as
// "60 capsules", or null. Anything unreadable decodes as zero.
type Count int

// UnmarshalJSON implements json.Unmarshaler.
func (c *Count) UnmarshalJSON(data []byte) error {
	var raw Text
	if err := raw.UnmarshalJSON(data); err != nil {
		*c = 0
		return nil
	}
	match := leadingNumber.FindString(raw.String())
	if match == "" {
		*c = 0
		return nil
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		*c = 0
		return nil
	}
	*c = Count(int(value))
	return nil
}

// LabelData is the structured content read off a bottle.
type LabelData struct {
	Brand                  string `json:"brand"`
	SupplementName         string `json:"supplement_name"`
	DosagePerServing       Text   `json:"dosage_per_serving"`
	ServingsPerContainer   Count  `json:"servings_per_container"`
	Form                   string `json:"form"`
	Barcode                string `json:"barcode,omitempty"`
	RecommendedDailyIntake Text   `json:"recommended_daily_intake,omitempty"`
	Ingredients            Text   `json:"ingredients,omitempty"`
	Warnings               Text   `json:"warnings,omitempty"`
	ExpirationInfo         Text   `json:"expiration_info,omitempty"`
}

// Suggestions are the recognizer's proposals for the user's stack.
type Suggestions struct {
	IntakeTimes      []string `json:"intake_times"`
	LinkedBiomarkers []string `json:"linked_biomarkers"`
	AIRationale      Text     `json:"ai_rationale"`
	TargetOutcome    Text     `json:"target_outcome"`
}

// RecognitionRequest carries one or two preprocessed JPEG photos.
type RecognitionRequest struct {
	FrontImage []byte
	BackImage  []byte
}

// RecognitionResult mirrors the recognition service response.
type RecognitionResult struct {
	Success     bool        `json:"success"`
	Extracted   LabelData   `json:"extracted"`
	Suggestions Suggestions `json:"suggestions"`
	QuickMatch  bool        `json:"quick_match,omitempty"`
	ProductID   string      `json:"productId,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// IsQuickMatch reports whether the service resolved the barcode to a known product.
func (r *RecognitionResult) IsQuickMatch() bool {
	return r != nil && r.QuickMatch && strings.TrimSpace(r.ProductID) != ""
}

// EnrichmentRequest asks the enrichment service to describe a product.
type EnrichmentRequest struct {
	ProductID string    `json:"productId"`
	LabelData LabelData `json:"labelData"`
}

// EnrichedFields are the marketing and research fields returned by enrichment.
type EnrichedFields struct {
	Description     Text     `json:"description"`
	Benefits        []string `json:"benefits"`
	ResearchSummary Text     `json:"research_summary"`
	Category        Text     `json:"category"`
	Ingredients     Text     `json:"ingredients,omitempty"`
	Warnings        Text     `json:"warnings,omitempty"`
}

// EnrichmentResult mirrors the enrichment service response.
type EnrichmentResult struct {
	Success bool            `json:"success"`
	Product *EnrichedFields `json:"product,omitempty"`
	Error   string          `json:"error,omitempty"`
	// Source names the provider that produced the fields.
	Source string `json:"-"`
}
