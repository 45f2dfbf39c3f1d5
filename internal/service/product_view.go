package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/stackscan/internal/db"
	"github.com/stackscan/internal/dosage"
	"gorm.io/datatypes"
)

// ProductView is the single shape presented to the user after a scan,
// whether the product came from a quick match, a fresh enrichment or the
// fallback built from the stored record.
type ProductView struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Brand                  string     `json:"brand"`
	DosageAmount           float64    `json:"dosage_amount"`
	DosageUnit             string     `json:"dosage_unit"`
	ServingSize            string     `json:"serving_size"`
	Form                   string     `json:"form"`
	ServingsPerContainer   int        `json:"servings_per_container"`
	Barcode                string     `json:"barcode,omitempty"`
	Ingredients            string     `json:"ingredients,omitempty"`
	Warnings               string     `json:"warnings,omitempty"`
	ExpirationInfo         string     `json:"expiration_info,omitempty"`
	RecommendedDailyIntake string     `json:"recommended_daily_intake,omitempty"`
	ImageURL               string     `json:"image_url,omitempty"`
	Description            string     `json:"description,omitempty"`
	DescriptionHTML        string     `json:"description_html,omitempty"`
	Benefits               []string   `json:"benefits,omitempty"`
	ResearchSummary        string     `json:"research_summary,omitempty"`
	ResearchHTML           string     `json:"research_html,omitempty"`
	Category               string     `json:"category,omitempty"`
	EnrichedAt             *time.Time `json:"enriched_at,omitempty"`

	Enriched      bool `json:"enriched"`
	Fallback      bool `json:"fallback"`
	LowConfidence bool `json:"low_confidence"`
}

// ViewFromProduct converts a stored product into its presentation form.
func ViewFromProduct(product *db.Product) ProductView {
	if product == nil {
		return ProductView{}
	}

	view := ProductView{
		ID:                     product.ID,
		Name:                   product.Name,
		Brand:                  product.Brand,
		DosageAmount:           product.DosageAmount,
		DosageUnit:             product.DosageUnit,
		ServingSize:            dosage.Dosage{Amount: product.DosageAmount, Unit: dosage.Unit(product.DosageUnit)}.String(),
		Form:                   product.Form,
		ServingsPerContainer:   product.ServingsPerContainer,
		Ingredients:            product.Ingredients,
		Warnings:               product.Warnings,
		ExpirationInfo:         product.ExpirationInfo,
		RecommendedDailyIntake: product.RecommendedDailyIntake,
		ImageURL:               product.ImageURL,
		Description:            product.Description,
		DescriptionHTML:        product.DescriptionHTML,
		Benefits:               decodeStringList(product.Benefits),
		ResearchSummary:        product.ResearchSummary,
		ResearchHTML:           product.ResearchHTML,
		Category:               product.Category,
		EnrichedAt:             product.EnrichedAt,
		Enriched:               product.EnrichedAt != nil,
	}
	if product.Barcode != nil {
		view.Barcode = *product.Barcode
	}
	return view
}

// BasicView is the fallback shown when enrichment is unavailable.
func BasicView(product *db.Product) ProductView {
	view := ViewFromProduct(product)
	view.Fallback = true
	return view
}

func decodeStringList(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

func encodeStringList(items []string) datatypes.JSON {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	data, _ := json.Marshal(cleaned)
	return datatypes.JSON(data)
}

// QuickMatchView presents a product found by barcode. Quick matches skip
// enrichment, so the stored columns are shown as they are.
func QuickMatchView(product *db.Product) ProductView {
	return ViewFromProduct(product)
}
