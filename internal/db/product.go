package db

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Product is the canonical catalog entry for one supplement SKU.
// NameKey/BrandKey hold trimmed lower-case copies so the composite unique
// index behaves case-insensitively on every driver.
type Product struct {
	ID                     string  `gorm:"primaryKey;size:36" json:"id"`
	Name                   string  `gorm:"not null" json:"name"`
	Brand                  string  `gorm:"not null" json:"brand"`
	NameKey                string  `gorm:"size:255;not null;uniqueIndex:idx_product_name_brand" json:"-"`
	BrandKey               string  `gorm:"size:255;not null;uniqueIndex:idx_product_name_brand" json:"-"`
	DosageAmount           float64 `gorm:"not null;check:dosage_amount > 0" json:"dosage_amount"`
	DosageUnit             string  `gorm:"size:16;not null;check:dosage_unit IN ('mg','g','mcg','IU','ml','serving')" json:"dosage_unit"`
	Form                   string  `gorm:"size:16;not null;check:form IN ('capsule','tablet','powder','liquid','gummy','softgel','other')" json:"form"`
	ServingsPerContainer   int     `gorm:"not null;check:servings_per_container > 0" json:"servings_per_container"`
	Barcode                *string `gorm:"size:64;uniqueIndex" json:"barcode,omitempty"`
	Ingredients            string  `gorm:"type:text" json:"ingredients,omitempty"`
	Warnings               string  `gorm:"type:text" json:"warnings,omitempty"`
	ExpirationInfo         string  `json:"expiration_info,omitempty"`
	RecommendedDailyIntake string  `json:"recommended_daily_intake,omitempty"`

	ImageURL    string `json:"image_url,omitempty"`
	ImageKey    string `json:"-"`
	ImageDigest string `gorm:"size:64" json:"-"`

	Description      string         `gorm:"type:text" json:"description,omitempty"`
	DescriptionHTML  string         `gorm:"type:text" json:"description_html,omitempty"`
	Benefits         datatypes.JSON `json:"benefits,omitempty"`
	ResearchSummary  string         `gorm:"type:text" json:"research_summary,omitempty"`
	ResearchHTML     string         `gorm:"type:text" json:"research_html,omitempty"`
	Category         string         `json:"category,omitempty"`
	EnrichmentSource string         `json:"enrichment_source,omitempty"`
	EnrichedAt       *time.Time     `json:"enriched_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the table name stable across drivers.
func (Product) TableName() string {
	return "supplement_products"
}

// BeforeCreate assigns a uuid.
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// BeforeSave refreshes the lookup keys from the display values.
func (p *Product) BeforeSave(tx *gorm.DB) error {
	if p.Name != "" {
		p.NameKey = CatalogKey(p.Name)
	}
	if p.Brand != "" {
		p.BrandKey = CatalogKey(p.Brand)
	}
	return nil
}

// CatalogKey is the normalized form used for case-insensitive name/brand matching.
func CatalogKey(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}
