package db

import "time"

// Enrichment states of a library entry.
const (
	EnrichmentNotEnriched = "not_enriched"
	EnrichmentPartial     = "partial"
	EnrichmentEnriched    = "enriched"
)

// Sources of a library entry.
const (
	LibrarySourceScan     = "scan"
	LibrarySourceProtocol = "protocol"
	LibrarySourceManual   = "manual"
)

// LibraryEntry records that a user has scanned or owns a product.
// UserID + ProductID carry a unique index so the ledger upsert is idempotent.
type LibraryEntry struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           string    `gorm:"size:64;not null;index;uniqueIndex:idx_library_user_product" json:"user_id"`
	ProductID        string    `gorm:"size:36;not null;uniqueIndex:idx_library_user_product" json:"product_id"`
	Product          Product   `gorm:"foreignKey:ProductID" json:"product"`
	ScanCount        int       `gorm:"not null;default:1;check:scan_count >= 1" json:"scan_count"`
	FirstScannedAt   time.Time `gorm:"not null" json:"first_scanned_at"`
	EnrichmentStatus string    `gorm:"size:16;not null;default:not_enriched" json:"enrichment_status"`
	Source           string    `gorm:"size:16;not null;default:scan" json:"source"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"last_updated_at"`
}

// TableName overrides the default pluralization.
func (LibraryEntry) TableName() string {
	return "user_supplement_library"
}
