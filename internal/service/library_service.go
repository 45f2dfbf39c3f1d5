package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stackscan/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrLibraryEntryNotFound is returned when the user has no entry for a product.
	ErrLibraryEntryNotFound = errors.New("library entry not found")
	// ErrUserRequired is returned when an operation has no user id.
	ErrUserRequired = errors.New("user id is required")
	// ErrInvalidEnrichmentStatus is returned for statuses outside the enum.
	ErrInvalidEnrichmentStatus = errors.New("invalid enrichment status")
)

// LibraryService records which products each user has scanned.
type LibraryService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLibraryService creates a library service.
func NewLibraryService(gdb *gorm.DB) *LibraryService {
	return &LibraryService{db: gdb, now: time.Now}
}

// RecordScan inserts the (user, product) entry or bumps its scan count.
// Concurrent calls for the same pair never produce a duplicate row.
// An entry added by SyncProtocol counts its first scan as 1.
func (s *LibraryService) RecordScan(ctx context.Context, userID, productID string) (*db.LibraryEntry, error) {
	entry, _, err := s.upsert(ctx, userID, productID, db.LibrarySourceScan, true)
	return entry, err
}

// SyncProtocol adds products from a user's protocol without counting a scan.
func (s *LibraryService) SyncProtocol(ctx context.Context, userID string, productIDs []string) (int, error) {
	added := 0
	for _, productID := range productIDs {
		productID = strings.TrimSpace(productID)
		if productID == "" {
			continue
		}
		_, inserted, err := s.upsert(ctx, userID, productID, db.LibrarySourceProtocol, false)
		if err != nil {
			return added, err
		}
		if inserted {
			added++
		}
	}
	return added, nil
}

func (s *LibraryService) upsert(ctx context.Context, userID, productID, source string, countScan bool) (*db.LibraryEntry, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, false, ErrUserRequired
	}

	now := s.now()
	record := db.LibraryEntry{
		UserID:           userID,
		ProductID:        productID,
		ScanCount:        1,
		FirstScannedAt:   now,
		EnrichmentStatus: db.EnrichmentNotEnriched,
		Source:           source,
	}

	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
		DoNothing: true,
	}
	if countScan {
		conflict = clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			// A protocol entry has never been scanned: its first real scan
			// restarts the count and takes over the source.
			DoUpdates: clause.Assignments(map[string]interface{}{
				"scan_count":       gorm.Expr("CASE WHEN user_supplement_library.source = ? THEN 1 ELSE user_supplement_library.scan_count + 1 END", db.LibrarySourceProtocol),
				"first_scanned_at": gorm.Expr("CASE WHEN user_supplement_library.source = ? THEN ? ELSE user_supplement_library.first_scanned_at END", db.LibrarySourceProtocol, now),
				"source":           gorm.Expr("CASE WHEN user_supplement_library.source = ? THEN ? ELSE user_supplement_library.source END", db.LibrarySourceProtocol, source),
				"updated_at":       now,
			}),
		}
	}

	tx := s.db.WithContext(ctx)
	res := tx.Clauses(conflict).Omit(clause.Associations).Create(&record)
	if res.Error != nil {
		return nil, false, fmt.Errorf("upsert library entry: %w", res.Error)
	}

	var entry db.LibraryEntry
	if err := tx.Where("user_id = ? AND product_id = ?", userID, productID).First(&entry).Error; err != nil {
		return nil, false, fmt.Errorf("reload library entry: %w", err)
	}
	return &entry, res.RowsAffected > 0 && entry.ScanCount == 1, nil
}

// SetEnrichmentStatus records the outcome of enrichment for the user's entry.
// An entry that is already enriched is never downgraded to partial.
func (s *LibraryService) SetEnrichmentStatus(ctx context.Context, userID, productID, status string) error {
	switch status {
	case db.EnrichmentNotEnriched, db.EnrichmentPartial, db.EnrichmentEnriched:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEnrichmentStatus, status)
	}

	query := s.db.WithContext(ctx).Model(&db.LibraryEntry{}).
		Where("user_id = ? AND product_id = ?", userID, productID)
	if status != db.EnrichmentEnriched {
		query = query.Where("enrichment_status <> ?", db.EnrichmentEnriched)
	}

	if err := query.Updates(map[string]interface{}{
		"enrichment_status": status,
		"updated_at":        s.now(),
	}).Error; err != nil {
		return fmt.Errorf("update enrichment status: %w", err)
	}
	return nil
}

// Get returns the user's entry for a product.
func (s *LibraryService) Get(ctx context.Context, userID, productID string) (*db.LibraryEntry, error) {
	var entry db.LibraryEntry
	err := s.db.WithContext(ctx).Preload("Product").
		Where("user_id = ? AND product_id = ?", userID, productID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLibraryEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get library entry: %w", err)
	}
	return &entry, nil
}

// List returns the user's library, most recently updated first.
func (s *LibraryService) List(ctx context.Context, userID string) ([]db.LibraryEntry, error) {
	var entries []db.LibraryEntry
	if err := s.db.WithContext(ctx).Preload("Product").
		Where("user_id = ?", userID).
		Order("updated_at DESC").Order("id DESC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list library: %w", err)
	}
	return entries, nil
}
