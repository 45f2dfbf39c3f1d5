package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stackscan/internal/blob"
	"github.com/stackscan/internal/db"
	"github.com/stackscan/internal/dosage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	unknownBrand = "Unknown"
	unknownName  = "Unknown Supplement"
)

var (
	// ErrProductNotFound is returned when a product id does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrImageStoreMissing is returned when no blob store is configured.
	ErrImageStoreMissing = errors.New("image store is not configured")
)

// ResolveInput carries the label read off a bottle plus any barcode the user typed.
type ResolveInput struct {
	Label         LabelData
	ManualBarcode string
}

// EffectiveBarcode prefers the manual entry over the recognized one.
func (in ResolveInput) EffectiveBarcode() string {
	if manual := strings.TrimSpace(in.ManualBarcode); manual != "" {
		return manual
	}
	return strings.TrimSpace(in.Label.Barcode)
}

// ResolveResult reports the canonical product and whether this call created it.
type ResolveResult struct {
	Product       *db.Product
	Created       bool
	LowConfidence bool
}

// CatalogService maps scanned labels onto canonical products.
type CatalogService struct {
	db    *gorm.DB
	store blob.Store
	now   func() time.Time
}

// NewCatalogService creates a catalog service. store may be nil when image
// uploads are disabled.
func NewCatalogService(gdb *gorm.DB, store blob.Store) *CatalogService {
	return &CatalogService{db: gdb, store: store, now: time.Now}
}

// Resolve returns the product for the label, creating it when none matches.
// Lookup goes by barcode first, then by case-insensitive name and brand.
func (s *CatalogService) Resolve(ctx context.Context, input ResolveInput) (*ResolveResult, error) {
	label := dosage.ParseLabel(input.Label.DosagePerServing.String(), input.Label.Form)
	barcode := input.EffectiveBarcode()
	name := strings.TrimSpace(input.Label.SupplementName)
	if name == "" {
		name = unknownName
	}
	brand := strings.TrimSpace(input.Label.Brand)
	if brand == "" {
		brand = unknownBrand
	}

	tx := s.db.WithContext(ctx)

	if barcode != "" {
		var existing db.Product
		err := tx.Where("barcode = ?", barcode).First(&existing).Error
		if err == nil {
			return &ResolveResult{Product: &existing, LowConfidence: label.LowConfidence}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find product by barcode: %w", err)
		}
	}

	existing, err := s.findByNameBrand(tx, name, brand)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if barcode != "" && existing.Barcode == nil {
			if err := tx.Model(existing).Update("barcode", barcode).Error; err != nil {
				return nil, fmt.Errorf("attach barcode: %w", err)
			}
			existing.Barcode = &barcode
		}
		return &ResolveResult{Product: existing, LowConfidence: label.LowConfidence}, nil
	}

	product := db.Product{
		Name:                   name,
		Brand:                  brand,
		DosageAmount:           label.Amount,
		DosageUnit:             string(label.Unit),
		Form:                   string(label.Form),
		ServingsPerContainer:   dosage.NormalizeServings(int(input.Label.ServingsPerContainer)),
		Ingredients:            input.Label.Ingredients.String(),
		Warnings:               input.Label.Warnings.String(),
		ExpirationInfo:         input.Label.ExpirationInfo.String(),
		RecommendedDailyIntake: input.Label.RecommendedDailyIntake.String(),
	}
	if barcode != "" {
		product.Barcode = &barcode
	}

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Omit(clause.Associations).Create(&product)
	if res.Error != nil {
		return nil, fmt.Errorf("create product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost a race with a concurrent scan of the same bottle.
		winner, err := s.reloadAfterConflict(tx, barcode, name, brand)
		if err != nil {
			return nil, err
		}
		return &ResolveResult{Product: winner, LowConfidence: label.LowConfidence}, nil
	}

	return &ResolveResult{Product: &product, Created: true, LowConfidence: label.LowConfidence}, nil
}

func (s *CatalogService) findByNameBrand(tx *gorm.DB, name, brand string) (*db.Product, error) {
	var existing db.Product
	err := tx.Where("name_key = ? AND brand_key = ?", db.CatalogKey(name), db.CatalogKey(brand)).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find product by name: %w", err)
	}
	return &existing, nil
}

func (s *CatalogService) reloadAfterConflict(tx *gorm.DB, barcode, name, brand string) (*db.Product, error) {
	if barcode != "" {
		var existing db.Product
		if err := tx.Where("barcode = ?", barcode).First(&existing).Error; err == nil {
			return &existing, nil
		}
	}
	existing, err := s.findByNameBrand(tx, name, brand)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("reload product: %w", ErrProductNotFound)
	}
	return existing, nil
}

// Get loads a product by id.
func (s *CatalogService) Get(ctx context.Context, id string) (*db.Product, error) {
	var product db.Product
	if err := s.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &product, nil
}

// FindByBarcode returns the id of the product carrying barcode, or "" when none does.
func (s *CatalogService) FindByBarcode(ctx context.Context, barcode string) (string, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return "", nil
	}
	var product db.Product
	err := s.db.WithContext(ctx).Select("id").Where("barcode = ?", barcode).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find product by barcode: %w", err)
	}
	return product.ID, nil
}

// AttachImage stores a product photo under {id}_{unixMillis}.jpg and records
// its public URL. Uploading the same bytes twice keeps the existing image.
func (s *CatalogService) AttachImage(ctx context.Context, productID string, jpeg []byte) (*db.Product, error) {
	if s.store == nil {
		return nil, ErrImageStoreMissing
	}

	product, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	digest := blob.Digest(jpeg)
	if product.ImageDigest == digest && product.ImageURL != "" {
		return product, nil
	}

	obj, err := s.store.Put(ctx, blob.ProductImageKey(product.ID, s.now().UnixMilli()), "image/jpeg", jpeg)
	if err != nil {
		return nil, fmt.Errorf("store product image: %w", err)
	}

	updates := map[string]interface{}{
		"image_url":    obj.URL,
		"image_key":    obj.Key,
		"image_digest": obj.Digest,
	}
	if err := s.db.WithContext(ctx).Model(product).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update product image: %w", err)
	}
	product.ImageURL = obj.URL
	product.ImageKey = obj.Key
	product.ImageDigest = obj.Digest
	return product, nil
}
