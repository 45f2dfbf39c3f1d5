package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	stdhtml "html"
	"log"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/stackscan/internal/db"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"gorm.io/gorm"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	htmlPolicy = bluemonday.UGCPolicy()
	textPolicy = bluemonday.StrictPolicy()
)

// LibraryStatusWriter is the part of the ledger enrichment reports to.
type LibraryStatusWriter interface {
	SetEnrichmentStatus(ctx context.Context, userID, productID, status string) error
}

// EnrichmentService attaches descriptive content to resolved products. It
// never fails: when the provider is unavailable the caller gets the basic view.
type EnrichmentService struct {
	db       *gorm.DB
	enricher Enricher
	library  LibraryStatusWriter
	timeout  time.Duration
	now      func() time.Time
}

// NewEnrichmentService creates the service. A nil enricher always yields the
// basic view. timeout bounds each provider call; zero disables the bound.
func NewEnrichmentService(gdb *gorm.DB, enricher Enricher, library LibraryStatusWriter, timeout time.Duration) *EnrichmentService {
	return &EnrichmentService{db: gdb, enricher: enricher, library: library, timeout: timeout, now: time.Now}
}

// Enrich calls the provider for product and persists the result. On any
// provider or storage error it marks the user's entry partial and returns
// BasicView. When ctx itself is cancelled nothing is written.
func (s *EnrichmentService) Enrich(ctx context.Context, userID string, product *db.Product, label LabelData) ProductView {
	if product == nil {
		return ProductView{Fallback: true}
	}
	if product.EnrichedAt != nil {
		s.markStatus(ctx, userID, product.ID, db.EnrichmentEnriched)
		return ViewFromProduct(product)
	}
	if s.enricher == nil {
		s.markStatus(ctx, userID, product.ID, db.EnrichmentPartial)
		return BasicView(product)
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.enricher.Enrich(callCtx, EnrichmentRequest{ProductID: product.ID, LabelData: label})
	if ctx.Err() != nil {
		return BasicView(product)
	}
	if err != nil {
		log.Printf("enrichment failed for product %s: %v", product.ID, err)
		s.markStatus(ctx, userID, product.ID, db.EnrichmentPartial)
		return BasicView(product)
	}

	if err := s.apply(ctx, product, result); err != nil {
		log.Printf("persist enrichment for product %s: %v", product.ID, err)
		s.markStatus(ctx, userID, product.ID, db.EnrichmentPartial)
		return BasicView(product)
	}

	s.markStatus(ctx, userID, product.ID, db.EnrichmentEnriched)
	return ViewFromProduct(product)
}

func (s *EnrichmentService) apply(ctx context.Context, product *db.Product, result *EnrichmentResult) error {
	if result == nil || result.Product == nil {
		return ErrEnrichmentFailed
	}
	fields := result.Product

	description := sanitizeText(fields.Description.String())
	research := sanitizeText(fields.ResearchSummary.String())
	descriptionHTML, err := renderMarkdown(description)
	if err != nil {
		return err
	}
	researchHTML, err := renderMarkdown(research)
	if err != nil {
		return err
	}

	benefits := make([]string, 0, len(fields.Benefits))
	for _, benefit := range fields.Benefits {
		benefits = append(benefits, sanitizeText(benefit))
	}

	source := result.Source
	if source == "" {
		source = "http"
	}
	enrichedAt := s.now()

	updates := map[string]interface{}{
		"description":       description,
		"description_html":  descriptionHTML,
		"benefits":          encodeStringList(benefits),
		"research_summary":  research,
		"research_html":     researchHTML,
		"category":          sanitizeText(fields.Category.String()),
		"enrichment_source": source,
		"enriched_at":       enrichedAt,
	}
	if product.Ingredients == "" && fields.Ingredients.String() != "" {
		updates["ingredients"] = sanitizeText(fields.Ingredients.String())
	}
	if product.Warnings == "" && fields.Warnings.String() != "" {
		updates["warnings"] = sanitizeText(fields.Warnings.String())
	}

	if err := s.db.WithContext(ctx).Model(product).Updates(updates).Error; err != nil {
		return fmt.Errorf("update product enrichment: %w", err)
	}

	product.Description = description
	product.DescriptionHTML = descriptionHTML
	product.Benefits = encodeStringList(benefits)
	product.ResearchSummary = research
	product.ResearchHTML = researchHTML
	product.Category = updates["category"].(string)
	product.EnrichmentSource = source
	product.EnrichedAt = &enrichedAt
	if v, ok := updates["ingredients"].(string); ok {
		product.Ingredients = v
	}
	if v, ok := updates["warnings"].(string); ok {
		product.Warnings = v
	}
	return nil
}

func (s *EnrichmentService) markStatus(ctx context.Context, userID, productID, status string) {
	if s.library == nil || strings.TrimSpace(userID) == "" {
		return
	}
	if err := s.library.SetEnrichmentStatus(ctx, userID, productID, status); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("mark library entry %s/%s %s: %v", userID, productID, status, err)
	}
}

// sanitizeText strips any markup the provider included.
func sanitizeText(input string) string {
	return strings.TrimSpace(stdhtml.UnescapeString(textPolicy.Sanitize(input)))
}

func renderMarkdown(source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return htmlPolicy.Sanitize(buf.String()), nil
}
