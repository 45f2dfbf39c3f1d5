package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stackscan/internal/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrStackItemNotFound is returned when the stack item does not exist for the user.
	ErrStackItemNotFound = errors.New("stack item not found")
	// ErrInvalidServings is returned for non-positive intake or negative remaining counts.
	ErrInvalidServings = errors.New("servings must be positive")
	// ErrProductRequired is returned when committing without a resolved product.
	ErrProductRequired = errors.New("product id is required")
)

// StackService manages the user's active supplement stack.
type StackService struct {
	db  *gorm.DB
	now func() time.Time
}

// CommitInput describes a product the user wants to start tracking.
type CommitInput struct {
	UserID      string
	ProductID   string
	IntakeTimes []string
	Suggestions Suggestions
	// ApproxServingsRemaining overrides the product's servings when the bottle is partly used.
	ApproxServingsRemaining *int
}

// IntakeInput records servings taken from a stack item.
type IntakeInput struct {
	Servings int
	TakenAt  time.Time
	Note     string
}

// StackItemView is a stack item with its derived servings accounting.
type StackItemView struct {
	db.StackItem
	ServingsRemaining int  `json:"servings_remaining"`
	NeedsReorder      bool `json:"needs_reorder"`
}

// NewStackService creates a stack service.
func NewStackService(gdb *gorm.DB) *StackService {
	return &StackService{db: gdb, now: time.Now}
}

// ReorderThreshold is ceil(20% of initial), clamped to [0, initial].
func ReorderThreshold(initial int) int {
	if initial <= 0 {
		return 0
	}
	threshold := (initial + 4) / 5
	if threshold > initial {
		return initial
	}
	return threshold
}

// ServingsRemaining prefers the user's approximation and never goes below zero.
func ServingsRemaining(item *db.StackItem) int {
	remaining := item.InitialServings - item.ConsumedServings
	if item.ApproxServingsRemaining != nil {
		remaining = *item.ApproxServingsRemaining
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NeedsReorder reports whether the remaining servings reached the threshold.
func NeedsReorder(item *db.StackItem) bool {
	return ServingsRemaining(item) <= item.ReorderThreshold
}

// ViewStackItem attaches the derived values.
func ViewStackItem(item db.StackItem) StackItemView {
	return StackItemView{
		StackItem:         item,
		ServingsRemaining: ServingsRemaining(&item),
		NeedsReorder:      NeedsReorder(&item),
	}
}

// NormalizeIntakeTimes maps free-form tags onto the accepted set, dropping
// unknown values and duplicates while keeping display order.
func NormalizeIntakeTimes(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	for _, value := range raw {
		if tag := intakeTag(value); tag != "" {
			seen[tag] = true
		}
	}
	tags := make([]string, 0, len(seen))
	for _, tag := range db.IntakeTimeTags {
		if seen[tag] {
			tags = append(tags, tag)
		}
	}
	return tags
}

func intakeTag(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "morning", "am", "breakfast":
		return db.IntakeMorning
	case "afternoon", "noon", "lunch", "midday":
		return db.IntakeAfternoon
	case "evening", "pm", "dinner":
		return db.IntakeEvening
	case "bedtime", "night", "before bed":
		return db.IntakeBedtime
	default:
		return ""
	}
}

// Commit creates a stack item for an already-resolved product. Intake times
// fall back to the recognizer's suggestions, then to morning.
func (s *StackService) Commit(ctx context.Context, input CommitInput) (*StackItemView, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, ErrUserRequired
	}
	if strings.TrimSpace(input.ProductID) == "" {
		return nil, ErrProductRequired
	}
	if input.ApproxServingsRemaining != nil && *input.ApproxServingsRemaining < 0 {
		return nil, ErrInvalidServings
	}

	tx := s.db.WithContext(ctx)

	var product db.Product
	if err := tx.First(&product, "id = ?", input.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("load product: %w", err)
	}

	times := NormalizeIntakeTimes(input.IntakeTimes)
	aiSuggested := false
	if len(times) == 0 {
		times = NormalizeIntakeTimes(input.Suggestions.IntakeTimes)
		aiSuggested = len(times) > 0
	}
	if len(times) == 0 {
		times = []string{db.IntakeMorning}
	}

	initial := product.ServingsPerContainer
	if initial < 1 {
		initial = 1
	}

	item := db.StackItem{
		UserID:                  userID,
		ProductID:               product.ID,
		IntakeTimes:             mustJSON(times),
		InitialServings:         initial,
		ApproxServingsRemaining: input.ApproxServingsRemaining,
		ReorderThreshold:        ReorderThreshold(initial),
		AISuggested:             aiSuggested,
		Rationale:               input.Suggestions.AIRationale.String(),
		LinkedBiomarkers:        encodeStringList(input.Suggestions.LinkedBiomarkers),
		TargetOutcome:           input.Suggestions.TargetOutcome.String(),
		Active:                  true,
	}
	if err := tx.Omit("Product", "IntakeLogs").Create(&item).Error; err != nil {
		return nil, fmt.Errorf("create stack item: %w", err)
	}

	item.Product = product
	view := ViewStackItem(item)
	return &view, nil
}

// List returns the user's stack, active items first.
func (s *StackService) List(ctx context.Context, userID string, includePaused bool) ([]StackItemView, error) {
	query := s.db.WithContext(ctx).Preload("Product").Where("user_id = ?", userID)
	if !includePaused {
		query = query.Where("active = ?", true)
	}

	var items []db.StackItem
	if err := query.Order("active DESC").Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list stack: %w", err)
	}

	views := make([]StackItemView, 0, len(items))
	for _, item := range items {
		views = append(views, ViewStackItem(item))
	}
	return views, nil
}

// Get returns one item of the user's stack.
func (s *StackService) Get(ctx context.Context, userID, id string) (*StackItemView, error) {
	item, err := s.load(s.db.WithContext(ctx), userID, id)
	if err != nil {
		return nil, err
	}
	view := ViewStackItem(*item)
	return &view, nil
}

func (s *StackService) load(tx *gorm.DB, userID, id string) (*db.StackItem, error) {
	var item db.StackItem
	if err := tx.Preload("Product").Where("id = ? AND user_id = ?", id, userID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStackItemNotFound
		}
		return nil, fmt.Errorf("get stack item: %w", err)
	}
	return &item, nil
}

// LogIntake records servings taken and consumes them from the item.
func (s *StackService) LogIntake(ctx context.Context, userID, id string, input IntakeInput) (*StackItemView, error) {
	servings := input.Servings
	if servings == 0 {
		servings = 1
	}
	if servings < 0 {
		return nil, ErrInvalidServings
	}
	takenAt := input.TakenAt
	if takenAt.IsZero() {
		takenAt = s.now()
	}

	var updated *db.StackItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.load(tx, userID, id)
		if err != nil {
			return err
		}

		entry := db.IntakeLog{
			StackItemID: item.ID,
			UserID:      item.UserID,
			Servings:    servings,
			TakenAt:     takenAt,
			Note:        strings.TrimSpace(input.Note),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("create intake log: %w", err)
		}

		updates := map[string]interface{}{
			"consumed_servings": gorm.Expr("consumed_servings + ?", servings),
		}
		if item.ApproxServingsRemaining != nil {
			updates["approx_servings_remaining"] = gorm.Expr(
				"CASE WHEN approx_servings_remaining > ? THEN approx_servings_remaining - ? ELSE 0 END",
				servings, servings,
			)
		}
		if err := tx.Model(&db.StackItem{}).Where("id = ?", item.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("consume servings: %w", err)
		}

		updated, err = s.load(tx, userID, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	view := ViewStackItem(*updated)
	return &view, nil
}

// SetApproxRemaining records the user's estimate of what is left in the bottle.
// A nil value clears the estimate.
func (s *StackService) SetApproxRemaining(ctx context.Context, userID, id string, remaining *int) (*StackItemView, error) {
	if remaining != nil && *remaining < 0 {
		return nil, ErrInvalidServings
	}
	return s.update(ctx, userID, id, map[string]interface{}{"approx_servings_remaining": remaining})
}

// SetActive pauses or resumes an item. Paused items are kept, not deleted.
func (s *StackService) SetActive(ctx context.Context, userID, id string, active bool) (*StackItemView, error) {
	return s.update(ctx, userID, id, map[string]interface{}{"active": active})
}

func (s *StackService) update(ctx context.Context, userID, id string, updates map[string]interface{}) (*StackItemView, error) {
	tx := s.db.WithContext(ctx)
	res := tx.Model(&db.StackItem{}).Where("id = ? AND user_id = ?", id, userID).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update stack item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrStackItemNotFound
	}
	return s.Get(ctx, userID, id)
}

// Delete removes the item together with its intake logs.
func (s *StackService) Delete(ctx context.Context, userID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.load(tx, userID, id); err != nil {
			return err
		}
		if err := tx.Where("stack_item_id = ?", id).Delete(&db.IntakeLog{}).Error; err != nil {
			return fmt.Errorf("delete intake logs: %w", err)
		}
		if err := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&db.StackItem{}).Error; err != nil {
			return fmt.Errorf("delete stack item: %w", err)
		}
		return nil
	})
}

// IntakeLogs lists the logs of one item, newest first.
func (s *StackService) IntakeLogs(ctx context.Context, userID, id string) ([]db.IntakeLog, error) {
	var logs []db.IntakeLog
	if err := s.db.WithContext(ctx).
		Where("stack_item_id = ? AND user_id = ?", id, userID).
		Order("taken_at DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list intake logs: %w", err)
	}
	return logs, nil
}

func mustJSON(values []string) datatypes.JSON {
	data, err := json.Marshal(values)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(data)
}
