package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Time-of-day tags accepted for intake schedules.
const (
	IntakeMorning   = "morning"
	IntakeAfternoon = "afternoon"
	IntakeEvening   = "evening"
	IntakeBedtime   = "bedtime"
)

// IntakeTimeTags lists the accepted tags in display order.
var IntakeTimeTags = []string{IntakeMorning, IntakeAfternoon, IntakeEvening, IntakeBedtime}

// StackItem is a product the user actively tracks.
// Paused items keep Active=false instead of being deleted.
type StackItem struct {
	ID                      string         `gorm:"primaryKey;size:36" json:"id"`
	UserID                  string         `gorm:"size:64;not null;index" json:"user_id"`
	ProductID               string         `gorm:"size:36;not null;index" json:"product_id"`
	Product                 Product        `gorm:"foreignKey:ProductID" json:"product"`
	IntakeTimes             datatypes.JSON `gorm:"not null" json:"intake_times"`
	InitialServings         int            `gorm:"not null;check:initial_servings > 0" json:"initial_servings"`
	ConsumedServings        int            `gorm:"not null;default:0" json:"consumed_servings"`
	ApproxServingsRemaining *int           `json:"approx_servings_remaining,omitempty"`
	ReorderThreshold        int            `gorm:"not null" json:"reorder_threshold"`
	AISuggested             bool           `json:"ai_suggested"`
	Rationale               string         `gorm:"type:text" json:"rationale,omitempty"`
	LinkedBiomarkers        datatypes.JSON `json:"linked_biomarkers,omitempty"`
	TargetOutcome           string         `json:"target_outcome,omitempty"`
	Active                  bool           `gorm:"not null;default:true;index" json:"active"`
	IntakeLogs              []IntakeLog    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

// TableName overrides the default pluralization.
func (StackItem) TableName() string {
	return "user_stack"
}

// BeforeCreate assigns a uuid.
func (s *StackItem) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IntakeLog records servings taken from a stack item.
type IntakeLog struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	StackItemID string    `gorm:"size:36;not null;index" json:"stack_item_id"`
	UserID      string    `gorm:"size:64;not null;index" json:"user_id"`
	Servings    int       `gorm:"not null;default:1;check:servings > 0" json:"servings"`
	TakenAt     time.Time `gorm:"not null;index" json:"taken_at"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName overrides the default pluralization.
func (IntakeLog) TableName() string {
	return "intake_logs"
}

// BeforeCreate assigns a uuid.
func (l *IntakeLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
