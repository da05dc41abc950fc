package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActionType identifies the kind of qualifying action a transaction rewards.
type ActionType string

const (
	ActionFoodLog     ActionType = "food_log"
	ActionWorkout     ActionType = "workout"
	ActionBiofeedback ActionType = "biofeedback"
	ActionSteps       ActionType = "steps"
	ActionMilestone   ActionType = "milestone"
)

// ActionTypes lists every recognized action type, in display order.
var ActionTypes = []ActionType{
	ActionFoodLog,
	ActionWorkout,
	ActionBiofeedback,
	ActionSteps,
	ActionMilestone,
}

// Valid reports whether the action type is one of the recognized values.
func (a ActionType) Valid() bool {
	switch a {
	case ActionFoodLog, ActionWorkout, ActionBiofeedback, ActionSteps, ActionMilestone:
		return true
	}
	return false
}

// PointTransaction is an immutable ledger entry. Rows are only ever inserted;
// TotalPoints is fixed at creation as BasePoints*Multiplier+BonusPoints and
// never recomputed. AwardedDate holds the user-local calendar date as an
// ISO "2006-01-02" string so equality and range scans behave the same on
// every database backend.
type PointTransaction struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	UserID        uint       `gorm:"not null;index:idx_transactions_user_created,priority:1;index:idx_transactions_user_date,priority:1" json:"user_id"`
	ActionType    ActionType `gorm:"size:32;not null" json:"action_type"`
	BasePoints    int64      `gorm:"not null" json:"base_points"`
	Multiplier    int        `gorm:"not null" json:"multiplier"`
	BonusPoints   int64      `gorm:"not null;default:0" json:"bonus_points"`
	TotalPoints   int64      `gorm:"not null" json:"total_points"`
	Description   string     `gorm:"size:255" json:"description"`
	ReferenceID   *string    `gorm:"size:64;index:idx_transactions_reference,unique,priority:1" json:"reference_id,omitempty"`
	ReferenceType *string    `gorm:"size:32;index:idx_transactions_reference,unique,priority:2" json:"reference_type,omitempty"`
	AwardedDate   string     `gorm:"type:char(10);not null;index:idx_transactions_user_date,priority:2" json:"awarded_date"`
	CreatedAt     time.Time  `gorm:"index:idx_transactions_user_created,priority:2" json:"created_at"`
}

// BeforeCreate assigns a UUID when the caller did not set one.
func (t *PointTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
