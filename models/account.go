package models

import (
	"time"
)

// PointsAccount is the per-user rollup the awarding path maintains. One row
// per user, created lazily on the first award. Daily/weekly/monthly sums are
// intentionally absent: they are derived from the ledger at query time so a
// missed rollover can never make them drift.
type PointsAccount struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"uniqueIndex;not null" json:"user_id"`

	// LifetimePoints is monotonic and must equal the sum of TotalPoints over
	// the user's ledger; the reconciler checks exactly that.
	LifetimePoints  int64 `gorm:"not null;default:0" json:"lifetime_points"`
	SpendablePoints int64 `gorm:"not null;default:0" json:"spendable_points"`

	CurrentStreak int `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak int `gorm:"not null;default:0" json:"longest_streak"`

	// LastActivityDate is the user-local calendar date of the most recent
	// qualifying action, ISO "2006-01-02". NULL until the first award.
	LastActivityDate *string `gorm:"type:char(10)" json:"last_activity_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
