package controllers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vitalog/points-engine/models"
	"github.com/vitalog/points-engine/utils"
)

// StatsController provides engine-wide statistics for operators and
// internal dashboards.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns aggregate statistics across all accounts.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var accountCount int64
	var transactionCount int64
	var awardedToday int64
	var activeStreaks int64
	var topStreak int64

	if err := s.db.Model(&models.PointsAccount{}).Count(&accountCount).Error; err != nil {
		// Fallback to 0 instead of failing the whole endpoint
		accountCount = 0
	}

	if err := s.db.Model(&models.PointTransaction{}).Count(&transactionCount).Error; err != nil {
		transactionCount = 0
	}

	// Today is resolved in UTC here; per-user summaries use each user's own zone.
	today, err := utils.TodayIn("UTC")
	if err == nil {
		if err := s.db.Model(&models.PointTransaction{}).
			Where("awarded_date = ?", utils.FormatDate(today)).
			Select("COALESCE(SUM(total_points),0)").
			Scan(&awardedToday).Error; err != nil {
			awardedToday = 0
		}
	}

	if err := s.db.Model(&models.PointsAccount{}).
		Where("current_streak > 0").
		Count(&activeStreaks).Error; err != nil {
		activeStreaks = 0
	}

	if err := s.db.Model(&models.PointsAccount{}).
		Select("COALESCE(MAX(longest_streak),0)").
		Scan(&topStreak).Error; err != nil {
		topStreak = 0
	}

	utils.Success(ctx, gin.H{
		"account_count":        accountCount,
		"transaction_count":    transactionCount,
		"points_awarded_today": awardedToday,
		"active_streak_count":  activeStreaks,
		"top_streak":           topStreak,
	})
}
