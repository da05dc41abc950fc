package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vitalog/points-engine/models"
	"github.com/vitalog/points-engine/services"
	"github.com/vitalog/points-engine/utils"
)

// AwardController accepts award submissions from feature modules.
type AwardController struct {
	awards *services.AwardService
}

// NewAwardController creates a new controller instance.
func NewAwardController(db *gorm.DB) *AwardController {
	return &AwardController{awards: services.NewAwardService(db)}
}

type awardRequest struct {
	UserID        uint   `json:"user_id" binding:"required"`
	ActionType    string `json:"action_type" binding:"required"`
	BasePoints    int64  `json:"base_points" binding:"min=0"`
	BonusPoints   int64  `json:"bonus_points" binding:"min=0"`
	Description   string `json:"description" binding:"max=255"`
	ReferenceID   string `json:"reference_id" binding:"max=64"`
	ReferenceType string `json:"reference_type" binding:"max=32"`
	LocalDate     string `json:"local_date"`
	Timezone      string `json:"timezone"`
}

// Award records one qualifying action for a user. Submitting the same
// reference pair again returns the originally recorded transaction with
// the idempotent flag set, still as a success.
func (a *AwardController) Award(ctx *gin.Context) {
	var payload awardRequest
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	res, err := a.awards.Award(services.AwardInput{
		UserID:        payload.UserID,
		ActionType:    models.ActionType(payload.ActionType),
		BasePoints:    payload.BasePoints,
		BonusPoints:   payload.BonusPoints,
		Description:   payload.Description,
		ReferenceID:   payload.ReferenceID,
		ReferenceType: payload.ReferenceType,
		LocalDate:     payload.LocalDate,
		Timezone:      payload.Timezone,
	})
	if err != nil {
		respondAwardError(ctx, err)
		return
	}

	utils.Success(ctx, gin.H{
		"idempotent":  res.Idempotent,
		"transaction": res.Transaction,
		"account": gin.H{
			"lifetime_points":    res.Account.LifetimePoints,
			"spendable_points":   res.Account.SpendablePoints,
			"current_streak":     res.Account.CurrentStreak,
			"longest_streak":     res.Account.LongestStreak,
			"current_multiplier": services.MultiplierForStreak(res.Account.CurrentStreak),
		},
	})
}

func respondAwardError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidUser):
		utils.Error(ctx, http.StatusBadRequest, 40002, "user id is required")
	case errors.Is(err, services.ErrInvalidAction):
		utils.Error(ctx, http.StatusBadRequest, 40003, "unknown action type")
	case errors.Is(err, services.ErrInvalidPoints), errors.Is(err, services.ErrInvalidBonus):
		utils.Error(ctx, http.StatusBadRequest, 40004, "invalid points")
	case errors.Is(err, services.ErrMissingDate), errors.Is(err, utils.ErrBadDate):
		utils.Error(ctx, http.StatusBadRequest, 40005, "invalid or missing activity date")
	case errors.Is(err, services.ErrPartialReference):
		utils.Error(ctx, http.StatusBadRequest, 40006, "reference id and type must be provided together")
	case errors.Is(err, services.ErrContention):
		utils.Error(ctx, http.StatusServiceUnavailable, 50301, "account busy, retry later")
	default:
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to record award")
	}
}
