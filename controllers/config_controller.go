package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/vitalog/points-engine/models"
	"github.com/vitalog/points-engine/services"
	"github.com/vitalog/points-engine/utils"
)

// ConfigController discloses the scoring rules so client apps can render
// tier progress without hardcoding the tables.
type ConfigController struct{}

func NewConfigController() *ConfigController { return &ConfigController{} }

// GetScoring returns the action types and multiplier tiers in effect.
func (c *ConfigController) GetScoring(ctx *gin.Context) {
	utils.Success(ctx, gin.H{
		"action_types":     models.ActionTypes,
		"multiplier_tiers": services.MultiplierTiers(),
		"week_start":       "monday",
	})
}
