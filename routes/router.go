package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vitalog/points-engine/config"
	"github.com/vitalog/points-engine/controllers"
	"github.com/vitalog/points-engine/middleware"
	"github.com/vitalog/points-engine/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.ServiceTokenHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	awardController := controllers.NewAwardController(db)
	pointsController := controllers.NewPointsController(db)
	statsController := controllers.NewStatsController(db)
	configController := controllers.NewConfigController()

	api := r.Group("/api/v1")

	// Public scoring rules for client apps
	api.GET("/config/scoring", configController.GetScoring)

	points := api.Group("/points")

	// Module-to-module surface: awarding and arbitrary-user reads
	internal := points.Group("")
	internal.Use(middleware.ServiceAuthRequired())
	internal.POST("/award", awardController.Award)
	internal.GET("/users/:id/summary", pointsController.GetUserSummary)
	internal.GET("/users/:id/transactions", pointsController.GetUserTransactions)
	internal.GET("/stats", statsController.GetStats)

	// User surface: each user reads their own points
	me := points.Group("")
	me.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())
	me.GET("/summary", pointsController.GetMySummary)
	me.GET("/transactions", pointsController.GetMyTransactions)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
