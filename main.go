package main

import (
	"github.com/joho/godotenv"

	"github.com/vitalog/points-engine/config"
	"github.com/vitalog/points-engine/models"
	"github.com/vitalog/points-engine/routes"
	"github.com/vitalog/points-engine/utils"
	"github.com/vitalog/points-engine/workers"
)

func main() {
	// Absent .env just means the real environment is used.
	_ = godotenv.Load()

	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(&models.PointsAccount{}, &models.PointTransaction{})

	r := routes.SetupRouter(db)

	// Periodic ledger reconciliation (best-effort, logs drift)
	sched, err := workers.StartReconciler(db)
	if err != nil {
		utils.Sugar.Fatalf("failed to start reconciler: %v", err)
	}
	defer func() { _ = sched.Shutdown() }()

	utils.Sugar.Infof("Starting points engine on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
