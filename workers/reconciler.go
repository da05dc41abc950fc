package workers

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"

	"github.com/vitalog/points-engine/config"
	"github.com/vitalog/points-engine/services"
	"github.com/vitalog/points-engine/utils"
)

// StartReconciler schedules the periodic ledger reconciliation sweep. The
// first run fires right after boot so drift introduced while the service
// was down surfaces immediately. Returns the scheduler for shutdown.
func StartReconciler(db *gorm.DB) (gocron.Scheduler, error) {
	cfg := config.Get()
	interval := time.Duration(cfg.ReconcileIntervalMinutes) * time.Minute

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	svc := services.NewReconcileService(db)
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			report, err := svc.Run(cfg.ReconcileBatchSize, cfg.ReconcileAutoFix)
			if err != nil {
				utils.Sugar.Errorf("reconcile sweep failed: %v", err)
				return
			}
			utils.Sugar.Infof("reconcile sweep checked=%d drifted=%d repaired=%d elapsed=%s",
				report.Checked, report.Drifted, report.Repaired, report.Elapsed)
		}),
		gocron.WithName("ledger-reconcile"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}
