package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vitalog/points-engine/models"
	"github.com/vitalog/points-engine/utils"
)

// newTestDB opens an isolated in-memory SQLite database with the engine
// schema migrated. A single connection keeps the shared-cache database
// alive and avoids SQLITE_BUSY under concurrent tests.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.PointsAccount{}, &models.PointTransaction{}))
	return db
}

func mustAward(t *testing.T, svc *AwardService, in AwardInput) *AwardResult {
	t.Helper()
	res, err := svc.Award(in)
	require.NoError(t, err)
	return res
}

func loadAccount(t *testing.T, db *gorm.DB, userID uint) models.PointsAccount {
	t.Helper()
	var acct models.PointsAccount
	require.NoError(t, db.Where("user_id = ?", userID).First(&acct).Error)
	return acct
}

func TestAward_FirstActivity(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	res := mustAward(t, svc, AwardInput{
		UserID:     7,
		ActionType: models.ActionFoodLog,
		BasePoints: 10,
		LocalDate:  "2025-06-01",
	})

	assert.False(t, res.Idempotent)
	assert.Equal(t, 1, res.Transaction.Multiplier)
	assert.Equal(t, int64(10), res.Transaction.TotalPoints)
	assert.Equal(t, "2025-06-01", res.Transaction.AwardedDate)
	assert.NotEmpty(t, res.Transaction.ID)

	acct := loadAccount(t, db, 7)
	assert.Equal(t, 1, acct.CurrentStreak)
	assert.Equal(t, 1, acct.LongestStreak)
	assert.Equal(t, int64(10), acct.LifetimePoints)
	assert.Equal(t, int64(10), acct.SpendablePoints)
	assert.Equal(t, "2025-06-01", *acct.LastActivityDate)
}

func TestAward_StreakTierProgression(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	// Multiplier by streak day: 1-2 pay 1x, 3-6 pay 2x, 7-13 pay 3x,
	// 14 onwards pay 4x with no further growth.
	wantMultipliers := []int{1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 3, 3, 3, 4, 4, 4, 4, 4, 4, 4}

	start, err := utils.ParseLocalDate("2025-06-01")
	require.NoError(t, err)

	var lifetime int64
	for day, want := range wantMultipliers {
		date := utils.FormatDate(start.AddDate(0, 0, day))
		res := mustAward(t, svc, AwardInput{
			UserID:     1,
			ActionType: models.ActionWorkout,
			BasePoints: 10,
			LocalDate:  date,
		})

		assert.Equal(t, want, res.Transaction.Multiplier, "day %d", day+1)
		assert.Equal(t, int64(10*want), res.Transaction.TotalPoints, "day %d", day+1)
		lifetime += int64(10 * want)
	}

	acct := loadAccount(t, db, 1)
	assert.Equal(t, 20, acct.CurrentStreak)
	assert.Equal(t, lifetime, acct.LifetimePoints)
}

func TestAward_MissedDayResetsMultiplier(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	for _, date := range []string{"2025-06-01", "2025-06-02", "2025-06-03"} {
		mustAward(t, svc, AwardInput{UserID: 1, ActionType: models.ActionSteps, BasePoints: 10, LocalDate: date})
	}

	// Skip 2025-06-04 entirely.
	res := mustAward(t, svc, AwardInput{UserID: 1, ActionType: models.ActionSteps, BasePoints: 10, LocalDate: "2025-06-05"})

	assert.Equal(t, 1, res.Transaction.Multiplier)
	assert.Equal(t, int64(10), res.Transaction.TotalPoints)

	acct := loadAccount(t, db, 1)
	assert.Equal(t, 1, acct.CurrentStreak)
	assert.Equal(t, 3, acct.LongestStreak, "longest streak survives the reset")
}

func TestAward_SameDayKeepsStreakAndMultiplier(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	mustAward(t, svc, AwardInput{UserID: 1, ActionType: models.ActionFoodLog, BasePoints: 10, LocalDate: "2025-06-01"})
	mustAward(t, svc, AwardInput{UserID: 1, ActionType: models.ActionWorkout, BasePoints: 20, LocalDate: "2025-06-02"})
	mustAward(t, svc, AwardInput{UserID: 1, ActionType: models.ActionSteps, BasePoints: 30, LocalDate: "2025-06-03"})

	// Second and third award on the same day: streak stays at 3, both pay 2x.
	res := mustAward(t, svc, AwardInput{UserID: 1, ActionType: models.ActionFoodLog, BasePoints: 5, LocalDate: "2025-06-03"})
	assert.Equal(t, 2, res.Transaction.Multiplier)

	acct := loadAccount(t, db, 1)
	assert.Equal(t, 3, acct.CurrentStreak)
	assert.Equal(t, int64(10+20+60+10), acct.LifetimePoints)

	var count int64
	require.NoError(t, db.Model(&models.PointTransaction{}).Where("user_id = ?", 1).Count(&count).Error)
	assert.Equal(t, int64(4), count)
}

func TestAward_BonusIsNotMultiplied(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	mustAward(t, svc, AwardInput{UserID: 1, ActionType: models.ActionFoodLog, BasePoints: 10, LocalDate: "2025-06-01"})
	mustAward(t, svc, AwardInput{UserID: 1, ActionType: models.ActionFoodLog, BasePoints: 10, LocalDate: "2025-06-02"})

	// Day 3 sits in the 2x tier; bonus points ride along unmultiplied.
	res := mustAward(t, svc, AwardInput{
		UserID:      1,
		ActionType:  models.ActionMilestone,
		BasePoints:  10,
		BonusPoints: 5,
		LocalDate:   "2025-06-03",
	})

	assert.Equal(t, 2, res.Transaction.Multiplier)
	assert.Equal(t, int64(10*2+5), res.Transaction.TotalPoints)
}

func TestAward_BonusOnlyMilestone(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	// Milestones may carry no base points at all. The award still counts as
	// a qualifying action for the streak.
	res := mustAward(t, svc, AwardInput{
		UserID:      4,
		ActionType:  models.ActionMilestone,
		BasePoints:  0,
		BonusPoints: 25,
		LocalDate:   "2025-06-01",
	})

	assert.Equal(t, int64(25), res.Transaction.TotalPoints)
	assert.Equal(t, 1, res.Transaction.Multiplier)

	acct := loadAccount(t, db, 4)
	assert.Equal(t, 1, acct.CurrentStreak)
	assert.Equal(t, int64(25), acct.LifetimePoints)
}

func TestAward_LateArrivingEventKeepsStreak(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	mustAward(t, svc, AwardInput{UserID: 1, ActionType: models.ActionFoodLog, BasePoints: 10, LocalDate: "2025-06-10"})
	mustAward(t, svc, AwardInput{UserID: 1, ActionType: models.ActionFoodLog, BasePoints: 10, LocalDate: "2025-06-11"})

	// A sync job delivers an old event. Points land, streak does not move.
	res := mustAward(t, svc, AwardInput{UserID: 1, ActionType: models.ActionSteps, BasePoints: 10, LocalDate: "2025-06-05"})
	assert.Equal(t, "2025-06-05", res.Transaction.AwardedDate)
	assert.Equal(t, 2, res.Transaction.Multiplier, "multiplier follows the current streak")

	acct := loadAccount(t, db, 1)
	assert.Equal(t, 2, acct.CurrentStreak)
	assert.Equal(t, "2025-06-11", *acct.LastActivityDate)
}

func TestAward_IdempotentReplay(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	first := mustAward(t, svc, AwardInput{
		UserID:        3,
		ActionType:    models.ActionMilestone,
		BasePoints:    50,
		ReferenceID:   "goal-123",
		ReferenceType: "milestone",
		LocalDate:     "2025-06-01",
	})
	require.False(t, first.Idempotent)

	// Same reference the next day with different points: the original
	// transaction comes back untouched and nothing is double counted.
	replay := mustAward(t, svc, AwardInput{
		UserID:        3,
		ActionType:    models.ActionMilestone,
		BasePoints:    999,
		ReferenceID:   "goal-123",
		ReferenceType: "milestone",
		LocalDate:     "2025-06-02",
	})

	assert.True(t, replay.Idempotent)
	assert.Equal(t, first.Transaction.ID, replay.Transaction.ID)
	assert.Equal(t, int64(50), replay.Transaction.TotalPoints)

	acct := loadAccount(t, db, 3)
	assert.Equal(t, int64(50), acct.LifetimePoints)
	assert.Equal(t, 1, acct.CurrentStreak, "replay must not advance the streak")

	var count int64
	require.NoError(t, db.Model(&models.PointTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAward_SameReferenceTypeDifferentID(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	mustAward(t, svc, AwardInput{
		UserID: 1, ActionType: models.ActionWorkout, BasePoints: 10,
		ReferenceID: "w-1", ReferenceType: "workout", LocalDate: "2025-06-01",
	})
	res := mustAward(t, svc, AwardInput{
		UserID: 1, ActionType: models.ActionWorkout, BasePoints: 10,
		ReferenceID: "w-2", ReferenceType: "workout", LocalDate: "2025-06-01",
	})

	assert.False(t, res.Idempotent)

	acct := loadAccount(t, db, 1)
	assert.Equal(t, int64(20), acct.LifetimePoints)
}

func TestAward_ValidationFailuresLeaveNoTrace(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	tests := []struct {
		name    string
		in      AwardInput
		wantErr error
	}{
		{
			name:    "missing user id",
			in:      AwardInput{ActionType: models.ActionFoodLog, BasePoints: 10, LocalDate: "2025-06-01"},
			wantErr: ErrInvalidUser,
		},
		{
			name:    "unknown action",
			in:      AwardInput{UserID: 1, ActionType: "mind_reading", BasePoints: 10, LocalDate: "2025-06-01"},
			wantErr: ErrInvalidAction,
		},
		{
			name:    "negative base points",
			in:      AwardInput{UserID: 1, ActionType: models.ActionFoodLog, BasePoints: -10, LocalDate: "2025-06-01"},
			wantErr: ErrInvalidPoints,
		},
		{
			name:    "negative bonus",
			in:      AwardInput{UserID: 1, ActionType: models.ActionFoodLog, BasePoints: 10, BonusPoints: -1, LocalDate: "2025-06-01"},
			wantErr: ErrInvalidBonus,
		},
		{
			name:    "reference id without type",
			in:      AwardInput{UserID: 1, ActionType: models.ActionFoodLog, BasePoints: 10, ReferenceID: "x", LocalDate: "2025-06-01"},
			wantErr: ErrPartialReference,
		},
		{
			name:    "reference type without id",
			in:      AwardInput{UserID: 1, ActionType: models.ActionFoodLog, BasePoints: 10, ReferenceType: "workout", LocalDate: "2025-06-01"},
			wantErr: ErrPartialReference,
		},
		{
			name:    "no date and no timezone",
			in:      AwardInput{UserID: 1, ActionType: models.ActionFoodLog, BasePoints: 10},
			wantErr: ErrMissingDate,
		},
		{
			name:    "malformed date",
			in:      AwardInput{UserID: 1, ActionType: models.ActionFoodLog, BasePoints: 10, LocalDate: "2025-13-40"},
			wantErr: utils.ErrBadDate,
		},
		{
			name:    "unknown timezone",
			in:      AwardInput{UserID: 1, ActionType: models.ActionFoodLog, BasePoints: 10, Timezone: "Mars/Olympus"},
			wantErr: utils.ErrBadDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Award(tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// No ledger rows and no accounts appeared along the way.
	var txCount, acctCount int64
	require.NoError(t, db.Model(&models.PointTransaction{}).Count(&txCount).Error)
	require.NoError(t, db.Model(&models.PointsAccount{}).Count(&acctCount).Error)
	assert.Zero(t, txCount)
	assert.Zero(t, acctCount)
}

func TestAward_LocalDateWinsOverTimezone(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	res := mustAward(t, svc, AwardInput{
		UserID:     1,
		ActionType: models.ActionFoodLog,
		BasePoints: 10,
		LocalDate:  "2025-06-01",
		Timezone:   "America/New_York",
	})

	assert.Equal(t, "2025-06-01", res.Transaction.AwardedDate)
}

func TestAward_TimezoneResolvesToday(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	res := mustAward(t, svc, AwardInput{
		UserID:     1,
		ActionType: models.ActionFoodLog,
		BasePoints: 10,
		Timezone:   "Pacific/Auckland",
	})

	today, err := utils.TodayIn("Pacific/Auckland")
	require.NoError(t, err)
	assert.Equal(t, utils.FormatDate(today), res.Transaction.AwardedDate)
}

func TestAward_DescriptionIsSanitized(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	res := mustAward(t, svc, AwardInput{
		UserID:      1,
		ActionType:  models.ActionWorkout,
		BasePoints:  10,
		Description: "<b>Morning run</b> 5km",
		LocalDate:   "2025-06-01",
	})

	assert.Equal(t, "Morning run 5km", res.Transaction.Description)
}

func TestAward_ConcurrentDistinctReferences(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Award(AwardInput{
				UserID:        5,
				ActionType:    models.ActionSteps,
				BasePoints:    10,
				ReferenceID:   fmt.Sprintf("steps-%d", n),
				ReferenceType: "steps_sync",
				LocalDate:     "2025-06-01",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	acct := loadAccount(t, db, 5)
	assert.Equal(t, int64(workers*10), acct.LifetimePoints)
	assert.Equal(t, 1, acct.CurrentStreak, "same-day burst advances the streak exactly once")

	var count int64
	require.NoError(t, db.Model(&models.PointTransaction{}).Where("user_id = ?", 5).Count(&count).Error)
	assert.Equal(t, int64(workers), count)
}

func TestAward_ConcurrentSameReference(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	const workers = 6
	var wg sync.WaitGroup
	results := make(chan *AwardResult, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Award(AwardInput{
				UserID:        9,
				ActionType:    models.ActionMilestone,
				BasePoints:    100,
				ReferenceID:   "race-finish",
				ReferenceType: "milestone",
				LocalDate:     "2025-06-01",
			})
			if err == nil {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)

	var fresh int
	var ids []string
	for res := range results {
		if !res.Idempotent {
			fresh++
		}
		ids = append(ids, res.Transaction.ID)
	}
	require.Len(t, ids, workers, "every caller gets a successful result")
	assert.Equal(t, 1, fresh, "exactly one caller performs the write")
	for _, id := range ids {
		assert.Equal(t, ids[0], id, "every caller sees the same transaction")
	}

	acct := loadAccount(t, db, 9)
	assert.Equal(t, int64(100), acct.LifetimePoints)

	var count int64
	require.NoError(t, db.Model(&models.PointTransaction{}).Where("user_id = ?", 9).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAward_ConcurrentDifferentUsers(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	const users = 4
	var wg sync.WaitGroup
	for u := 1; u <= users; u++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			for _, date := range []string{"2025-06-01", "2025-06-02", "2025-06-03"} {
				_, err := svc.Award(AwardInput{
					UserID:     userID,
					ActionType: models.ActionBiofeedback,
					BasePoints: 10,
					LocalDate:  date,
				})
				assert.NoError(t, err)
			}
		}(uint(u))
	}
	wg.Wait()

	for u := 1; u <= users; u++ {
		acct := loadAccount(t, db, uint(u))
		assert.Equal(t, 3, acct.CurrentStreak, "user %d", u)
		assert.Equal(t, int64(10+10+20), acct.LifetimePoints, "user %d", u)
	}
}

func TestAward_LedgerMatchesAccountAfterMixedTraffic(t *testing.T) {
	db := newTestDB(t)
	svc := NewAwardService(db)

	dates := []string{"2025-06-01", "2025-06-01", "2025-06-02", "2025-06-04", "2025-06-05", "2025-06-05"}
	for i, date := range dates {
		mustAward(t, svc, AwardInput{
			UserID:      2,
			ActionType:  models.ActionTypes[i%len(models.ActionTypes)],
			BasePoints:  int64(5 + i),
			BonusPoints: int64(i % 2),
			LocalDate:   date,
		})
	}

	acct := loadAccount(t, db, 2)

	var ledger int64
	require.NoError(t, db.Model(&models.PointTransaction{}).
		Where("user_id = ?", 2).
		Select("COALESCE(SUM(total_points),0)").
		Scan(&ledger).Error)

	assert.Equal(t, ledger, acct.LifetimePoints, "account rollup must equal the ledger sum")
}

func TestAwardErrorClassification(t *testing.T) {
	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
	lockWait := &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}
	dupKey := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	syntax := &mysql.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"}

	assert.True(t, isRetryableDBError(deadlock))
	assert.True(t, isRetryableDBError(fmt.Errorf("tx failed: %w", lockWait)))
	assert.False(t, isRetryableDBError(dupKey))
	assert.False(t, isRetryableDBError(syntax))
	assert.False(t, isRetryableDBError(errors.New("plain error")))

	assert.True(t, isDuplicateReference(dupKey))
	assert.True(t, isDuplicateReference(gorm.ErrDuplicatedKey))
	assert.False(t, isDuplicateReference(deadlock))
}

func TestAwardLocks_SweepKeepsLiveEntries(t *testing.T) {
	svc := NewAwardService(nil)

	l := svc.lockAccount(42)
	assert.Len(t, svc.locks, 1)

	// A held lock survives any sweep.
	svc.locksMu.Lock()
	sweepLocksLocked(svc.locks)
	svc.locksMu.Unlock()
	assert.Len(t, svc.locks, 1)

	svc.unlockAccount(42, l)

	// Released and past retention: the next sweep drops it.
	svc.locksMu.Lock()
	l.expires = time.Now().Add(-time.Second)
	sweepLocksLocked(svc.locks)
	svc.locksMu.Unlock()
	assert.Empty(t, svc.locks)
}
