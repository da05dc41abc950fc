package services

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/vitalog/points-engine/config"
	"github.com/vitalog/points-engine/models"
	"github.com/vitalog/points-engine/utils"
)

// QueryService serves read-side views over the ledger and accounts. Window
// totals are computed from the ledger on every read instead of being kept
// as stored counters, so a missed day rollover can never leave a stale
// daily or weekly figure behind.
type QueryService struct {
	db *gorm.DB
}

// NewQueryService creates a new service instance.
func NewQueryService(db *gorm.DB) *QueryService {
	return &QueryService{db: db}
}

// PointsSummary is the rollup returned to clients. Date is the user-local
// calendar date the daily/weekly/monthly windows anchor on.
type PointsSummary struct {
	UserID   uint   `json:"user_id"`
	Date     string `json:"date"`
	Timezone string `json:"timezone"`

	DailyPoints     int64 `json:"daily_points"`
	WeeklyPoints    int64 `json:"weekly_points"`
	MonthlyPoints   int64 `json:"monthly_points"`
	LifetimePoints  int64 `json:"lifetime_points"`
	SpendablePoints int64 `json:"spendable_points"`

	CurrentStreak     int           `json:"current_streak"`
	LongestStreak     int           `json:"longest_streak"`
	CurrentMultiplier int           `json:"current_multiplier"`
	NextTier          *NextTierInfo `json:"next_tier,omitempty"`
}

// Summary builds the points summary for a user. tz is an IANA zone name
// used to resolve "today"; it defaults to UTC. Users without any awards
// get an all-zero summary rather than an error.
func (s *QueryService) Summary(userID uint, tz string) (*PointsSummary, error) {
	if tz == "" {
		tz = "UTC"
	}
	today, err := utils.TodayIn(tz)
	if err != nil {
		return nil, err
	}
	todayStr := utils.FormatDate(today)

	cacheKey := summaryCacheKey(userID, tz, todayStr)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		var cached PointsSummary
		if err := json.Unmarshal(b, &cached); err == nil {
			return &cached, nil
		}
	}

	var account models.PointsAccount
	if err := s.db.Where("user_id = ?", userID).First(&account).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		account = models.PointsAccount{UserID: userID}
	}

	weekStart := utils.StartOfWeek(today)
	monthStart := utils.StartOfMonth(today)

	daily, err := s.windowSum(userID, todayStr, utils.FormatDate(utils.NextDay(today)))
	if err != nil {
		return nil, err
	}
	weekly, err := s.windowSum(userID, utils.FormatDate(weekStart), utils.FormatDate(weekStart.AddDate(0, 0, 7)))
	if err != nil {
		return nil, err
	}
	monthly, err := s.windowSum(userID, utils.FormatDate(monthStart), utils.FormatDate(monthStart.AddDate(0, 1, 0)))
	if err != nil {
		return nil, err
	}

	summary := &PointsSummary{
		UserID:            userID,
		Date:              todayStr,
		Timezone:          tz,
		DailyPoints:       daily,
		WeeklyPoints:      weekly,
		MonthlyPoints:     monthly,
		LifetimePoints:    account.LifetimePoints,
		SpendablePoints:   account.SpendablePoints,
		CurrentStreak:     account.CurrentStreak,
		LongestStreak:     account.LongestStreak,
		CurrentMultiplier: MultiplierForStreak(account.CurrentStreak),
		NextTier:          NextTierForStreak(account.CurrentStreak),
	}

	ttl := time.Duration(config.Get().SummaryCacheTTLSeconds) * time.Second
	utils.CacheSetJSON(cacheKey, summary, ttl)

	return summary, nil
}

// windowSum totals TotalPoints over awarded dates in [from, to).
func (s *QueryService) windowSum(userID uint, from, to string) (int64, error) {
	var total int64
	err := s.db.Model(&models.PointTransaction{}).
		Where("user_id = ? AND awarded_date >= ? AND awarded_date < ?", userID, from, to).
		Select("COALESCE(SUM(total_points),0)").
		Scan(&total).Error
	return total, err
}

// HistoryFilter narrows a transaction history query. Zero values mean no
// constraint; FromDate/ToDate are inclusive ISO dates.
type HistoryFilter struct {
	ActionType models.ActionType
	FromDate   string
	ToDate     string
	Page       int
	Size       int
}

// TransactionPage is one page of ledger history, newest first.
type TransactionPage struct {
	Transactions []models.PointTransaction `json:"transactions"`
	Total        int64                     `json:"total"`
	Page         int                       `json:"page"`
	Size         int                       `json:"size"`
}

// Transactions returns the user's ledger history ordered newest first.
func (s *QueryService) Transactions(userID uint, f HistoryFilter) (*TransactionPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Size < 1 || f.Size > 100 {
		f.Size = 20
	}

	if f.ActionType != "" && !f.ActionType.Valid() {
		return nil, ErrInvalidAction
	}
	for _, d := range []string{f.FromDate, f.ToDate} {
		if d == "" {
			continue
		}
		if _, err := utils.ParseLocalDate(d); err != nil {
			return nil, err
		}
	}

	q := s.db.Model(&models.PointTransaction{}).Where("user_id = ?", userID)
	if f.ActionType != "" {
		q = q.Where("action_type = ?", f.ActionType)
	}
	if f.FromDate != "" {
		q = q.Where("awarded_date >= ?", f.FromDate)
	}
	if f.ToDate != "" {
		q = q.Where("awarded_date <= ?", f.ToDate)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []models.PointTransaction
	if err := q.Order("created_at DESC").
		Limit(f.Size).Offset((f.Page - 1) * f.Size).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	return &TransactionPage{
		Transactions: rows,
		Total:        total,
		Page:         f.Page,
		Size:         f.Size,
	}, nil
}

// summaryCacheKey includes the zone and resolved date so summaries for
// different zones never collide; award invalidation wipes the whole user
// prefix (see AwardService.invalidateSummary).
func summaryCacheKey(userID uint, tz, date string) string {
	return "cache:points:summary:" + strconv.Itoa(int(userID)) + ":" + tz + ":" + date
}
