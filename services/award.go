package services

import (
	"errors"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vitalog/points-engine/models"
	"github.com/vitalog/points-engine/utils"
)

// Validation and outcome sentinels surfaced by Award. Controllers map
// these onto HTTP codes.
var (
	ErrInvalidUser      = errors.New("user id is required")
	ErrInvalidAction    = errors.New("unknown action type")
	ErrInvalidPoints    = errors.New("base points must not be negative")
	ErrInvalidBonus     = errors.New("bonus points must not be negative")
	ErrMissingDate      = errors.New("either local date or timezone is required")
	ErrPartialReference = errors.New("reference id and reference type must be provided together")
	ErrContention       = errors.New("account is busy, please retry")
)

// errReplayHit aborts the awarding transaction once the reference pair is
// found to be already recorded. It never leaves the service.
var errReplayHit = errors.New("reference already awarded")

const (
	maxAwardAttempts  = 3
	awardRetryBackoff = 25 * time.Millisecond
	lockRetention     = 5 * time.Minute
	descriptionLimit  = 255
)

// accountLock serializes awards per user inside this process. The expiry
// only matters once no holder or waiter remains.
type accountLock struct {
	mu      sync.Mutex
	waiters int
	expires time.Time
}

// AwardInput carries one award request into the service. LocalDate takes
// priority over Timezone when both are set.
type AwardInput struct {
	UserID        uint
	ActionType    models.ActionType
	BasePoints    int64
	BonusPoints   int64
	Description   string
	ReferenceID   string
	ReferenceType string
	LocalDate     string
	Timezone      string
}

// AwardResult is the outcome of one award call. Idempotent marks a replay
// of a previously recorded reference, in which case Transaction is the
// original row and the account was not touched.
type AwardResult struct {
	Transaction models.PointTransaction
	Account     models.PointsAccount
	Idempotent  bool
}

// AwardService applies point awards atomically: streak advance, multiplier
// resolution, transaction insert and balance update happen in one database
// transaction under a per-user lock.
type AwardService struct {
	db      *gorm.DB
	locks   map[uint]*accountLock
	locksMu sync.Mutex
}

// NewAwardService creates a new service instance.
func NewAwardService(db *gorm.DB) *AwardService {
	return &AwardService{db: db, locks: map[uint]*accountLock{}}
}

// Award records one activity award for a user. Replayed references return
// the original transaction with Idempotent set. Lock timeouts and
// deadlocks are retried a bounded number of times before ErrContention.
func (s *AwardService) Award(in AwardInput) (*AwardResult, error) {
	if err := validateAwardInput(&in); err != nil {
		return nil, err
	}

	date, err := resolveAwardDate(in)
	if err != nil {
		return nil, err
	}

	// Fast path: an already recorded reference never needs the account lock.
	if in.ReferenceID != "" {
		if existing, err := s.findByReference(in.ReferenceID, in.ReferenceType); err == nil {
			return s.replayResult(existing)
		}
	}

	lock := s.lockAccount(in.UserID)
	defer s.unlockAccount(in.UserID, lock)

	var (
		txRow   models.PointTransaction
		account models.PointsAccount
	)

	backoff := awardRetryBackoff
	for attempt := 1; attempt <= maxAwardAttempts; attempt++ {
		err = s.db.Transaction(func(tx *gorm.DB) error {
			seed := models.PointsAccount{UserID: in.UserID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
				return err
			}
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ?", in.UserID).First(&account).Error; err != nil {
				return err
			}

			// Authoritative replay check now that the row lock is held.
			if in.ReferenceID != "" {
				var existing models.PointTransaction
				err := tx.Where("reference_id = ? AND reference_type = ?", in.ReferenceID, in.ReferenceType).
					First(&existing).Error
				if err == nil {
					txRow = existing
					return errReplayHit
				}
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
			}

			AdvanceStreak(&account, date)
			multiplier := MultiplierForStreak(account.CurrentStreak)
			total := in.BasePoints*int64(multiplier) + in.BonusPoints

			txRow = models.PointTransaction{
				UserID:      in.UserID,
				ActionType:  in.ActionType,
				BasePoints:  in.BasePoints,
				Multiplier:  multiplier,
				BonusPoints: in.BonusPoints,
				TotalPoints: total,
				Description: in.Description,
				AwardedDate: date,
			}
			if in.ReferenceID != "" {
				refID, refType := in.ReferenceID, in.ReferenceType
				txRow.ReferenceID = &refID
				txRow.ReferenceType = &refType
			}
			if err := tx.Create(&txRow).Error; err != nil {
				return err
			}

			account.LifetimePoints += total
			account.SpendablePoints += total
			return tx.Save(&account).Error
		})

		switch {
		case err == nil:
			s.invalidateSummary(in.UserID)
			return &AwardResult{Transaction: txRow, Account: account}, nil
		case errors.Is(err, errReplayHit):
			return s.replayResult(txRow)
		case isDuplicateReference(err):
			// Lost the insert race against another writer of the same
			// reference, possibly on another instance. Treat as replay.
			existing, ferr := s.findByReference(in.ReferenceID, in.ReferenceType)
			if ferr != nil {
				return nil, err
			}
			return s.replayResult(existing)
		case isRetryableDBError(err) && attempt < maxAwardAttempts:
			utils.Sugar.Warnf("award retry user=%d attempt=%d err=%v", in.UserID, attempt, err)
			time.Sleep(backoff)
			backoff *= 2
		case isRetryableDBError(err):
			return nil, ErrContention
		default:
			return nil, err
		}
	}

	return nil, ErrContention
}

func validateAwardInput(in *AwardInput) error {
	if in.UserID == 0 {
		return ErrInvalidUser
	}
	if !in.ActionType.Valid() {
		return ErrInvalidAction
	}
	// Zero base is legal: milestone awards may carry only bonus points.
	if in.BasePoints < 0 {
		return ErrInvalidPoints
	}
	if in.BonusPoints < 0 {
		return ErrInvalidBonus
	}
	if (in.ReferenceID == "") != (in.ReferenceType == "") {
		return ErrPartialReference
	}

	in.Description = utils.Sanitize(in.Description)
	if utf8.RuneCountInString(in.Description) > descriptionLimit {
		in.Description = string([]rune(in.Description)[:descriptionLimit])
	}
	return nil
}

// resolveAwardDate turns the request into the user-local calendar date the
// award lands on, as a canonical ISO string. Explicit dates win over
// timezone resolution.
func resolveAwardDate(in AwardInput) (string, error) {
	if in.LocalDate != "" {
		d, err := utils.ParseLocalDate(in.LocalDate)
		if err != nil {
			return "", err
		}
		return utils.FormatDate(d), nil
	}
	if in.Timezone != "" {
		d, err := utils.TodayIn(in.Timezone)
		if err != nil {
			return "", err
		}
		return utils.FormatDate(d), nil
	}
	return "", ErrMissingDate
}

func (s *AwardService) findByReference(refID, refType string) (models.PointTransaction, error) {
	var existing models.PointTransaction
	err := s.db.Where("reference_id = ? AND reference_type = ?", refID, refType).First(&existing).Error
	return existing, err
}

func (s *AwardService) replayResult(existing models.PointTransaction) (*AwardResult, error) {
	var account models.PointsAccount
	if err := s.db.Where("user_id = ?", existing.UserID).First(&account).Error; err != nil {
		return nil, err
	}
	return &AwardResult{Transaction: existing, Account: account, Idempotent: true}, nil
}

func (s *AwardService) invalidateSummary(userID uint) {
	utils.InvalidateByPrefix("cache:points:summary:" + strconv.Itoa(int(userID)) + ":")
}

func (s *AwardService) lockAccount(userID uint) *accountLock {
	s.locksMu.Lock()
	sweepLocksLocked(s.locks)
	l, ok := s.locks[userID]
	if !ok {
		l = &accountLock{}
		s.locks[userID] = l
	}
	l.waiters++
	s.locksMu.Unlock()

	l.mu.Lock()
	return l
}

func (s *AwardService) unlockAccount(userID uint, l *accountLock) {
	l.mu.Unlock()

	s.locksMu.Lock()
	l.waiters--
	l.expires = time.Now().Add(lockRetention)
	s.locksMu.Unlock()
}

// sweepLocksLocked drops idle entries. Held or awaited locks survive so a
// user never ends up with two live locks.
func sweepLocksLocked(locks map[uint]*accountLock) {
	now := time.Now()
	for id, l := range locks {
		if l.waiters == 0 && now.After(l.expires) {
			delete(locks, id)
		}
	}
}

func isRetryableDBError(err error) bool {
	switch mysqlErrorNumber(err) {
	case 1205, 1213: // lock wait timeout, deadlock
		return true
	}
	return false
}

func isDuplicateReference(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return mysqlErrorNumber(err) == 1062
}

func mysqlErrorNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}
