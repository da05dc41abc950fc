package services

import (
	"github.com/vitalog/points-engine/models"
	"github.com/vitalog/points-engine/utils"
)

// AdvanceStreak applies one activity date to an account's streak fields.
//
// activityDate is a canonical ISO "2006-01-02" string, already validated
// by the caller. ISO date strings order lexicographically, so plain string
// comparison is date comparison. The transition rules:
//
//   - first activity ever: streak becomes 1
//   - same date as the last activity: nothing changes
//   - exactly the next calendar day: streak increments
//   - any later date: streak resets to 1
//   - an earlier date (late-arriving event): nothing changes
//
// LongestStreak and LastActivityDate are kept consistent with the result.
// The caller is responsible for holding the account row lock.
func AdvanceStreak(acct *models.PointsAccount, activityDate string) {
	if acct.LastActivityDate == nil {
		acct.CurrentStreak = 1
		acct.LastActivityDate = &activityDate
	} else {
		last := *acct.LastActivityDate
		switch {
		case activityDate == last:
			// repeat activity on the same day, streak already counted
		case activityDate < last:
			// late-arriving event, transaction still recorded but the
			// streak never moves backwards
		case activityDate == nextDate(last):
			acct.CurrentStreak++
			acct.LastActivityDate = &activityDate
		default:
			acct.CurrentStreak = 1
			acct.LastActivityDate = &activityDate
		}
	}

	if acct.CurrentStreak > acct.LongestStreak {
		acct.LongestStreak = acct.CurrentStreak
	}
}

// nextDate returns the ISO date one calendar day after d, or "" when d is
// not a valid date. Calendar arithmetic runs on normalized UTC midnights,
// so daylight saving shifts cannot skip or repeat a day.
func nextDate(d string) string {
	t, err := utils.ParseLocalDate(d)
	if err != nil {
		return ""
	}
	return utils.FormatDate(utils.NextDay(t))
}
