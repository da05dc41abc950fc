package services

// MultiplierTier maps a streak-length range to a points multiplier.
// MaxDays == 0 marks an open-ended top tier.
type MultiplierTier struct {
	MinDays    int `json:"min_days"`
	MaxDays    int `json:"max_days,omitempty"`
	Multiplier int `json:"multiplier"`
}

// multiplierTiers is ordered by MinDays ascending. The multiplier for an
// award resolves against the streak value after the streak update, so the
// day a user reaches a new tier already pays at the new rate.
var multiplierTiers = []MultiplierTier{
	{MinDays: 1, MaxDays: 2, Multiplier: 1},
	{MinDays: 3, MaxDays: 6, Multiplier: 2},
	{MinDays: 7, MaxDays: 13, Multiplier: 3},
	{MinDays: 14, Multiplier: 4},
}

// MultiplierForStreak returns the points multiplier for a streak length.
// Values below 1 fall back to the base tier.
func MultiplierForStreak(streak int) int {
	if streak < 1 {
		streak = 1
	}
	mult := 1
	for _, tier := range multiplierTiers {
		if streak >= tier.MinDays {
			mult = tier.Multiplier
		}
	}
	return mult
}

// NextTierInfo describes the next multiplier step a user can reach by
// keeping a streak alive.
type NextTierInfo struct {
	Multiplier   int `json:"multiplier"`
	DaysRequired int `json:"days_required"`
	DaysToGo     int `json:"days_to_go"`
}

// NextTierForStreak returns the next tier above the given streak, or nil
// when the streak already sits in the top tier.
func NextTierForStreak(streak int) *NextTierInfo {
	if streak < 1 {
		streak = 1
	}
	for _, tier := range multiplierTiers {
		if tier.MinDays > streak {
			return &NextTierInfo{
				Multiplier:   tier.Multiplier,
				DaysRequired: tier.MinDays,
				DaysToGo:     tier.MinDays - streak,
			}
		}
	}
	return nil
}

// MultiplierTiers returns a copy of the tier table for disclosure endpoints.
func MultiplierTiers() []MultiplierTier {
	tiers := make([]MultiplierTier, len(multiplierTiers))
	copy(tiers, multiplierTiers)
	return tiers
}
