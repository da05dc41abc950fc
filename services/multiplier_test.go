package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiplierForStreak_TierBoundaries(t *testing.T) {
	tests := []struct {
		streak int
		want   int
	}{
		{streak: -3, want: 1},
		{streak: 0, want: 1},
		{streak: 1, want: 1},
		{streak: 2, want: 1},
		{streak: 3, want: 2},
		{streak: 6, want: 2},
		{streak: 7, want: 3},
		{streak: 13, want: 3},
		{streak: 14, want: 4},
		{streak: 15, want: 4},
		{streak: 365, want: 4},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MultiplierForStreak(tt.streak), "streak %d", tt.streak)
	}
}

func TestNextTierForStreak(t *testing.T) {
	next := NextTierForStreak(1)
	require.NotNil(t, next)
	assert.Equal(t, 2, next.Multiplier)
	assert.Equal(t, 3, next.DaysRequired)
	assert.Equal(t, 2, next.DaysToGo)

	next = NextTierForStreak(6)
	require.NotNil(t, next)
	assert.Equal(t, 3, next.Multiplier)
	assert.Equal(t, 1, next.DaysToGo)

	next = NextTierForStreak(13)
	require.NotNil(t, next)
	assert.Equal(t, 4, next.Multiplier)
	assert.Equal(t, 1, next.DaysToGo)

	// Streak 0 is treated as 1
	next = NextTierForStreak(0)
	require.NotNil(t, next)
	assert.Equal(t, 2, next.Multiplier)
	assert.Equal(t, 2, next.DaysToGo)
}

func TestNextTierForStreak_TopTier(t *testing.T) {
	assert.Nil(t, NextTierForStreak(14))
	assert.Nil(t, NextTierForStreak(100))
}

func TestMultiplierTiers_ReturnsCopy(t *testing.T) {
	tiers := MultiplierTiers()
	require.Len(t, tiers, 4)

	tiers[0].Multiplier = 99
	assert.Equal(t, 1, MultiplierForStreak(1), "mutating the returned slice must not change the table")
}
