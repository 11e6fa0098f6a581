package rewards_test

import (
	"testing"
	"time"

	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodOf(t *testing.T) {
	testcases := []struct {
		name         string
		instant      time.Time
		expectedFrom time.Time
	}{
		{
			name:         "monday midnight maps to itself",
			instant:      time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			expectedFrom: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:         "mid week",
			instant:      time.Date(2024, 4, 3, 15, 4, 5, 0, time.UTC),
			expectedFrom: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:         "sunday belongs to the week started the previous monday",
			instant:      time.Date(2024, 4, 7, 23, 59, 59, 999999999, time.UTC),
			expectedFrom: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:         "next monday starts a new period",
			instant:      time.Date(2024, 4, 8, 0, 0, 0, 0, time.UTC),
			expectedFrom: time.Date(2024, 4, 8, 0, 0, 0, 0, time.UTC),
		},
		{
			name:         "non utc instant is normalized",
			instant:      time.Date(2024, 4, 8, 1, 0, 0, 0, time.FixedZone("UTC+2", 2*60*60)),
			expectedFrom: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:         "leap week in february",
			instant:      time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC),
			expectedFrom: time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			period := rewards.PeriodOf(tc.instant)
			assert.True(t, tc.expectedFrom.Equal(period.From), "from: expected %s, got %s", tc.expectedFrom, period.From)
			assert.Equal(t, entity.Week, period.To.Sub(period.From))
			assert.Equal(t, time.Monday, period.From.Weekday())
			assert.True(t, period.Contains(tc.instant))
		})
	}
}

func TestPeriodOfIsIdempotentOnBounds(t *testing.T) {
	instant := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)
	period := rewards.PeriodOf(instant)

	require.True(t, period.Equal(rewards.PeriodOf(period.From)))
	require.False(t, period.Equal(rewards.PeriodOf(period.To)))
	assert.True(t, period.From.Add(3*24*time.Hour).Equal(period.Median()))
}

func TestPreviousPeriods(t *testing.T) {
	now := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)

	periods := rewards.PreviousPeriods(now, 0, 5)
	require.Len(t, periods, 5)

	assert.True(t, periods[0].Equal(rewards.CurrentPeriod(now)))
	for i, period := range periods {
		assert.Equal(t, entity.Week, period.To.Sub(period.From), "period %d must span exactly one week", i)
		if i == 0 {
			continue
		}
		// Consecutive windows share a bound: no gaps, no overlaps.
		assert.True(t, period.To.Equal(periods[i-1].From), "period %d must end where period %d starts", i, i-1)
	}
}

func TestPreviousPeriodsWithOffset(t *testing.T) {
	now := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)

	current := rewards.CurrentPeriod(now)
	periods := rewards.PreviousPeriods(now, 2, 3)
	require.Len(t, periods, 3)
	assert.True(t, periods[0].From.Equal(current.From.AddDate(0, 0, -14)))

	assert.Empty(t, rewards.PreviousPeriods(now, 0, 0))
}
