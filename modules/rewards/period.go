package rewards

import (
	"time"

	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/entity"
)

// PeriodOf returns the weekly window containing the instant, anchored to
// Monday 00:00 UTC. Total over all instants.
func PeriodOf(instant time.Time) entity.RewardPeriod {
	t := instant.UTC()
	// time.Weekday numbers Sunday as 0; shift so Monday is 0.
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	from := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -daysSinceMonday)
	return entity.RewardPeriod{From: from, To: from.AddDate(0, 0, 7)}
}

// CurrentPeriod returns the window containing now.
func CurrentPeriod(now time.Time) entity.RewardPeriod {
	return PeriodOf(now)
}

// Previous returns the window exactly one week before p, derived from p's own
// bounds so consecutive windows align with no gaps.
func Previous(p entity.RewardPeriod) entity.RewardPeriod {
	return entity.RewardPeriod{From: p.From.AddDate(0, 0, -7), To: p.To.AddDate(0, 0, -7)}
}

// PreviousPeriods returns limit consecutive windows, newest first, starting
// offset weeks before the window containing now. Each window is obtained by
// subtracting whole weeks from the current window's bounds rather than
// recomputing from a shifted now.
func PreviousPeriods(now time.Time, offset, limit int) []entity.RewardPeriod {
	if limit <= 0 {
		return nil
	}
	period := CurrentPeriod(now)
	for i := 0; i < offset; i++ {
		period = Previous(period)
	}
	periods := make([]entity.RewardPeriod, 0, limit)
	for i := 0; i < limit; i++ {
		periods = append(periods, period)
		period = Previous(period)
	}
	return periods
}
