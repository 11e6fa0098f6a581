package entity

import "time"

// Week is the fixed length of a reward period.
const Week = 7 * 24 * time.Hour

// RewardPeriod is a half-open weekly window [From, To) anchored to Monday
// 00:00 UTC. To - From is always exactly seven days.
type RewardPeriod struct {
	From time.Time `json:"fromDate"`
	To   time.Time `json:"toDate"`
}

// Key is the stable identifier of the period, its Monday in ISO date form.
func (p RewardPeriod) Key() string {
	return p.From.Format("2006-01-02")
}

// Median is the midpoint used to attribute a report to its period.
func (p RewardPeriod) Median() time.Time {
	return p.From.Add(3 * 24 * time.Hour)
}

// Contains reports whether the instant falls inside the half-open window.
func (p RewardPeriod) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.From) && t.Before(p.To)
}

// Equal reports whether both periods cover the same window.
func (p RewardPeriod) Equal(other RewardPeriod) bool {
	return p.From.Equal(other.From) && p.To.Equal(other.To)
}
