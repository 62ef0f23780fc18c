package service

import (
	"math/rand"
	"time"
)

// addJitter spreads scheduler wakeups so co-located instances don't refresh
// in lockstep. jitterPercent is ±fraction of the duration (0.1 = ±10%).
func addJitter(duration time.Duration, jitterPercent float64) time.Duration {
	if jitterPercent <= 0 {
		return duration
	}
	jitterRange := float64(duration) * jitterPercent
	jitter := (rand.Float64() - 0.5) * 2 * jitterRange
	result := time.Duration(float64(duration) + jitter)
	if result <= 0 {
		result = duration / 2
	}
	return result
}

// upcomingDates returns the days from start+1 through start+count.
func upcomingDates(start time.Time, count int) []time.Time {
	dates := make([]time.Time, 0, count)
	for i := 1; i <= count; i++ {
		dates = append(dates, start.AddDate(0, 0, i))
	}
	return dates
}
