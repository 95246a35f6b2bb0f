package services

import "github.com/Dosada05/erg-leaderboard/models"

const decisecondsPerHour = 36000

type WorkoutStats struct {
	TotalMeters   float64
	WorkoutCount  int
	TotalHours    float64
	TotalCalories float64
	LastWorkout   *string
}

// AggregateResults folds a member's results into totals. It is pure and the
// totals do not depend on input order.
func AggregateResults(results []models.WorkoutResult) WorkoutStats {
	var stats WorkoutStats
	var totalTime float64
	var last *models.WorkoutResult

	for i := range results {
		r := &results[i]
		stats.TotalMeters += r.Distance
		totalTime += r.Time
		if r.CaloriesTotal != nil {
			stats.TotalCalories += *r.CaloriesTotal
		}
		if last == nil || laterThan(r, last) {
			last = r
		}
	}

	stats.WorkoutCount = len(results)
	stats.TotalHours = totalTime / decisecondsPerHour
	if last != nil {
		date := last.Date
		stats.LastWorkout = &date
	}
	return stats
}

func laterThan(a, b *models.WorkoutResult) bool {
	ta, okA := a.ParsedDate()
	tb, okB := b.ParsedDate()
	switch {
	case okA && okB:
		return ta.After(tb)
	case okA != okB:
		return okA
	default:
		return a.Date > b.Date
	}
}
