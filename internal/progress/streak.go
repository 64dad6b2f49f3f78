package progress

import "time"

// StreakOutcome is the result of evaluating a streak touch.
type StreakOutcome struct {
	Streak        int
	Updated       bool
	DayRolledOver bool
}

// EvaluateStreak applies one touch at now to a streak last recorded at lastActive.
// Days are UTC calendar dates: the same date is a no-op, the following date
// extends the streak and any later date restarts it at 1.
func EvaluateStreak(current int, lastActive *time.Time, now time.Time) StreakOutcome {
	if lastActive == nil {
		return StreakOutcome{Streak: 1, Updated: true, DayRolledOver: true}
	}
	elapsed := calendarDaysBetween(*lastActive, now)
	switch {
	case elapsed <= 0:
		return StreakOutcome{Streak: current, Updated: false}
	case elapsed == 1:
		return StreakOutcome{Streak: current + 1, Updated: true, DayRolledOver: true}
	default:
		return StreakOutcome{Streak: 1, Updated: true, DayRolledOver: true}
	}
}

// calendarDaysBetween counts UTC midnights crossed going from earlier to later.
func calendarDaysBetween(earlier, later time.Time) int {
	from := utcDate(earlier)
	to := utcDate(later)
	return int(to.Sub(from).Hours() / 24)
}

func utcDate(value time.Time) time.Time {
	year, month, day := value.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
