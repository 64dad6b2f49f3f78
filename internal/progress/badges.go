package progress

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/users"
)

// Badge identifiers.
const (
	BadgePerfectWeek = "perfect_week"
	BadgeStreak14    = "streak_14"
	BadgeStreak30    = "streak_30"
	BadgeCenturion   = "centurion"
)

type badgeRule struct {
	id          string
	name        string
	description string
	earned      func(users.User) bool
}

var badgeRules = []badgeRule{
	{BadgePerfectWeek, "Perfect Week", "7-day streak", func(u users.User) bool { return u.DailyStreak >= 7 }},
	{BadgeStreak14, "Two Week Warrior", "14-day streak", func(u users.User) bool { return u.DailyStreak >= 14 }},
	{BadgeStreak30, "Monthly Master", "30-day streak", func(u users.User) bool { return u.DailyStreak >= 30 }},
	{BadgeCenturion, "Centurion", "Complete 100 tasks", func(u users.User) bool { return u.TotalTasksCompleted >= 100 }},
}

// pendingBadges returns the rules user satisfies but has not been awarded yet.
func pendingBadges(user users.User) []badgeRule {
	var pending []badgeRule
	for _, rule := range badgeRules {
		if rule.earned(user) && !user.HasBadge(rule.id) {
			pending = append(pending, rule)
		}
	}
	return pending
}

func (r badgeRule) message() string {
	return fmt.Sprintf("You earned the %s badge: %s", r.name, r.description)
}
