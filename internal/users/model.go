package users

import (
	"time"

	"gorm.io/datatypes"
)

// User is an account together with its cumulative study statistics.
type User struct {
	ID                  string                      `gorm:"column:id;primaryKey;size:64" json:"id"`
	Name                string                      `gorm:"column:name;not null" json:"name"`
	Email               string                      `gorm:"column:email;not null;uniqueIndex;size:320" json:"email"`
	PasswordHash        string                      `gorm:"column:password_hash;not null" json:"-"`
	IsPremium           bool                        `gorm:"column:is_premium;not null;default:false" json:"isPremium"`
	HasCompletedSetup   bool                        `gorm:"column:has_completed_setup;not null;default:false" json:"hasCompletedSetup"`
	DailyStreak         int                         `gorm:"column:daily_streak;not null;default:0" json:"dailyStreak"`
	LastActiveDate      *time.Time                  `gorm:"column:last_active_date" json:"lastActiveDate"`
	TotalFocusMinutes   int                         `gorm:"column:total_focus_minutes;not null;default:0" json:"totalFocusMinutes"`
	TodayFocusMinutes   int                         `gorm:"column:today_focus_minutes;not null;default:0" json:"todayFocusMinutes"`
	TotalTasksCompleted int                         `gorm:"column:total_tasks_completed;not null;default:0" json:"totalTasksCompleted"`
	AIMessagesToday     int                         `gorm:"column:ai_messages_today;not null;default:0" json:"aiMessagesToday"`
	AIMessagesLastReset *time.Time                  `gorm:"column:ai_messages_last_reset" json:"aiMessagesLastReset"`
	Badges              datatypes.JSONSlice[string] `gorm:"column:badges" json:"badges"`
	CreatedAt           time.Time                   `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName implements gorm's tabler interface.
func (User) TableName() string {
	return "users"
}

// HasBadge reports whether the badge was already awarded.
func (u User) HasBadge(badge string) bool {
	for _, awarded := range u.Badges {
		if awarded == badge {
			return true
		}
	}
	return false
}

// Registration carries the inputs of a signup.
type Registration struct {
	Name     string
	Email    string
	Password string
}

// ProfileUpdate enumerates the fields a user may change through the generic
// profile path. Email and password have dedicated flows.
type ProfileUpdate struct {
	Name              *string `json:"name"`
	HasCompletedSetup *bool   `json:"hasCompletedSetup"`
}
