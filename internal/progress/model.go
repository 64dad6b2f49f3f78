package progress

import "time"

// Reward is a user-defined prize unlocked after a number of completed tasks.
type Reward struct {
	ID              string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID          string    `gorm:"column:user_id;not null;index" json:"userId"`
	Reward          string    `gorm:"column:reward;not null" json:"reward"`
	TargetTasks     int       `gorm:"column:target_tasks;not null" json:"targetTasks"`
	CurrentProgress int       `gorm:"column:current_progress;not null;default:0" json:"currentProgress"`
	IsCompleted     bool      `gorm:"column:is_completed;not null;default:false" json:"isCompleted"`
	CreatedAt       time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName implements gorm's tabler interface.
func (Reward) TableName() string {
	return "rewards"
}

// RewardInput carries the fields of a new reward.
type RewardInput struct {
	Reward      string
	TargetTasks int
}

// RewardUpdate enumerates the mutable fields of a reward.
type RewardUpdate struct {
	Reward      *string `json:"reward"`
	TargetTasks *int    `json:"targetTasks"`
}

// Stats summarizes a user's cumulative progress.
type Stats struct {
	DailyStreak         int      `json:"dailyStreak"`
	TotalFocusMinutes   int      `json:"totalFocusMinutes"`
	TodayFocusMinutes   int      `json:"todayFocusMinutes"`
	TotalTasksCompleted int      `json:"totalTasksCompleted"`
	Badges              []string `json:"badges"`
}

// StreakResult reports the streak after a touch.
type StreakResult struct {
	Streak  int  `json:"streak"`
	Updated bool `json:"updated"`
}

// CompletionResult lists what a single task completion unlocked.
type CompletionResult struct {
	UnlockedRewards []Reward `json:"unlockedRewards"`
	AwardedBadges   []string `json:"awardedBadges"`
}
