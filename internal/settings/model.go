package settings

// Theme is the UI color scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Pomodoro holds a user's timer configuration.
type Pomodoro struct {
	UserID                 string `gorm:"column:user_id;primaryKey;size:64" json:"userId"`
	WorkDuration           int    `gorm:"column:work_duration;not null" json:"workDuration"`
	ShortBreakDuration     int    `gorm:"column:short_break_duration;not null" json:"shortBreakDuration"`
	LongBreakDuration      int    `gorm:"column:long_break_duration;not null" json:"longBreakDuration"`
	SessionsUntilLongBreak int    `gorm:"column:sessions_until_long_break;not null" json:"sessionsUntilLongBreak"`
	AutoStartNext          bool   `gorm:"column:auto_start_next;not null" json:"autoStartNext"`
	SoundEnabled           bool   `gorm:"column:sound_enabled;not null" json:"soundEnabled"`
	NotificationsEnabled   bool   `gorm:"column:notifications_enabled;not null" json:"notificationsEnabled"`
}

// TableName implements gorm's tabler interface.
func (Pomodoro) TableName() string {
	return "pomodoro_settings"
}

// DefaultPomodoro returns the settings used before the user saves any.
func DefaultPomodoro(userID string) Pomodoro {
	return Pomodoro{
		UserID:                 userID,
		WorkDuration:           25,
		ShortBreakDuration:     5,
		LongBreakDuration:      15,
		SessionsUntilLongBreak: 4,
		AutoStartNext:          true,
		SoundEnabled:           true,
		NotificationsEnabled:   true,
	}
}

// Preferences holds a user's application preferences.
type Preferences struct {
	UserID                 string `gorm:"column:user_id;primaryKey;size:64" json:"userId"`
	Theme                  Theme  `gorm:"column:theme;not null;size:8" json:"theme"`
	HasSeenTour            bool   `gorm:"column:has_seen_tour;not null" json:"hasSeenTour"`
	HealthRemindersEnabled bool   `gorm:"column:health_reminders_enabled;not null" json:"healthRemindersEnabled"`
	FocusMusicVolume       int    `gorm:"column:focus_music_volume;not null" json:"focusMusicVolume"`
}

// TableName implements gorm's tabler interface.
func (Preferences) TableName() string {
	return "app_preferences"
}

// DefaultPreferences returns the preferences used before the user saves any.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:                 userID,
		Theme:                  ThemeLight,
		HasSeenTour:            false,
		HealthRemindersEnabled: true,
		FocusMusicVolume:       50,
	}
}

// PomodoroUpdate enumerates the fields a save may change.
type PomodoroUpdate struct {
	WorkDuration           *int  `json:"workDuration"`
	ShortBreakDuration     *int  `json:"shortBreakDuration"`
	LongBreakDuration      *int  `json:"longBreakDuration"`
	SessionsUntilLongBreak *int  `json:"sessionsUntilLongBreak"`
	AutoStartNext          *bool `json:"autoStartNext"`
	SoundEnabled           *bool `json:"soundEnabled"`
	NotificationsEnabled   *bool `json:"notificationsEnabled"`
}

// PreferencesUpdate enumerates the fields a save may change.
type PreferencesUpdate struct {
	Theme                  *Theme `json:"theme"`
	HasSeenTour            *bool  `json:"hasSeenTour"`
	HealthRemindersEnabled *bool  `json:"healthRemindersEnabled"`
	FocusMusicVolume       *int   `json:"focusMusicVolume"`
}
