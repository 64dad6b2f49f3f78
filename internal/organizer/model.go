package organizer

import "time"

const (
	defaultStickyColor  = "#8B5CF6"
	defaultStickyWidth  = 200
	defaultStickyHeight = 200
)

// Reminder is a timed prompt, optionally linked to an event or task.
type Reminder struct {
	ID           string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID       string    `gorm:"column:user_id;not null;index" json:"userId"`
	Title        string    `gorm:"column:title;not null" json:"title"`
	Description  *string   `gorm:"column:description" json:"description"`
	ReminderTime time.Time `gorm:"column:reminder_time;not null" json:"reminderTime"`
	EventID      *string   `gorm:"column:event_id;index" json:"eventId"`
	TaskID       *string   `gorm:"column:task_id;index" json:"taskId"`
	IsRead       bool      `gorm:"column:is_read;not null;default:false" json:"isRead"`
	CreatedAt    time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName implements gorm's tabler interface.
func (Reminder) TableName() string {
	return "reminders"
}

// StickyNote is a positioned note on the user's board.
type StickyNote struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"column:user_id;not null;index" json:"userId"`
	Content   string    `gorm:"column:content;not null" json:"content"`
	Color     string    `gorm:"column:color;not null" json:"color"`
	X         int       `gorm:"column:x;not null;default:0" json:"x"`
	Y         int       `gorm:"column:y;not null;default:0" json:"y"`
	Width     int       `gorm:"column:width;not null" json:"width"`
	Height    int       `gorm:"column:height;not null" json:"height"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName implements gorm's tabler interface.
func (StickyNote) TableName() string {
	return "sticky_notes"
}

// Mood is the self-reported mood of a journal entry.
type Mood string

const (
	MoodGreat    Mood = "great"
	MoodGood     Mood = "good"
	MoodOkay     Mood = "okay"
	MoodBad      Mood = "bad"
	MoodTerrible Mood = "terrible"
)

func (m Mood) valid() bool {
	switch m {
	case MoodGreat, MoodGood, MoodOkay, MoodBad, MoodTerrible:
		return true
	default:
		return false
	}
}

// JournalEntry is a dated reflection.
type JournalEntry struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"column:user_id;not null;index" json:"userId"`
	Date      string    `gorm:"column:date;not null;size:10" json:"date"`
	Mood      Mood      `gorm:"column:mood;not null;size:16" json:"mood"`
	Content   string    `gorm:"column:content;not null" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName implements gorm's tabler interface.
func (JournalEntry) TableName() string {
	return "journal_entries"
}

// ReminderInput carries the fields of a new reminder.
type ReminderInput struct {
	Title        string
	Description  *string
	ReminderTime time.Time
	EventID      *string
	TaskID       *string
}

// StickyNoteInput carries the fields of a new sticky note.
type StickyNoteInput struct {
	Content string
	Color   *string
	X       *int
	Y       *int
	Width   *int
	Height  *int
}

// StickyNoteUpdate enumerates the mutable fields of a sticky note.
type StickyNoteUpdate struct {
	Content *string `json:"content"`
	Color   *string `json:"color"`
	X       *int    `json:"x"`
	Y       *int    `json:"y"`
	Width   *int    `json:"width"`
	Height  *int    `json:"height"`
}

// JournalInput carries the fields of a new journal entry.
type JournalInput struct {
	Date    string
	Mood    Mood
	Content string
}
