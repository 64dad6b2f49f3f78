package calendar

import (
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
)

const defaultEventColor = "#8B5CF6"

// EventType classifies a calendar entry.
type EventType string

const (
	TypeEvent    EventType = "event"
	TypeTask     EventType = "task"
	TypeReminder EventType = "reminder"
)

func (t EventType) valid() bool {
	switch t {
	case TypeEvent, TypeTask, TypeReminder:
		return true
	default:
		return false
	}
}

// Event is a user-owned calendar entry.
type Event struct {
	ID              string     `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID          string     `gorm:"column:user_id;not null;index" json:"userId"`
	Title           string     `gorm:"column:title;not null" json:"title"`
	Description     *string    `gorm:"column:description" json:"description"`
	Type            EventType  `gorm:"column:type;not null;size:16;default:event" json:"type"`
	StartTime       time.Time  `gorm:"column:start_time;not null;index" json:"startTime"`
	EndTime         *time.Time `gorm:"column:end_time" json:"endTime"`
	AllDay          bool       `gorm:"column:all_day;not null;default:false" json:"allDay"`
	Color           *string    `gorm:"column:color" json:"color"`
	SubjectID       *string    `gorm:"column:subject_id;index" json:"subjectId"`
	Recurrence      *string    `gorm:"column:recurrence" json:"recurrence"`
	ReminderMinutes *int       `gorm:"column:reminder_minutes" json:"reminderMinutes"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName implements gorm's tabler interface.
func (Event) TableName() string {
	return "calendar_events"
}

// Share invites another account to an event. Event shares carry no role;
// accepted invitees may only read.
type Share struct {
	ID               string             `gorm:"column:id;primaryKey;size:64" json:"id"`
	EventID          string             `gorm:"column:event_id;not null;index" json:"eventId"`
	SharedWithEmail  string             `gorm:"column:shared_with_email;not null;index" json:"sharedWithEmail"`
	SharedWithUserID *string            `gorm:"column:shared_with_user_id;index" json:"sharedWithUserId"`
	Status           access.ShareStatus `gorm:"column:status;not null;size:16" json:"status"`
	CreatedAt        time.Time          `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName implements gorm's tabler interface.
func (Share) TableName() string {
	return "event_shares"
}

func (s Share) inviteeID() string {
	if s.SharedWithUserID == nil {
		return ""
	}
	return *s.SharedWithUserID
}

// EventInput carries the fields of a new event.
type EventInput struct {
	Title           string
	Description     *string
	Type            EventType
	StartTime       time.Time
	EndTime         *time.Time
	AllDay          bool
	Color           *string
	SubjectID       *string
	Recurrence      *string
	ReminderMinutes *int
}

// EventUpdate enumerates the mutable fields of an event.
type EventUpdate struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	Type            *EventType `json:"type"`
	StartTime       *time.Time `json:"startTime"`
	EndTime         *time.Time `json:"endTime"`
	AllDay          *bool      `json:"allDay"`
	Color           *string    `json:"color"`
	SubjectID       *string    `json:"subjectId"`
	Recurrence      *string    `json:"recurrence"`
	ReminderMinutes *int       `json:"reminderMinutes"`
}

// Window bounds the start time of listed events. Nil bounds are open.
type Window struct {
	Start *time.Time
	End   *time.Time
}

// Listing separates owned events from events shared with the caller.
type Listing struct {
	Owned  []Event `json:"ownEvents"`
	Shared []Event `json:"sharedEvents"`
}

// Detail is an event together with its shares.
type Detail struct {
	Event  Event   `json:"event"`
	Shares []Share `json:"shares"`
}

func grantsOf(shares []Share) []access.Grant {
	grants := make([]access.Grant, 0, len(shares))
	for _, share := range shares {
		grants = append(grants, access.Grant{UserID: share.inviteeID(), Status: share.Status})
	}
	return grants
}
