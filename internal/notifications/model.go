package notifications

import "time"

// Type classifies a notification.
type Type string

const (
	TypeShare       Type = "share"
	TypeReminder    Type = "reminder"
	TypeTaskDue     Type = "task_due"
	TypeEvent       Type = "event"
	TypeAchievement Type = "achievement"
	TypeSystem      Type = "system"
)

// Notification is an inbox entry addressed to a single recipient.
type Notification struct {
	ID            string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID        string    `gorm:"column:user_id;not null;index" json:"userId"`
	Type          Type      `gorm:"column:type;not null;size:32" json:"type"`
	Title         string    `gorm:"column:title;not null" json:"title"`
	Message       string    `gorm:"column:message;not null" json:"message"`
	ReferenceID   *string   `gorm:"column:reference_id" json:"referenceId"`
	ReferenceType *string   `gorm:"column:reference_type;size:32" json:"referenceType"`
	IsRead        bool      `gorm:"column:is_read;not null;default:false" json:"isRead"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;index" json:"createdAt"`
}

// TableName implements gorm's tabler interface.
func (Notification) TableName() string {
	return "notifications"
}

// Draft is the content of a notification before it is stored.
type Draft struct {
	RecipientID   string
	Type          Type
	Title         string
	Message       string
	ReferenceID   string
	ReferenceType string
}

// InviteKind distinguishes note shares from event invitations.
type InviteKind string

const (
	InviteKindNote  InviteKind = "note"
	InviteKindEvent InviteKind = "event"
)

// InviteEvent describes a freshly created share or invitation.
type InviteEvent struct {
	RecipientID   string
	Kind          InviteKind
	InviterName   string
	ResourceID    string
	ResourceTitle string
}

// Inbox is a recipient's notification list with its unread count.
type Inbox struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int64          `json:"unreadCount"`
}
