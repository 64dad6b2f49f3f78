package assistant

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a user's assistant conversation.
type Message struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"column:user_id;not null;index" json:"userId"`
	Role      Role      `gorm:"column:role;not null;size:16" json:"role"`
	Content   string    `gorm:"column:content;not null" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"createdAt"`
}

// TableName implements gorm's tabler interface.
func (Message) TableName() string {
	return "ai_messages"
}

// Prompt is a single request to a Responder.
type Prompt struct {
	System  string
	Message string
}

// Reply is the assistant's answer to a chat message.
type Reply struct {
	Message string `json:"message"`
}
