package notes

import (
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
)

// Note is a user-owned document that can be shared with role-scoped access.
type Note struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"column:user_id;not null;index" json:"userId"`
	SubjectID *string   `gorm:"column:subject_id;index" json:"subjectId"`
	Title     string    `gorm:"column:title;not null" json:"title"`
	Content   string    `gorm:"column:content;not null;default:''" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;index" json:"updatedAt"`
}

// TableName implements gorm's tabler interface.
func (Note) TableName() string {
	return "notes"
}

// Share is an invitation to a note addressed to an email and, once the email
// belongs to an account, to that user.
type Share struct {
	ID               string             `gorm:"column:id;primaryKey;size:64" json:"id"`
	NoteID           string             `gorm:"column:note_id;not null;index" json:"noteId"`
	SharedWithEmail  string             `gorm:"column:shared_with_email;not null;index" json:"sharedWithEmail"`
	SharedWithUserID *string            `gorm:"column:shared_with_user_id;index" json:"sharedWithUserId"`
	Role             access.Role        `gorm:"column:role;not null;size:16" json:"role"`
	Status           access.ShareStatus `gorm:"column:status;not null;size:16" json:"status"`
	CreatedAt        time.Time          `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName implements gorm's tabler interface.
func (Share) TableName() string {
	return "note_shares"
}

func (s Share) inviteeID() string {
	if s.SharedWithUserID == nil {
		return ""
	}
	return *s.SharedWithUserID
}

// Comment is a remark left on a note by its owner or an accepted collaborator.
type Comment struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	NoteID    string    `gorm:"column:note_id;not null;index" json:"noteId"`
	UserID    string    `gorm:"column:user_id;not null;index" json:"userId"`
	Content   string    `gorm:"column:content;not null" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName implements gorm's tabler interface.
func (Comment) TableName() string {
	return "note_comments"
}

// NoteInput carries the fields of a new note.
type NoteInput struct {
	Title     string
	Content   string
	SubjectID *string
}

// NoteUpdate enumerates the mutable fields of a note.
type NoteUpdate struct {
	Title     *string `json:"title"`
	Content   *string `json:"content"`
	SubjectID *string `json:"subjectId"`
}

// ShareRequest invites email to a note with role.
type ShareRequest struct {
	Email string
	Role  access.Role
}

// SharedNote is a note visible through an accepted share.
type SharedNote struct {
	Note
	ShareID string      `json:"shareId"`
	Role    access.Role `json:"role"`
}

// Listing separates owned notes from notes shared with the caller.
type Listing struct {
	Owned  []Note       `json:"ownNotes"`
	Shared []SharedNote `json:"sharedNotes"`
}

// Detail is a note together with its shares and comments.
type Detail struct {
	Note     Note      `json:"note"`
	Shares   []Share   `json:"shares"`
	Comments []Comment `json:"comments"`
}

func grantsOf(shares []Share) []access.Grant {
	grants := make([]access.Grant, 0, len(shares))
	for _, share := range shares {
		grants = append(grants, access.Grant{
			UserID: share.inviteeID(),
			Status: share.Status,
			Role:   share.Role,
		})
	}
	return grants
}
