package flashcards

import "time"

// Flashcard is a two-sided card scheduled by Leitner box.
type Flashcard struct {
	ID             string     `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID         string     `gorm:"column:user_id;not null;index" json:"userId"`
	SubjectID      *string    `gorm:"column:subject_id;index" json:"subjectId"`
	Front          string     `gorm:"column:front;not null" json:"front"`
	Back           string     `gorm:"column:back;not null" json:"back"`
	Box            int        `gorm:"column:box;not null;default:1" json:"box"`
	NextReviewDate time.Time  `gorm:"column:next_review_date;not null;index" json:"nextReviewDate"`
	LastReviewDate *time.Time `gorm:"column:last_review_date" json:"lastReviewDate"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName implements gorm's tabler interface.
func (Flashcard) TableName() string {
	return "flashcards"
}

// CardInput carries the fields of a new card.
type CardInput struct {
	Front     string
	Back      string
	SubjectID *string
}

// CardUpdate enumerates the mutable content fields of a card.
// Scheduling state changes only through Review.
type CardUpdate struct {
	Front     *string `json:"front"`
	Back      *string `json:"back"`
	SubjectID *string `json:"subjectId"`
}

// ListFilter narrows a card listing.
type ListFilter struct {
	DueOnly   bool
	SubjectID string
}
