package study

import (
	"time"

	"gorm.io/datatypes"
)

const (
	defaultConfidence = 50
	defaultWeight     = 100
)

// Subject is a course or topic area the user studies.
type Subject struct {
	ID             string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID         string    `gorm:"column:user_id;not null;index" json:"userId"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	Color          string    `gorm:"column:color;not null" json:"color"`
	TotalTopics    int       `gorm:"column:total_topics;not null;default:0" json:"totalTopics"`
	CoveredTopics  int       `gorm:"column:covered_topics;not null;default:0" json:"coveredTopics"`
	GoogleDriveURL *string   `gorm:"column:google_drive_url" json:"googleDriveUrl"`
	StudyHours     int       `gorm:"column:study_hours;not null;default:0" json:"studyHours"`
	WeakAreas      *string   `gorm:"column:weak_areas" json:"weakAreas"`
	CreatedAt      time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName implements gorm's tabler interface.
func (Subject) TableName() string {
	return "subjects"
}

// Exam is a dated assessment, optionally tied to a subject.
type Exam struct {
	ID             string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID         string    `gorm:"column:user_id;not null;index" json:"userId"`
	SubjectID      *string   `gorm:"column:subject_id;index" json:"subjectId"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	Date           time.Time `gorm:"column:date;not null" json:"date"`
	Confidence     int       `gorm:"column:confidence;not null;default:50" json:"confidence"`
	Weight         int       `gorm:"column:weight;not null;default:100" json:"weight"`
	GoogleDriveURL *string   `gorm:"column:google_drive_url" json:"googleDriveUrl"`
	CreatedAt      time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName implements gorm's tabler interface.
func (Exam) TableName() string {
	return "exams"
}

// Priority ranks a task.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

func (p Priority) valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Status is the progress state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// Task is a unit of study work.
type Task struct {
	ID               string                      `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID           string                      `gorm:"column:user_id;not null;index" json:"userId"`
	SubjectID        *string                     `gorm:"column:subject_id;index" json:"subjectId"`
	Title            string                      `gorm:"column:title;not null" json:"title"`
	Description      *string                     `gorm:"column:description" json:"description"`
	Priority         Priority                    `gorm:"column:priority;not null;size:16" json:"priority"`
	Status           Status                      `gorm:"column:status;not null;size:16" json:"status"`
	DueDate          *time.Time                  `gorm:"column:due_date" json:"dueDate"`
	EstimatedMinutes *int                        `gorm:"column:estimated_minutes" json:"estimatedMinutes"`
	Tags             datatypes.JSONSlice[string] `gorm:"column:tags" json:"tags"`
	SortOrder        int                         `gorm:"column:sort_order;not null;default:0" json:"order"`
	CompletedAt      *time.Time                  `gorm:"column:completed_at" json:"completedAt"`
	CreatedAt        time.Time                   `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName implements gorm's tabler interface.
func (Task) TableName() string {
	return "tasks"
}

// SubjectInput carries the fields of a new subject.
type SubjectInput struct {
	Name           string
	Color          string
	TotalTopics    int
	CoveredTopics  int
	GoogleDriveURL *string
	StudyHours     int
	WeakAreas      *string
}

// SubjectUpdate enumerates the mutable fields of a subject.
type SubjectUpdate struct {
	Name           *string `json:"name"`
	Color          *string `json:"color"`
	TotalTopics    *int    `json:"totalTopics"`
	CoveredTopics  *int    `json:"coveredTopics"`
	GoogleDriveURL *string `json:"googleDriveUrl"`
	StudyHours     *int    `json:"studyHours"`
	WeakAreas      *string `json:"weakAreas"`
}

// ExamInput carries the fields of a new exam. Zero Confidence and Weight take defaults.
type ExamInput struct {
	SubjectID      *string
	Name           string
	Date           time.Time
	Confidence     *int
	Weight         *int
	GoogleDriveURL *string
}

// ExamUpdate enumerates the mutable fields of an exam.
type ExamUpdate struct {
	SubjectID      *string    `json:"subjectId"`
	Name           *string    `json:"name"`
	Date           *time.Time `json:"date"`
	Confidence     *int       `json:"confidence"`
	Weight         *int       `json:"weight"`
	GoogleDriveURL *string    `json:"googleDriveUrl"`
}

// TaskInput carries the fields of a new task.
type TaskInput struct {
	SubjectID        *string
	Title            string
	Description      *string
	Priority         Priority
	Status           Status
	DueDate          *time.Time
	EstimatedMinutes *int
	Tags             []string
	Order            int
}

// TaskUpdate enumerates the mutable fields of a task.
type TaskUpdate struct {
	SubjectID        *string    `json:"subjectId"`
	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	Priority         *Priority  `json:"priority"`
	Status           *Status    `json:"status"`
	DueDate          *time.Time `json:"dueDate"`
	EstimatedMinutes *int       `json:"estimatedMinutes"`
	Tags             *[]string  `json:"tags"`
	Order            *int       `json:"order"`
}
