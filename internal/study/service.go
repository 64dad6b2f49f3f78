// Package study stores the subjects, exams and tasks a user plans their work with.
package study

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/progress"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew  = "study.service.new"
	opPurgeUser   = "study.purge_user"
	reasonInvalid = "invalid_input"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// SubjectDetacher clears references to a deleted subject held by another store.
type SubjectDetacher interface {
	DetachSubject(tx *gorm.DB, userID, subjectID string) error
}

// CompletionRecorder reacts to a task entering the completed state.
type CompletionRecorder interface {
	RecordTaskCompletion(ctx context.Context, userID string) (progress.CompletionResult, error)
}

// TaskReminderRemover deletes reminders linked to removed tasks.
type TaskReminderRemover interface {
	RemoveTaskReminders(tx *gorm.DB, taskIDs []string) error
}

// ServiceConfig describes the dependencies of the study service.
type ServiceConfig struct {
	Database         *gorm.DB
	Clock            func() time.Time
	IDProvider       ids.Provider
	SubjectDetachers []SubjectDetacher
	Completions      CompletionRecorder
	Reminders        TaskReminderRemover
	Logger           *zap.Logger
}

// Service implements owner-only storage for subjects, exams and tasks.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	idProvider  ids.Provider
	detachers   []SubjectDetacher
	completions CompletionRecorder
	reminders   TaskReminderRemover
	logger      *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:          cfg.Database,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		detachers:   cfg.SubjectDetachers,
		completions: cfg.Completions,
		reminders:   cfg.Reminders,
		logger:      logger,
	}, nil
}

// PurgeUser removes every subject, exam and task owned by userID.
func (s *Service) PurgeUser(tx *gorm.DB, userID string) error {
	for _, model := range []interface{}{&Task{}, &Exam{}, &Subject{}} {
		if err := tx.Where("user_id = ?", userID).Delete(model).Error; err != nil {
			return apperr.New(opPurgeUser, "delete_failed", err)
		}
	}
	return nil
}

func (s *Service) newID(operation string) (string, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err)
		return "", apperr.New(operation, "id_generation_failed", err)
	}
	return id, nil
}

func (s *Service) takeOwned(db *gorm.DB, operation, notFoundReason, userID, id string, lock bool, dest interface{}) error {
	query := db
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Where("id = ? AND user_id = ?", id, userID).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(operation, notFoundReason, apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "select_failed", err, zap.String("id", id))
		return apperr.New(operation, "select_failed", err)
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("study service error", attrs...)
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	converted := value.UTC()
	return &converted
}
