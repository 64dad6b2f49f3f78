// Package flashcards stores flashcards and applies Leitner reviews to them.
package flashcards

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew     = "flashcards.service.new"
	opCreate         = "flashcards.create"
	opList           = "flashcards.list"
	opUpdate         = "flashcards.update"
	opDelete         = "flashcards.delete"
	opReview         = "flashcards.review"
	opCount          = "flashcards.count"
	opPurgeUser      = "flashcards.purge_user"
	opDetachSubject  = "flashcards.detach_subject"
	reasonNotFound   = "flashcard_not_found"
	reasonInvalid    = "invalid_input"
	reasonSelectFail = "select_failed"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceConfig describes the dependencies of the flashcard service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service persists flashcards and their review schedule.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
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
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// Create stores a new card in the first box, due immediately.
func (s *Service) Create(ctx context.Context, actor access.Actor, input CardInput) (Flashcard, error) {
	front := strings.TrimSpace(input.Front)
	back := strings.TrimSpace(input.Back)
	if err := validateSides(front, back); err != nil {
		return Flashcard{}, apperr.New(opCreate, reasonInvalid, err)
	}
	cardID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Flashcard{}, apperr.New(opCreate, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	card := Flashcard{
		ID:             cardID,
		UserID:         actor.UserID,
		SubjectID:      normalizeOptional(input.SubjectID),
		Front:          front,
		Back:           back,
		Box:            MinBox,
		NextReviewDate: now,
		CreatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(&card).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("user_id", actor.UserID))
		return Flashcard{}, apperr.New(opCreate, "insert_failed", err)
	}
	return card, nil
}

// List returns the actor's cards ordered by next review date.
func (s *Service) List(ctx context.Context, actor access.Actor, filter ListFilter) ([]Flashcard, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", actor.UserID)
	if filter.DueOnly {
		query = query.Where("next_review_date <= ?", s.clock().UTC())
	}
	if subjectID := strings.TrimSpace(filter.SubjectID); subjectID != "" {
		query = query.Where("subject_id = ?", subjectID)
	}
	cards := []Flashcard{}
	if err := query.Order("next_review_date ASC").Order("created_at ASC").Find(&cards).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", actor.UserID))
		return nil, apperr.New(opList, "query_failed", err)
	}
	return cards, nil
}

// Count returns how many cards the user owns.
func (s *Service) Count(ctx context.Context, userID string) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&Flashcard{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return 0, apperr.New(opCount, "query_failed", err)
	}
	return total, nil
}

// Update changes a card's content without touching its schedule.
func (s *Service) Update(ctx context.Context, actor access.Actor, cardID string, update CardUpdate) (Flashcard, error) {
	var card Flashcard
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadCard(tx, opUpdate, actor.UserID, cardID)
		if err != nil {
			return err
		}
		if update.Front != nil {
			loaded.Front = strings.TrimSpace(*update.Front)
		}
		if update.Back != nil {
			loaded.Back = strings.TrimSpace(*update.Back)
		}
		if update.SubjectID != nil {
			loaded.SubjectID = normalizeOptional(update.SubjectID)
		}
		if err := validateSides(loaded.Front, loaded.Back); err != nil {
			return apperr.New(opUpdate, reasonInvalid, err)
		}
		if err := tx.Model(&Flashcard{}).Where("id = ?", loaded.ID).Updates(map[string]interface{}{
			"front":      loaded.Front,
			"back":       loaded.Back,
			"subject_id": loaded.SubjectID,
		}).Error; err != nil {
			s.logError(opUpdate, "update_failed", err, zap.String("flashcard_id", loaded.ID))
			return apperr.New(opUpdate, "update_failed", err)
		}
		card = loaded
		return nil
	})
	if txErr != nil {
		return Flashcard{}, txErr
	}
	return card, nil
}

// Delete removes a card together with its scheduling state.
func (s *Service) Delete(ctx context.Context, actor access.Actor, cardID string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", cardID, actor.UserID).Delete(&Flashcard{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("flashcard_id", cardID))
		return apperr.New(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(opDelete, reasonNotFound, apperr.ErrNotFound)
	}
	return nil
}

// Review records a response for the card under a row lock and returns the rescheduled card.
func (s *Service) Review(ctx context.Context, actor access.Actor, cardID string, correct bool) (Flashcard, error) {
	var card Flashcard
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadCard(tx, opReview, actor.UserID, cardID)
		if err != nil {
			return err
		}
		schedule := Review(loaded.Box, correct, s.clock().UTC())
		if err := tx.Model(&Flashcard{}).Where("id = ?", loaded.ID).Updates(map[string]interface{}{
			"box":              schedule.Box,
			"last_review_date": schedule.LastReviewDate,
			"next_review_date": schedule.NextReviewDate,
		}).Error; err != nil {
			s.logError(opReview, "update_failed", err, zap.String("flashcard_id", loaded.ID))
			return apperr.New(opReview, "update_failed", err)
		}
		loaded.Box = schedule.Box
		reviewed := schedule.LastReviewDate
		loaded.LastReviewDate = &reviewed
		loaded.NextReviewDate = schedule.NextReviewDate
		card = loaded
		return nil
	})
	if txErr != nil {
		return Flashcard{}, txErr
	}
	return card, nil
}

// PurgeUser removes every card owned by userID.
func (s *Service) PurgeUser(tx *gorm.DB, userID string) error {
	if err := tx.Where("user_id = ?", userID).Delete(&Flashcard{}).Error; err != nil {
		return apperr.New(opPurgeUser, "delete_failed", err)
	}
	return nil
}

// DetachSubject clears the subject of every card userID filed under subjectID.
func (s *Service) DetachSubject(tx *gorm.DB, userID, subjectID string) error {
	if err := tx.Model(&Flashcard{}).
		Where("user_id = ? AND subject_id = ?", userID, subjectID).
		Update("subject_id", nil).Error; err != nil {
		return apperr.New(opDetachSubject, "update_failed", err)
	}
	return nil
}

func (s *Service) loadCard(tx *gorm.DB, operation, userID, cardID string) (Flashcard, error) {
	var card Flashcard
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", cardID, userID).
		Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Flashcard{}, apperr.New(operation, reasonNotFound, apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(operation, reasonSelectFail, err, zap.String("flashcard_id", cardID))
		return Flashcard{}, apperr.New(operation, reasonSelectFail, err)
	}
	return card, nil
}

func validateSides(front, back string) error {
	var validation apperr.ValidationError
	if front == "" {
		validation.Add("front", "is required")
	}
	if back == "" {
		validation.Add("back", "is required")
	}
	return validation.OrNil()
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

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("flashcards service error", attrs...)
}
