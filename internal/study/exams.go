package study

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opListExams        = "study.list_exams"
	opUpcomingExams    = "study.upcoming_exams"
	opCreateExam       = "study.create_exam"
	opUpdateExam       = "study.update_exam"
	opDeleteExam       = "study.delete_exam"
	reasonExamNotFound = "exam_not_found"
)

// ListExams returns the actor's exams by ascending date.
func (s *Service) ListExams(ctx context.Context, actor access.Actor) ([]Exam, error) {
	exams := []Exam{}
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", actor.UserID).
		Order("date ASC").
		Find(&exams).Error; err != nil {
		s.logError(opListExams, "query_failed", err, zap.String("user_id", actor.UserID))
		return nil, apperr.New(opListExams, "query_failed", err)
	}
	return exams, nil
}

// UpcomingExams returns at most limit exams dated at or after now.
func (s *Service) UpcomingExams(ctx context.Context, userID string, limit int) ([]Exam, error) {
	exams := []Exam{}
	query := s.db.WithContext(ctx).
		Where("user_id = ? AND date >= ?", userID, s.clock().UTC()).
		Order("date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&exams).Error; err != nil {
		s.logError(opUpcomingExams, "query_failed", err, zap.String("user_id", userID))
		return nil, apperr.New(opUpcomingExams, "query_failed", err)
	}
	return exams, nil
}

// CreateExam stores a new exam.
func (s *Service) CreateExam(ctx context.Context, actor access.Actor, input ExamInput) (Exam, error) {
	exam := Exam{
		UserID:         actor.UserID,
		SubjectID:      normalizeOptional(input.SubjectID),
		Name:           strings.TrimSpace(input.Name),
		Date:           input.Date.UTC(),
		Confidence:     defaultConfidence,
		Weight:         defaultWeight,
		GoogleDriveURL: normalizeOptional(input.GoogleDriveURL),
		CreatedAt:      s.clock().UTC(),
	}
	if input.Confidence != nil {
		exam.Confidence = *input.Confidence
	}
	if input.Weight != nil {
		exam.Weight = *input.Weight
	}
	if err := validateExam(exam); err != nil {
		return Exam{}, apperr.New(opCreateExam, reasonInvalid, err)
	}
	examID, err := s.newID(opCreateExam)
	if err != nil {
		return Exam{}, err
	}
	exam.ID = examID
	if err := s.db.WithContext(ctx).Create(&exam).Error; err != nil {
		s.logError(opCreateExam, "insert_failed", err, zap.String("user_id", actor.UserID))
		return Exam{}, apperr.New(opCreateExam, "insert_failed", err)
	}
	return exam, nil
}

// UpdateExam applies update to one of the actor's exams.
func (s *Service) UpdateExam(ctx context.Context, actor access.Actor, examID string, update ExamUpdate) (Exam, error) {
	var exam Exam
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.takeOwned(tx, opUpdateExam, reasonExamNotFound, actor.UserID, examID, true, &exam); err != nil {
			return err
		}
		if update.SubjectID != nil {
			exam.SubjectID = normalizeOptional(update.SubjectID)
		}
		if update.Name != nil {
			exam.Name = strings.TrimSpace(*update.Name)
		}
		if update.Date != nil {
			exam.Date = update.Date.UTC()
		}
		if update.Confidence != nil {
			exam.Confidence = *update.Confidence
		}
		if update.Weight != nil {
			exam.Weight = *update.Weight
		}
		if update.GoogleDriveURL != nil {
			exam.GoogleDriveURL = normalizeOptional(update.GoogleDriveURL)
		}
		if err := validateExam(exam); err != nil {
			return apperr.New(opUpdateExam, reasonInvalid, err)
		}
		if err := tx.Model(&Exam{}).Where("id = ?", exam.ID).Updates(map[string]interface{}{
			"subject_id":       exam.SubjectID,
			"name":             exam.Name,
			"date":             exam.Date,
			"confidence":       exam.Confidence,
			"weight":           exam.Weight,
			"google_drive_url": exam.GoogleDriveURL,
		}).Error; err != nil {
			s.logError(opUpdateExam, "update_failed", err, zap.String("exam_id", exam.ID))
			return apperr.New(opUpdateExam, "update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Exam{}, txErr
	}
	return exam, nil
}

// DeleteExam removes one of the actor's exams.
func (s *Service) DeleteExam(ctx context.Context, actor access.Actor, examID string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", examID, actor.UserID).Delete(&Exam{})
	if result.Error != nil {
		s.logError(opDeleteExam, "delete_failed", result.Error, zap.String("exam_id", examID))
		return apperr.New(opDeleteExam, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(opDeleteExam, reasonExamNotFound, apperr.ErrNotFound)
	}
	return nil
}

func validateExam(exam Exam) error {
	var validation apperr.ValidationError
	if exam.Name == "" {
		validation.Add("name", "is required")
	}
	if exam.Date.IsZero() {
		validation.Add("date", "is required")
	}
	if exam.Confidence < 0 || exam.Confidence > 100 {
		validation.Add("confidence", "must be between 0 and 100")
	}
	if exam.Weight < 0 {
		validation.Add("weight", "must not be negative")
	}
	return validation.OrNil()
}
