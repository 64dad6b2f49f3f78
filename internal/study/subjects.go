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
	opListSubjects        = "study.list_subjects"
	opGetSubject          = "study.get_subject"
	opCreateSubject       = "study.create_subject"
	opUpdateSubject       = "study.update_subject"
	opDeleteSubject       = "study.delete_subject"
	reasonSubjectNotFound = "subject_not_found"
)

// ListSubjects returns the actor's subjects ordered by name.
func (s *Service) ListSubjects(ctx context.Context, actor access.Actor) ([]Subject, error) {
	subjects := []Subject{}
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", actor.UserID).
		Order("name ASC").
		Find(&subjects).Error; err != nil {
		s.logError(opListSubjects, "query_failed", err, zap.String("user_id", actor.UserID))
		return nil, apperr.New(opListSubjects, "query_failed", err)
	}
	return subjects, nil
}

// GetSubject returns one of the actor's subjects.
func (s *Service) GetSubject(ctx context.Context, actor access.Actor, subjectID string) (Subject, error) {
	var subject Subject
	if err := s.takeOwned(s.db.WithContext(ctx), opGetSubject, reasonSubjectNotFound, actor.UserID, subjectID, false, &subject); err != nil {
		return Subject{}, err
	}
	return subject, nil
}

// CreateSubject stores a new subject.
func (s *Service) CreateSubject(ctx context.Context, actor access.Actor, input SubjectInput) (Subject, error) {
	subject := Subject{
		UserID:         actor.UserID,
		Name:           strings.TrimSpace(input.Name),
		Color:          strings.TrimSpace(input.Color),
		TotalTopics:    input.TotalTopics,
		CoveredTopics:  input.CoveredTopics,
		GoogleDriveURL: normalizeOptional(input.GoogleDriveURL),
		StudyHours:     input.StudyHours,
		WeakAreas:      input.WeakAreas,
		CreatedAt:      s.clock().UTC(),
	}
	if err := validateSubject(subject); err != nil {
		return Subject{}, apperr.New(opCreateSubject, reasonInvalid, err)
	}
	subjectID, err := s.newID(opCreateSubject)
	if err != nil {
		return Subject{}, err
	}
	subject.ID = subjectID
	if err := s.db.WithContext(ctx).Create(&subject).Error; err != nil {
		s.logError(opCreateSubject, "insert_failed", err, zap.String("user_id", actor.UserID))
		return Subject{}, apperr.New(opCreateSubject, "insert_failed", err)
	}
	return subject, nil
}

// UpdateSubject applies update to one of the actor's subjects.
func (s *Service) UpdateSubject(ctx context.Context, actor access.Actor, subjectID string, update SubjectUpdate) (Subject, error) {
	var subject Subject
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.takeOwned(tx, opUpdateSubject, reasonSubjectNotFound, actor.UserID, subjectID, true, &subject); err != nil {
			return err
		}
		if update.Name != nil {
			subject.Name = strings.TrimSpace(*update.Name)
		}
		if update.Color != nil {
			subject.Color = strings.TrimSpace(*update.Color)
		}
		if update.TotalTopics != nil {
			subject.TotalTopics = *update.TotalTopics
		}
		if update.CoveredTopics != nil {
			subject.CoveredTopics = *update.CoveredTopics
		}
		if update.GoogleDriveURL != nil {
			subject.GoogleDriveURL = normalizeOptional(update.GoogleDriveURL)
		}
		if update.StudyHours != nil {
			subject.StudyHours = *update.StudyHours
		}
		if update.WeakAreas != nil {
			subject.WeakAreas = update.WeakAreas
		}
		if err := validateSubject(subject); err != nil {
			return apperr.New(opUpdateSubject, reasonInvalid, err)
		}
		if err := tx.Model(&Subject{}).Where("id = ?", subject.ID).Updates(map[string]interface{}{
			"name":             subject.Name,
			"color":            subject.Color,
			"total_topics":     subject.TotalTopics,
			"covered_topics":   subject.CoveredTopics,
			"google_drive_url": subject.GoogleDriveURL,
			"study_hours":      subject.StudyHours,
			"weak_areas":       subject.WeakAreas,
		}).Error; err != nil {
			s.logError(opUpdateSubject, "update_failed", err, zap.String("subject_id", subject.ID))
			return apperr.New(opUpdateSubject, "update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Subject{}, txErr
	}
	return subject, nil
}

// DeleteSubject removes a subject and clears it from every item filed under it.
func (s *Service) DeleteSubject(ctx context.Context, actor access.Actor, subjectID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var subject Subject
		if err := s.takeOwned(tx, opDeleteSubject, reasonSubjectNotFound, actor.UserID, subjectID, true, &subject); err != nil {
			return err
		}
		for _, model := range []interface{}{&Exam{}, &Task{}} {
			if err := tx.Model(model).
				Where("user_id = ? AND subject_id = ?", actor.UserID, subject.ID).
				Update("subject_id", nil).Error; err != nil {
				s.logError(opDeleteSubject, "detach_failed", err, zap.String("subject_id", subject.ID))
				return apperr.New(opDeleteSubject, "detach_failed", err)
			}
		}
		for _, detacher := range s.detachers {
			if err := detacher.DetachSubject(tx, actor.UserID, subject.ID); err != nil {
				s.logError(opDeleteSubject, "detach_failed", err, zap.String("subject_id", subject.ID))
				return apperr.New(opDeleteSubject, "detach_failed", err)
			}
		}
		if err := tx.Where("id = ?", subject.ID).Delete(&Subject{}).Error; err != nil {
			s.logError(opDeleteSubject, "delete_failed", err, zap.String("subject_id", subject.ID))
			return apperr.New(opDeleteSubject, "delete_failed", err)
		}
		return nil
	})
}

func validateSubject(subject Subject) error {
	var validation apperr.ValidationError
	if subject.Name == "" {
		validation.Add("name", "is required")
	}
	if subject.Color == "" {
		validation.Add("color", "is required")
	}
	if subject.TotalTopics < 0 {
		validation.Add("totalTopics", "must not be negative")
	}
	if subject.CoveredTopics < 0 {
		validation.Add("coveredTopics", "must not be negative")
	}
	if subject.StudyHours < 0 {
		validation.Add("studyHours", "must not be negative")
	}
	return validation.OrNil()
}
