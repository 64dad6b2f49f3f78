package study

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/progress"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	opListTasks        = "study.list_tasks"
	opCountTasks       = "study.count_tasks"
	opCreateTask       = "study.create_task"
	opUpdateTask       = "study.update_task"
	opDeleteTask       = "study.delete_task"
	reasonTaskNotFound = "task_not_found"
)

// TaskOutcome is a task together with what completing it unlocked.
type TaskOutcome struct {
	Task
	UnlockedRewards []progress.Reward `json:"unlockedRewards,omitempty"`
	AwardedBadges   []string          `json:"awardedBadges,omitempty"`
}

// TaskFilter narrows a task listing.
type TaskFilter struct {
	Status    Status
	SubjectID string
}

// ListTasks returns the actor's tasks by display order, then creation time.
func (s *Service) ListTasks(ctx context.Context, actor access.Actor, filter TaskFilter) ([]Task, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", actor.UserID)
	if filter.Status != "" {
		if !filter.Status.valid() {
			return nil, apperr.New(opListTasks, reasonInvalid, apperr.NewValidationError("status", "must be pending, in_progress or completed"))
		}
		query = query.Where("status = ?", filter.Status)
	}
	if subjectID := strings.TrimSpace(filter.SubjectID); subjectID != "" {
		query = query.Where("subject_id = ?", subjectID)
	}
	tasks := []Task{}
	if err := query.Order("sort_order ASC").Order("created_at ASC").Find(&tasks).Error; err != nil {
		s.logError(opListTasks, "query_failed", err, zap.String("user_id", actor.UserID))
		return nil, apperr.New(opListTasks, "query_failed", err)
	}
	return tasks, nil
}

// CountOpenTasks returns how many of userID's tasks are not completed.
func (s *Service) CountOpenTasks(ctx context.Context, userID string) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&Task{}).
		Where("user_id = ? AND status <> ?", userID, StatusCompleted).
		Count(&total).Error; err != nil {
		s.logError(opCountTasks, "query_failed", err, zap.String("user_id", userID))
		return 0, apperr.New(opCountTasks, "query_failed", err)
	}
	return total, nil
}

// CreateTask stores a new task. A task created as completed counts as a completion.
func (s *Service) CreateTask(ctx context.Context, actor access.Actor, input TaskInput) (TaskOutcome, error) {
	now := s.clock().UTC()
	task := Task{
		UserID:           actor.UserID,
		SubjectID:        normalizeOptional(input.SubjectID),
		Title:            strings.TrimSpace(input.Title),
		Description:      input.Description,
		Priority:         input.Priority,
		Status:           input.Status,
		DueDate:          utcPtr(input.DueDate),
		EstimatedMinutes: input.EstimatedMinutes,
		Tags:             normalizeTags(input.Tags),
		SortOrder:        input.Order,
		CreatedAt:        now,
	}
	if task.Priority == "" {
		task.Priority = PriorityMedium
	}
	if task.Status == "" {
		task.Status = StatusPending
	}
	if err := validateTask(task); err != nil {
		return TaskOutcome{}, apperr.New(opCreateTask, reasonInvalid, err)
	}
	if task.Status == StatusCompleted {
		task.CompletedAt = &now
	}
	taskID, err := s.newID(opCreateTask)
	if err != nil {
		return TaskOutcome{}, err
	}
	task.ID = taskID
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		s.logError(opCreateTask, "insert_failed", err, zap.String("user_id", actor.UserID))
		return TaskOutcome{}, apperr.New(opCreateTask, "insert_failed", err)
	}
	outcome := TaskOutcome{Task: task}
	if task.Status == StatusCompleted {
		s.recordCompletion(ctx, &outcome)
	}
	return outcome, nil
}

// UpdateTask applies update to one of the actor's tasks. Entering the
// completed state is guarded by the previous status so a completion is
// counted once; leaving it clears completedAt and keeps every counter.
func (s *Service) UpdateTask(ctx context.Context, actor access.Actor, taskID string, update TaskUpdate) (TaskOutcome, error) {
	var (
		task       Task
		completing bool
	)
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.takeOwned(tx, opUpdateTask, reasonTaskNotFound, actor.UserID, taskID, true, &task); err != nil {
			return err
		}
		previous := task.Status
		if update.SubjectID != nil {
			task.SubjectID = normalizeOptional(update.SubjectID)
		}
		if update.Title != nil {
			task.Title = strings.TrimSpace(*update.Title)
		}
		if update.Description != nil {
			task.Description = update.Description
		}
		if update.Priority != nil {
			task.Priority = *update.Priority
		}
		if update.Status != nil {
			task.Status = *update.Status
		}
		if update.DueDate != nil {
			task.DueDate = utcPtr(update.DueDate)
		}
		if update.EstimatedMinutes != nil {
			task.EstimatedMinutes = update.EstimatedMinutes
		}
		if update.Tags != nil {
			task.Tags = normalizeTags(*update.Tags)
		}
		if update.Order != nil {
			task.SortOrder = *update.Order
		}
		if err := validateTask(task); err != nil {
			return apperr.New(opUpdateTask, reasonInvalid, err)
		}

		completing = task.Status == StatusCompleted && previous != StatusCompleted
		switch {
		case completing:
			completedAt := s.clock().UTC()
			task.CompletedAt = &completedAt
		case task.Status != StatusCompleted:
			task.CompletedAt = nil
		}

		result := tx.Model(&Task{}).Where("id = ? AND status = ?", task.ID, previous).Updates(map[string]interface{}{
			"subject_id":        task.SubjectID,
			"title":             task.Title,
			"description":       task.Description,
			"priority":          task.Priority,
			"status":            task.Status,
			"due_date":          task.DueDate,
			"estimated_minutes": task.EstimatedMinutes,
			"tags":              task.Tags,
			"sort_order":        task.SortOrder,
			"completed_at":      task.CompletedAt,
		})
		if result.Error != nil {
			s.logError(opUpdateTask, "update_failed", result.Error, zap.String("task_id", task.ID))
			return apperr.New(opUpdateTask, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.New(opUpdateTask, "concurrent_update", apperr.ErrConflict)
		}
		return nil
	})
	if txErr != nil {
		return TaskOutcome{}, txErr
	}
	outcome := TaskOutcome{Task: task}
	if completing {
		s.recordCompletion(ctx, &outcome)
	}
	return outcome, nil
}

// DeleteTask removes one of the actor's tasks and its reminders.
func (s *Service) DeleteTask(ctx context.Context, actor access.Actor, taskID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task Task
		if err := s.takeOwned(tx, opDeleteTask, reasonTaskNotFound, actor.UserID, taskID, true, &task); err != nil {
			return err
		}
		if s.reminders != nil {
			if err := s.reminders.RemoveTaskReminders(tx, []string{task.ID}); err != nil {
				s.logError(opDeleteTask, "reminders_delete_failed", err, zap.String("task_id", task.ID))
				return apperr.New(opDeleteTask, "reminders_delete_failed", err)
			}
		}
		if err := tx.Where("id = ?", task.ID).Delete(&Task{}).Error; err != nil {
			s.logError(opDeleteTask, "delete_failed", err, zap.String("task_id", task.ID))
			return apperr.New(opDeleteTask, "delete_failed", err)
		}
		return nil
	})
}

func (s *Service) recordCompletion(ctx context.Context, outcome *TaskOutcome) {
	if s.completions == nil {
		return
	}
	result, err := s.completions.RecordTaskCompletion(ctx, outcome.UserID)
	if err != nil {
		s.logger.Warn("task completion side effects failed",
			zap.String("operation", opUpdateTask),
			zap.String("task_id", outcome.ID),
			zap.Error(err))
		return
	}
	outcome.UnlockedRewards = result.UnlockedRewards
	outcome.AwardedBadges = result.AwardedBadges
}

func validateTask(task Task) error {
	var validation apperr.ValidationError
	if task.Title == "" {
		validation.Add("title", "is required")
	}
	if !task.Priority.valid() {
		validation.Add("priority", "must be critical, high, medium or low")
	}
	if !task.Status.valid() {
		validation.Add("status", "must be pending, in_progress or completed")
	}
	if task.EstimatedMinutes != nil && *task.EstimatedMinutes < 0 {
		validation.Add("estimatedMinutes", "must not be negative")
	}
	return validation.OrNil()
}

func normalizeTags(tags []string) datatypes.JSONSlice[string] {
	normalized := datatypes.JSONSlice[string]{}
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, duplicate := seen[trimmed]; duplicate {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
