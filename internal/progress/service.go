// Package progress tracks streaks, focus time, task-driven rewards and badges.
package progress

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew          = "progress.service.new"
	opStats               = "progress.stats"
	opTouchStreak         = "progress.touch_streak"
	opAddFocus            = "progress.add_focus"
	opRecordCompletion    = "progress.record_completion"
	opAccumulateRewards   = "progress.accumulate_rewards"
	opAwardBadges         = "progress.award_badges"
	opListRewards         = "progress.list_rewards"
	opCreateReward        = "progress.create_reward"
	opUpdateReward        = "progress.update_reward"
	opDeleteReward        = "progress.delete_reward"
	opPurgeUser           = "progress.purge_user"
	reasonUserNotFound    = "user_not_found"
	reasonRewardNotFound  = "reward_not_found"
	reasonInvalidInput    = "invalid_input"
	rewardUnlockedTitle   = "Reward unlocked"
	badgeEarnedTitle      = "Badge earned"
	referenceTypeReward   = "reward"
	referenceTypeBadge    = "badge"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// AchievementNotifier receives achievement notices for unlocked rewards and badges.
type AchievementNotifier interface {
	Notify(ctx context.Context, draft notifications.Draft) (notifications.Notification, error)
}

// ServiceConfig describes the dependencies of the progress service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Notifier   AchievementNotifier
	Logger     *zap.Logger
}

// Service mutates user statistics and rewards with per-row atomic updates.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	notifier   AchievementNotifier
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
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		notifier:   cfg.Notifier,
		logger:     logger,
	}, nil
}

// Stats returns the actor's cumulative statistics.
func (s *Service) Stats(ctx context.Context, actor access.Actor) (Stats, error) {
	user, err := s.loadUser(s.db.WithContext(ctx), opStats, actor.UserID, false)
	if err != nil {
		return Stats{}, err
	}
	return statsOf(user), nil
}

// TouchStreak records activity for today and returns the resulting streak.
// Repeated touches within a day leave the streak and focus counters unchanged.
func (s *Service) TouchStreak(ctx context.Context, actor access.Actor) (StreakResult, error) {
	var result StreakResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.loadUser(tx, opTouchStreak, actor.UserID, true)
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		outcome := EvaluateStreak(user.DailyStreak, user.LastActiveDate, now)
		result = StreakResult{Streak: outcome.Streak, Updated: outcome.Updated}
		if !outcome.Updated {
			return nil
		}
		changes := map[string]interface{}{
			"daily_streak":     outcome.Streak,
			"last_active_date": now,
		}
		if outcome.DayRolledOver {
			changes["today_focus_minutes"] = 0
		}
		if err := tx.Model(&users.User{}).Where("id = ?", user.ID).Updates(changes).Error; err != nil {
			s.logError(opTouchStreak, "update_failed", err, zap.String("user_id", user.ID))
			return apperr.New(opTouchStreak, "update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return StreakResult{}, txErr
	}
	if result.Updated {
		s.awardBadgesBestEffort(ctx, actor.UserID)
	}
	return result, nil
}

// AddFocusMinutes atomically adds minutes to the total and today's focus counters.
func (s *Service) AddFocusMinutes(ctx context.Context, actor access.Actor, minutes int) (Stats, error) {
	if minutes < 0 {
		return Stats{}, apperr.New(opAddFocus, reasonInvalidInput, apperr.NewValidationError("minutes", "must not be negative"))
	}
	db := s.db.WithContext(ctx)
	result := db.Model(&users.User{}).Where("id = ?", actor.UserID).Updates(map[string]interface{}{
		"total_focus_minutes": gorm.Expr("total_focus_minutes + ?", minutes),
		"today_focus_minutes": gorm.Expr("today_focus_minutes + ?", minutes),
	})
	if result.Error != nil {
		s.logError(opAddFocus, "update_failed", result.Error, zap.String("user_id", actor.UserID))
		return Stats{}, apperr.New(opAddFocus, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Stats{}, apperr.New(opAddFocus, reasonUserNotFound, apperr.ErrNotFound)
	}
	user, err := s.loadUser(db, opAddFocus, actor.UserID, false)
	if err != nil {
		return Stats{}, err
	}
	return statsOf(user), nil
}

// RecordTaskCompletion counts one completed task for userID, then advances
// rewards and awards badges. Reward and badge failures are logged and skipped.
func (s *Service) RecordTaskCompletion(ctx context.Context, userID string) (CompletionResult, error) {
	result := s.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", userID).
		Update("total_tasks_completed", gorm.Expr("total_tasks_completed + 1"))
	if result.Error != nil {
		s.logError(opRecordCompletion, "update_failed", result.Error, zap.String("user_id", userID))
		return CompletionResult{}, apperr.New(opRecordCompletion, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return CompletionResult{}, apperr.New(opRecordCompletion, reasonUserNotFound, apperr.ErrNotFound)
	}

	completion := CompletionResult{UnlockedRewards: []Reward{}, AwardedBadges: []string{}}
	unlocked, err := s.AccumulateRewards(ctx, userID)
	if err != nil {
		s.logger.Warn("reward progress failed",
			zap.String("operation", opRecordCompletion),
			zap.String("user_id", userID),
			zap.Error(err))
	}
	completion.UnlockedRewards = append(completion.UnlockedRewards, unlocked...)
	for _, reward := range unlocked {
		s.notifyBestEffort(ctx, notifications.Draft{
			RecipientID:   userID,
			Type:          notifications.TypeAchievement,
			Title:         rewardUnlockedTitle,
			Message:       "You unlocked your reward: " + reward.Reward,
			ReferenceID:   reward.ID,
			ReferenceType: referenceTypeReward,
		})
	}
	completion.AwardedBadges = append(completion.AwardedBadges, s.awardBadgesBestEffort(ctx, userID)...)
	return completion, nil
}

// AccumulateRewards advances every active reward of userID by one and returns
// the rewards this call completed. Each reward is advanced by a single
// conditional update so concurrent completions never lose an increment.
func (s *Service) AccumulateRewards(ctx context.Context, userID string) ([]Reward, error) {
	db := s.db.WithContext(ctx)
	var active []Reward
	if err := db.Where("user_id = ? AND is_completed = ?", userID, false).Order("created_at ASC").Find(&active).Error; err != nil {
		s.logError(opAccumulateRewards, "query_failed", err, zap.String("user_id", userID))
		return nil, apperr.New(opAccumulateRewards, "query_failed", err)
	}
	unlocked := []Reward{}
	var firstErr error
	for _, reward := range active {
		result := db.Model(&Reward{}).
			Where("id = ? AND is_completed = ? AND current_progress < target_tasks", reward.ID, false).
			Updates(map[string]interface{}{
				"current_progress": gorm.Expr("current_progress + 1"),
				"is_completed":     gorm.Expr("current_progress + 1 >= target_tasks"),
			})
		if result.Error != nil {
			s.logError(opAccumulateRewards, "update_failed", result.Error, zap.String("reward_id", reward.ID))
			if firstErr == nil {
				firstErr = apperr.New(opAccumulateRewards, "update_failed", result.Error)
			}
			continue
		}
		if result.RowsAffected != 1 {
			continue
		}
		var current Reward
		if err := db.Where("id = ?", reward.ID).Take(&current).Error; err != nil {
			if firstErr == nil {
				firstErr = apperr.New(opAccumulateRewards, "reload_failed", err)
			}
			continue
		}
		if current.IsCompleted {
			unlocked = append(unlocked, current)
		}
	}
	return unlocked, firstErr
}

// ListRewards returns the actor's rewards in creation order.
func (s *Service) ListRewards(ctx context.Context, actor access.Actor) ([]Reward, error) {
	rewards := []Reward{}
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", actor.UserID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rewards).Error; err != nil {
		s.logError(opListRewards, "query_failed", err, zap.String("user_id", actor.UserID))
		return nil, apperr.New(opListRewards, "query_failed", err)
	}
	return rewards, nil
}

// CreateReward stores a new reward with no progress.
func (s *Service) CreateReward(ctx context.Context, actor access.Actor, input RewardInput) (Reward, error) {
	text := strings.TrimSpace(input.Reward)
	if err := validateReward(text, input.TargetTasks); err != nil {
		return Reward{}, apperr.New(opCreateReward, reasonInvalidInput, err)
	}
	rewardID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateReward, "id_generation_failed", err)
		return Reward{}, apperr.New(opCreateReward, "id_generation_failed", err)
	}
	reward := Reward{
		ID:          rewardID,
		UserID:      actor.UserID,
		Reward:      text,
		TargetTasks: input.TargetTasks,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&reward).Error; err != nil {
		s.logError(opCreateReward, "insert_failed", err, zap.String("user_id", actor.UserID))
		return Reward{}, apperr.New(opCreateReward, "insert_failed", err)
	}
	return reward, nil
}

// UpdateReward changes a reward's text or target. Lowering the target to the
// current progress completes the reward; a completed reward stays completed.
func (s *Service) UpdateReward(ctx context.Context, actor access.Actor, rewardID string, update RewardUpdate) (Reward, error) {
	var reward Reward
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", rewardID, actor.UserID).
			Take(&reward).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(opUpdateReward, reasonRewardNotFound, apperr.ErrNotFound)
		}
		if err != nil {
			s.logError(opUpdateReward, "select_failed", err, zap.String("reward_id", rewardID))
			return apperr.New(opUpdateReward, "select_failed", err)
		}
		if update.Reward != nil {
			reward.Reward = strings.TrimSpace(*update.Reward)
		}
		if update.TargetTasks != nil {
			reward.TargetTasks = *update.TargetTasks
		}
		if err := validateReward(reward.Reward, reward.TargetTasks); err != nil {
			return apperr.New(opUpdateReward, reasonInvalidInput, err)
		}
		if reward.CurrentProgress >= reward.TargetTasks {
			reward.CurrentProgress = reward.TargetTasks
			reward.IsCompleted = true
		}
		if err := tx.Model(&Reward{}).Where("id = ?", reward.ID).Updates(map[string]interface{}{
			"reward":           reward.Reward,
			"target_tasks":     reward.TargetTasks,
			"current_progress": reward.CurrentProgress,
			"is_completed":     reward.IsCompleted,
		}).Error; err != nil {
			s.logError(opUpdateReward, "update_failed", err, zap.String("reward_id", reward.ID))
			return apperr.New(opUpdateReward, "update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Reward{}, txErr
	}
	return reward, nil
}

// DeleteReward removes one of the actor's rewards.
func (s *Service) DeleteReward(ctx context.Context, actor access.Actor, rewardID string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", rewardID, actor.UserID).Delete(&Reward{})
	if result.Error != nil {
		s.logError(opDeleteReward, "delete_failed", result.Error, zap.String("reward_id", rewardID))
		return apperr.New(opDeleteReward, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(opDeleteReward, reasonRewardNotFound, apperr.ErrNotFound)
	}
	return nil
}

// PurgeUser removes every reward owned by userID.
func (s *Service) PurgeUser(tx *gorm.DB, userID string) error {
	if err := tx.Where("user_id = ?", userID).Delete(&Reward{}).Error; err != nil {
		return apperr.New(opPurgeUser, "delete_failed", err)
	}
	return nil
}

// AwardBadges grants every badge userID now qualifies for and returns the new ids.
func (s *Service) AwardBadges(ctx context.Context, userID string) ([]string, error) {
	var awarded []badgeRule
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.loadUser(tx, opAwardBadges, userID, true)
		if err != nil {
			return err
		}
		awarded = pendingBadges(user)
		if len(awarded) == 0 {
			return nil
		}
		badges := append(datatypes.JSONSlice[string]{}, user.Badges...)
		for _, rule := range awarded {
			badges = append(badges, rule.id)
		}
		if err := tx.Model(&users.User{}).Where("id = ?", user.ID).Update("badges", badges).Error; err != nil {
			s.logError(opAwardBadges, "update_failed", err, zap.String("user_id", user.ID))
			return apperr.New(opAwardBadges, "update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	badgeIDs := make([]string, 0, len(awarded))
	for _, rule := range awarded {
		badgeIDs = append(badgeIDs, rule.id)
		s.notifyBestEffort(ctx, notifications.Draft{
			RecipientID:   userID,
			Type:          notifications.TypeAchievement,
			Title:         badgeEarnedTitle,
			Message:       rule.message(),
			ReferenceID:   rule.id,
			ReferenceType: referenceTypeBadge,
		})
	}
	return badgeIDs, nil
}

func (s *Service) awardBadgesBestEffort(ctx context.Context, userID string) []string {
	awarded, err := s.AwardBadges(ctx, userID)
	if err != nil {
		s.logger.Warn("badge award failed",
			zap.String("operation", opAwardBadges),
			zap.String("user_id", userID),
			zap.Error(err))
		return nil
	}
	return awarded
}

func (s *Service) notifyBestEffort(ctx context.Context, draft notifications.Draft) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, draft); err != nil {
		s.logger.Warn("achievement notification failed",
			zap.String("user_id", draft.RecipientID),
			zap.String("title", draft.Title),
			zap.Error(err))
	}
}

func (s *Service) loadUser(db *gorm.DB, operation, userID string, lock bool) (users.User, error) {
	query := db
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var user users.User
	err := query.Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return users.User{}, apperr.New(operation, reasonUserNotFound, apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "user_select_failed", err, zap.String("user_id", userID))
		return users.User{}, apperr.New(operation, "user_select_failed", err)
	}
	return user, nil
}

func statsOf(user users.User) Stats {
	badges := []string(user.Badges)
	if badges == nil {
		badges = []string{}
	}
	return Stats{
		DailyStreak:         user.DailyStreak,
		TotalFocusMinutes:   user.TotalFocusMinutes,
		TodayFocusMinutes:   user.TodayFocusMinutes,
		TotalTasksCompleted: user.TotalTasksCompleted,
		Badges:              badges,
	}
}

func validateReward(text string, target int) error {
	var validation apperr.ValidationError
	if text == "" {
		validation.Add("reward", "is required")
	}
	if target < 1 {
		validation.Add("targetTasks", "must be at least 1")
	}
	return validation.OrNil()
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
	s.logger.Error("progress service error", attrs...)
}
