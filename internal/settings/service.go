// Package settings stores per-user pomodoro settings and app preferences.
package settings

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew       = "settings.service.new"
	opGetPomodoro      = "settings.get_pomodoro"
	opSavePomodoro     = "settings.save_pomodoro"
	opGetPreferences   = "settings.get_preferences"
	opSavePreferences  = "settings.save_preferences"
	opPurgeUser        = "settings.purge_user"
	reasonInvalidInput = "invalid_input"
	maxDurationMinutes = 240
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig describes the dependencies of the settings service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service reads and upserts singleton settings rows keyed by user.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// Pomodoro returns the actor's stored settings, or the defaults.
func (s *Service) Pomodoro(ctx context.Context, actor access.Actor) (Pomodoro, error) {
	settings := DefaultPomodoro(actor.UserID)
	if err := s.load(s.db.WithContext(ctx), opGetPomodoro, actor.UserID, &settings); err != nil {
		return Pomodoro{}, err
	}
	return settings, nil
}

// SavePomodoro merges update over the current settings and upserts the result.
func (s *Service) SavePomodoro(ctx context.Context, actor access.Actor, update PomodoroUpdate) (Pomodoro, error) {
	var saved Pomodoro
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		settings := DefaultPomodoro(actor.UserID)
		if err := s.load(tx, opSavePomodoro, actor.UserID, &settings); err != nil {
			return err
		}
		mergeInt(&settings.WorkDuration, update.WorkDuration)
		mergeInt(&settings.ShortBreakDuration, update.ShortBreakDuration)
		mergeInt(&settings.LongBreakDuration, update.LongBreakDuration)
		mergeInt(&settings.SessionsUntilLongBreak, update.SessionsUntilLongBreak)
		mergeBool(&settings.AutoStartNext, update.AutoStartNext)
		mergeBool(&settings.SoundEnabled, update.SoundEnabled)
		mergeBool(&settings.NotificationsEnabled, update.NotificationsEnabled)
		if err := validatePomodoro(settings); err != nil {
			return apperr.New(opSavePomodoro, reasonInvalidInput, err)
		}
		if err := s.upsert(tx, opSavePomodoro, &settings); err != nil {
			return err
		}
		saved = settings
		return nil
	})
	if txErr != nil {
		return Pomodoro{}, txErr
	}
	return saved, nil
}

// Preferences returns the actor's stored preferences, or the defaults.
func (s *Service) Preferences(ctx context.Context, actor access.Actor) (Preferences, error) {
	preferences := DefaultPreferences(actor.UserID)
	if err := s.load(s.db.WithContext(ctx), opGetPreferences, actor.UserID, &preferences); err != nil {
		return Preferences{}, err
	}
	return preferences, nil
}

// SavePreferences merges update over the current preferences and upserts the result.
func (s *Service) SavePreferences(ctx context.Context, actor access.Actor, update PreferencesUpdate) (Preferences, error) {
	var saved Preferences
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		preferences := DefaultPreferences(actor.UserID)
		if err := s.load(tx, opSavePreferences, actor.UserID, &preferences); err != nil {
			return err
		}
		if update.Theme != nil {
			preferences.Theme = *update.Theme
		}
		mergeBool(&preferences.HasSeenTour, update.HasSeenTour)
		mergeBool(&preferences.HealthRemindersEnabled, update.HealthRemindersEnabled)
		mergeInt(&preferences.FocusMusicVolume, update.FocusMusicVolume)
		if err := validatePreferences(preferences); err != nil {
			return apperr.New(opSavePreferences, reasonInvalidInput, err)
		}
		if err := s.upsert(tx, opSavePreferences, &preferences); err != nil {
			return err
		}
		saved = preferences
		return nil
	})
	if txErr != nil {
		return Preferences{}, txErr
	}
	return saved, nil
}

// PurgeUser removes the settings rows of userID.
func (s *Service) PurgeUser(tx *gorm.DB, userID string) error {
	for _, model := range []interface{}{&Pomodoro{}, &Preferences{}} {
		if err := tx.Where("user_id = ?", userID).Delete(model).Error; err != nil {
			return apperr.New(opPurgeUser, "delete_failed", err)
		}
	}
	return nil
}

// load overwrites dest with the stored row when one exists.
func (s *Service) load(db *gorm.DB, operation, userID string, dest interface{}) error {
	err := db.Where("user_id = ?", userID).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		s.logError(operation, "select_failed", err, zap.String("user_id", userID))
		return apperr.New(operation, "select_failed", err)
	}
	return nil
}

func (s *Service) upsert(tx *gorm.DB, operation string, row interface{}) error {
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(row).Error; err != nil {
		s.logError(operation, "upsert_failed", err)
		return apperr.New(operation, "upsert_failed", err)
	}
	return nil
}

func validatePomodoro(settings Pomodoro) error {
	var validation apperr.ValidationError
	for _, field := range []struct {
		name  string
		value int
	}{
		{"workDuration", settings.WorkDuration},
		{"shortBreakDuration", settings.ShortBreakDuration},
		{"longBreakDuration", settings.LongBreakDuration},
	} {
		if field.value < 1 || field.value > maxDurationMinutes {
			validation.Add(field.name, "must be between 1 and 240 minutes")
		}
	}
	if settings.SessionsUntilLongBreak < 1 {
		validation.Add("sessionsUntilLongBreak", "must be at least 1")
	}
	return validation.OrNil()
}

func validatePreferences(preferences Preferences) error {
	var validation apperr.ValidationError
	if preferences.Theme != ThemeLight && preferences.Theme != ThemeDark {
		validation.Add("theme", "must be light or dark")
	}
	if preferences.FocusMusicVolume < 0 || preferences.FocusMusicVolume > 100 {
		validation.Add("focusMusicVolume", "must be between 0 and 100")
	}
	return validation.OrNil()
}

func mergeInt(target *int, value *int) {
	if value != nil {
		*target = *value
	}
}

func mergeBool(target *bool, value *bool) {
	if value != nil {
		*target = *value
	}
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
	s.logger.Error("settings service error", attrs...)
}
