package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/sessions"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/study"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillUserBadges   = "2026-03-01_backfill_user_badges"
	migrationBackfillTaskTags     = "2026-03-01_backfill_task_tags"
	migrationPurgeExpiredSessions = "2026-03-15_purge_expired_sessions"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func migrationDefinitions() []migrationDefinition {
	return []migrationDefinition{
		{name: migrationBackfillUserBadges, apply: backfillUserBadges},
		{name: migrationBackfillTaskTags, apply: backfillTaskTags},
		{name: migrationPurgeExpiredSessions, apply: purgeExpiredSessions},
	}
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range migrationDefinitions() {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func backfillUserBadges(db *gorm.DB) error {
	return db.Model(&users.User{}).
		Where("badges IS NULL OR badges = ?", "null").
		Update("badges", "[]").Error
}

func backfillTaskTags(db *gorm.DB) error {
	return db.Model(&study.Task{}).
		Where("tags IS NULL OR tags = ?", "null").
		Update("tags", "[]").Error
}

func purgeExpiredSessions(db *gorm.DB) error {
	return db.Where("expires_at <= ?", time.Now().UTC()).Delete(&sessions.Session{}).Error
}
