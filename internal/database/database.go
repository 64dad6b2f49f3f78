// Package database opens the relational store and keeps its schema current.
package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/calendar"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/config"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/flashcards"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/organizer"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/progress"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/sessions"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/settings"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/study"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Options selects and locates the store.
type Options struct {
	Driver string
	Path   string
	DSN    string
	Logger *zap.Logger
}

// Models lists every persisted type in migration order.
func Models() []interface{} {
	return []interface{}{
		&users.User{},
		&sessions.Session{},
		&study.Subject{},
		&study.Exam{},
		&study.Task{},
		&notes.Note{},
		&notes.Share{},
		&notes.Comment{},
		&calendar.Event{},
		&calendar.Share{},
		&organizer.Reminder{},
		&organizer.StickyNote{},
		&organizer.JournalEntry{},
		&notifications.Notification{},
		&flashcards.Flashcard{},
		&progress.Reward{},
		&settings.Pomodoro{},
		&settings.Preferences{},
		&assistant.Message{},
		&migrationRecord{},
	}
}

// Open connects to the configured store, migrates the schema and applies
// pending data migrations.
func Open(options Options) (*gorm.DB, error) {
	dialector, location, err := dialectorFor(options)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if options.Driver == config.DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, options.Logger); err != nil {
		return nil, err
	}

	if options.Logger != nil {
		options.Logger.Info("database initialized",
			zap.String("driver", options.Driver),
			zap.String("location", location))
	}

	return db, nil
}

func dialectorFor(options Options) (gorm.Dialector, string, error) {
	switch options.Driver {
	case config.DriverSQLite:
		if strings.TrimSpace(options.Path) == "" {
			return nil, "", fmt.Errorf("database path is required")
		}
		return sqlite.Open(options.Path), options.Path, nil
	case config.DriverPostgres:
		if strings.TrimSpace(options.DSN) == "" {
			return nil, "", fmt.Errorf("database dsn is required")
		}
		return postgres.Open(options.DSN), "postgres", nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", options.Driver)
	}
}
