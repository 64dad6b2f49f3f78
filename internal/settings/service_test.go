package settings

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	alice = access.Actor{UserID: "user-alice"}
	bob   = access.Actor{UserID: "user-bob"}
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:settings_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&Pomodoro{}, &Preferences{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, db
}

func TestPomodoroDefaultsBeforeSave(t *testing.T) {
	service, _ := newTestService(t)
	settings, err := service.Pomodoro(context.Background(), alice)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if settings != DefaultPomodoro(alice.UserID) {
		t.Fatalf("expected defaults, got %+v", settings)
	}
}

func TestSavePomodoroMergesAndUpserts(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	work := 50
	off := false
	saved, err := service.SavePomodoro(ctx, alice, PomodoroUpdate{WorkDuration: &work, SoundEnabled: &off})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.WorkDuration != 50 || saved.SoundEnabled || saved.ShortBreakDuration != 5 || !saved.AutoStartNext {
		t.Fatalf("unexpected merge: %+v", saved)
	}

	sessions := 6
	saved, err = service.SavePomodoro(ctx, alice, PomodoroUpdate{SessionsUntilLongBreak: &sessions})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if saved.WorkDuration != 50 || saved.SessionsUntilLongBreak != 6 || saved.SoundEnabled {
		t.Fatalf("expected earlier values kept, got %+v", saved)
	}

	var rows int64
	db.Model(&Pomodoro{}).Count(&rows)
	if rows != 1 {
		t.Fatalf("expected a single row, got %d", rows)
	}

	other, err := service.Pomodoro(ctx, bob)
	if err != nil {
		t.Fatalf("get bob: %v", err)
	}
	if other.WorkDuration != 25 {
		t.Fatalf("expected bob to keep defaults, got %+v", other)
	}
}

func TestSavePomodoroValidates(t *testing.T) {
	service, _ := newTestService(t)
	zero := 0
	_, err := service.SavePomodoro(context.Background(), alice, PomodoroUpdate{WorkDuration: &zero, SessionsUntilLongBreak: &zero})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fields := apperr.FieldErrors(err); len(fields) != 2 {
		t.Fatalf("expected two field errors, got %+v", fields)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	preferences, err := service.Preferences(ctx, alice)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if preferences != DefaultPreferences(alice.UserID) {
		t.Fatalf("expected defaults, got %+v", preferences)
	}

	dark := ThemeDark
	seen := true
	if _, err := service.SavePreferences(ctx, alice, PreferencesUpdate{Theme: &dark, HasSeenTour: &seen}); err != nil {
		t.Fatalf("save: %v", err)
	}
	preferences, err = service.Preferences(ctx, alice)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if preferences.Theme != ThemeDark || !preferences.HasSeenTour || preferences.FocusMusicVolume != 50 {
		t.Fatalf("unexpected preferences: %+v", preferences)
	}

	loud := 150
	if _, err := service.SavePreferences(ctx, alice, PreferencesUpdate{FocusMusicVolume: &loud}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	neon := Theme("neon")
	if _, err := service.SavePreferences(ctx, alice, PreferencesUpdate{Theme: &neon}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := db.Transaction(func(tx *gorm.DB) error { return service.PurgeUser(tx, alice.UserID) }); err != nil {
		t.Fatalf("purge: %v", err)
	}
	preferences, err = service.Preferences(ctx, alice)
	if err != nil {
		t.Fatalf("get after purge: %v", err)
	}
	if preferences.Theme != ThemeLight {
		t.Fatalf("expected defaults after purge, got %+v", preferences)
	}
}
