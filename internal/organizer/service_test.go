package organizer

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

type sequentialIDs struct {
	next int
}

func (p *sequentialIDs) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("id-%03d", p.next), nil
}

var (
	alice = access.Actor{UserID: "user-alice"}
	bob   = access.Actor{UserID: "user-bob"}
	base  = time.Date(2026, time.April, 2, 8, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:organizer_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	if err := db.AutoMigrate(&Reminder{}, &StickyNote{}, &JournalEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000600, 0).UTC() },
		IDProvider: &sequentialIDs{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, db
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceConfig{}); err == nil {
		t.Fatalf("expected error for missing database")
	}
}

func TestRemindersAreOrderedAndOwnerScoped(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	later, err := service.CreateReminder(ctx, alice, ReminderInput{Title: "Submit essay", ReminderTime: base.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("create later: %v", err)
	}
	if _, err := service.CreateReminder(ctx, alice, ReminderInput{Title: "Pack bag", ReminderTime: base}); err != nil {
		t.Fatalf("create earlier: %v", err)
	}
	if _, err := service.CreateReminder(ctx, bob, ReminderInput{Title: "Bob's", ReminderTime: base}); err != nil {
		t.Fatalf("create bob: %v", err)
	}

	reminders, err := service.ListReminders(ctx, alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reminders) != 2 || reminders[0].Title != "Pack bag" || reminders[1].Title != "Submit essay" {
		t.Fatalf("unexpected reminders: %+v", reminders)
	}
	if reminders[0].IsRead {
		t.Fatalf("new reminders start unread")
	}

	if _, err := service.MarkReminderRead(ctx, bob, later.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for foreign reminder, got %v", err)
	}
	if err := service.DeleteReminder(ctx, bob, later.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for foreign delete, got %v", err)
	}
	read, err := service.MarkReminderRead(ctx, alice, later.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !read.IsRead {
		t.Fatalf("expected reminder marked read")
	}
	if err := service.DeleteReminder(ctx, alice, later.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := service.DeleteReminder(ctx, alice, later.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestCreateReminderValidatesInput(t *testing.T) {
	service, _ := newTestService(t)
	_, err := service.CreateReminder(context.Background(), alice, ReminderInput{Title: "  "})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fields := apperr.FieldErrors(err); len(fields) != 2 {
		t.Fatalf("expected two field errors, got %+v", fields)
	}
}

func TestEventAndTaskReminderLinks(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	if err := service.ScheduleEventReminder(ctx, alice.UserID, "event-1", "Reminder: Lab", nil, base); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	taskID := "task-1"
	if _, err := service.CreateReminder(ctx, alice, ReminderInput{Title: "Task due", ReminderTime: base, TaskID: &taskID}); err != nil {
		t.Fatalf("create task reminder: %v", err)
	}

	reminders, err := service.ListReminders(ctx, alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reminders) != 2 {
		t.Fatalf("expected two reminders, got %d", len(reminders))
	}

	if err := service.RemoveEventReminders(db, []string{"event-1"}); err != nil {
		t.Fatalf("remove event reminders: %v", err)
	}
	if err := service.RemoveTaskReminders(db, nil); err != nil {
		t.Fatalf("remove nothing: %v", err)
	}
	reminders, _ = service.ListReminders(ctx, alice)
	if len(reminders) != 1 || reminders[0].TaskID == nil {
		t.Fatalf("expected only the task reminder, got %+v", reminders)
	}

	if err := service.RemoveTaskReminders(db, []string{taskID}); err != nil {
		t.Fatalf("remove task reminders: %v", err)
	}
	reminders, _ = service.ListReminders(ctx, alice)
	if len(reminders) != 0 {
		t.Fatalf("expected no reminders, got %+v", reminders)
	}
}

func TestStickyNoteDefaultsAndUpdate(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	note, err := service.CreateStickyNote(ctx, alice, StickyNoteInput{Content: "Buy flashcards"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if note.Color != defaultStickyColor || note.Width != 200 || note.Height != 200 || note.X != 0 || note.Y != 0 {
		t.Fatalf("unexpected defaults: %+v", note)
	}

	x, y := 40, 80
	updated, err := service.UpdateStickyNote(ctx, alice, note.ID, StickyNoteUpdate{X: &x, Y: &y})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.X != 40 || updated.Y != 80 || updated.Content != "Buy flashcards" {
		t.Fatalf("unexpected update: %+v", updated)
	}

	zero := 0
	if _, err := service.UpdateStickyNote(ctx, alice, note.ID, StickyNoteUpdate{Width: &zero}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := service.UpdateStickyNote(ctx, bob, note.ID, StickyNoteUpdate{X: &x}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for foreign note, got %v", err)
	}

	notes, err := service.ListStickyNotes(ctx, alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(notes) != 1 || notes[0].X != 40 || notes[0].Width != 200 {
		t.Fatalf("expected persisted position, got %+v", notes)
	}
	if err := service.DeleteStickyNote(ctx, alice, note.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestJournalEntries(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.CreateJournalEntry(ctx, alice, JournalInput{Date: "2026-04-01", Mood: MoodGood, Content: "Finished chapter 3"}); err != nil {
		t.Fatalf("create first: %v", err)
	}
	latest, err := service.CreateJournalEntry(ctx, alice, JournalInput{Date: "2026-04-02", Mood: MoodOkay, Content: "Tired"})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	_, err = service.CreateJournalEntry(ctx, alice, JournalInput{Date: "April 3", Mood: "ecstatic", Content: ""})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fields := apperr.FieldErrors(err); len(fields) != 3 {
		t.Fatalf("expected three field errors, got %+v", fields)
	}

	entries, err := service.ListJournalEntries(ctx, alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != latest.ID {
		t.Fatalf("expected newest date first, got %+v", entries)
	}
	if err := service.DeleteJournalEntry(ctx, bob, latest.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for foreign entry, got %v", err)
	}
}

func TestPurgeUserRemovesOnlyOwnedItems(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	if _, err := service.CreateReminder(ctx, alice, ReminderInput{Title: "a", ReminderTime: base}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.CreateStickyNote(ctx, alice, StickyNoteInput{Content: "a"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.CreateStickyNote(ctx, bob, StickyNoteInput{Content: "b"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := db.Transaction(func(tx *gorm.DB) error { return service.PurgeUser(tx, alice.UserID) }); err != nil {
		t.Fatalf("purge: %v", err)
	}
	var remaining int64
	db.Model(&StickyNote{}).Count(&remaining)
	if remaining != 1 {
		t.Fatalf("expected bob's note to remain, got %d", remaining)
	}
	reminders, _ := service.ListReminders(ctx, alice)
	if len(reminders) != 0 {
		t.Fatalf("expected alice's reminders removed")
	}
}
