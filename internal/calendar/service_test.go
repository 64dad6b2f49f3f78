package calendar

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/users"
	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
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

type recordingNotifier struct {
	events []notifications.InviteEvent
}

func (n *recordingNotifier) NotifyInvite(_ context.Context, event notifications.InviteEvent) error {
	n.events = append(n.events, event)
	return nil
}

type scheduledReminder struct {
	userID, eventID, title string
	at                     time.Time
}

type recordingReminders struct {
	scheduled []scheduledReminder
	removed   []string
	err       error
}

func (r *recordingReminders) ScheduleEventReminder(_ context.Context, userID, eventID, title string, _ *string, at time.Time) error {
	r.scheduled = append(r.scheduled, scheduledReminder{userID: userID, eventID: eventID, title: title, at: at})
	return r.err
}

func (r *recordingReminders) RemoveEventReminders(_ *gorm.DB, eventIDs []string) error {
	r.removed = append(r.removed, eventIDs...)
	return nil
}

var (
	alice = access.Actor{UserID: "user-alice"}
	bob   = access.Actor{UserID: "user-bob"}
	carol = access.Actor{UserID: "user-carol"}
	base  = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
)

type testEnv struct {
	service   *Service
	db        *gorm.DB
	notifier  *recordingNotifier
	reminders *recordingReminders
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:calendar_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	if err := db.AutoMigrate(&users.User{}, &Event{}, &Share{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, seed := range []struct{ id, name, email string }{
		{alice.UserID, "Alice", "alice@example.com"},
		{bob.UserID, "Bob", "bob@example.com"},
		{carol.UserID, "Carol", "carol@example.com"},
	} {
		user := users.User{ID: seed.id, Name: seed.name, Email: seed.email, PasswordHash: "x", Badges: datatypes.JSONSlice[string]{}, CreatedAt: base}
		if err := db.Create(&user).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	directory, err := users.NewDirectory(db)
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	env := testEnv{db: db, notifier: &recordingNotifier{}, reminders: &recordingReminders{}}
	env.service, err = NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000600, 0).UTC() },
		IDProvider: &sequentialIDs{},
		Directory:  directory,
		Notifier:   env.notifier,
		Reminders:  env.reminders,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return env
}

func mustCreateEvent(t *testing.T, env testEnv, owner access.Actor, title string, start time.Time) Event {
	t.Helper()
	event, err := env.service.CreateEvent(context.Background(), owner, EventInput{Title: title, StartTime: start})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return event
}

func TestCreateEventAppliesDefaultsAndSchedulesReminder(t *testing.T) {
	env := newTestEnv(t)
	minutes := 30
	event, err := env.service.CreateEvent(context.Background(), alice, EventInput{
		Title:           "Exam review",
		StartTime:       base,
		ReminderMinutes: &minutes,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if event.Type != TypeEvent || event.Color == nil || *event.Color != "#8B5CF6" {
		t.Fatalf("expected defaults, got %+v", event)
	}
	if len(env.reminders.scheduled) != 1 {
		t.Fatalf("expected one reminder, got %d", len(env.reminders.scheduled))
	}
	reminder := env.reminders.scheduled[0]
	if reminder.title != "Reminder: Exam review" || !reminder.at.Equal(base.Add(-30*time.Minute)) || reminder.eventID != event.ID {
		t.Fatalf("unexpected reminder %+v", reminder)
	}
}

func TestCreateEventSurvivesReminderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.reminders.err = errors.New("reminders offline")
	minutes := 10
	if _, err := env.service.CreateEvent(context.Background(), alice, EventInput{Title: "Lab", StartTime: base, ReminderMinutes: &minutes}); err != nil {
		t.Fatalf("expected event to be created: %v", err)
	}
}

func TestCreateEventValidation(t *testing.T) {
	env := newTestEnv(t)
	end := base.Add(-time.Hour)
	_, err := env.service.CreateEvent(context.Background(), alice, EventInput{Title: " ", Type: "party", EndTime: &end})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fields := apperr.FieldErrors(err); len(fields) != 3 {
		t.Fatalf("expected title, type and startTime failures, got %v", fields)
	}
}

func TestListEventsWindowAndSharedSplit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mustCreateEvent(t, env, alice, "early", base)
	mustCreateEvent(t, env, alice, "middle", base.Add(48*time.Hour))
	mustCreateEvent(t, env, alice, "late", base.Add(96*time.Hour))
	bobEvent := mustCreateEvent(t, env, bob, "bob's party", base.Add(24*time.Hour))

	start := base.Add(24 * time.Hour)
	end := base.Add(72 * time.Hour)
	listing, err := env.service.ListEvents(ctx, alice, Window{Start: &start, End: &end})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listing.Owned) != 1 || listing.Owned[0].Title != "middle" {
		t.Fatalf("unexpected windowed events %+v", listing.Owned)
	}

	share, err := env.service.ShareEvent(ctx, bob, bobEvent.ID, "alice@example.com")
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	listing, _ = env.service.ListEvents(ctx, alice, Window{})
	if len(listing.Owned) != 3 || len(listing.Shared) != 0 {
		t.Fatalf("expected pending invite hidden, got %+v", listing)
	}
	if listing.Owned[0].Title != "early" {
		t.Fatalf("expected ascending start order")
	}

	if _, err := env.service.RespondToShare(ctx, alice, share.ID, access.StatusAccepted); err != nil {
		t.Fatalf("respond: %v", err)
	}
	listing, _ = env.service.ListEvents(ctx, alice, Window{})
	if len(listing.Shared) != 1 || listing.Shared[0].ID != bobEvent.ID {
		t.Fatalf("expected accepted event in shared list, got %+v", listing.Shared)
	}
}

func TestAcceptedInviteeIsReadOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := mustCreateEvent(t, env, alice, "Study group", base)
	share, err := env.service.ShareEvent(ctx, alice, event.ID, "bob@example.com")
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if len(env.notifier.events) != 1 || env.notifier.events[0].Kind != notifications.InviteKindEvent {
		t.Fatalf("expected event invitation notification, got %+v", env.notifier.events)
	}

	if _, err := env.service.GetEvent(ctx, bob, event.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected pending invitee to be refused read, got %v", err)
	}
	if _, err := env.service.RespondToShare(ctx, bob, share.ID, access.StatusAccepted); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if _, err := env.service.GetEvent(ctx, bob, event.ID); err != nil {
		t.Fatalf("expected accepted invitee to read: %v", err)
	}

	title := "Hijacked"
	if _, err := env.service.UpdateEvent(ctx, bob, event.ID, EventUpdate{Title: &title}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden edit, got %v", err)
	}
	if err := env.service.DeleteEvent(ctx, bob, event.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if _, err := env.service.GetEvent(ctx, carol, event.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected stranger not found, got %v", err)
	}
}

func TestRespondToShareRestrictions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := mustCreateEvent(t, env, alice, "Seminar", base)
	share, _ := env.service.ShareEvent(ctx, alice, event.ID, "bob@example.com")

	if _, err := env.service.RespondToShare(ctx, alice, share.ID, access.StatusAccepted); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected owner to be forbidden from responding, got %v", err)
	}
	if _, err := env.service.RespondToShare(ctx, carol, share.ID, access.StatusAccepted); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected stranger not found, got %v", err)
	}
	if _, err := env.service.RespondToShare(ctx, bob, share.ID, access.StatusPending); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	declined, err := env.service.RespondToShare(ctx, bob, share.ID, access.StatusDeclined)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != access.StatusDeclined {
		t.Fatalf("expected declined, got %s", declined.Status)
	}
}

func TestUpdateEventByOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := mustCreateEvent(t, env, alice, "Draft", base)

	title := "Final"
	allDay := true
	updated, err := env.service.UpdateEvent(ctx, alice, event.ID, EventUpdate{Title: &title, AllDay: &allDay})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Final" || !updated.AllDay || !updated.StartTime.Equal(base) {
		t.Fatalf("unexpected update %+v", updated)
	}

	early := base.Add(-time.Hour)
	if _, err := env.service.UpdateEvent(ctx, alice, event.ID, EventUpdate{EndTime: &early}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteEventRemovesSharesAndReminders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := mustCreateEvent(t, env, alice, "Trip", base)
	if _, err := env.service.ShareEvent(ctx, alice, event.ID, "bob@example.com"); err != nil {
		t.Fatalf("share: %v", err)
	}
	if err := env.service.DeleteEvent(ctx, alice, event.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var shares int64
	env.db.Model(&Share{}).Where("event_id = ?", event.ID).Count(&shares)
	if shares != 0 {
		t.Fatalf("expected shares removed, found %d", shares)
	}
	if len(env.reminders.removed) != 1 || env.reminders.removed[0] != event.ID {
		t.Fatalf("expected reminders removed for event, got %v", env.reminders.removed)
	}
}

func TestDeleteShareAndResolveInvites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := mustCreateEvent(t, env, alice, "Concert", base)
	share, _ := env.service.ShareEvent(ctx, alice, event.ID, "dave@example.com")
	if share.SharedWithUserID != nil {
		t.Fatalf("expected unresolved invitee")
	}

	resolved, err := env.service.ResolvePendingInvites(ctx, "user-dave", "dave@example.com")
	if err != nil || resolved != 1 {
		t.Fatalf("expected one resolved invite, got %d (%v)", resolved, err)
	}
	dave := access.Actor{UserID: "user-dave"}
	if err := env.service.DeleteShare(ctx, dave, share.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected invitee delete to be forbidden, got %v", err)
	}
	if err := env.service.DeleteShare(ctx, alice, share.ID); err != nil {
		t.Fatalf("owner delete share: %v", err)
	}
}

func TestShareEventRejectsDuplicatesAndSelf(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := mustCreateEvent(t, env, alice, "Meetup", base)

	if _, err := env.service.ShareEvent(ctx, alice, event.ID, "alice@example.com"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected self share validation error, got %v", err)
	}
	if _, err := env.service.ShareEvent(ctx, alice, event.ID, "bob@example.com"); err != nil {
		t.Fatalf("share: %v", err)
	}
	if _, err := env.service.ShareEvent(ctx, alice, event.ID, "bob@example.com"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected duplicate conflict, got %v", err)
	}
	if _, err := env.service.ShareEvent(ctx, bob, event.ID, "carol@example.com"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected invitee share forbidden, got %v", err)
	}
	if _, err := env.service.ShareEvent(ctx, carol, event.ID, "bob@example.com"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected stranger share not found, got %v", err)
	}
}

func TestCountUpcomingCountsOwnFutureEvents(t *testing.T) {
	env := newTestEnv(t)
	mustCreateEvent(t, env, alice, "Past", base.Add(-time.Hour))
	mustCreateEvent(t, env, alice, "Soon", base.Add(time.Hour))
	mustCreateEvent(t, env, alice, "Later", base.Add(48*time.Hour))
	mustCreateEvent(t, env, bob, "Bob's", base.Add(time.Hour))

	total, err := env.service.CountUpcoming(context.Background(), alice.UserID, base)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected two upcoming events, got %d", total)
	}
}
