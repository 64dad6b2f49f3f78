package notes

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
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
	err    error
}

func (n *recordingNotifier) NotifyInvite(_ context.Context, event notifications.InviteEvent) error {
	n.events = append(n.events, event)
	return n.err
}

type testEnv struct {
	service  *Service
	db       *gorm.DB
	notifier *recordingNotifier
}

var (
	alice = access.Actor{UserID: "user-alice"}
	bob   = access.Actor{UserID: "user-bob"}
	carol = access.Actor{UserID: "user-carol"}
)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:notes_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	if err := db.AutoMigrate(&users.User{}, &Note{}, &Share{}, &Comment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, seed := range []struct{ id, name, email string }{
		{alice.UserID, "Alice", "alice@example.com"},
		{bob.UserID, "Bob", "bob@example.com"},
		{carol.UserID, "Carol", "carol@example.com"},
	} {
		user := users.User{ID: seed.id, Name: seed.name, Email: seed.email, PasswordHash: "x", Badges: datatypes.JSONSlice[string]{}, CreatedAt: time.Unix(1700000000, 0).UTC()}
		if err := db.Create(&user).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	directory, err := users.NewDirectory(db)
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	notifier := &recordingNotifier{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000600, 0).UTC() },
		IDProvider: &sequentialIDs{},
		Directory:  directory,
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return testEnv{service: service, db: db, notifier: notifier}
}

func mustCreateNote(t *testing.T, env testEnv, owner access.Actor, title string) Note {
	t.Helper()
	note, err := env.service.CreateNote(context.Background(), owner, NoteInput{Title: title, Content: "initial"})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	return note
}

func mustShare(t *testing.T, env testEnv, owner access.Actor, noteID, email string, role access.Role) Share {
	t.Helper()
	share, err := env.service.ShareNote(context.Background(), owner, noteID, ShareRequest{Email: email, Role: role})
	if err != nil {
		t.Fatalf("share note: %v", err)
	}
	return share
}

func mustSetStatus(t *testing.T, env testEnv, actor access.Actor, shareID string, status access.ShareStatus) Share {
	t.Helper()
	share, err := env.service.UpdateShare(context.Background(), actor, shareID, access.ShareChange{Status: &status})
	if err != nil {
		t.Fatalf("update share status: %v", err)
	}
	return share
}

func expectError(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func stringPtr(value string) *string {
	return &value
}
