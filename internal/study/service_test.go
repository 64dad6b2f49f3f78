package study

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/progress"
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

type recordingDetacher struct {
	calls []string
}

func (d *recordingDetacher) DetachSubject(_ *gorm.DB, userID, subjectID string) error {
	d.calls = append(d.calls, userID+"/"+subjectID)
	return nil
}

type recordingCompletions struct {
	users  []string
	result progress.CompletionResult
	err    error
}

func (r *recordingCompletions) RecordTaskCompletion(_ context.Context, userID string) (progress.CompletionResult, error) {
	r.users = append(r.users, userID)
	return r.result, r.err
}

type recordingReminders struct {
	removed []string
}

func (r *recordingReminders) RemoveTaskReminders(_ *gorm.DB, taskIDs []string) error {
	r.removed = append(r.removed, taskIDs...)
	return nil
}

var (
	alice = access.Actor{UserID: "user-alice"}
	bob   = access.Actor{UserID: "user-bob"}
	now   = time.Unix(1700000600, 0).UTC()
)

type testEnv struct {
	service     *Service
	db          *gorm.DB
	detacher    *recordingDetacher
	completions *recordingCompletions
	reminders   *recordingReminders
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:study_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	if err := db.AutoMigrate(&Subject{}, &Exam{}, &Task{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	env := testEnv{
		db:          db,
		detacher:    &recordingDetacher{},
		completions: &recordingCompletions{},
		reminders:   &recordingReminders{},
	}
	env.service, err = NewService(ServiceConfig{
		Database:         db,
		Clock:            func() time.Time { return now },
		IDProvider:       &sequentialIDs{},
		SubjectDetachers: []SubjectDetacher{env.detacher},
		Completions:      env.completions,
		Reminders:        env.reminders,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return env
}

func mustCreateSubject(t *testing.T, env testEnv, owner access.Actor, name string) Subject {
	t.Helper()
	subject, err := env.service.CreateSubject(context.Background(), owner, SubjectInput{Name: name, Color: "#22C55E"})
	if err != nil {
		t.Fatalf("create subject: %v", err)
	}
	return subject
}

func mustCreateTask(t *testing.T, env testEnv, owner access.Actor, input TaskInput) Task {
	t.Helper()
	outcome, err := env.service.CreateTask(context.Background(), owner, input)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return outcome.Task
}

func TestSubjectsOrderedByNameAndIsolated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mustCreateSubject(t, env, alice, "Physics")
	chemistry := mustCreateSubject(t, env, alice, "Chemistry")
	mustCreateSubject(t, env, bob, "Art")

	subjects, err := env.service.ListSubjects(ctx, alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subjects) != 2 || subjects[0].Name != "Chemistry" || subjects[1].Name != "Physics" {
		t.Fatalf("unexpected subjects: %+v", subjects)
	}

	name := "Stolen"
	if _, err := env.service.UpdateSubject(ctx, bob, chemistry.ID, SubjectUpdate{Name: &name}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.service.GetSubject(ctx, bob, chemistry.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := env.service.DeleteSubject(ctx, bob, chemistry.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	covered := 4
	updated, err := env.service.UpdateSubject(ctx, alice, chemistry.ID, SubjectUpdate{CoveredTopics: &covered})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CoveredTopics != 4 || updated.Name != "Chemistry" {
		t.Fatalf("unexpected update: %+v", updated)
	}
}

func TestCreateSubjectValidates(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.CreateSubject(context.Background(), alice, SubjectInput{TotalTopics: -1})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fields := apperr.FieldErrors(err); len(fields) != 3 {
		t.Fatalf("expected three field errors, got %+v", fields)
	}
}

func TestDeleteSubjectDetachesEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	subject := mustCreateSubject(t, env, alice, "Biology")

	exam, err := env.service.CreateExam(ctx, alice, ExamInput{Name: "Midterm", Date: now.Add(48 * time.Hour), SubjectID: &subject.ID})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	task := mustCreateTask(t, env, alice, TaskInput{Title: "Read chapter", SubjectID: &subject.ID})

	if err := env.service.DeleteSubject(ctx, alice, subject.ID); err != nil {
		t.Fatalf("delete subject: %v", err)
	}
	if len(env.detacher.calls) != 1 || env.detacher.calls[0] != alice.UserID+"/"+subject.ID {
		t.Fatalf("expected detacher call, got %v", env.detacher.calls)
	}

	var storedExam Exam
	if err := env.db.Where("id = ?", exam.ID).Take(&storedExam).Error; err != nil {
		t.Fatalf("load exam: %v", err)
	}
	if storedExam.SubjectID != nil {
		t.Fatalf("expected exam detached, got %v", *storedExam.SubjectID)
	}
	var storedTask Task
	if err := env.db.Where("id = ?", task.ID).Take(&storedTask).Error; err != nil {
		t.Fatalf("load task: %v", err)
	}
	if storedTask.SubjectID != nil {
		t.Fatalf("expected task detached")
	}
}

func TestExamDefaultsAndUpcoming(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	future, err := env.service.CreateExam(ctx, alice, ExamInput{Name: "Final", Date: now.Add(72 * time.Hour)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if future.Confidence != 50 || future.Weight != 100 {
		t.Fatalf("expected defaults, got %+v", future)
	}
	if _, err := env.service.CreateExam(ctx, alice, ExamInput{Name: "Quiz", Date: now.Add(-72 * time.Hour)}); err != nil {
		t.Fatalf("create past: %v", err)
	}

	upcoming, err := env.service.UpcomingExams(ctx, alice.UserID, 5)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(upcoming) != 1 || upcoming[0].ID != future.ID {
		t.Fatalf("expected only the future exam, got %+v", upcoming)
	}
	all, err := env.service.ListExams(ctx, alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].Name != "Quiz" {
		t.Fatalf("expected date order, got %+v", all)
	}

	confidence := 120
	if _, err := env.service.UpdateExam(ctx, alice, future.ID, ExamUpdate{Confidence: &confidence}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := env.service.DeleteExam(ctx, bob, future.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTaskCompletionCountedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.completions.result = progress.CompletionResult{AwardedBadges: []string{progress.BadgeCenturion}}
	task := mustCreateTask(t, env, alice, TaskInput{Title: "Problem set", Tags: []string{"math", " math ", ""}})
	if task.Priority != PriorityMedium || task.Status != StatusPending {
		t.Fatalf("expected defaults, got %+v", task)
	}
	if len(task.Tags) != 1 {
		t.Fatalf("expected normalized tags, got %v", task.Tags)
	}

	completed := StatusCompleted
	outcome, err := env.service.UpdateTask(ctx, alice, task.ID, TaskUpdate{Status: &completed})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if outcome.CompletedAt == nil || !outcome.CompletedAt.Equal(now) {
		t.Fatalf("expected completedAt set, got %v", outcome.CompletedAt)
	}
	if len(outcome.AwardedBadges) != 1 {
		t.Fatalf("expected completion result surfaced, got %+v", outcome)
	}

	title := "Problem set 2"
	if _, err := env.service.UpdateTask(ctx, alice, task.ID, TaskUpdate{Status: &completed, Title: &title}); err != nil {
		t.Fatalf("update completed task: %v", err)
	}
	if len(env.completions.users) != 1 {
		t.Fatalf("expected one completion, got %d", len(env.completions.users))
	}

	pending := StatusPending
	reopened, err := env.service.UpdateTask(ctx, alice, task.ID, TaskUpdate{Status: &pending})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.CompletedAt != nil {
		t.Fatalf("expected completedAt cleared")
	}

	if _, err := env.service.UpdateTask(ctx, alice, task.ID, TaskUpdate{Status: &completed}); err != nil {
		t.Fatalf("complete again: %v", err)
	}
	if len(env.completions.users) != 2 {
		t.Fatalf("expected second completion after reopening, got %d", len(env.completions.users))
	}
}

func TestTaskCompletionSurvivesRecorderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.completions.err = errors.New("rewards offline")
	task := mustCreateTask(t, env, alice, TaskInput{Title: "Essay"})

	completed := StatusCompleted
	outcome, err := env.service.UpdateTask(context.Background(), alice, task.ID, TaskUpdate{Status: &completed})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if outcome.Status != StatusCompleted {
		t.Fatalf("expected completion committed, got %s", outcome.Status)
	}
}

func TestTaskValidationAndOrdering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.service.CreateTask(ctx, alice, TaskInput{Title: "x", Priority: "urgent"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	mustCreateTask(t, env, alice, TaskInput{Title: "second", Order: 2})
	mustCreateTask(t, env, alice, TaskInput{Title: "first", Order: 1})
	done := mustCreateTask(t, env, alice, TaskInput{Title: "done", Order: 3, Status: StatusCompleted})
	if done.CompletedAt == nil {
		t.Fatalf("expected completedAt on completed create")
	}

	tasks, err := env.service.ListTasks(ctx, alice, TaskFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 || tasks[0].Title != "first" || tasks[1].Title != "second" {
		t.Fatalf("unexpected order: %+v", tasks)
	}
	pending, err := env.service.ListTasks(ctx, alice, TaskFilter{Status: StatusPending})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected two pending tasks, got %d", len(pending))
	}
	open, err := env.service.CountOpenTasks(ctx, alice.UserID)
	if err != nil || open != 2 {
		t.Fatalf("expected two open tasks, got %d (%v)", open, err)
	}
	if _, err := env.service.ListTasks(ctx, alice, TaskFilter{Status: "archived"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestDeleteTaskRemovesReminders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	task := mustCreateTask(t, env, alice, TaskInput{Title: "Lab report"})

	if err := env.service.DeleteTask(ctx, bob, task.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := env.service.DeleteTask(ctx, alice, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(env.reminders.removed) != 1 || env.reminders.removed[0] != task.ID {
		t.Fatalf("expected reminders removed, got %v", env.reminders.removed)
	}
}

func TestPurgeUser(t *testing.T) {
	env := newTestEnv(t)
	mustCreateSubject(t, env, alice, "History")
	mustCreateTask(t, env, alice, TaskInput{Title: "Timeline"})
	mustCreateTask(t, env, bob, TaskInput{Title: "Bob's"})

	if err := env.db.Transaction(func(tx *gorm.DB) error { return env.service.PurgeUser(tx, alice.UserID) }); err != nil {
		t.Fatalf("purge: %v", err)
	}
	var remaining int64
	env.db.Model(&Task{}).Count(&remaining)
	if remaining != 1 {
		t.Fatalf("expected only bob's task, got %d", remaining)
	}
}
