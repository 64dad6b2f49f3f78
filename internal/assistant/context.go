package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/study"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/users"
)

const upcomingExamLimit = 5

// UserLookup resolves the account behind a conversation.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (users.User, error)
}

// StudyReader exposes the study data the context mentions.
type StudyReader interface {
	ListSubjects(ctx context.Context, actor access.Actor) ([]study.Subject, error)
	CountOpenTasks(ctx context.Context, userID string) (int64, error)
	UpcomingExams(ctx context.Context, userID string, limit int) ([]study.Exam, error)
}

// FlashcardCounter reports how many flashcards a user owns.
type FlashcardCounter interface {
	Count(ctx context.Context, userID string) (int64, error)
}

// EventCounter reports how many events a user has coming up.
type EventCounter interface {
	CountUpcoming(ctx context.Context, userID string, from time.Time) (int64, error)
}

// ContextSources groups the readers used to describe a user to the assistant.
// Nil readers are left out of the description.
type ContextSources struct {
	Users      UserLookup
	Study      StudyReader
	Flashcards FlashcardCounter
	Events     EventCounter
}

// StudyContext is the snapshot of a user's study state given to the assistant.
type StudyContext struct {
	Name              string
	Subjects          []string
	PendingTasks      int64
	UpcomingExams     []string
	Flashcards        int64
	UpcomingEvents    int64
	DailyStreak       int
	TotalFocusMinutes int
}

// BuildContext collects the snapshot for userID. A failing reader contributes nothing.
func (s *Service) BuildContext(ctx context.Context, userID string) StudyContext {
	snapshot := StudyContext{}
	actor := access.Actor{UserID: userID}
	now := s.clock().UTC()
	if s.sources.Users != nil {
		if user, err := s.sources.Users.FindByID(ctx, userID); err == nil {
			snapshot.Name = user.Name
			snapshot.DailyStreak = user.DailyStreak
			snapshot.TotalFocusMinutes = user.TotalFocusMinutes
		} else {
			s.warnContext("user", userID, err)
		}
	}
	if s.sources.Study != nil {
		if subjects, err := s.sources.Study.ListSubjects(ctx, actor); err == nil {
			for _, subject := range subjects {
				snapshot.Subjects = append(snapshot.Subjects, subject.Name)
			}
		} else {
			s.warnContext("subjects", userID, err)
		}
		if pending, err := s.sources.Study.CountOpenTasks(ctx, userID); err == nil {
			snapshot.PendingTasks = pending
		} else {
			s.warnContext("tasks", userID, err)
		}
		if exams, err := s.sources.Study.UpcomingExams(ctx, userID, upcomingExamLimit); err == nil {
			for _, exam := range exams {
				snapshot.UpcomingExams = append(snapshot.UpcomingExams, fmt.Sprintf("%s (%s)", exam.Name, exam.Date.Format("2006-01-02")))
			}
		} else {
			s.warnContext("exams", userID, err)
		}
	}
	if s.sources.Flashcards != nil {
		if total, err := s.sources.Flashcards.Count(ctx, userID); err == nil {
			snapshot.Flashcards = total
		} else {
			s.warnContext("flashcards", userID, err)
		}
	}
	if s.sources.Events != nil {
		if total, err := s.sources.Events.CountUpcoming(ctx, userID, now); err == nil {
			snapshot.UpcomingEvents = total
		} else {
			s.warnContext("events", userID, err)
		}
	}
	return snapshot
}

// SystemPrompt renders the assistant instructions around the snapshot.
func (c StudyContext) SystemPrompt() string {
	var builder strings.Builder
	builder.WriteString("You are StudyFlow AI, a friendly and knowledgeable study assistant. You have access to the following information about the user:\n")
	builder.WriteString("User Information:\n")
	fmt.Fprintf(&builder, "- Name: %s\n", orNone(c.Name))
	fmt.Fprintf(&builder, "- Subjects: %s\n", orNone(strings.Join(c.Subjects, ", ")))
	fmt.Fprintf(&builder, "- Pending Tasks: %d\n", c.PendingTasks)
	fmt.Fprintf(&builder, "- Upcoming Exams: %s\n", orNone(strings.Join(c.UpcomingExams, ", ")))
	fmt.Fprintf(&builder, "- Flashcards: %d\n", c.Flashcards)
	fmt.Fprintf(&builder, "- Upcoming Events: %d\n", c.UpcomingEvents)
	fmt.Fprintf(&builder, "- Daily Streak: %d days\n", c.DailyStreak)
	fmt.Fprintf(&builder, "- Total Study Time: %d minutes\n", c.TotalFocusMinutes)
	builder.WriteString(`
You help students:
- Understand complex concepts in simple terms
- Create study plans and schedules
- Generate quiz questions and flashcards
- Provide motivation and study tips
- Answer questions about any academic subject
- Help organize their tasks and calendar

Be encouraging, concise, and helpful. Keep responses focused and practical for students. Personalize your responses using the user's data when relevant.`)
	return builder.String()
}

func orNone(value string) string {
	if strings.TrimSpace(value) == "" {
		return "None yet"
	}
	return value
}
