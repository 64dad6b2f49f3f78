package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/calendar"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/flashcards"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/organizer"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/progress"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/sessions"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/settings"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/study"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	actorContextKey   = "studyflow_actor"
	defaultCookieName = "session_id"
)

var (
	errMissingUsersService         = errors.New("users service dependency required")
	errMissingSessionStore         = errors.New("session store dependency required")
	errMissingNotesService         = errors.New("notes service dependency required")
	errMissingCalendarService      = errors.New("calendar service dependency required")
	errMissingNotificationsService = errors.New("notifications service dependency required")
	errMissingRealtimeDispatcher   = errors.New("realtime dispatcher dependency required")
	errMissingOrganizerService     = errors.New("organizer service dependency required")
	errMissingFlashcardsService    = errors.New("flashcards service dependency required")
	errMissingProgressService      = errors.New("progress service dependency required")
	errMissingStudyService         = errors.New("study service dependency required")
	errMissingSettingsService      = errors.New("settings service dependency required")
	errMissingAssistantService     = errors.New("assistant service dependency required")
	errMissingStreamTickets        = errors.New("stream ticket issuer dependency required")
	errInvalidAuthorization        = errors.New("session token missing or invalid")
)

// SessionStore issues, resolves and destroys the opaque session tokens.
type SessionStore interface {
	Create(ctx context.Context, userID string) (sessions.Session, error)
	Resolve(ctx context.Context, token string) (sessions.Session, bool, error)
	Destroy(ctx context.Context, token string) error
}

// StreamTickets issues and validates the short-lived tickets that
// authenticate notification streams opened without a session header.
type StreamTickets interface {
	Issue(userID string) (auth.Ticket, error)
	Validate(ticket string) (string, error)
}

// Dependencies enumerates the services served over HTTP.
type Dependencies struct {
	Users          *users.Service
	Sessions       SessionStore
	Notes          *notes.Service
	Calendar       *calendar.Service
	Notifications  *notifications.Service
	Realtime       *notifications.Dispatcher
	Organizer      *organizer.Service
	Flashcards     *flashcards.Service
	Progress       *progress.Service
	Study          *study.Service
	Settings       *settings.Service
	Assistant      *assistant.Service
	Tickets        StreamTickets
	CookieName     string
	CookieSecure   bool
	AllowedOrigins []string
	Logger         *zap.Logger
}

func (d Dependencies) validate() error {
	switch {
	case d.Users == nil:
		return errMissingUsersService
	case d.Sessions == nil:
		return errMissingSessionStore
	case d.Notes == nil:
		return errMissingNotesService
	case d.Calendar == nil:
		return errMissingCalendarService
	case d.Notifications == nil:
		return errMissingNotificationsService
	case d.Realtime == nil:
		return errMissingRealtimeDispatcher
	case d.Organizer == nil:
		return errMissingOrganizerService
	case d.Flashcards == nil:
		return errMissingFlashcardsService
	case d.Progress == nil:
		return errMissingProgressService
	case d.Study == nil:
		return errMissingStudyService
	case d.Settings == nil:
		return errMissingSettingsService
	case d.Assistant == nil:
		return errMissingAssistantService
	case d.Tickets == nil:
		return errMissingStreamTickets
	}
	return nil
}

// NewHTTPHandler builds the gin engine serving the JSON API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cookieName := strings.TrimSpace(deps.CookieName)
	if cookieName == "" {
		cookieName = defaultCookieName
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		users:         deps.Users,
		sessions:      deps.Sessions,
		notes:         deps.Notes,
		calendar:      deps.Calendar,
		notifications: deps.Notifications,
		realtime:      deps.Realtime,
		organizer:     deps.Organizer,
		flashcards:    deps.Flashcards,
		progress:      deps.Progress,
		study:         deps.Study,
		settings:      deps.Settings,
		assistant:     deps.Assistant,
		tickets:       deps.Tickets,
		cookieName:    cookieName,
		cookieSecure:  deps.CookieSecure,
		logger:        logger,
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := router.Group("/api")
	public.POST("/auth/signup", handler.handleSignup)
	public.POST("/auth/login", handler.handleLogin)
	public.GET("/notifications/stream", handler.authorizeStream, handler.handleNotificationStream)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)

	protected.POST("/auth/logout", handler.handleLogout)
	protected.GET("/auth/me", handler.handleGetMe)
	protected.PATCH("/auth/me", handler.handleUpdateMe)
	protected.DELETE("/auth/me", handler.handleDeleteMe)
	protected.POST("/auth/password", handler.handleChangePassword)

	protected.GET("/subjects", handler.handleListSubjects)
	protected.POST("/subjects", handler.handleCreateSubject)
	protected.GET("/subjects/:id", handler.handleGetSubject)
	protected.PATCH("/subjects/:id", handler.handleUpdateSubject)
	protected.DELETE("/subjects/:id", handler.handleDeleteSubject)

	protected.GET("/exams", handler.handleListExams)
	protected.POST("/exams", handler.handleCreateExam)
	protected.PATCH("/exams/:id", handler.handleUpdateExam)
	protected.DELETE("/exams/:id", handler.handleDeleteExam)

	protected.GET("/tasks", handler.handleListTasks)
	protected.POST("/tasks", handler.handleCreateTask)
	protected.PATCH("/tasks/:id", handler.handleUpdateTask)
	protected.DELETE("/tasks/:id", handler.handleDeleteTask)

	protected.GET("/notes", handler.handleListNotes)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.PATCH("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.POST("/notes/:id/shares", handler.handleShareNote)
	protected.GET("/notes/:id/comments", handler.handleListComments)
	protected.POST("/notes/:id/comments", handler.handleAddComment)
	protected.PATCH("/note-shares/:id", handler.handleUpdateNoteShare)
	protected.DELETE("/note-shares/:id", handler.handleDeleteNoteShare)

	protected.GET("/events", handler.handleListEvents)
	protected.POST("/events", handler.handleCreateEvent)
	protected.GET("/events/:id", handler.handleGetEvent)
	protected.PATCH("/events/:id", handler.handleUpdateEvent)
	protected.DELETE("/events/:id", handler.handleDeleteEvent)
	protected.POST("/events/:id/shares", handler.handleShareEvent)
	protected.PATCH("/event-shares/:id", handler.handleRespondToEventShare)
	protected.DELETE("/event-shares/:id", handler.handleDeleteEventShare)

	protected.GET("/notifications", handler.handleListNotifications)
	protected.POST("/notifications/stream-ticket", handler.handleIssueStreamTicket)
	protected.POST("/notifications/read-all", handler.handleMarkAllNotificationsRead)
	protected.PATCH("/notifications/:id/read", handler.handleMarkNotificationRead)

	protected.GET("/reminders", handler.handleListReminders)
	protected.POST("/reminders", handler.handleCreateReminder)
	protected.PATCH("/reminders/:id/read", handler.handleMarkReminderRead)
	protected.DELETE("/reminders/:id", handler.handleDeleteReminder)
	protected.GET("/sticky-notes", handler.handleListStickyNotes)
	protected.POST("/sticky-notes", handler.handleCreateStickyNote)
	protected.PATCH("/sticky-notes/:id", handler.handleUpdateStickyNote)
	protected.DELETE("/sticky-notes/:id", handler.handleDeleteStickyNote)
	protected.GET("/journal", handler.handleListJournalEntries)
	protected.POST("/journal", handler.handleCreateJournalEntry)
	protected.DELETE("/journal/:id", handler.handleDeleteJournalEntry)

	protected.GET("/flashcards", handler.handleListFlashcards)
	protected.POST("/flashcards", handler.handleCreateFlashcard)
	protected.PATCH("/flashcards/:id", handler.handleUpdateFlashcard)
	protected.DELETE("/flashcards/:id", handler.handleDeleteFlashcard)
	protected.POST("/flashcards/:id/review", handler.handleReviewFlashcard)

	protected.GET("/stats", handler.handleGetStats)
	protected.POST("/stats/focus", handler.handleAddFocusMinutes)
	protected.POST("/stats/streak", handler.handleTouchStreak)
	protected.GET("/rewards", handler.handleListRewards)
	protected.POST("/rewards", handler.handleCreateReward)
	protected.PATCH("/rewards/:id", handler.handleUpdateReward)
	protected.DELETE("/rewards/:id", handler.handleDeleteReward)

	protected.GET("/settings/pomodoro", handler.handleGetPomodoro)
	protected.POST("/settings/pomodoro", handler.handleSavePomodoro)
	protected.GET("/settings/preferences", handler.handleGetPreferences)
	protected.POST("/settings/preferences", handler.handleSavePreferences)

	protected.GET("/ai/messages", handler.handleListAssistantMessages)
	protected.DELETE("/ai/messages", handler.handleClearAssistantMessages)
	protected.POST("/ai/chat", handler.handleAssistantChat)

	return router, nil
}

// corsMiddleware allows credentialed requests from the listed origins only.
// With no usable origin every cross-origin request is refused; a wildcard is
// ignored because it cannot be combined with credentials.
func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept", "Cache-Control"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" && trimmed != "*" {
			allowed = append(allowed, trimmed)
		}
	}
	if len(allowed) == 0 {
		config.AllowOriginFunc = func(string) bool { return false }
	} else {
		config.AllowOrigins = allowed
	}
	return cors.New(config)
}

type httpHandler struct {
	users         *users.Service
	sessions      SessionStore
	notes         *notes.Service
	calendar      *calendar.Service
	notifications *notifications.Service
	realtime      *notifications.Dispatcher
	organizer     *organizer.Service
	flashcards    *flashcards.Service
	progress      *progress.Service
	study         *study.Service
	settings      *settings.Service
	assistant     *assistant.Service
	tickets       StreamTickets
	cookieName    string
	cookieSecure  bool
	logger        *zap.Logger
}

// authorizeRequest resolves the session token from the Authorization header
// or the session cookie and attaches the actor to the request.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := h.sessionToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	session, ok, err := h.sessions.Resolve(c.Request.Context(), token)
	if err != nil {
		h.logger.Error("session lookup failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if !ok {
		h.logger.Info("session rejected", zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(actorContextKey, access.Actor{UserID: session.UserID, SessionID: session.Token})
	c.Next()
}

func (h *httpHandler) sessionToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" {
			return token
		}
	}
	if cookie, err := c.Cookie(h.cookieName); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

func actorFrom(c *gin.Context) access.Actor {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return access.Actor{}
	}
	actor, _ := value.(access.Actor)
	return actor
}

func (h *httpHandler) setSessionCookie(c *gin.Context, session sessions.Session) {
	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, session.Token, maxAge, "/", "", h.cookieSecure, true)
}

func (h *httpHandler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.cookieSecure, true)
}
