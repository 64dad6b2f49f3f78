// Package organizer stores reminders, sticky notes and journal entries.
package organizer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew        = "organizer.service.new"
	opListReminders     = "organizer.list_reminders"
	opCreateReminder    = "organizer.create_reminder"
	opDeleteReminder    = "organizer.delete_reminder"
	opMarkReminderRead  = "organizer.mark_reminder_read"
	opScheduleReminder  = "organizer.schedule_event_reminder"
	opListStickyNotes   = "organizer.list_sticky_notes"
	opCreateStickyNote  = "organizer.create_sticky_note"
	opUpdateStickyNote  = "organizer.update_sticky_note"
	opDeleteStickyNote  = "organizer.delete_sticky_note"
	opListJournal       = "organizer.list_journal"
	opCreateJournal     = "organizer.create_journal"
	opDeleteJournal     = "organizer.delete_journal"
	opPurgeUser         = "organizer.purge_user"
	journalDateLayout   = "2006-01-02"
	reasonInvalidFields = "invalid_input"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceConfig describes the dependencies of the organizer service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service implements owner-only storage for organizer items.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// ListReminders returns the actor's reminders by ascending reminder time.
func (s *Service) ListReminders(ctx context.Context, actor access.Actor) ([]Reminder, error) {
	reminders := []Reminder{}
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", actor.UserID).
		Order("reminder_time ASC").
		Find(&reminders).Error; err != nil {
		s.logError(opListReminders, "query_failed", err, zap.String("user_id", actor.UserID))
		return nil, apperr.New(opListReminders, "query_failed", err)
	}
	return reminders, nil
}

// CreateReminder stores a reminder for the actor.
func (s *Service) CreateReminder(ctx context.Context, actor access.Actor, input ReminderInput) (Reminder, error) {
	var validation apperr.ValidationError
	title := strings.TrimSpace(input.Title)
	if title == "" {
		validation.Add("title", "is required")
	}
	if input.ReminderTime.IsZero() {
		validation.Add("reminderTime", "is required")
	}
	if err := validation.OrNil(); err != nil {
		return Reminder{}, apperr.New(opCreateReminder, reasonInvalidFields, err)
	}
	reminderID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateReminder, "id_generation_failed", err)
		return Reminder{}, apperr.New(opCreateReminder, "id_generation_failed", err)
	}
	reminder := Reminder{
		ID:           reminderID,
		UserID:       actor.UserID,
		Title:        title,
		Description:  input.Description,
		ReminderTime: input.ReminderTime.UTC(),
		EventID:      input.EventID,
		TaskID:       input.TaskID,
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&reminder).Error; err != nil {
		s.logError(opCreateReminder, "insert_failed", err, zap.String("user_id", actor.UserID))
		return Reminder{}, apperr.New(opCreateReminder, "insert_failed", err)
	}
	return reminder, nil
}

// DeleteReminder removes one of the actor's reminders.
func (s *Service) DeleteReminder(ctx context.Context, actor access.Actor, reminderID string) error {
	return s.deleteOwned(ctx, opDeleteReminder, "reminder_not_found", actor.UserID, reminderID, &Reminder{})
}

// MarkReminderRead flags one of the actor's reminders as read.
func (s *Service) MarkReminderRead(ctx context.Context, actor access.Actor, reminderID string) (Reminder, error) {
	db := s.db.WithContext(ctx)
	result := db.Model(&Reminder{}).
		Where("id = ? AND user_id = ?", reminderID, actor.UserID).
		Update("is_read", true)
	if result.Error != nil {
		s.logError(opMarkReminderRead, "update_failed", result.Error, zap.String("user_id", actor.UserID))
		return Reminder{}, apperr.New(opMarkReminderRead, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Reminder{}, apperr.New(opMarkReminderRead, "reminder_not_found", apperr.ErrNotFound)
	}
	var reminder Reminder
	if err := db.Where("id = ?", reminderID).Take(&reminder).Error; err != nil {
		return Reminder{}, apperr.New(opMarkReminderRead, "reload_failed", err)
	}
	return reminder, nil
}

// ScheduleEventReminder creates the reminder linked to a calendar event.
func (s *Service) ScheduleEventReminder(ctx context.Context, userID, eventID, title string, description *string, at time.Time) error {
	linked := eventID
	_, err := s.CreateReminder(ctx, access.Actor{UserID: userID}, ReminderInput{
		Title:        title,
		Description:  description,
		ReminderTime: at,
		EventID:      &linked,
	})
	if err != nil {
		return apperr.New(opScheduleReminder, "create_failed", err)
	}
	return nil
}

// RemoveEventReminders deletes reminders linked to eventIDs within tx.
func (s *Service) RemoveEventReminders(tx *gorm.DB, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	return tx.Where("event_id IN ?", eventIDs).Delete(&Reminder{}).Error
}

// RemoveTaskReminders deletes reminders linked to taskIDs within tx.
func (s *Service) RemoveTaskReminders(tx *gorm.DB, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}
	return tx.Where("task_id IN ?", taskIDs).Delete(&Reminder{}).Error
}

// ListStickyNotes returns the actor's sticky notes in creation order.
func (s *Service) ListStickyNotes(ctx context.Context, actor access.Actor) ([]StickyNote, error) {
	notes := []StickyNote{}
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", actor.UserID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&notes).Error; err != nil {
		s.logError(opListStickyNotes, "query_failed", err, zap.String("user_id", actor.UserID))
		return nil, apperr.New(opListStickyNotes, "query_failed", err)
	}
	return notes, nil
}

// CreateStickyNote stores a sticky note with board defaults for omitted fields.
func (s *Service) CreateStickyNote(ctx context.Context, actor access.Actor, input StickyNoteInput) (StickyNote, error) {
	if strings.TrimSpace(input.Content) == "" {
		return StickyNote{}, apperr.New(opCreateStickyNote, reasonInvalidFields, apperr.NewValidationError("content", "is required"))
	}
	note := StickyNote{
		UserID:    actor.UserID,
		Content:   input.Content,
		Color:     stringOr(input.Color, defaultStickyColor),
		X:         intOr(input.X, 0),
		Y:         intOr(input.Y, 0),
		Width:     intOr(input.Width, defaultStickyWidth),
		Height:    intOr(input.Height, defaultStickyHeight),
		CreatedAt: s.clock().UTC(),
	}
	if err := validateDimensions(note.Width, note.Height); err != nil {
		return StickyNote{}, apperr.New(opCreateStickyNote, reasonInvalidFields, err)
	}
	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateStickyNote, "id_generation_failed", err)
		return StickyNote{}, apperr.New(opCreateStickyNote, "id_generation_failed", err)
	}
	note.ID = noteID
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opCreateStickyNote, "insert_failed", err, zap.String("user_id", actor.UserID))
		return StickyNote{}, apperr.New(opCreateStickyNote, "insert_failed", err)
	}
	return note, nil
}

// UpdateStickyNote applies update to one of the actor's sticky notes.
func (s *Service) UpdateStickyNote(ctx context.Context, actor access.Actor, noteID string, update StickyNoteUpdate) (StickyNote, error) {
	var note StickyNote
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := takeOwned(tx, opUpdateStickyNote, "sticky_note_not_found", actor.UserID, noteID, &note); err != nil {
			return err
		}
		if update.Content != nil {
			if strings.TrimSpace(*update.Content) == "" {
				return apperr.New(opUpdateStickyNote, reasonInvalidFields, apperr.NewValidationError("content", "must not be empty"))
			}
			note.Content = *update.Content
		}
		note.Color = stringOr(update.Color, note.Color)
		note.X = intOr(update.X, note.X)
		note.Y = intOr(update.Y, note.Y)
		note.Width = intOr(update.Width, note.Width)
		note.Height = intOr(update.Height, note.Height)
		if err := validateDimensions(note.Width, note.Height); err != nil {
			return apperr.New(opUpdateStickyNote, reasonInvalidFields, err)
		}
		if err := tx.Model(&StickyNote{}).Where("id = ?", note.ID).Updates(map[string]interface{}{
			"content": note.Content,
			"color":   note.Color,
			"x":       note.X,
			"y":       note.Y,
			"width":   note.Width,
			"height":  note.Height,
		}).Error; err != nil {
			s.logError(opUpdateStickyNote, "update_failed", err, zap.String("sticky_note_id", note.ID))
			return apperr.New(opUpdateStickyNote, "update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return StickyNote{}, txErr
	}
	return note, nil
}

// DeleteStickyNote removes one of the actor's sticky notes.
func (s *Service) DeleteStickyNote(ctx context.Context, actor access.Actor, noteID string) error {
	return s.deleteOwned(ctx, opDeleteStickyNote, "sticky_note_not_found", actor.UserID, noteID, &StickyNote{})
}

// ListJournalEntries returns the actor's entries, most recent date first.
func (s *Service) ListJournalEntries(ctx context.Context, actor access.Actor) ([]JournalEntry, error) {
	entries := []JournalEntry{}
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", actor.UserID).
		Order("date DESC").
		Order("created_at DESC").
		Find(&entries).Error; err != nil {
		s.logError(opListJournal, "query_failed", err, zap.String("user_id", actor.UserID))
		return nil, apperr.New(opListJournal, "query_failed", err)
	}
	return entries, nil
}

// CreateJournalEntry stores a journal entry for a YYYY-MM-DD date.
func (s *Service) CreateJournalEntry(ctx context.Context, actor access.Actor, input JournalInput) (JournalEntry, error) {
	var validation apperr.ValidationError
	date := strings.TrimSpace(input.Date)
	if _, err := time.Parse(journalDateLayout, date); err != nil {
		validation.Add("date", "must be formatted as YYYY-MM-DD")
	}
	if !input.Mood.valid() {
		validation.Add("mood", "must be great, good, okay, bad or terrible")
	}
	if strings.TrimSpace(input.Content) == "" {
		validation.Add("content", "is required")
	}
	if err := validation.OrNil(); err != nil {
		return JournalEntry{}, apperr.New(opCreateJournal, reasonInvalidFields, err)
	}
	entryID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateJournal, "id_generation_failed", err)
		return JournalEntry{}, apperr.New(opCreateJournal, "id_generation_failed", err)
	}
	entry := JournalEntry{
		ID:        entryID,
		UserID:    actor.UserID,
		Date:      date,
		Mood:      input.Mood,
		Content:   input.Content,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logError(opCreateJournal, "insert_failed", err, zap.String("user_id", actor.UserID))
		return JournalEntry{}, apperr.New(opCreateJournal, "insert_failed", err)
	}
	return entry, nil
}

// DeleteJournalEntry removes one of the actor's journal entries.
func (s *Service) DeleteJournalEntry(ctx context.Context, actor access.Actor, entryID string) error {
	return s.deleteOwned(ctx, opDeleteJournal, "journal_entry_not_found", actor.UserID, entryID, &JournalEntry{})
}

// PurgeUser removes every organizer item owned by userID.
func (s *Service) PurgeUser(tx *gorm.DB, userID string) error {
	for _, model := range []interface{}{&Reminder{}, &StickyNote{}, &JournalEntry{}} {
		if err := tx.Where("user_id = ?", userID).Delete(model).Error; err != nil {
			return apperr.New(opPurgeUser, "delete_failed", err)
		}
	}
	return nil
}

func (s *Service) deleteOwned(ctx context.Context, operation, notFoundReason, userID, id string, model interface{}) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(model)
	if result.Error != nil {
		s.logError(operation, "delete_failed", result.Error, zap.String("user_id", userID))
		return apperr.New(operation, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(operation, notFoundReason, apperr.ErrNotFound)
	}
	return nil
}

func takeOwned(db *gorm.DB, operation, notFoundReason, userID, id string, dest interface{}) error {
	err := db.Where("id = ? AND user_id = ?", id, userID).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(operation, notFoundReason, apperr.ErrNotFound)
	}
	if err != nil {
		return apperr.New(operation, "select_failed", err)
	}
	return nil
}

func validateDimensions(width, height int) error {
	var validation apperr.ValidationError
	if width <= 0 {
		validation.Add("width", "must be positive")
	}
	if height <= 0 {
		validation.Add("height", "must be positive")
	}
	return validation.OrNil()
}

func stringOr(value *string, fallback string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return fallback
	}
	return *value
}

func intOr(value *int, fallback int) int {
	if value == nil {
		return fallback
	}
	return *value
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
	s.logger.Error("organizer service error", attrs...)
}
