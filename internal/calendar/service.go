// Package calendar manages calendar events and event invitations.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew     = "calendar.service.new"
	opCreateEvent    = "calendar.create"
	opListEvents     = "calendar.list"
	opGetEvent       = "calendar.get"
	opUpdateEvent    = "calendar.update"
	opDeleteEvent    = "calendar.delete"
	opShareEvent     = "calendar.share"
	opRespond        = "calendar.respond"
	opDeleteShare    = "calendar.delete_share"
	opResolveInvites = "calendar.resolve_invites"
	opCountUpcoming  = "calendar.count_upcoming"
	opPurgeUser      = "calendar.purge_user"
	opDetachSubject  = "calendar.detach_subject"
	reasonNotFound   = "event_not_found"
	reasonForbidden  = "forbidden"
	reasonInvalid    = "invalid_input"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingDirectory  = errors.New("user directory is required")
	noOpLogger           = zap.NewNop()
)

// UserDirectory resolves accounts by id and email.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (users.User, error)
	FindByEmail(ctx context.Context, email string) (users.User, error)
}

// InviteNotifier emits the notice for a new invitation.
type InviteNotifier interface {
	NotifyInvite(ctx context.Context, event notifications.InviteEvent) error
}

// ReminderScheduler keeps event-linked reminders in step with events.
type ReminderScheduler interface {
	ScheduleEventReminder(ctx context.Context, userID, eventID, title string, description *string, at time.Time) error
	RemoveEventReminders(tx *gorm.DB, eventIDs []string) error
}

// ServiceConfig describes the dependencies of the calendar service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Directory  UserDirectory
	Notifier   InviteNotifier
	Reminders  ReminderScheduler
	Logger     *zap.Logger
}

// Service implements calendar storage guarded by the access engine.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	directory  UserDirectory
	notifier   InviteNotifier
	reminders  ReminderScheduler
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
	if cfg.Directory == nil {
		return nil, apperr.New(opServiceNew, "missing_directory", errMissingDirectory)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		directory:  cfg.Directory,
		notifier:   cfg.Notifier,
		reminders:  cfg.Reminders,
		logger:     logger,
	}, nil
}

// CreateEvent stores an event owned by the actor. A positive ReminderMinutes
// schedules a reminder that many minutes before the start.
func (s *Service) CreateEvent(ctx context.Context, actor access.Actor, input EventInput) (Event, error) {
	if input.Type == "" {
		input.Type = TypeEvent
	}
	if input.Color == nil {
		color := defaultEventColor
		input.Color = &color
	}
	title := strings.TrimSpace(input.Title)
	if err := validateEvent(title, input.Type, input.StartTime, input.EndTime, input.ReminderMinutes); err != nil {
		return Event{}, apperr.New(opCreateEvent, reasonInvalid, err)
	}

	eventID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateEvent, "id_generation_failed", err)
		return Event{}, apperr.New(opCreateEvent, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	event := Event{
		ID:              eventID,
		UserID:          actor.UserID,
		Title:           title,
		Description:     input.Description,
		Type:            input.Type,
		StartTime:       input.StartTime.UTC(),
		EndTime:         utcPtr(input.EndTime),
		AllDay:          input.AllDay,
		Color:           input.Color,
		SubjectID:       normalizeOptional(input.SubjectID),
		Recurrence:      input.Recurrence,
		ReminderMinutes: input.ReminderMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.logError(opCreateEvent, "insert_failed", err, zap.String("user_id", actor.UserID))
		return Event{}, apperr.New(opCreateEvent, "insert_failed", err)
	}

	if s.reminders != nil && event.ReminderMinutes != nil && *event.ReminderMinutes > 0 {
		at := event.StartTime.Add(-time.Duration(*event.ReminderMinutes) * time.Minute)
		title := fmt.Sprintf("Reminder: %s", event.Title)
		if err := s.reminders.ScheduleEventReminder(ctx, actor.UserID, event.ID, title, event.Description, at); err != nil {
			s.logger.Warn("event reminder scheduling failed",
				zap.String("operation", opCreateEvent),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	}
	return event, nil
}

// ListEvents returns the actor's events whose start falls inside window,
// ordered by start, and separately the events shared with the actor.
func (s *Service) ListEvents(ctx context.Context, actor access.Actor, window Window) (Listing, error) {
	db := s.db.WithContext(ctx)
	listing := Listing{Owned: []Event{}, Shared: []Event{}}

	query := db.Where("user_id = ?", actor.UserID)
	if window.Start != nil {
		query = query.Where("start_time >= ?", window.Start.UTC())
	}
	if window.End != nil {
		query = query.Where("start_time <= ?", window.End.UTC())
	}
	if err := query.Order("start_time ASC").Find(&listing.Owned).Error; err != nil {
		s.logError(opListEvents, "owned_query_failed", err, zap.String("user_id", actor.UserID))
		return Listing{}, apperr.New(opListEvents, "owned_query_failed", err)
	}

	var eventIDs []string
	if err := db.Model(&Share{}).
		Where("shared_with_user_id = ? AND status = ?", actor.UserID, access.StatusAccepted).
		Pluck("event_id", &eventIDs).Error; err != nil {
		s.logError(opListEvents, "shares_query_failed", err, zap.String("user_id", actor.UserID))
		return Listing{}, apperr.New(opListEvents, "shares_query_failed", err)
	}
	if len(eventIDs) == 0 {
		return listing, nil
	}
	if err := db.Where("id IN ? AND user_id <> ?", eventIDs, actor.UserID).
		Order("start_time ASC").
		Find(&listing.Shared).Error; err != nil {
		s.logError(opListEvents, "shared_query_failed", err, zap.String("user_id", actor.UserID))
		return Listing{}, apperr.New(opListEvents, "shared_query_failed", err)
	}
	return listing, nil
}

// GetEvent returns an event readable by the actor with its shares.
func (s *Service) GetEvent(ctx context.Context, actor access.Actor, eventID string) (Detail, error) {
	event, shares, err := s.loadEvent(s.db.WithContext(ctx), opGetEvent, eventID, false)
	if err != nil {
		return Detail{}, err
	}
	if err := s.authorize(opGetEvent, actor, event, shares, access.ActionRead); err != nil {
		return Detail{}, err
	}
	return Detail{Event: event, Shares: shares}, nil
}

// UpdateEvent applies update to an owned event.
func (s *Service) UpdateEvent(ctx context.Context, actor access.Actor, eventID string, update EventUpdate) (Event, error) {
	var updated Event
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, shares, err := s.loadEvent(tx, opUpdateEvent, eventID, true)
		if err != nil {
			return err
		}
		if err := s.authorize(opUpdateEvent, actor, event, shares, access.ActionEdit); err != nil {
			return err
		}

		merged := event
		if update.Title != nil {
			merged.Title = strings.TrimSpace(*update.Title)
		}
		if update.Description != nil {
			merged.Description = update.Description
		}
		if update.Type != nil {
			merged.Type = *update.Type
		}
		if update.StartTime != nil {
			merged.StartTime = update.StartTime.UTC()
		}
		if update.EndTime != nil {
			merged.EndTime = utcPtr(update.EndTime)
		}
		if update.AllDay != nil {
			merged.AllDay = *update.AllDay
		}
		if update.Color != nil {
			merged.Color = update.Color
		}
		if update.SubjectID != nil {
			merged.SubjectID = normalizeOptional(update.SubjectID)
		}
		if update.Recurrence != nil {
			merged.Recurrence = update.Recurrence
		}
		if update.ReminderMinutes != nil {
			merged.ReminderMinutes = update.ReminderMinutes
		}
		if err := validateEvent(merged.Title, merged.Type, merged.StartTime, merged.EndTime, merged.ReminderMinutes); err != nil {
			return apperr.New(opUpdateEvent, reasonInvalid, err)
		}
		merged.UpdatedAt = s.clock().UTC()

		changes := map[string]interface{}{
			"title":            merged.Title,
			"description":      merged.Description,
			"type":             merged.Type,
			"start_time":       merged.StartTime,
			"end_time":         merged.EndTime,
			"all_day":          merged.AllDay,
			"color":            merged.Color,
			"subject_id":       merged.SubjectID,
			"recurrence":       merged.Recurrence,
			"reminder_minutes": merged.ReminderMinutes,
			"updated_at":       merged.UpdatedAt,
		}
		if err := tx.Model(&Event{}).Where("id = ?", event.ID).Updates(changes).Error; err != nil {
			s.logError(opUpdateEvent, "update_failed", err, zap.String("event_id", event.ID))
			return apperr.New(opUpdateEvent, "update_failed", err)
		}
		updated = merged
		return nil
	})
	if txErr != nil {
		return Event{}, txErr
	}
	return updated, nil
}

// DeleteEvent removes an owned event, its shares and its reminders.
func (s *Service) DeleteEvent(ctx context.Context, actor access.Actor, eventID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, shares, err := s.loadEvent(tx, opDeleteEvent, eventID, true)
		if err != nil {
			return err
		}
		if err := s.authorize(opDeleteEvent, actor, event, shares, access.ActionDelete); err != nil {
			return err
		}
		if err := s.deleteEvents(tx, []string{event.ID}); err != nil {
			s.logError(opDeleteEvent, "delete_failed", err, zap.String("event_id", event.ID))
			return apperr.New(opDeleteEvent, "delete_failed", err)
		}
		return nil
	})
}

// ShareEvent invites email to an owned event. The invitation starts pending
// and the invitee is notified after commit on a best-effort basis.
func (s *Service) ShareEvent(ctx context.Context, actor access.Actor, eventID, email string) (Share, error) {
	email = strings.TrimSpace(email)
	if address, err := mail.ParseAddress(email); err != nil || address.Address != email {
		return Share{}, apperr.New(opShareEvent, reasonInvalid, apperr.NewValidationError("email", "must be a valid email address"))
	}

	owner, err := s.directory.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Share{}, apperr.New(opShareEvent, "actor_not_found", apperr.ErrUnauthenticated)
		}
		s.logError(opShareEvent, "actor_lookup_failed", err, zap.String("user_id", actor.UserID))
		return Share{}, apperr.New(opShareEvent, "actor_lookup_failed", err)
	}
	if owner.Email == email {
		return Share{}, apperr.New(opShareEvent, "self_share", apperr.NewValidationError("email", "cannot share with yourself"))
	}

	var inviteeID *string
	invitee, err := s.directory.FindByEmail(ctx, email)
	switch {
	case err == nil:
		resolved := invitee.ID
		inviteeID = &resolved
	case errors.Is(err, apperr.ErrNotFound):
	default:
		s.logError(opShareEvent, "invitee_lookup_failed", err)
		return Share{}, apperr.New(opShareEvent, "invitee_lookup_failed", err)
	}

	shareID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opShareEvent, "id_generation_failed", err)
		return Share{}, apperr.New(opShareEvent, "id_generation_failed", err)
	}

	var share Share
	var event Event
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var shares []Share
		event, shares, err = s.loadEvent(tx, opShareEvent, eventID, true)
		if err != nil {
			return err
		}
		if err := s.authorize(opShareEvent, actor, event, shares, access.ActionShare); err != nil {
			return err
		}
		for _, existing := range shares {
			if existing.SharedWithEmail == email {
				return apperr.New(opShareEvent, "duplicate_share", apperr.ErrConflict)
			}
		}
		share = Share{
			ID:               shareID,
			EventID:          event.ID,
			SharedWithEmail:  email,
			SharedWithUserID: inviteeID,
			Status:           access.StatusPending,
			CreatedAt:        s.clock().UTC(),
		}
		if err := tx.Create(&share).Error; err != nil {
			s.logError(opShareEvent, "insert_failed", err, zap.String("event_id", event.ID))
			return apperr.New(opShareEvent, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Share{}, txErr
	}

	if s.notifier != nil && inviteeID != nil {
		notifyErr := s.notifier.NotifyInvite(ctx, notifications.InviteEvent{
			RecipientID:   *inviteeID,
			Kind:          notifications.InviteKindEvent,
			InviterName:   owner.Name,
			ResourceID:    event.ID,
			ResourceTitle: event.Title,
		})
		if notifyErr != nil {
			s.logger.Warn("event invitation notification failed",
				zap.String("operation", opShareEvent),
				zap.String("event_id", event.ID),
				zap.String("share_id", share.ID),
				zap.Error(notifyErr))
		}
	}
	return share, nil
}

// RespondToShare records the invitee's answer to an invitation.
func (s *Service) RespondToShare(ctx context.Context, actor access.Actor, shareID string, status access.ShareStatus) (Share, error) {
	var updated Share
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		share, event, err := s.loadShare(tx, opRespond, shareID)
		if err != nil {
			return err
		}
		parties := access.ShareParties{OwnerID: event.UserID, InviteeID: share.inviteeID()}
		if err := access.AuthorizeShareChange(actor.UserID, parties, share.Status, access.ShareChange{Status: &status}); err != nil {
			return classify(opRespond, "share_not_found", err)
		}
		result := tx.Model(&Share{}).
			Where("id = ? AND status = ?", share.ID, share.Status).
			Update("status", status)
		if result.Error != nil {
			s.logError(opRespond, "update_failed", result.Error, zap.String("share_id", share.ID))
			return apperr.New(opRespond, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.New(opRespond, "concurrent_update", apperr.ErrConflict)
		}
		share.Status = status
		updated = share
		return nil
	})
	if txErr != nil {
		return Share{}, txErr
	}
	return updated, nil
}

// DeleteShare removes an invitation. Only the event owner may do so.
func (s *Service) DeleteShare(ctx context.Context, actor access.Actor, shareID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		share, event, err := s.loadShare(tx, opDeleteShare, shareID)
		if err != nil {
			return err
		}
		parties := access.ShareParties{OwnerID: event.UserID, InviteeID: share.inviteeID()}
		if err := access.AuthorizeShareDelete(actor.UserID, parties); err != nil {
			return classify(opDeleteShare, "share_not_found", err)
		}
		if err := tx.Where("id = ?", share.ID).Delete(&Share{}).Error; err != nil {
			s.logError(opDeleteShare, "delete_failed", err, zap.String("share_id", share.ID))
			return apperr.New(opDeleteShare, "delete_failed", err)
		}
		return nil
	})
}

// ResolvePendingInvites attaches userID to invitations addressed to email
// that no account claimed yet.
func (s *Service) ResolvePendingInvites(ctx context.Context, userID, email string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Share{}).
		Where("shared_with_email = ? AND shared_with_user_id IS NULL", strings.TrimSpace(email)).
		Update("shared_with_user_id", userID)
	if result.Error != nil {
		s.logError(opResolveInvites, "update_failed", result.Error, zap.String("user_id", userID))
		return 0, apperr.New(opResolveInvites, "update_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// CountUpcoming returns how many of userID's own events start after from.
func (s *Service) CountUpcoming(ctx context.Context, userID string, from time.Time) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&Event{}).
		Where("user_id = ? AND start_time > ?", userID, from.UTC()).
		Count(&total).Error; err != nil {
		s.logError(opCountUpcoming, "query_failed", err, zap.String("user_id", userID))
		return 0, apperr.New(opCountUpcoming, "query_failed", err)
	}
	return total, nil
}

// PurgeUser removes the events owned by userID with their shares and the
// invitations addressed to userID.
func (s *Service) PurgeUser(tx *gorm.DB, userID string) error {
	var eventIDs []string
	if err := tx.Model(&Event{}).Where("user_id = ?", userID).Pluck("id", &eventIDs).Error; err != nil {
		return apperr.New(opPurgeUser, "query_failed", err)
	}
	if err := s.deleteEvents(tx, eventIDs); err != nil {
		return apperr.New(opPurgeUser, "delete_events_failed", err)
	}
	if err := tx.Where("shared_with_user_id = ?", userID).Delete(&Share{}).Error; err != nil {
		return apperr.New(opPurgeUser, "delete_shares_failed", err)
	}
	return nil
}

// DetachSubject clears the subject of every event userID filed under subjectID.
func (s *Service) DetachSubject(tx *gorm.DB, userID, subjectID string) error {
	if err := tx.Model(&Event{}).
		Where("user_id = ? AND subject_id = ?", userID, subjectID).
		Update("subject_id", nil).Error; err != nil {
		return apperr.New(opDetachSubject, "update_failed", err)
	}
	return nil
}

func (s *Service) deleteEvents(tx *gorm.DB, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	if s.reminders != nil {
		if err := s.reminders.RemoveEventReminders(tx, eventIDs); err != nil {
			return err
		}
	}
	if err := tx.Where("event_id IN ?", eventIDs).Delete(&Share{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", eventIDs).Delete(&Event{}).Error
}

func (s *Service) loadEvent(db *gorm.DB, operation, eventID string, lock bool) (Event, []Share, error) {
	query := db
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var event Event
	err := query.Where("id = ?", eventID).Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Event{}, nil, apperr.New(operation, reasonNotFound, apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "event_select_failed", err, zap.String("event_id", eventID))
		return Event{}, nil, apperr.New(operation, "event_select_failed", err)
	}
	var shares []Share
	if err := db.Where("event_id = ?", event.ID).Order("created_at ASC").Find(&shares).Error; err != nil {
		s.logError(operation, "shares_select_failed", err, zap.String("event_id", eventID))
		return Event{}, nil, apperr.New(operation, "shares_select_failed", err)
	}
	return event, shares, nil
}

func (s *Service) loadShare(tx *gorm.DB, operation, shareID string) (Share, Event, error) {
	var share Share
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", shareID).Take(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Share{}, Event{}, apperr.New(operation, "share_not_found", apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "share_select_failed", err, zap.String("share_id", shareID))
		return Share{}, Event{}, apperr.New(operation, "share_select_failed", err)
	}
	var event Event
	err = tx.Where("id = ?", share.EventID).Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Share{}, Event{}, apperr.New(operation, reasonNotFound, apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "event_select_failed", err, zap.String("share_id", shareID))
		return Share{}, Event{}, apperr.New(operation, "event_select_failed", err)
	}
	return share, event, nil
}

func (s *Service) authorize(operation string, actor access.Actor, event Event, shares []Share, action access.Action) error {
	rel := access.Resolve(actor.UserID, event.UserID, grantsOf(shares))
	if err := access.Authorize(rel, action); err != nil {
		return classify(operation, reasonNotFound, err)
	}
	return nil
}

func classify(operation, notFoundReason string, err error) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return apperr.New(operation, notFoundReason, err)
	case errors.Is(err, apperr.ErrForbidden):
		return apperr.New(operation, reasonForbidden, err)
	default:
		return apperr.New(operation, reasonInvalid, err)
	}
}

func validateEvent(title string, eventType EventType, start time.Time, end *time.Time, reminderMinutes *int) error {
	var validation apperr.ValidationError
	if title == "" {
		validation.Add("title", "is required")
	}
	if !eventType.valid() {
		validation.Add("type", "must be event, task or reminder")
	}
	if start.IsZero() {
		validation.Add("startTime", "is required")
	}
	if end != nil && !start.IsZero() && end.Before(start) {
		validation.Add("endTime", "must not precede startTime")
	}
	if reminderMinutes != nil && *reminderMinutes < 0 {
		validation.Add("reminderMinutes", "must not be negative")
	}
	return validation.OrNil()
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	converted := value.UTC()
	return &converted
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
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
	s.logger.Error("calendar service error", attrs...)
}
