// Package notifications stores inbox entries and fans them out to live streams.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew   = "notifications.service.new"
	opNotify       = "notifications.notify"
	opNotifyInvite = "notifications.notify_invite"
	opList         = "notifications.list"
	opMarkRead     = "notifications.mark_read"
	opMarkAllRead  = "notifications.mark_all_read"
	opPurgeUser    = "notifications.purge_user"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceConfig describes the dependencies of the notification service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Dispatcher *Dispatcher
	Logger     *zap.Logger
}

// Service creates and reads notifications.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	dispatcher *Dispatcher
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
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		dispatcher: cfg.Dispatcher,
		logger:     logger,
	}, nil
}

// Notify stores a notification for draft.RecipientID and publishes it to live subscribers.
func (s *Service) Notify(ctx context.Context, draft Draft) (Notification, error) {
	var validation apperr.ValidationError
	if strings.TrimSpace(draft.RecipientID) == "" {
		validation.Add("userId", "is required")
	}
	if strings.TrimSpace(draft.Title) == "" {
		validation.Add("title", "is required")
	}
	if draft.Type == "" {
		validation.Add("type", "is required")
	}
	if err := validation.OrNil(); err != nil {
		return Notification{}, apperr.New(opNotify, "invalid_input", err)
	}

	notificationID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opNotify, "id_generation_failed", err)
		return Notification{}, apperr.New(opNotify, "id_generation_failed", err)
	}
	notification := Notification{
		ID:        notificationID,
		UserID:    draft.RecipientID,
		Type:      draft.Type,
		Title:     draft.Title,
		Message:   draft.Message,
		CreatedAt: s.clock().UTC(),
	}
	if draft.ReferenceID != "" {
		reference := draft.ReferenceID
		notification.ReferenceID = &reference
	}
	if draft.ReferenceType != "" {
		referenceType := draft.ReferenceType
		notification.ReferenceType = &referenceType
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		s.logError(opNotify, "insert_failed", err, zap.String("user_id", draft.RecipientID))
		return Notification{}, apperr.New(opNotify, "insert_failed", err)
	}
	if s.dispatcher != nil {
		s.dispatcher.Publish(notification)
	}
	return notification, nil
}

// NotifyInvite emits the share or invitation notice for event. Unresolved
// invitees are skipped.
func (s *Service) NotifyInvite(ctx context.Context, event InviteEvent) error {
	if strings.TrimSpace(event.RecipientID) == "" {
		return nil
	}
	draft := Draft{
		RecipientID: event.RecipientID,
		ReferenceID: event.ResourceID,
	}
	switch event.Kind {
	case InviteKindNote:
		draft.Type = TypeShare
		draft.Title = "Note shared with you"
		draft.Message = fmt.Sprintf("%s shared a note %q with you", event.InviterName, event.ResourceTitle)
		draft.ReferenceType = "note"
	case InviteKindEvent:
		draft.Type = TypeEvent
		draft.Title = "Event invitation"
		draft.Message = fmt.Sprintf("%s invited you to %q", event.InviterName, event.ResourceTitle)
		draft.ReferenceType = "event"
	default:
		return apperr.New(opNotifyInvite, "unknown_kind", apperr.NewValidationError("kind", "must be note or event"))
	}
	_, err := s.Notify(ctx, draft)
	return err
}

// List returns the recipient's notifications newest first with the unread count.
func (s *Service) List(ctx context.Context, userID string) (Inbox, error) {
	var notifications []Notification
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&notifications).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", userID))
		return Inbox{}, apperr.New(opList, "query_failed", err)
	}
	var unread int64
	for _, notification := range notifications {
		if !notification.IsRead {
			unread++
		}
	}
	return Inbox{Notifications: notifications, UnreadCount: unread}, nil
}

// MarkRead flags one of the recipient's notifications as read. Notifications
// addressed to someone else are reported as not found.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) (Notification, error) {
	db := s.db.WithContext(ctx)
	result := db.Model(&Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if result.Error != nil {
		s.logError(opMarkRead, "update_failed", result.Error, zap.String("user_id", userID))
		return Notification{}, apperr.New(opMarkRead, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Notification{}, apperr.New(opMarkRead, "notification_not_found", apperr.ErrNotFound)
	}
	var notification Notification
	if err := db.Where("id = ?", notificationID).Take(&notification).Error; err != nil {
		s.logError(opMarkRead, "reload_failed", err, zap.String("user_id", userID))
		return Notification{}, apperr.New(opMarkRead, "reload_failed", err)
	}
	return notification, nil
}

// MarkAllRead flags every unread notification of the recipient and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if result.Error != nil {
		s.logError(opMarkAllRead, "update_failed", result.Error, zap.String("user_id", userID))
		return 0, apperr.New(opMarkAllRead, "update_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// PurgeUser removes the recipient's notifications.
func (s *Service) PurgeUser(tx *gorm.DB, userID string) error {
	if err := tx.Where("user_id = ?", userID).Delete(&Notification{}).Error; err != nil {
		return apperr.New(opPurgeUser, "delete_failed", err)
	}
	return nil
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
	s.logger.Error("notifications service error", attrs...)
}
