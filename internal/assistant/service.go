// Package assistant keeps the AI chat log and answers study questions.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew    = "assistant.service.new"
	opChat          = "assistant.chat"
	opListMessages  = "assistant.list_messages"
	opClearMessages = "assistant.clear_messages"
	opCountMessage  = "assistant.count_message"
	opPurgeUser     = "assistant.purge_user"

	// UnconfiguredReply is stored and returned when no responder is configured.
	UnconfiguredReply = "I'm your AI study assistant! I can help you understand concepts, generate quiz questions, create study plans, and more. However, the AI service is not currently configured. Please set assistant.api_key (STUDYFLOW_ASSISTANT_API_KEY) to use this feature."
	// UnavailableReply is returned alongside a responder failure.
	UnavailableReply = "I'm having trouble connecting right now. Please try again in a moment!"
	emptyReply       = "I'm here to help with your studies! Feel free to ask me anything."
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceConfig describes the dependencies of the assistant service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Responder  Responder
	Sources    ContextSources
	Logger     *zap.Logger
}

// Service stores chat messages and relays questions to a Responder.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	responder  Responder
	sources    ContextSources
	logger     *zap.Logger
}

// NewService validates the configuration and returns a Service. A nil
// Responder makes every chat answer with UnconfiguredReply.
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
		responder:  cfg.Responder,
		sources:    cfg.Sources,
		logger:     logger,
	}, nil
}

// Chat records message, asks the responder with the user's study context and
// records the answer. Responder failures return an error; the caller surfaces
// UnavailableReply.
func (s *Service) Chat(ctx context.Context, actor access.Actor, message string) (Reply, error) {
	content := strings.TrimSpace(message)
	if content == "" {
		return Reply{}, apperr.New(opChat, "invalid_input", apperr.NewValidationError("message", "is required"))
	}
	if _, err := s.appendMessage(ctx, actor.UserID, RoleUser, content); err != nil {
		return Reply{}, err
	}
	if err := s.countMessage(ctx, actor.UserID); err != nil {
		s.logger.Warn("assistant message counter update failed",
			zap.String("user_id", actor.UserID),
			zap.Error(err))
	}

	if s.responder == nil {
		if _, err := s.appendMessage(ctx, actor.UserID, RoleAssistant, UnconfiguredReply); err != nil {
			return Reply{}, err
		}
		return Reply{Message: UnconfiguredReply}, nil
	}

	snapshot := s.BuildContext(ctx, actor.UserID)
	answer, err := s.responder.Respond(ctx, Prompt{System: snapshot.SystemPrompt(), Message: content})
	if err != nil {
		s.logError(opChat, "responder_failed", err, zap.String("user_id", actor.UserID))
		return Reply{}, apperr.New(opChat, "responder_failed", err)
	}
	if strings.TrimSpace(answer) == "" {
		answer = emptyReply
	}
	if _, err := s.appendMessage(ctx, actor.UserID, RoleAssistant, answer); err != nil {
		return Reply{}, err
	}
	return Reply{Message: answer}, nil
}

// ListMessages returns the actor's conversation, oldest first.
func (s *Service) ListMessages(ctx context.Context, actor access.Actor) ([]Message, error) {
	messages := []Message{}
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", actor.UserID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error; err != nil {
		s.logError(opListMessages, "query_failed", err, zap.String("user_id", actor.UserID))
		return nil, apperr.New(opListMessages, "query_failed", err)
	}
	return messages, nil
}

// ClearMessages deletes the actor's conversation.
func (s *Service) ClearMessages(ctx context.Context, actor access.Actor) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", actor.UserID).Delete(&Message{}).Error; err != nil {
		s.logError(opClearMessages, "delete_failed", err, zap.String("user_id", actor.UserID))
		return apperr.New(opClearMessages, "delete_failed", err)
	}
	return nil
}

// PurgeUser removes the conversation of userID.
func (s *Service) PurgeUser(tx *gorm.DB, userID string) error {
	if err := tx.Where("user_id = ?", userID).Delete(&Message{}).Error; err != nil {
		return apperr.New(opPurgeUser, "delete_failed", err)
	}
	return nil
}

func (s *Service) appendMessage(ctx context.Context, userID string, role Role, content string) (Message, error) {
	messageID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opChat, "id_generation_failed", err)
		return Message{}, apperr.New(opChat, "id_generation_failed", err)
	}
	message := Message{
		ID:        messageID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		s.logError(opChat, "insert_failed", err, zap.String("user_id", userID))
		return Message{}, apperr.New(opChat, "insert_failed", err)
	}
	return message, nil
}

// countMessage bumps the user's daily message counter, restarting it on a new UTC day.
func (s *Service) countMessage(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user users.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", userID).Take(&user).Error; err != nil {
			return apperr.New(opCountMessage, "user_select_failed", err)
		}
		now := s.clock().UTC()
		changes := map[string]interface{}{
			"ai_messages_today": gorm.Expr("ai_messages_today + 1"),
		}
		if user.AIMessagesLastReset == nil || !sameDay(user.AIMessagesLastReset.UTC(), now) {
			changes["ai_messages_today"] = 1
			changes["ai_messages_last_reset"] = now
		}
		if err := tx.Model(&users.User{}).Where("id = ?", userID).Updates(changes).Error; err != nil {
			return apperr.New(opCountMessage, "update_failed", err)
		}
		return nil
	})
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (s *Service) warnContext(source, userID string, err error) {
	s.logger.Warn("assistant context source failed",
		zap.String("source", source),
		zap.String("user_id", userID),
		zap.Error(err))
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
	s.logger.Error("assistant service error", attrs...)
}
