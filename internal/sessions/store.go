// Package sessions persists opaque session tokens that map to user accounts.
package sessions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionTTL bounds the lifetime of a session from its creation.
const SessionTTL = 7 * 24 * time.Hour

const (
	opStoreNew     = "sessions.store.new"
	opCreate       = "sessions.create"
	opResolve      = "sessions.resolve"
	opDestroy      = "sessions.destroy"
	opDestroyAll   = "sessions.destroy_all"
	opPurgeUser    = "sessions.purge_user"
	maxTokenLength = 64
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingUserID   = errors.New("user identifier is required")
	errInvalidToken    = errors.New("token source produced an empty or oversized token")
	noOpLogger         = zap.NewNop()
)

// Session binds an opaque token to a user until ExpiresAt.
type Session struct {
	Token     string    `gorm:"column:token;primaryKey;size:64"`
	UserID    string    `gorm:"column:user_id;not null;index"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName implements gorm's tabler interface.
func (Session) TableName() string {
	return "sessions"
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// TokenSource produces unguessable session tokens.
type TokenSource func() (string, error)

// RandomTokenSource issues random UUIDv4 tokens.
func RandomTokenSource() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	TokenSource TokenSource
	Logger      *zap.Logger
}

// Store creates, resolves and destroys sessions.
type Store struct {
	db          *gorm.DB
	clock       func() time.Time
	tokenSource TokenSource
	logger      *zap.Logger
}

// NewStore validates the configuration and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, apperr.New(opStoreNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	tokenSource := cfg.TokenSource
	if tokenSource == nil {
		tokenSource = RandomTokenSource
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, clock: clock, tokenSource: tokenSource, logger: logger}, nil
}

// Create issues a new session for userID expiring SessionTTL from now.
func (s *Store) Create(ctx context.Context, userID string) (Session, error) {
	if strings.TrimSpace(userID) == "" {
		return Session{}, apperr.New(opCreate, "missing_user_id", errMissingUserID)
	}
	token, err := s.tokenSource()
	if err != nil {
		s.logError(opCreate, "token_generation_failed", err, zap.String("user_id", userID))
		return Session{}, apperr.New(opCreate, "token_generation_failed", err)
	}
	if strings.TrimSpace(token) == "" || len(token) > maxTokenLength {
		s.logError(opCreate, "invalid_token", errInvalidToken,
			zap.String("user_id", userID),
			zap.Int("token_length", len(token)))
		return Session{}, apperr.New(opCreate, "invalid_token", errInvalidToken)
	}

	now := s.clock().UTC()
	session := Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(SessionTTL),
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("user_id", userID))
		return Session{}, apperr.New(opCreate, "insert_failed", err)
	}
	return session, nil
}

// Resolve returns the live session for token. Absent and expired sessions
// report false; an expired session is removed on the way out.
func (s *Store) Resolve(ctx context.Context, token string) (Session, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, false, nil
	}

	var session Session
	err := s.db.WithContext(ctx).Where("token = ?", token).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, false, nil
	}
	if err != nil {
		s.logError(opResolve, "query_failed", err)
		return Session{}, false, apperr.New(opResolve, "query_failed", err)
	}

	if session.Expired(s.clock().UTC()) {
		if err := s.db.WithContext(ctx).Where("token = ?", token).Delete(&Session{}).Error; err != nil {
			s.loggerOrDefault().Warn("expired session cleanup failed",
				zap.String("operation", opResolve),
				zap.String("user_id", session.UserID),
				zap.Error(err))
		}
		return Session{}, false, nil
	}

	return session, true, nil
}

// Destroy removes the session for token. Unknown tokens are not an error.
func (s *Store) Destroy(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("token = ?", token).Delete(&Session{}).Error; err != nil {
		s.logError(opDestroy, "delete_failed", err)
		return apperr.New(opDestroy, "delete_failed", err)
	}
	return nil
}

// DestroyAllForUser removes every session owned by userID.
func (s *Store) DestroyAllForUser(ctx context.Context, userID string) error {
	return s.PurgeUser(s.db.WithContext(ctx), userID)
}

// PurgeUser removes the sessions of userID using the provided handle, which
// may be an open transaction.
func (s *Store) PurgeUser(tx *gorm.DB, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.New(opPurgeUser, "missing_user_id", errMissingUserID)
	}
	if err := tx.Where("user_id = ?", userID).Delete(&Session{}).Error; err != nil {
		s.logError(opDestroyAll, "delete_failed", err, zap.String("user_id", userID))
		return apperr.New(opPurgeUser, "delete_failed", err)
	}
	return nil
}

func (s *Store) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("session store error", attrs...)
}
