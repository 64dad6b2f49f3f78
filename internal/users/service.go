package users

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	opServiceNew      = "users.service.new"
	opRegister        = "users.register"
	opAuthenticate    = "users.authenticate"
	opGetByID         = "users.get"
	opUpdateProfile   = "users.update_profile"
	opChangePassword  = "users.change_password"
	opDeleteAccount   = "users.delete_account"
	minPasswordLength = 6
	decoyPassword     = "studyflow-decoy-password"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingHasher     = errors.New("password hasher is required")
	noOpLogger           = zap.NewNop()
)

// InviteResolver attaches a newly registered account to invitations addressed to its email.
type InviteResolver interface {
	ResolvePendingInvites(ctx context.Context, userID, email string) (int64, error)
}

// AccountPurger removes the rows a user owns inside the account deletion transaction.
type AccountPurger interface {
	PurgeUser(tx *gorm.DB, userID string) error
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database        *gorm.DB
	Clock           func() time.Time
	IDProvider      ids.Provider
	Hasher          PasswordHasher
	Logger          *zap.Logger
	InviteResolvers []InviteResolver
	AccountPurgers  []AccountPurger
}

// Service registers, authenticates and maintains user accounts.
type Service struct {
	db              *gorm.DB
	directory       *Directory
	clock           func() time.Time
	idProvider      ids.Provider
	hasher          PasswordHasher
	decoyHash       string
	logger          *zap.Logger
	inviteResolvers []InviteResolver
	accountPurgers  []AccountPurger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Hasher == nil {
		return nil, apperr.New(opServiceNew, "missing_hasher", errMissingHasher)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	decoyHash, err := cfg.Hasher.Hash(decoyPassword)
	if err != nil {
		return nil, apperr.New(opServiceNew, "decoy_hash_failed", err)
	}
	return &Service{
		db:              cfg.Database,
		directory:       &Directory{db: cfg.Database},
		clock:           clock,
		idProvider:      cfg.IDProvider,
		hasher:          cfg.Hasher,
		decoyHash:       decoyHash,
		logger:          logger,
		inviteResolvers: cfg.InviteResolvers,
		accountPurgers:  cfg.AccountPurgers,
	}, nil
}

// Register creates an account. The email must not already be registered.
func (s *Service) Register(ctx context.Context, registration Registration) (User, error) {
	name := strings.TrimSpace(registration.Name)
	email := strings.TrimSpace(registration.Email)

	var validation apperr.ValidationError
	if name == "" {
		validation.Add("name", "is required")
	}
	if !validEmail(email) {
		validation.Add("email", "must be a valid email address")
	}
	if len(registration.Password) < minPasswordLength {
		validation.Add("password", "must be at least 6 characters")
	}
	if err := validation.OrNil(); err != nil {
		return User{}, apperr.New(opRegister, "invalid_input", err)
	}

	if _, err := s.directory.FindByEmail(ctx, email); err == nil {
		return User{}, apperr.New(opRegister, "duplicate_email", apperr.ErrConflict)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		s.logError(opRegister, "lookup_failed", err)
		return User{}, apperr.New(opRegister, "lookup_failed", err)
	}

	hash, err := s.hasher.Hash(registration.Password)
	if err != nil {
		s.logError(opRegister, "hash_failed", err)
		return User{}, apperr.New(opRegister, "hash_failed", err)
	}
	userID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRegister, "id_generation_failed", err)
		return User{}, apperr.New(opRegister, "id_generation_failed", err)
	}

	user := User{
		ID:           userID,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Badges:       datatypes.JSONSlice[string]{},
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, apperr.New(opRegister, "duplicate_email", apperr.ErrConflict)
		}
		s.logError(opRegister, "insert_failed", err, zap.String("user_id", userID))
		return User{}, apperr.New(opRegister, "insert_failed", err)
	}

	for _, resolver := range s.inviteResolvers {
		resolved, err := resolver.ResolvePendingInvites(ctx, user.ID, user.Email)
		if err != nil {
			s.logger.Warn("pending invite resolution failed",
				zap.String("operation", opRegister),
				zap.String("user_id", user.ID),
				zap.Error(err))
			continue
		}
		if resolved > 0 {
			s.logger.Info("pending invites attached to new account",
				zap.String("user_id", user.ID),
				zap.Int64("count", resolved))
		}
	}

	return user, nil
}

// Authenticate verifies the credentials and returns the account. Unknown
// emails still pay for one hash comparison so both failures take equal time.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			_, _ = s.hasher.Verify(s.decoyHash, password)
			return User{}, apperr.New(opAuthenticate, "user_not_found", apperr.ErrNotFound)
		}
		s.logError(opAuthenticate, "lookup_failed", err)
		return User{}, apperr.New(opAuthenticate, "lookup_failed", err)
	}
	ok, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		s.logError(opAuthenticate, "verify_failed", err, zap.String("user_id", user.ID))
		return User{}, apperr.New(opAuthenticate, "verify_failed", err)
	}
	if !ok {
		return User{}, apperr.New(opAuthenticate, "invalid_credentials", apperr.ErrInvalidCredentials)
	}
	return user, nil
}

// GetByID returns the account with id.
func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	user, err := s.directory.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.logError(opGetByID, "lookup_failed", err, zap.String("user_id", id))
		}
		return User{}, err
	}
	return user, nil
}

// UpdateProfile applies the generic profile update.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (User, error) {
	updates := map[string]interface{}{}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return User{}, apperr.New(opUpdateProfile, "invalid_input", apperr.NewValidationError("name", "must not be empty"))
		}
		updates["name"] = name
	}
	if update.HasCompletedSetup != nil {
		updates["has_completed_setup"] = *update.HasCompletedSetup
	}

	if len(updates) > 0 {
		result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(updates)
		if result.Error != nil {
			s.logError(opUpdateProfile, "update_failed", result.Error, zap.String("user_id", userID))
			return User{}, apperr.New(opUpdateProfile, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return User{}, apperr.New(opUpdateProfile, "user_not_found", apperr.ErrNotFound)
		}
	}
	return s.GetByID(ctx, userID)
}

// ChangePassword re-verifies the current password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return apperr.New(opChangePassword, "invalid_input", apperr.NewValidationError("newPassword", "must be at least 6 characters"))
	}
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(user.PasswordHash, currentPassword)
	if err != nil {
		s.logError(opChangePassword, "verify_failed", err, zap.String("user_id", userID))
		return apperr.New(opChangePassword, "verify_failed", err)
	}
	if !ok {
		return apperr.New(opChangePassword, "invalid_credentials", apperr.ErrInvalidCredentials)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logError(opChangePassword, "hash_failed", err, zap.String("user_id", userID))
		return apperr.New(opChangePassword, "hash_failed", err)
	}
	if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("password_hash", hash).Error; err != nil {
		s.logError(opChangePassword, "update_failed", err, zap.String("user_id", userID))
		return apperr.New(opChangePassword, "update_failed", err)
	}
	return nil
}

// DeleteAccount removes the account and everything it owns once confirmEmail
// matches the stored email.
func (s *Service) DeleteAccount(ctx context.Context, userID, confirmEmail string) error {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(confirmEmail) != user.Email {
		return apperr.New(opDeleteAccount, "confirm_email_mismatch", apperr.ErrConflict)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, purger := range s.accountPurgers {
			if err := purger.PurgeUser(tx, userID); err != nil {
				return err
			}
		}
		if err := tx.Where("id = ?", userID).Delete(&User{}).Error; err != nil {
			return apperr.New(opDeleteAccount, "delete_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opDeleteAccount, "transaction_failed", txErr, zap.String("user_id", userID))
		return txErr
	}
	s.logger.Info("account deleted", zap.String("user_id", userID))
	return nil
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	address, err := mail.ParseAddress(email)
	return err == nil && address.Address == email
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
	s.logger.Error("users service error", attrs...)
}
