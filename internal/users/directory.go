package users

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"gorm.io/gorm"
)

const (
	opFindByID    = "users.find_by_id"
	opFindByEmail = "users.find_by_email"
)

// Directory performs read-only account lookups for collaborating services.
type Directory struct {
	db *gorm.DB
}

// NewDirectory returns a Directory backed by db.
func NewDirectory(db *gorm.DB) (*Directory, error) {
	if db == nil {
		return nil, apperr.New("users.directory.new", "missing_database", errMissingDatabase)
	}
	return &Directory{db: db}, nil
}

// FindByID returns the user with id or an error wrapping apperr.ErrNotFound.
func (d *Directory) FindByID(ctx context.Context, id string) (User, error) {
	return findUser(d.db.WithContext(ctx), opFindByID, "id = ?", strings.TrimSpace(id))
}

// FindByEmail returns the user registered with email, matched exactly after trimming.
func (d *Directory) FindByEmail(ctx context.Context, email string) (User, error) {
	return findUser(d.db.WithContext(ctx), opFindByEmail, "email = ?", strings.TrimSpace(email))
}

func findUser(db *gorm.DB, operation, query, value string) (User, error) {
	if value == "" {
		return User{}, apperr.New(operation, "user_not_found", apperr.ErrNotFound)
	}
	var user User
	err := db.Where(query, value).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperr.New(operation, "user_not_found", apperr.ErrNotFound)
	}
	if err != nil {
		return User{}, apperr.New(operation, "query_failed", err)
	}
	return user, nil
}
