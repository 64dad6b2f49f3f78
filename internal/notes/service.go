// Package notes manages notes, their shares and their comments.
package notes

import (
	"context"
	"errors"
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
	opServiceNew      = "notes.service.new"
	opCreateNote      = "notes.create"
	opListNotes       = "notes.list"
	opGetNote         = "notes.get"
	opUpdateNote      = "notes.update"
	opDeleteNote      = "notes.delete"
	opShareNote       = "notes.share"
	opUpdateShare     = "notes.update_share"
	opDeleteShare     = "notes.delete_share"
	opAddComment      = "notes.add_comment"
	opListComments    = "notes.list_comments"
	opResolveInvites  = "notes.resolve_invites"
	opPurgeUser       = "notes.purge_user"
	opDetachSubject   = "notes.detach_subject"
	reasonNotFound    = "note_not_found"
	reasonForbidden   = "forbidden"
	reasonInvalidData = "invalid_input"
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

// InviteNotifier emits the notice for a new share.
type InviteNotifier interface {
	NotifyInvite(ctx context.Context, event notifications.InviteEvent) error
}

// ServiceConfig describes the dependencies of the notes service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Directory  UserDirectory
	Notifier   InviteNotifier
	Logger     *zap.Logger
}

// Service implements note storage guarded by the access engine.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	directory  UserDirectory
	notifier   InviteNotifier
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
		logger:     logger,
	}, nil
}

// CreateNote stores a note owned by the actor.
func (s *Service) CreateNote(ctx context.Context, actor access.Actor, input NoteInput) (Note, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Note{}, apperr.New(opCreateNote, reasonInvalidData, apperr.NewValidationError("title", "is required"))
	}
	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateNote, "id_generation_failed", err)
		return Note{}, apperr.New(opCreateNote, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	note := Note{
		ID:        noteID,
		UserID:    actor.UserID,
		SubjectID: normalizeOptional(input.SubjectID),
		Title:     title,
		Content:   input.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opCreateNote, "insert_failed", err, zap.String("user_id", actor.UserID))
		return Note{}, apperr.New(opCreateNote, "insert_failed", err)
	}
	return note, nil
}

// ListNotes returns the actor's own notes and, separately, the notes shared
// with the actor through accepted shares.
func (s *Service) ListNotes(ctx context.Context, actor access.Actor) (Listing, error) {
	db := s.db.WithContext(ctx)
	listing := Listing{Owned: []Note{}, Shared: []SharedNote{}}

	if err := db.Where("user_id = ?", actor.UserID).
		Order("updated_at DESC").
		Find(&listing.Owned).Error; err != nil {
		s.logError(opListNotes, "owned_query_failed", err, zap.String("user_id", actor.UserID))
		return Listing{}, apperr.New(opListNotes, "owned_query_failed", err)
	}

	var shares []Share
	if err := db.Where("shared_with_user_id = ? AND status = ?", actor.UserID, access.StatusAccepted).
		Find(&shares).Error; err != nil {
		s.logError(opListNotes, "shares_query_failed", err, zap.String("user_id", actor.UserID))
		return Listing{}, apperr.New(opListNotes, "shares_query_failed", err)
	}
	if len(shares) == 0 {
		return listing, nil
	}

	sharesByNote := make(map[string]Share, len(shares))
	noteIDs := make([]string, 0, len(shares))
	for _, share := range shares {
		if _, seen := sharesByNote[share.NoteID]; seen {
			continue
		}
		sharesByNote[share.NoteID] = share
		noteIDs = append(noteIDs, share.NoteID)
	}

	var shared []Note
	if err := db.Where("id IN ? AND user_id <> ?", noteIDs, actor.UserID).
		Order("updated_at DESC").
		Find(&shared).Error; err != nil {
		s.logError(opListNotes, "shared_query_failed", err, zap.String("user_id", actor.UserID))
		return Listing{}, apperr.New(opListNotes, "shared_query_failed", err)
	}
	for _, note := range shared {
		share := sharesByNote[note.ID]
		listing.Shared = append(listing.Shared, SharedNote{Note: note, ShareID: share.ID, Role: share.Role})
	}
	return listing, nil
}

// GetNote returns the note with its shares and comments.
func (s *Service) GetNote(ctx context.Context, actor access.Actor, noteID string) (Detail, error) {
	db := s.db.WithContext(ctx)
	note, shares, err := s.loadNote(db, opGetNote, noteID, false)
	if err != nil {
		return Detail{}, err
	}
	if err := s.authorize(opGetNote, actor, note, shares, access.ActionRead); err != nil {
		return Detail{}, err
	}
	comments, err := s.commentsFor(db, opGetNote, note.ID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Note: note, Shares: shares, Comments: comments}, nil
}

// UpdateNote applies update for the owner or an accepted editor. Only the
// owner may move a note to another subject.
func (s *Service) UpdateNote(ctx context.Context, actor access.Actor, noteID string, update NoteUpdate) (Note, error) {
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return Note{}, apperr.New(opUpdateNote, reasonInvalidData, apperr.NewValidationError("title", "must not be empty"))
	}

	var updated Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, shares, err := s.loadNote(tx, opUpdateNote, noteID, true)
		if err != nil {
			return err
		}
		if err := s.authorize(opUpdateNote, actor, note, shares, access.ActionEdit); err != nil {
			return err
		}
		if update.SubjectID != nil && note.UserID != actor.UserID {
			return apperr.New(opUpdateNote, reasonForbidden, apperr.ErrForbidden)
		}

		changes := map[string]interface{}{"updated_at": s.clock().UTC()}
		if update.Title != nil {
			changes["title"] = strings.TrimSpace(*update.Title)
		}
		if update.Content != nil {
			changes["content"] = *update.Content
		}
		if update.SubjectID != nil {
			changes["subject_id"] = normalizeOptional(update.SubjectID)
		}
		if err := tx.Model(&Note{}).Where("id = ?", note.ID).Updates(changes).Error; err != nil {
			s.logError(opUpdateNote, "update_failed", err, zap.String("note_id", note.ID))
			return apperr.New(opUpdateNote, "update_failed", err)
		}
		if err := tx.Where("id = ?", note.ID).Take(&updated).Error; err != nil {
			return apperr.New(opUpdateNote, "reload_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Note{}, txErr
	}
	return updated, nil
}

// DeleteNote removes an owned note with its shares and comments.
func (s *Service) DeleteNote(ctx context.Context, actor access.Actor, noteID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, shares, err := s.loadNote(tx, opDeleteNote, noteID, true)
		if err != nil {
			return err
		}
		if err := s.authorize(opDeleteNote, actor, note, shares, access.ActionDelete); err != nil {
			return err
		}
		if err := deleteNotes(tx, []string{note.ID}); err != nil {
			s.logError(opDeleteNote, "delete_failed", err, zap.String("note_id", note.ID))
			return apperr.New(opDeleteNote, "delete_failed", err)
		}
		return nil
	})
}

// ShareNote invites request.Email to an owned note. The share starts pending.
// The invitee is notified after the share is committed; a failed
// notification does not undo the share.
func (s *Service) ShareNote(ctx context.Context, actor access.Actor, noteID string, request ShareRequest) (Share, error) {
	email := strings.TrimSpace(request.Email)
	role := request.Role
	if role == "" {
		role = access.RoleViewer
	}
	var validation apperr.ValidationError
	if address, err := mail.ParseAddress(email); err != nil || address.Address != email {
		validation.Add("email", "must be a valid email address")
	}
	if _, ok := access.ParseRole(string(role)); !ok {
		validation.Add("role", "must be viewer, commenter or editor")
	}
	if err := validation.OrNil(); err != nil {
		return Share{}, apperr.New(opShareNote, reasonInvalidData, err)
	}

	owner, err := s.directory.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Share{}, apperr.New(opShareNote, "actor_not_found", apperr.ErrUnauthenticated)
		}
		s.logError(opShareNote, "actor_lookup_failed", err, zap.String("user_id", actor.UserID))
		return Share{}, apperr.New(opShareNote, "actor_lookup_failed", err)
	}
	if owner.Email == email {
		return Share{}, apperr.New(opShareNote, "self_share", apperr.NewValidationError("email", "cannot share with yourself"))
	}

	var inviteeID *string
	invitee, err := s.directory.FindByEmail(ctx, email)
	switch {
	case err == nil:
		resolved := invitee.ID
		inviteeID = &resolved
	case errors.Is(err, apperr.ErrNotFound):
	default:
		s.logError(opShareNote, "invitee_lookup_failed", err)
		return Share{}, apperr.New(opShareNote, "invitee_lookup_failed", err)
	}

	shareID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opShareNote, "id_generation_failed", err)
		return Share{}, apperr.New(opShareNote, "id_generation_failed", err)
	}

	var share Share
	var note Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var shares []Share
		note, shares, err = s.loadNote(tx, opShareNote, noteID, true)
		if err != nil {
			return err
		}
		if err := s.authorize(opShareNote, actor, note, shares, access.ActionShare); err != nil {
			return err
		}
		for _, existing := range shares {
			if existing.SharedWithEmail == email {
				return apperr.New(opShareNote, "duplicate_share", apperr.ErrConflict)
			}
		}
		share = Share{
			ID:               shareID,
			NoteID:           note.ID,
			SharedWithEmail:  email,
			SharedWithUserID: inviteeID,
			Role:             role,
			Status:           access.StatusPending,
			CreatedAt:        s.clock().UTC(),
		}
		if err := tx.Create(&share).Error; err != nil {
			s.logError(opShareNote, "insert_failed", err, zap.String("note_id", note.ID))
			return apperr.New(opShareNote, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Share{}, txErr
	}

	if s.notifier != nil && inviteeID != nil {
		notifyErr := s.notifier.NotifyInvite(ctx, notifications.InviteEvent{
			RecipientID:   *inviteeID,
			Kind:          notifications.InviteKindNote,
			InviterName:   owner.Name,
			ResourceID:    note.ID,
			ResourceTitle: note.Title,
		})
		if notifyErr != nil {
			s.logger.Warn("share notification failed",
				zap.String("operation", opShareNote),
				zap.String("note_id", note.ID),
				zap.String("share_id", share.ID),
				zap.Error(notifyErr))
		}
	}
	return share, nil
}

// UpdateShare changes the status (invitee) or role (owner) of a share.
func (s *Service) UpdateShare(ctx context.Context, actor access.Actor, shareID string, change access.ShareChange) (Share, error) {
	var updated Share
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		share, note, err := s.loadShare(tx, opUpdateShare, shareID)
		if err != nil {
			return err
		}
		parties := access.ShareParties{OwnerID: note.UserID, InviteeID: share.inviteeID()}
		if err := access.AuthorizeShareChange(actor.UserID, parties, share.Status, change); err != nil {
			return classify(opUpdateShare, "share_not_found", err)
		}

		changes := map[string]interface{}{}
		if change.Status != nil {
			changes["status"] = *change.Status
		}
		if change.Role != nil {
			changes["role"] = *change.Role
		}
		result := tx.Model(&Share{}).
			Where("id = ? AND status = ?", share.ID, share.Status).
			Updates(changes)
		if result.Error != nil {
			s.logError(opUpdateShare, "update_failed", result.Error, zap.String("share_id", share.ID))
			return apperr.New(opUpdateShare, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.New(opUpdateShare, "concurrent_update", apperr.ErrConflict)
		}
		if err := tx.Where("id = ?", share.ID).Take(&updated).Error; err != nil {
			return apperr.New(opUpdateShare, "reload_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Share{}, txErr
	}
	return updated, nil
}

// DeleteShare removes a share. Only the note owner may do so.
func (s *Service) DeleteShare(ctx context.Context, actor access.Actor, shareID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		share, note, err := s.loadShare(tx, opDeleteShare, shareID)
		if err != nil {
			return err
		}
		parties := access.ShareParties{OwnerID: note.UserID, InviteeID: share.inviteeID()}
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

// AddComment appends a comment for the owner or an accepted commenter or editor.
func (s *Service) AddComment(ctx context.Context, actor access.Actor, noteID, content string) (Comment, error) {
	if strings.TrimSpace(content) == "" {
		return Comment{}, apperr.New(opAddComment, reasonInvalidData, apperr.NewValidationError("content", "is required"))
	}
	commentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddComment, "id_generation_failed", err)
		return Comment{}, apperr.New(opAddComment, "id_generation_failed", err)
	}

	var comment Comment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, shares, err := s.loadNote(tx, opAddComment, noteID, false)
		if err != nil {
			return err
		}
		if err := s.authorize(opAddComment, actor, note, shares, access.ActionComment); err != nil {
			return err
		}
		comment = Comment{
			ID:        commentID,
			NoteID:    note.ID,
			UserID:    actor.UserID,
			Content:   content,
			CreatedAt: s.clock().UTC(),
		}
		if err := tx.Create(&comment).Error; err != nil {
			s.logError(opAddComment, "insert_failed", err, zap.String("note_id", note.ID))
			return apperr.New(opAddComment, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Comment{}, txErr
	}
	return comment, nil
}

// ListComments returns the comments of a readable note, oldest first.
func (s *Service) ListComments(ctx context.Context, actor access.Actor, noteID string) ([]Comment, error) {
	db := s.db.WithContext(ctx)
	note, shares, err := s.loadNote(db, opListComments, noteID, false)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(opListComments, actor, note, shares, access.ActionRead); err != nil {
		return nil, err
	}
	return s.commentsFor(db, opListComments, note.ID)
}

// ResolvePendingInvites attaches userID to shares addressed to email that no
// account claimed yet. The shares keep their status.
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

// PurgeUser removes the notes owned by userID, their shares and comments, the
// shares addressed to userID and the comments userID wrote.
func (s *Service) PurgeUser(tx *gorm.DB, userID string) error {
	var noteIDs []string
	if err := tx.Model(&Note{}).Where("user_id = ?", userID).Pluck("id", &noteIDs).Error; err != nil {
		return apperr.New(opPurgeUser, "query_failed", err)
	}
	if err := deleteNotes(tx, noteIDs); err != nil {
		return apperr.New(opPurgeUser, "delete_notes_failed", err)
	}
	if err := tx.Where("shared_with_user_id = ?", userID).Delete(&Share{}).Error; err != nil {
		return apperr.New(opPurgeUser, "delete_shares_failed", err)
	}
	if err := tx.Where("user_id = ?", userID).Delete(&Comment{}).Error; err != nil {
		return apperr.New(opPurgeUser, "delete_comments_failed", err)
	}
	return nil
}

// DetachSubject clears the subject of every note userID filed under subjectID.
func (s *Service) DetachSubject(tx *gorm.DB, userID, subjectID string) error {
	if err := tx.Model(&Note{}).
		Where("user_id = ? AND subject_id = ?", userID, subjectID).
		Update("subject_id", nil).Error; err != nil {
		return apperr.New(opDetachSubject, "update_failed", err)
	}
	return nil
}

func (s *Service) loadNote(db *gorm.DB, operation, noteID string, lock bool) (Note, []Share, error) {
	query := db
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var note Note
	err := query.Where("id = ?", noteID).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, nil, apperr.New(operation, reasonNotFound, apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "note_select_failed", err, zap.String("note_id", noteID))
		return Note{}, nil, apperr.New(operation, "note_select_failed", err)
	}
	var shares []Share
	if err := db.Where("note_id = ?", note.ID).Order("created_at ASC").Find(&shares).Error; err != nil {
		s.logError(operation, "shares_select_failed", err, zap.String("note_id", noteID))
		return Note{}, nil, apperr.New(operation, "shares_select_failed", err)
	}
	return note, shares, nil
}

func (s *Service) loadShare(tx *gorm.DB, operation, shareID string) (Share, Note, error) {
	var share Share
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", shareID).Take(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Share{}, Note{}, apperr.New(operation, "share_not_found", apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "share_select_failed", err, zap.String("share_id", shareID))
		return Share{}, Note{}, apperr.New(operation, "share_select_failed", err)
	}
	var note Note
	err = tx.Where("id = ?", share.NoteID).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Share{}, Note{}, apperr.New(operation, reasonNotFound, apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "note_select_failed", err, zap.String("share_id", shareID))
		return Share{}, Note{}, apperr.New(operation, "note_select_failed", err)
	}
	return share, note, nil
}

func (s *Service) commentsFor(db *gorm.DB, operation, noteID string) ([]Comment, error) {
	comments := []Comment{}
	if err := db.Where("note_id = ?", noteID).Order("created_at ASC").Order("id ASC").Find(&comments).Error; err != nil {
		s.logError(operation, "comments_select_failed", err, zap.String("note_id", noteID))
		return nil, apperr.New(operation, "comments_select_failed", err)
	}
	return comments, nil
}

func (s *Service) authorize(operation string, actor access.Actor, note Note, shares []Share, action access.Action) error {
	rel := access.Resolve(actor.UserID, note.UserID, grantsOf(shares))
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
		return apperr.New(operation, reasonInvalidData, err)
	}
}

func deleteNotes(tx *gorm.DB, noteIDs []string) error {
	if len(noteIDs) == 0 {
		return nil
	}
	if err := tx.Where("note_id IN ?", noteIDs).Delete(&Comment{}).Error; err != nil {
		return err
	}
	if err := tx.Where("note_id IN ?", noteIDs).Delete(&Share{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", noteIDs).Delete(&Note{}).Error
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
	s.logger.Error("notes service error", attrs...)
}
