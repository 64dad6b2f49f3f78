// Package access decides whether an actor may perform an action on an owned,
// shareable resource and validates share lifecycle transitions.
package access

import (
	"strings"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
)

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	UserID    string
	SessionID string
}

// Role is the permission tier granted by a note share.
type Role string

const (
	RoleViewer    Role = "viewer"
	RoleCommenter Role = "commenter"
	RoleEditor    Role = "editor"
)

// ParseRole validates a raw role value.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.TrimSpace(raw)) {
	case RoleViewer:
		return RoleViewer, true
	case RoleCommenter:
		return RoleCommenter, true
	case RoleEditor:
		return RoleEditor, true
	default:
		return "", false
	}
}

func (r Role) rank() int {
	switch r {
	case RoleEditor:
		return 3
	case RoleCommenter:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// ShareStatus is the lifecycle state of an invitation.
type ShareStatus string

const (
	StatusPending  ShareStatus = "pending"
	StatusAccepted ShareStatus = "accepted"
	StatusDeclined ShareStatus = "declined"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (ShareStatus, bool) {
	switch ShareStatus(strings.TrimSpace(raw)) {
	case StatusPending:
		return StatusPending, true
	case StatusAccepted:
		return StatusAccepted, true
	case StatusDeclined:
		return StatusDeclined, true
	default:
		return "", false
	}
}

// Action is an operation attempted on a shareable resource.
type Action string

const (
	ActionRead    Action = "read"
	ActionEdit    Action = "edit"
	ActionComment Action = "comment"
	ActionDelete  Action = "delete"
	ActionShare   Action = "share"
)

// Grant is a share record as seen by the engine. Role is empty for resources
// without role granularity.
type Grant struct {
	UserID string
	Status ShareStatus
	Role   Role
}

// Relationship is the resolved link between an actor and a resource.
type Relationship struct {
	Owner   bool
	Invitee bool
	Status  ShareStatus
	Role    Role
}

// Known reports whether the actor has any recognized link to the resource.
func (r Relationship) Known() bool {
	return r.Owner || r.Invitee
}

// Resolve computes the relationship of actorID to a resource owned by ownerID
// with the given grants. Grants without a resolved user never match. When the
// actor holds several grants the accepted one with the strongest role wins.
func Resolve(actorID, ownerID string, grants []Grant) Relationship {
	if actorID == "" {
		return Relationship{}
	}
	if actorID == ownerID {
		return Relationship{Owner: true}
	}

	var best Relationship
	for _, grant := range grants {
		if grant.UserID == "" || grant.UserID != actorID {
			continue
		}
		candidate := Relationship{Invitee: true, Status: grant.Status, Role: grant.Role}
		if !best.Invitee || outranks(candidate, best) {
			best = candidate
		}
	}
	return best
}

func outranks(candidate, current Relationship) bool {
	candidateAccepted := candidate.Status == StatusAccepted
	currentAccepted := current.Status == StatusAccepted
	if candidateAccepted != currentAccepted {
		return candidateAccepted
	}
	return candidate.Role.rank() > current.Role.rank()
}

// Authorize returns nil when rel permits action. Unknown relationships yield
// apperr.ErrNotFound; known but insufficient ones yield apperr.ErrForbidden.
func Authorize(rel Relationship, action Action) error {
	if rel.Owner {
		return nil
	}
	if !rel.Invitee {
		return apperr.ErrNotFound
	}
	if rel.Status != StatusAccepted {
		if action == ActionRead {
			return apperr.ErrNotFound
		}
		return apperr.ErrForbidden
	}

	switch action {
	case ActionRead:
		return nil
	case ActionEdit:
		if rel.Role == RoleEditor {
			return nil
		}
	case ActionComment:
		if rel.Role == RoleEditor || rel.Role == RoleCommenter {
			return nil
		}
	}
	return apperr.ErrForbidden
}

// Allowed reports whether rel permits action.
func Allowed(rel Relationship, action Action) bool {
	return Authorize(rel, action) == nil
}

// ShareChange describes a requested modification of a share record.
type ShareChange struct {
	Status *ShareStatus
	Role   *Role
}

// ShareParties identifies the owner of the shared resource and the resolved invitee.
type ShareParties struct {
	OwnerID   string
	InviteeID string
}

// AuthorizeShareChange validates a share update by actorID. Status changes are
// reserved to the invitee and role changes to the owner; any other caller gets
// apperr.ErrNotFound.
func AuthorizeShareChange(actorID string, parties ShareParties, current ShareStatus, change ShareChange) error {
	isOwner := actorID != "" && actorID == parties.OwnerID
	isInvitee := actorID != "" && parties.InviteeID != "" && actorID == parties.InviteeID
	if !isOwner && !isInvitee {
		return apperr.ErrNotFound
	}
	if change.Status == nil && change.Role == nil {
		return apperr.NewValidationError("share", "status or role is required")
	}

	if change.Role != nil {
		if !isOwner {
			return apperr.ErrForbidden
		}
		if _, ok := ParseRole(string(*change.Role)); !ok {
			return apperr.NewValidationError("role", "must be viewer, commenter or editor")
		}
	}

	if change.Status != nil {
		if !isInvitee {
			return apperr.ErrForbidden
		}
		if err := ValidateTransition(current, *change.Status); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTransition checks an invitee's status change. Invitees may accept or
// decline from any state and may not return a share to pending.
func ValidateTransition(from, to ShareStatus) error {
	if _, ok := ParseStatus(string(from)); !ok {
		return apperr.NewValidationError("status", "current status is unknown")
	}
	switch to {
	case StatusAccepted, StatusDeclined:
		return nil
	default:
		return apperr.NewValidationError("status", "must be accepted or declined")
	}
}

// AuthorizeShareDelete permits only the owner to delete a share. A known
// invitee is refused with apperr.ErrForbidden, anyone else with apperr.ErrNotFound.
func AuthorizeShareDelete(actorID string, parties ShareParties) error {
	if actorID != "" && actorID == parties.OwnerID {
		return nil
	}
	if actorID != "" && parties.InviteeID != "" && actorID == parties.InviteeID {
		return apperr.ErrForbidden
	}
	return apperr.ErrNotFound
}
