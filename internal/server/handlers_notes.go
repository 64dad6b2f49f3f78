package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/notes"
	"github.com/gin-gonic/gin"
)

type noteRequestPayload struct {
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	SubjectID *string `json:"subjectId"`
}

type noteShareRequestPayload struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type shareChangePayload struct {
	Status *string `json:"status"`
	Role   *string `json:"role"`
}

type commentRequestPayload struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	listing, err := h.notes.ListNotes(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	detail, err := h.notes.GetNote(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	var request noteRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	note, err := h.notes.CreateNote(c.Request.Context(), actorFrom(c), notes.NoteInput{
		Title:     request.Title,
		Content:   request.Content,
		SubjectID: request.SubjectID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	var update notes.NoteUpdate
	if err := bindUpdate(c, &update); err != nil {
		h.writeError(c, err)
		return
	}
	note, err := h.notes.UpdateNote(c.Request.Context(), actorFrom(c), c.Param("id"), update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	if err := h.notes.DeleteNote(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	respondSuccess(c)
}

func (h *httpHandler) handleShareNote(c *gin.Context) {
	var request noteShareRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	role := access.RoleViewer
	if strings.TrimSpace(request.Role) != "" {
		parsed, ok := access.ParseRole(request.Role)
		if !ok {
			h.writeError(c, apperr.NewValidationError("role", "must be viewer, commenter or editor"))
			return
		}
		role = parsed
	}
	share, err := h.notes.ShareNote(c.Request.Context(), actorFrom(c), c.Param("id"), notes.ShareRequest{
		Email: request.Email,
		Role:  role,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, share)
}

func (h *httpHandler) handleUpdateNoteShare(c *gin.Context) {
	change, err := bindShareChange(c, true)
	if err != nil {
		h.writeError(c, err)
		return
	}
	share, err := h.notes.UpdateShare(c.Request.Context(), actorFrom(c), c.Param("id"), change)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, share)
}

func (h *httpHandler) handleDeleteNoteShare(c *gin.Context) {
	if err := h.notes.DeleteShare(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	respondSuccess(c)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	comments, err := h.notes.ListComments(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	var request commentRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	comment, err := h.notes.AddComment(c.Request.Context(), actorFrom(c), c.Param("id"), request.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// bindShareChange decodes a share update. Roles only apply to note shares.
func bindShareChange(c *gin.Context, allowRole bool) (access.ShareChange, error) {
	var payload shareChangePayload
	if err := bindUpdate(c, &payload); err != nil {
		return access.ShareChange{}, err
	}
	var change access.ShareChange
	var validation apperr.ValidationError
	if payload.Status != nil {
		status, ok := access.ParseStatus(*payload.Status)
		if ok {
			change.Status = &status
		} else {
			validation.Add("status", "must be pending, accepted or declined")
		}
	}
	if payload.Role != nil {
		role, ok := access.ParseRole(*payload.Role)
		switch {
		case !allowRole:
			validation.Add("role", "is not supported for this share")
		case ok:
			change.Role = &role
		default:
			validation.Add("role", "must be viewer, commenter or editor")
		}
	}
	if err := validation.OrNil(); err != nil {
		return access.ShareChange{}, err
	}
	return change, nil
}
