package server

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/calendar"
	"github.com/gin-gonic/gin"
)

type eventRequestPayload struct {
	Title           string             `json:"title"`
	Description     *string            `json:"description"`
	Type            calendar.EventType `json:"type"`
	StartTime       time.Time          `json:"startTime"`
	EndTime         *time.Time         `json:"endTime"`
	AllDay          bool               `json:"allDay"`
	Color           *string            `json:"color"`
	SubjectID       *string            `json:"subjectId"`
	Recurrence      *string            `json:"recurrence"`
	ReminderMinutes *int               `json:"reminderMinutes"`
}

type eventShareRequestPayload struct {
	Email string `json:"email"`
}

func (h *httpHandler) handleListEvents(c *gin.Context) {
	start, err := optionalTime(c, "start")
	if err != nil {
		h.writeError(c, err)
		return
	}
	end, err := optionalTime(c, "end")
	if err != nil {
		h.writeError(c, err)
		return
	}
	listing, err := h.calendar.ListEvents(c.Request.Context(), actorFrom(c), calendar.Window{Start: start, End: end})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *httpHandler) handleGetEvent(c *gin.Context) {
	detail, err := h.calendar.GetEvent(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *httpHandler) handleCreateEvent(c *gin.Context) {
	var request eventRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	event, err := h.calendar.CreateEvent(c.Request.Context(), actorFrom(c), calendar.EventInput{
		Title:           request.Title,
		Description:     request.Description,
		Type:            request.Type,
		StartTime:       request.StartTime,
		EndTime:         request.EndTime,
		AllDay:          request.AllDay,
		Color:           request.Color,
		SubjectID:       request.SubjectID,
		Recurrence:      request.Recurrence,
		ReminderMinutes: request.ReminderMinutes,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *httpHandler) handleUpdateEvent(c *gin.Context) {
	var update calendar.EventUpdate
	if err := bindUpdate(c, &update); err != nil {
		h.writeError(c, err)
		return
	}
	event, err := h.calendar.UpdateEvent(c.Request.Context(), actorFrom(c), c.Param("id"), update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *httpHandler) handleDeleteEvent(c *gin.Context) {
	if err := h.calendar.DeleteEvent(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	respondSuccess(c)
}

func (h *httpHandler) handleShareEvent(c *gin.Context) {
	var request eventShareRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	share, err := h.calendar.ShareEvent(c.Request.Context(), actorFrom(c), c.Param("id"), request.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, share)
}

func (h *httpHandler) handleRespondToEventShare(c *gin.Context) {
	change, err := bindShareChange(c, false)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if change.Status == nil {
		h.writeError(c, apperr.NewValidationError("status", "is required"))
		return
	}
	share, err := h.calendar.RespondToShare(c.Request.Context(), actorFrom(c), c.Param("id"), *change.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, share)
}

func (h *httpHandler) handleDeleteEventShare(c *gin.Context) {
	if err := h.calendar.DeleteShare(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	respondSuccess(c)
}
