package server

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/organizer"
	"github.com/gin-gonic/gin"
)

type reminderRequestPayload struct {
	Title        string    `json:"title"`
	Description  *string   `json:"description"`
	ReminderTime time.Time `json:"reminderTime"`
	EventID      *string   `json:"eventId"`
	TaskID       *string   `json:"taskId"`
}

type stickyNoteRequestPayload struct {
	Content string  `json:"content"`
	Color   *string `json:"color"`
	X       *int    `json:"x"`
	Y       *int    `json:"y"`
	Width   *int    `json:"width"`
	Height  *int    `json:"height"`
}

type journalRequestPayload struct {
	Date    string         `json:"date"`
	Mood    organizer.Mood `json:"mood"`
	Content string         `json:"content"`
}

func (h *httpHandler) handleListReminders(c *gin.Context) {
	reminders, err := h.organizer.ListReminders(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reminders)
}

func (h *httpHandler) handleCreateReminder(c *gin.Context) {
	var request reminderRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	reminder, err := h.organizer.CreateReminder(c.Request.Context(), actorFrom(c), organizer.ReminderInput{
		Title:        request.Title,
		Description:  request.Description,
		ReminderTime: request.ReminderTime,
		EventID:      request.EventID,
		TaskID:       request.TaskID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reminder)
}

func (h *httpHandler) handleMarkReminderRead(c *gin.Context) {
	reminder, err := h.organizer.MarkReminderRead(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reminder)
}

func (h *httpHandler) handleDeleteReminder(c *gin.Context) {
	if err := h.organizer.DeleteReminder(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	respondSuccess(c)
}

func (h *httpHandler) handleListStickyNotes(c *gin.Context) {
	stickyNotes, err := h.organizer.ListStickyNotes(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stickyNotes)
}

func (h *httpHandler) handleCreateStickyNote(c *gin.Context) {
	var request stickyNoteRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	stickyNote, err := h.organizer.CreateStickyNote(c.Request.Context(), actorFrom(c), organizer.StickyNoteInput{
		Content: request.Content,
		Color:   request.Color,
		X:       request.X,
		Y:       request.Y,
		Width:   request.Width,
		Height:  request.Height,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stickyNote)
}

func (h *httpHandler) handleUpdateStickyNote(c *gin.Context) {
	var update organizer.StickyNoteUpdate
	if err := bindUpdate(c, &update); err != nil {
		h.writeError(c, err)
		return
	}
	stickyNote, err := h.organizer.UpdateStickyNote(c.Request.Context(), actorFrom(c), c.Param("id"), update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stickyNote)
}

func (h *httpHandler) handleDeleteStickyNote(c *gin.Context) {
	if err := h.organizer.DeleteStickyNote(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	respondSuccess(c)
}

func (h *httpHandler) handleListJournalEntries(c *gin.Context) {
	entries, err := h.organizer.ListJournalEntries(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *httpHandler) handleCreateJournalEntry(c *gin.Context) {
	var request journalRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	entry, err := h.organizer.CreateJournalEntry(c.Request.Context(), actorFrom(c), organizer.JournalInput{
		Date:    request.Date,
		Mood:    request.Mood,
		Content: request.Content,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *httpHandler) handleDeleteJournalEntry(c *gin.Context) {
	if err := h.organizer.DeleteJournalEntry(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	respondSuccess(c)
}
