package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/settings"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleGetPomodoro(c *gin.Context) {
	pomodoro, err := h.settings.Pomodoro(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pomodoro)
}

func (h *httpHandler) handleSavePomodoro(c *gin.Context) {
	var update settings.PomodoroUpdate
	if err := bindUpdate(c, &update); err != nil {
		h.writeError(c, err)
		return
	}
	pomodoro, err := h.settings.SavePomodoro(c.Request.Context(), actorFrom(c), update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pomodoro)
}

func (h *httpHandler) handleGetPreferences(c *gin.Context) {
	preferences, err := h.settings.Preferences(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, preferences)
}

func (h *httpHandler) handleSavePreferences(c *gin.Context) {
	var update settings.PreferencesUpdate
	if err := bindUpdate(c, &update); err != nil {
		h.writeError(c, err)
		return
	}
	preferences, err := h.settings.SavePreferences(c.Request.Context(), actorFrom(c), update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, preferences)
}
