package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/progress"
	"github.com/gin-gonic/gin"
)

type focusRequestPayload struct {
	Minutes *int `json:"minutes"`
}

type rewardRequestPayload struct {
	Reward      string `json:"reward"`
	TargetTasks int    `json:"targetTasks"`
}

func (h *httpHandler) handleGetStats(c *gin.Context) {
	stats, err := h.progress.Stats(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) handleAddFocusMinutes(c *gin.Context) {
	var request focusRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	if request.Minutes == nil {
		h.writeError(c, apperr.NewValidationError("minutes", "is required"))
		return
	}
	stats, err := h.progress.AddFocusMinutes(c.Request.Context(), actorFrom(c), *request.Minutes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) handleTouchStreak(c *gin.Context) {
	result, err := h.progress.TouchStreak(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleListRewards(c *gin.Context) {
	rewards, err := h.progress.ListRewards(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rewards)
}

func (h *httpHandler) handleCreateReward(c *gin.Context) {
	var request rewardRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	reward, err := h.progress.CreateReward(c.Request.Context(), actorFrom(c), progress.RewardInput{
		Reward:      request.Reward,
		TargetTasks: request.TargetTasks,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reward)
}

func (h *httpHandler) handleUpdateReward(c *gin.Context) {
	var update progress.RewardUpdate
	if err := bindUpdate(c, &update); err != nil {
		h.writeError(c, err)
		return
	}
	reward, err := h.progress.UpdateReward(c.Request.Context(), actorFrom(c), c.Param("id"), update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reward)
}

func (h *httpHandler) handleDeleteReward(c *gin.Context) {
	if err := h.progress.DeleteReward(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	respondSuccess(c)
}
