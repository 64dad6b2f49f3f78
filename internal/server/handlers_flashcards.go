package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/flashcards"
	"github.com/gin-gonic/gin"
)

type flashcardRequestPayload struct {
	Front     string  `json:"front"`
	Back      string  `json:"back"`
	SubjectID *string `json:"subjectId"`
}

type reviewRequestPayload struct {
	Correct *bool `json:"correct"`
}

func (h *httpHandler) handleListFlashcards(c *gin.Context) {
	filter := flashcards.ListFilter{
		DueOnly:   strings.EqualFold(strings.TrimSpace(c.Query("due")), "true"),
		SubjectID: strings.TrimSpace(c.Query("subjectId")),
	}
	cards, err := h.flashcards.List(c.Request.Context(), actorFrom(c), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

func (h *httpHandler) handleCreateFlashcard(c *gin.Context) {
	var request flashcardRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	card, err := h.flashcards.Create(c.Request.Context(), actorFrom(c), flashcards.CardInput{
		Front:     request.Front,
		Back:      request.Back,
		SubjectID: request.SubjectID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

func (h *httpHandler) handleUpdateFlashcard(c *gin.Context) {
	var update flashcards.CardUpdate
	if err := bindUpdate(c, &update); err != nil {
		h.writeError(c, err)
		return
	}
	card, err := h.flashcards.Update(c.Request.Context(), actorFrom(c), c.Param("id"), update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (h *httpHandler) handleDeleteFlashcard(c *gin.Context) {
	if err := h.flashcards.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	respondSuccess(c)
}

func (h *httpHandler) handleReviewFlashcard(c *gin.Context) {
	var request reviewRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	if request.Correct == nil {
		h.writeError(c, apperr.NewValidationError("correct", "is required"))
		return
	}
	card, err := h.flashcards.Review(c.Request.Context(), actorFrom(c), c.Param("id"), *request.Correct)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}
