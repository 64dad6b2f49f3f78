package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/assistant"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const codeResponderFailed = "assistant.chat.responder_failed"

type chatRequestPayload struct {
	Message string `json:"message"`
}

func (h *httpHandler) handleListAssistantMessages(c *gin.Context) {
	messages, err := h.assistant.ListMessages(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *httpHandler) handleClearAssistantMessages(c *gin.Context) {
	if err := h.assistant.ClearMessages(c.Request.Context(), actorFrom(c)); err != nil {
		h.writeError(c, err)
		return
	}
	respondSuccess(c)
}

func (h *httpHandler) handleAssistantChat(c *gin.Context) {
	var request chatRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	reply, err := h.assistant.Chat(c.Request.Context(), actorFrom(c), request.Message)
	if err != nil {
		if apperr.Code(err) == codeResponderFailed {
			h.logger.Warn("assistant reply unavailable", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   codeResponderFailed,
				"message": assistant.UnavailableReply,
			})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}
