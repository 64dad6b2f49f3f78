package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type signupRequestPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordRequestPayload struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type deleteAccountRequestPayload struct {
	ConfirmEmail string `json:"confirmEmail"`
}

type authResponsePayload struct {
	User      users.User `json:"user"`
	SessionID string     `json:"sessionId"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var request signupRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	user, err := h.users.Register(c.Request.Context(), users.Registration{
		Name:     request.Name,
		Email:    request.Email,
		Password: request.Password,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.startSession(c, http.StatusCreated, user)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrInvalidCredentials) {
			h.logger.Warn("login rejected", zap.String("code", apperr.Code(err)))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		h.writeError(c, err)
		return
	}
	h.startSession(c, http.StatusOK, user)
}

func (h *httpHandler) startSession(c *gin.Context, status int, user users.User) {
	session, err := h.sessions.Create(c.Request.Context(), user.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.setSessionCookie(c, session)
	c.JSON(status, authResponsePayload{User: user, SessionID: session.Token})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	actor := actorFrom(c)
	if err := h.sessions.Destroy(c.Request.Context(), actor.SessionID); err != nil {
		h.writeError(c, err)
		return
	}
	h.clearSessionCookie(c)
	respondSuccess(c)
}

func (h *httpHandler) handleGetMe(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *httpHandler) handleUpdateMe(c *gin.Context) {
	var update users.ProfileUpdate
	if err := bindUpdate(c, &update); err != nil {
		h.writeError(c, err)
		return
	}
	user, err := h.users.UpdateProfile(c.Request.Context(), actorFrom(c).UserID, update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *httpHandler) handleChangePassword(c *gin.Context) {
	var request passwordRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.users.ChangePassword(c.Request.Context(), actorFrom(c).UserID, request.CurrentPassword, request.NewPassword); err != nil {
		h.writeError(c, err)
		return
	}
	respondSuccess(c)
}

func (h *httpHandler) handleDeleteMe(c *gin.Context) {
	var request deleteAccountRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.users.DeleteAccount(c.Request.Context(), actorFrom(c).UserID, request.ConfirmEmail); err != nil {
		h.writeError(c, err)
		return
	}
	h.clearSessionCookie(c)
	respondSuccess(c)
}
