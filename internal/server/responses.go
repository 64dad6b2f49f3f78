package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxRequestBodyBytes = 1 << 20

// protectedUpdateKeys name fields that never change through a generic update.
var protectedUpdateKeys = []string{"id", "userId", "email", "password"}

// writeError maps err onto the status taxonomy and aborts the request.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	code := apperr.Code(err)
	switch {
	case errors.Is(err, apperr.ErrInvalidCredentials), errors.Is(err, apperr.ErrUnauthenticated):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": codeOr(code, "unauthorized")})
	case errors.Is(err, apperr.ErrValidation):
		body := gin.H{"error": codeOr(code, "invalid_request")}
		if fields := apperr.FieldErrors(err); len(fields) > 0 {
			body["fields"] = fields
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, body)
	case errors.Is(err, apperr.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": codeOr(code, "forbidden")})
	case errors.Is(err, apperr.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": codeOr(code, "not_found")})
	case errors.Is(err, apperr.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": codeOr(code, "conflict")})
	default:
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("code", code),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func codeOr(code, fallback string) string {
	if code == "" {
		return fallback
	}
	return code
}

// bindJSON decodes a create payload. Malformed bodies are validation failures.
func bindJSON(c *gin.Context, dest interface{}) error {
	if err := c.ShouldBindJSON(dest); err != nil {
		return apperr.NewValidationError("body", "must be a valid JSON object")
	}
	return nil
}

// bindUpdate decodes a partial update strictly: unknown keys and protected
// keys are rejected instead of ignored.
func bindUpdate(c *gin.Context, dest interface{}) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBodyBytes))
	if err != nil {
		return apperr.NewValidationError("body", "could not be read")
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return apperr.NewValidationError("body", "must be a valid JSON object")
	}
	var validation apperr.ValidationError
	for _, key := range protectedUpdateKeys {
		if _, present := keys[key]; present {
			validation.Add(key, "cannot be changed")
		}
	}
	if err := validation.OrNil(); err != nil {
		return err
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return apperr.NewValidationError("body", unknownFieldMessage(err))
	}
	return nil
}

func unknownFieldMessage(err error) string {
	message := err.Error()
	if strings.HasPrefix(message, "json: unknown field ") {
		return "unknown field " + strings.TrimPrefix(message, "json: unknown field ")
	}
	return "has an invalid shape"
}

// optionalTime parses an RFC 3339 query parameter. Empty values are absent.
func optionalTime(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.NewValidationError(name, "must be an RFC 3339 timestamp")
	}
	return &parsed, nil
}

func respondSuccess(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true})
}
