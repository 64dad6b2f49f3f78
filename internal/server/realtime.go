package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	realtimeEventReady        = "ready"
	realtimeEventNotification = "notification"
	realtimeEventHeartbeat    = "heartbeat"
	realtimeSourceBackend     = "studyflow-backend"
	realtimeHeartbeatInterval = 25 * time.Second
	streamTicketQueryParam    = "ticket"
)

type realtimeHeartbeatPayload struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// handleIssueStreamTicket returns a ticket the caller can pass as
// ?ticket= when opening the notification stream.
func (h *httpHandler) handleIssueStreamTicket(c *gin.Context) {
	ticket, err := h.tickets.Issue(actorFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// authorizeStream accepts a stream ticket from the query string and falls
// back to the regular session token otherwise.
func (h *httpHandler) authorizeStream(c *gin.Context) {
	ticket := strings.TrimSpace(c.Query(streamTicketQueryParam))
	if ticket == "" {
		h.authorizeRequest(c)
		return
	}
	userID, err := h.tickets.Validate(ticket)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("stream ticket expired")
		} else {
			h.logger.Warn("ticket validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(actorContextKey, access.Actor{UserID: userID})
	c.Next()
}

// handleNotificationStream relays the caller's new notifications as
// server-sent events until the client disconnects.
func (h *httpHandler) handleNotificationStream(c *gin.Context) {
	actor := actorFrom(c)
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, actor.UserID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent(realtimeEventReady, realtimeHeartbeatPayload{Source: realtimeSourceBackend, Timestamp: time.Now().UTC()})
	c.Writer.Flush()

	h.logger.Debug("notification stream opened", zap.String("user_id", actor.UserID))
	defer h.logger.Debug("notification stream closed", zap.String("user_id", actor.UserID))

	ticker := time.NewTicker(realtimeHeartbeatInterval)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case notification, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(realtimeEventNotification, notification)
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeHeartbeatPayload{Source: realtimeSourceBackend, Timestamp: tick.UTC()})
			return true
		}
	})
}
