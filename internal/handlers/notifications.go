package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/smartpost/internal/middleware"
	"github.com/charlesng35/smartpost/internal/notifications"
	"github.com/charlesng35/smartpost/internal/realtime"
	"github.com/charlesng35/smartpost/pkg/errors"
	"github.com/charlesng35/smartpost/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for the per-user notification inbox.
type NotificationHandler struct {
	inbox  *notifications.Inbox
	hub    *realtime.Hub
	tokens middleware.TokenValidator
}

// NewNotificationHandler constructs a notification handler. hub and tokens may be nil, in
// which case the stream endpoint answers 404.
func NewNotificationHandler(inbox *notifications.Inbox, hub *realtime.Hub, tokens middleware.TokenValidator) *NotificationHandler {
	return &NotificationHandler{
		inbox:  inbox,
		hub:    hub,
		tokens: tokens,
	}
}

// List returns notifications for the current user, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	limit, err := parseIntQuery(c, "limit", notifications.DefaultListLimit)
	if err != nil {
		response.Error(c, err)
		return
	}
	limit = notifications.ClampLimit(limit)

	items, err := h.inbox.List(requestContext(c), userID, parseBoolQuery(c, "unread_only"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{Limit: limit, Count: len(items)})
}

// UnreadCount returns the number of unread notifications.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	count, err := h.inbox.UnreadCount(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unread_count": count})
}

// MarkRead flags a single notification as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if err := h.inbox.MarkRead(requestContext(c), userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"event_id": id, "read": true})
}

// MarkAllRead marks every unread notification read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	updated, err := h.inbox.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated_count": updated})
}

// Clear deletes read notifications, or all of them with mode=all.
func (h *NotificationHandler) Clear(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	mode, err := notifications.ParseClearMode(c.Query("mode"))
	if err != nil {
		response.Error(c, err)
		return
	}

	cleared, err := h.inbox.Clear(requestContext(c), userID, mode)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"mode": mode, "cleared_count": cleared})
}

// Stream upgrades the connection to a WebSocket for notification streaming. Browsers cannot
// set headers on websocket requests, so the token may also arrive as a query parameter.
func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.tokens == nil || h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		token, _ = middleware.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil || strings.TrimSpace(claims.UserID) == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	h.hub.Serve(claims.UserID, []string{realtime.StreamNotifications}, c.Writer, c.Request)
}
