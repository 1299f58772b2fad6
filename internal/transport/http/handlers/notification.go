package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/transport/http/middleware"
	"github.com/d56845684/edu-auth-service/internal/usecase"
)

// NotificationHandler exposes binding and notification-preference endpoints.
type NotificationHandler struct {
	bindings *usecase.BindingService
}

// NewNotificationHandler builds the binding endpoint handler.
func NewNotificationHandler(bindings *usecase.BindingService) *NotificationHandler {
	return &NotificationHandler{bindings: bindings}
}

// ListBindings returns the caller's bindings across channels.
func (h *NotificationHandler) ListBindings(c *gin.Context) {
	includeUnlinked := c.Query("include_unlinked") == "true"

	bindings, err := h.bindings.Bindings(c.Request.Context(), middleware.GetUserID(c), includeUnlinked)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "binding lookup failed"))
		return
	}

	summaries := make([]BindingSummary, 0, len(bindings))
	for _, b := range bindings {
		summaries = append(summaries, newBindingSummary(b))
	}
	c.JSON(http.StatusOK, gin.H{"bindings": summaries})
}

// GetBinding returns the caller's active binding on the channel.
func (h *NotificationHandler) GetBinding(c *gin.Context) {
	channel, ok := channelParam(c)
	if !ok {
		return
	}

	binding, err := h.bindings.Binding(c.Request.Context(), middleware.GetUserID(c), channel)
	if err != nil {
		if errors.Is(err, usecase.ErrBindingNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "no active binding"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "binding lookup failed"))
		return
	}
	c.JSON(http.StatusOK, newBindingSummary(*binding))
}

// Unbind soft-unlinks the caller's binding on the channel.
func (h *NotificationHandler) Unbind(c *gin.Context) {
	channel, ok := channelParam(c)
	if !ok {
		return
	}

	if err := h.bindings.Unbind(c.Request.Context(), middleware.GetUserID(c), channel); err != nil {
		if errors.Is(err, usecase.ErrBindingNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "no active binding"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "unbind failed"))
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "binding removed"})
}

// UpdatePreferences replaces the notification flags on the caller's active
// binding. Omitted flags keep their current value.
func (h *NotificationHandler) UpdatePreferences(c *gin.Context) {
	channel, ok := channelParam(c)
	if !ok {
		return
	}

	var req PreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	userID := middleware.GetUserID(c)
	binding, err := h.bindings.Binding(c.Request.Context(), userID, channel)
	if err != nil {
		if errors.Is(err, usecase.ErrBindingNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "no active binding"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "binding lookup failed"))
		return
	}

	prefs := binding.Preferences
	if req.BookingConfirmation != nil {
		prefs.BookingConfirmation = *req.BookingConfirmation
	}
	if req.BookingReminder != nil {
		prefs.BookingReminder = *req.BookingReminder
	}
	if req.StatusUpdate != nil {
		prefs.StatusUpdate = *req.StatusUpdate
	}

	if err := h.bindings.UpdatePreferences(c.Request.Context(), userID, channel, prefs); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "preference update failed"))
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// OptInStatus answers whether a user is bound and opted in for a
// notification kind. Consumed by the notification dispatcher, not browsers.
func (h *NotificationHandler) OptInStatus(c *gin.Context) {
	channel, ok := channelParam(c)
	if !ok {
		return
	}

	userID := c.Param("user_id")
	kind := domain.NotificationKind(c.Query("kind"))

	optedIn, err := h.bindings.IsOptedIn(c.Request.Context(), userID, channel, kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "opt-in lookup failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"opted_in": optedIn})
}
