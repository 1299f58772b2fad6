package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/d56845684/edu-auth-service/internal/transport/http/middleware"
	"github.com/d56845684/edu-auth-service/internal/usecase"
)

// PermissionHandler exposes permission-level endpoints.
type PermissionHandler struct {
	permissions *usecase.PermissionService
}

// NewPermissionHandler builds the permission endpoint handler.
func NewPermissionHandler(permissions *usecase.PermissionService) *PermissionHandler {
	return &PermissionHandler{permissions: permissions}
}

// MyPermission reports the caller's resolved level and subtype.
func (h *PermissionHandler) MyPermission(c *gin.Context) {
	userID := middleware.GetUserID(c)

	level, err := h.permissions.Level(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "permission lookup failed"))
		return
	}
	subtype, err := h.permissions.Subtype(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "permission lookup failed"))
		return
	}

	c.JSON(http.StatusOK, PermissionResponse{
		UserID:  userID,
		Level:   level,
		Subtype: subtype,
	})
}

// SetSubtype updates a target employee's subtype on behalf of the caller.
func (h *PermissionHandler) SetSubtype(c *gin.Context) {
	targetID := c.Param("user_id")
	if targetID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "missing user id"))
		return
	}

	var req SubtypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	err := h.permissions.SetSubtype(c.Request.Context(), middleware.GetUserID(c), targetID, req.Subtype)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidSubtype):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid subtype"))
		case errors.Is(err, usecase.ErrNotEmployee), errors.Is(err, usecase.ErrInsufficientLevel):
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "not allowed to manage this user"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "subtype update failed"))
		}
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "subtype updated"})
}
